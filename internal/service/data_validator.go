package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/forecast-ledger/internal/models"
)

// ForecastValidator checks forecast inputs before they reach the store.
type ForecastValidator struct {
	validate *validator.Validate
}

// NewForecastValidator creates a validator that reports JSON field names.
func NewForecastValidator() *ForecastValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &ForecastValidator{validate: v}
}

// Validate returns the first problem with in, or nil.
func (v *ForecastValidator) Validate(in models.ForecastInput) *models.ValidationError {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return models.NewValidationError("invalid", err.Error())
	}

	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return models.NewFieldValidationError(fe.Field(), "required", fe.Field()+" is required")
	case "gte", "lte":
		return models.NewFieldValidationError(fe.Field(), "out_of_range",
			fmt.Sprintf("%s must be within [0,1], got %v", fe.Field(), fe.Value()))
	case "nefield":
		return models.NewFieldValidationError(fe.Field(), "same_players", "player_a and player_b must differ")
	case "max":
		return models.NewFieldValidationError(fe.Field(), "too_long",
			fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
	default:
		return models.NewFieldValidationError(fe.Field(), fe.Tag(), fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
}
