// Package forecaster turns fixtures into home-win probabilities.
package forecaster

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/forecast-ledger/internal/config"
	"github.com/yourusername/forecast-ledger/internal/datasource"
)

// ModelVersion is stamped on every forecast produced by this package.
const ModelVersion = "0.2.0"

// ErrUnpriced is returned for fixtures without usable two-way odds.
var ErrUnpriced = errors.New("fixture has no usable two-way odds")

// Forecaster produces p_home for a fixture.
type Forecaster interface {
	Name() string
	Version() string
	Forecast(ctx context.Context, fixture datasource.Fixture) (float64, error)
}

// New builds the forecaster selected by cfg.Model. ratings is only used by
// elo_blend and may be nil otherwise.
func New(cfg config.ForecasterConfig, ratings *RatingBook) (Forecaster, error) {
	switch cfg.Model {
	case "", "implied":
		return ImpliedOdds{}, nil
	case "elo_blend":
		if ratings == nil {
			ratings = NewRatingBook(cfg.BaseRating, cfg.EloK)
		}
		return &EloBlend{Ratings: ratings, Weight: cfg.BlendWeight}, nil
	default:
		return nil, fmt.Errorf("unknown forecaster model %q", cfg.Model)
	}
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
