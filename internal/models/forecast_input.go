package models

import "time"

// ForecastInput is one forecaster output offered to ingestion.
type ForecastInput struct {
	MatchID      string     `json:"match_id" validate:"required,max=128"`
	SportKey     string     `json:"sport_key" validate:"required,max=128"`
	PlayerA      string     `json:"player_a" validate:"required"`
	PlayerB      string     `json:"player_b" validate:"required,nefield=PlayerA"`
	PHome        *float64   `json:"p_home" validate:"required,gte=0,lte=1"`
	CommenceTime *time.Time `json:"commence_time,omitempty"`
	Model        string     `json:"model,omitempty"`
	ModelVersion string     `json:"model_version,omitempty"`
}

// Probability returns a pointer to p for building a ForecastInput.
func Probability(p float64) *float64 {
	return &p
}

// PHomeValue returns the submitted p_home, or zero when it is missing.
// Callers validate before relying on it.
func (in ForecastInput) PHomeValue() float64 {
	if in.PHome == nil {
		return 0
	}
	return *in.PHome
}

// ToForecast builds an unresolved forecast stamped with createdAt.
func (in ForecastInput) ToForecast(createdAt time.Time) *Forecast {
	return &Forecast{
		MatchID:      in.MatchID,
		SportKey:     in.SportKey,
		PlayerA:      in.PlayerA,
		PlayerB:      in.PlayerB,
		PHome:        in.PHomeValue(),
		CommenceTime: in.CommenceTime,
		Model:        in.Model,
		ModelVersion: in.ModelVersion,
		CreatedAt:    createdAt,
		State:        StateUnresolved,
	}
}
