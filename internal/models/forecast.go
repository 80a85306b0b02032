package models

import (
	"time"
)

// ForecastState is the lifecycle tag of a stored forecast. A forecast moves
// from StateUnresolved to StateResolved exactly once.
type ForecastState string

const (
	StateUnresolved ForecastState = "unresolved"
	StateResolved   ForecastState = "resolved"
)

// Valid reports whether s is a known state.
func (s ForecastState) Valid() bool {
	return s == StateUnresolved || s == StateResolved
}

// Resolution is the realized outcome attached to a forecast.
type Resolution struct {
	HomeWon  bool      `db:"home_won" json:"home_won"`
	Winner   string    `db:"winner" json:"winner"`
	ScoredAt time.Time `db:"scored_at" json:"scored_at"`
}

// Forecast is a stored probabilistic prediction for one match
type Forecast struct {
	MatchID      string        `db:"match_id" json:"match_id"`
	SportKey     string        `db:"sport_key" json:"sport_key"`
	PlayerA      string        `db:"player_a" json:"player_a"`
	PlayerB      string        `db:"player_b" json:"player_b"`
	PHome        float64       `db:"p_home" json:"p_home"`
	CommenceTime *time.Time    `db:"commence_time" json:"commence_time,omitempty"`
	Model        string        `db:"model" json:"model,omitempty"`
	ModelVersion string        `db:"model_version" json:"model_version,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	State        ForecastState `db:"state" json:"state"`
	Resolution   *Resolution   `json:"resolution,omitempty"`
}

// IsResolved reports whether an outcome has been attached.
func (f *Forecast) IsResolved() bool {
	return f.State == StateResolved && f.Resolution != nil
}

// Outcome returns the realized outcome and whether one exists.
func (f *Forecast) Outcome() (homeWon bool, ok bool) {
	if !f.IsResolved() {
		return false, false
	}
	return f.Resolution.HomeWon, true
}

// PredictsHome reports whether the forecast calls a home win. Ties at exactly
// 0.5 count as a home call.
func (f *Forecast) PredictsHome() bool {
	return PredictsHome(f.PHome)
}

// PredictsHome applies the favorite convention to a raw probability.
func PredictsHome(pHome float64) bool {
	return pHome >= 0.5
}

// ScoredPair is the minimal projection the scoring engine folds over.
type ScoredPair struct {
	PHome   float64
	HomeWon bool
}

// Correct reports whether the predicted favorite matched the outcome.
func (p ScoredPair) Correct() bool {
	return PredictsHome(p.PHome) == p.HomeWon
}

// SquaredError returns (p_home - o)^2 with o in {0,1}.
func (p ScoredPair) SquaredError() float64 {
	o := 0.0
	if p.HomeWon {
		o = 1.0
	}
	d := p.PHome - o
	return d * d
}

// StoreStats summarizes the store by lifecycle state.
type StoreStats struct {
	Total      int64 `json:"total"`
	Unresolved int64 `json:"unresolved"`
	Resolved   int64 `json:"resolved"`
}
