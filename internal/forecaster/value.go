package forecaster

import (
	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/models"
)

// Value compares a forecast with the market price of its favourite.
type Value struct {
	// Pick is "A" when p_home >= 0.5, else "B".
	Pick string `json:"pick"`
	// Edge is the model probability of the pick minus its implied probability.
	Edge float64 `json:"edge"`
	// Kelly is the stake fraction for the pick, clamped to [0,1].
	Kelly float64 `json:"kelly"`
}

// Assess prices pHome against the fixture odds. ok is false for fixtures
// without usable two-way odds.
func Assess(pHome float64, fixture datasource.Fixture) (v Value, ok bool) {
	implied, err := impliedHome(fixture.HomeOdds, fixture.AwayOdds)
	if err != nil {
		return Value{}, false
	}

	if models.PredictsHome(pHome) {
		odds, _ := fixture.HomeOdds.Float64()
		return Value{Pick: "A", Edge: pHome - implied, Kelly: kellyFraction(pHome, odds)}, true
	}
	odds, _ := fixture.AwayOdds.Float64()
	pAway := 1 - pHome
	return Value{Pick: "B", Edge: pAway - (1 - implied), Kelly: kellyFraction(pAway, odds)}, true
}

// kellyFraction is (b*p - q) / b with b = odds - 1, clamped to [0,1].
func kellyFraction(p, decimalOdds float64) float64 {
	b := decimalOdds - 1
	if b < 1e-6 {
		b = 1e-6
	}
	return clamp01((b*p - (1 - p)) / b)
}
