package forecaster

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourusername/forecast-ledger/internal/datasource"
)

// ImpliedOdds converts decimal h2h odds into the overround-normalised
// probability that the home player wins.
type ImpliedOdds struct{}

// Name returns the model name
func (ImpliedOdds) Name() string { return "implied" }

// Version returns the model version
func (ImpliedOdds) Version() string { return ModelVersion }

// Forecast returns (1/home) / (1/home + 1/away).
func (ImpliedOdds) Forecast(_ context.Context, fixture datasource.Fixture) (float64, error) {
	return impliedHome(fixture.HomeOdds, fixture.AwayOdds)
}

func impliedHome(home, away decimal.Decimal) (float64, error) {
	one := decimal.NewFromInt(1)
	if home.LessThanOrEqual(one) || away.LessThanOrEqual(one) {
		return 0, fmt.Errorf("%w: home=%s away=%s", ErrUnpriced, home, away)
	}

	ih := one.DivRound(home, 16)
	ia := one.DivRound(away, 16)
	p, _ := ih.DivRound(ih.Add(ia), 16).Float64()
	return clamp01(p), nil
}
