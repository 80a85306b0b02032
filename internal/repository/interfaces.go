package repository

import (
	"context"
	"fmt"
	"math"

	"github.com/yourusername/forecast-ledger/internal/models"
)

// ScoreFilter narrows the set of resolved forecasts fed to scoring.
type ScoreFilter struct {
	SportKey string
}

// ListFilter pages through forecasts. Zero values mean "no constraint".
type ListFilter struct {
	State    models.ForecastState
	SportKey string
	Limit    int
	Offset   int
	// ByResolution orders by scored_at instead of created_at. Only
	// meaningful together with State == models.StateResolved.
	ByResolution bool
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// ForecastRepository defines the interface for forecast data access.
// Implementations are safe for concurrent use; per-key atomicity of
// PutIfAbsent and AttachOutcome comes from the database.
type ForecastRepository interface {
	// PutIfAbsent stores f unless a forecast with the same match ID exists.
	// inserted is false for the duplicate case, which is not an error.
	PutIfAbsent(ctx context.Context, f *models.Forecast) (inserted bool, err error)
	// Get returns models.ErrNotFound for unknown match IDs.
	Get(ctx context.Context, matchID string) (*models.Forecast, error)
	// ListUnresolved returns unresolved forecasts ordered by creation time.
	// An empty sportKey lists every sport.
	ListUnresolved(ctx context.Context, sportKey string) ([]*models.Forecast, error)
	// AttachOutcome resolves an unresolved forecast. updated is false when
	// the forecast is unknown or already resolved.
	AttachOutcome(ctx context.Context, matchID string, res models.Resolution) (updated bool, err error)
	// EachScored streams every resolved (p_home, home_won) pair to fn.
	// Iteration stops at the first error returned by fn.
	EachScored(ctx context.Context, filter ScoreFilter, fn func(models.ScoredPair) error) error
	Stats(ctx context.Context) (models.StoreStats, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Forecast, error)
}

func checkStorable(f *models.Forecast) error {
	if f == nil {
		return models.NewValidationError("nil_forecast", "forecast is required")
	}
	if f.MatchID == "" {
		return models.NewFieldValidationError("match_id", "required", "match_id is required")
	}
	if math.IsNaN(f.PHome) || f.PHome < 0 || f.PHome > 1 {
		return models.NewFieldValidationError("p_home", "out_of_range",
			fmt.Sprintf("p_home must be within [0,1], got %v", f.PHome))
	}
	return nil
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ListFilter) orderBy() string {
	if f.ByResolution {
		return ` ORDER BY scored_at, match_id`
	}
	return ` ORDER BY created_at, match_id`
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}
