package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/forecast-ledger/internal/models"
)

// FixtureSource lists upcoming fixtures with head-to-head prices.
type FixtureSource interface {
	// ActiveSports returns the active sports this source is configured to ingest.
	ActiveSports(ctx context.Context) ([]Sport, error)

	// FetchFixtures returns upcoming fixtures for sportKey priced in region.
	FetchFixtures(ctx context.Context, sportKey, region string) ([]Fixture, error)

	// Name returns the name of the data source
	Name() string
}

// ResultSource reports finalized results keyed by match ID.
type ResultSource interface {
	// FetchResult returns the result for matchID. A match the source does
	// not know yet comes back with Completed == false, not an error.
	FetchResult(ctx context.Context, sportKey, matchID string) (*MatchResult, error)
}

// Sport is one competition key, e.g. "tennis_atp_paris".
type Sport struct {
	Key    string `json:"key"`
	Group  string `json:"group"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Fixture represents a normalized upcoming match with its best preferred prices.
// HomeOdds and AwayOdds are zero when no bookmaker priced both sides.
type Fixture struct {
	MatchID      string          `json:"match_id"`
	SportKey     string          `json:"sport_key"`
	Tournament   string          `json:"tournament"`
	HomePlayer   string          `json:"player_a"`
	AwayPlayer   string          `json:"player_b"`
	CommenceTime time.Time       `json:"commence_time"`
	HomeOdds     decimal.Decimal `json:"odds_a"`
	AwayOdds     decimal.Decimal `json:"odds_b"`
	Bookmaker    string          `json:"bookmaker,omitempty"`
}

// HasOdds reports whether both sides were priced.
func (f Fixture) HasOdds() bool {
	return f.HomeOdds.IsPositive() && f.AwayOdds.IsPositive()
}

// MatchResult is a match as reported by the result feed.
type MatchResult struct {
	MatchID    string            `json:"match_id"`
	Completed  bool              `json:"completed"`
	HomePlayer string            `json:"player_a,omitempty"`
	AwayPlayer string            `json:"player_b,omitempty"`
	Winner     string            `json:"winner,omitempty"`
	Scores     map[string]string `json:"scores,omitempty"`
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Is maps error codes onto the domain sentinels so callers can use errors.Is
// without knowing about data sources.
func (e DataSourceError) Is(target error) bool {
	switch target {
	case models.ErrNotFound:
		return e.Code == ErrCodeNotFound
	case models.ErrUpstreamUnavailable:
		return e.Code != ErrCodeNotFound
	}
	return false
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeCircuitOpen          = "circuit_open"
)

// ErrCircuitOpen is returned by RateLimitedHTTPClient while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
