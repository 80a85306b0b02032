package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/database"
	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/logger"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
)

func newTestStore(t *testing.T) repository.ForecastRepository {
	t.Helper()
	repos, err := repository.NewSQLiteRepositories(database.OpenTestSQLite(t))
	require.NoError(t, err)
	return repos.Forecast
}

func testPipelineLogger() *logger.PipelineLogger {
	return logger.NewPipelineLogger(logger.Discard())
}

func seedForecast(t *testing.T, store repository.ForecastRepository, matchID string, pHome float64, createdAt time.Time) *models.Forecast {
	t.Helper()
	f := &models.Forecast{
		MatchID:   matchID,
		SportKey:  "tennis_atp_paris",
		PlayerA:   "Home " + matchID,
		PlayerB:   "Away " + matchID,
		PHome:     pHome,
		CreatedAt: createdAt,
		State:     models.StateUnresolved,
	}
	inserted, err := store.PutIfAbsent(context.Background(), f)
	require.NoError(t, err)
	require.True(t, inserted)
	return f
}

func seedResolved(t *testing.T, store repository.ForecastRepository, matchID string, pHome float64, homeWon bool) {
	t.Helper()
	f := seedForecast(t, store, matchID, pHome, time.Now())
	winner := f.PlayerB
	if homeWon {
		winner = f.PlayerA
	}
	updated, err := store.AttachOutcome(context.Background(), matchID, models.Resolution{
		HomeWon:  homeWon,
		Winner:   winner,
		ScoredAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, updated)
}

// fakeFixtureSource serves canned sports and fixtures.
type fakeFixtureSource struct {
	sports   []datasource.Sport
	fixtures []datasource.Fixture
	err      error

	mu         sync.Mutex
	fetchCalls int
	lastSport  string
	lastRegion string
}

func (s *fakeFixtureSource) ActiveSports(_ context.Context) ([]datasource.Sport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sports, nil
}

func (s *fakeFixtureSource) FetchFixtures(_ context.Context, sportKey, region string) ([]datasource.Fixture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	s.lastSport = sportKey
	s.lastRegion = region
	if s.err != nil {
		return nil, s.err
	}
	return s.fixtures, nil
}

func (s *fakeFixtureSource) Name() string { return "fake" }

// fakeForecaster returns a fixed probability, or an error for listed matches.
type fakeForecaster struct {
	p    float64
	fail map[string]bool
}

func (f *fakeForecaster) Name() string    { return "fake" }
func (f *fakeForecaster) Version() string { return "test" }

func (f *fakeForecaster) Forecast(_ context.Context, fx datasource.Fixture) (float64, error) {
	if f.fail[fx.MatchID] {
		return 0, errors.New("model unavailable")
	}
	return f.p, nil
}

// fakeResultSource serves results keyed by match ID.
type fakeResultSource struct {
	mu      sync.Mutex
	results map[string]*datasource.MatchResult
	errs    map[string]error
	calls   int
}

func (s *fakeResultSource) FetchResult(_ context.Context, _ string, matchID string) (*datasource.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[matchID]; ok {
		return nil, err
	}
	if r, ok := s.results[matchID]; ok {
		return r, nil
	}
	return &datasource.MatchResult{MatchID: matchID, Completed: false}, nil
}

// recordingListener captures resolution events.
type recordingListener struct {
	mu       sync.Mutex
	resolved []*models.Forecast
}

func (l *recordingListener) ForecastResolved(_ context.Context, f *models.Forecast) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = append(l.resolved, f)
}

func (l *recordingListener) matchIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, len(l.resolved))
	for i, f := range l.resolved {
		ids[i] = f.MatchID
	}
	return ids
}

func fixture(matchID string) datasource.Fixture {
	return datasource.Fixture{
		MatchID:      matchID,
		SportKey:     "tennis_atp_paris",
		HomePlayer:   "Home " + matchID,
		AwayPlayer:   "Away " + matchID,
		CommenceTime: time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC),
	}
}
