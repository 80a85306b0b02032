package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/models"
)

const sportsPayload = `[
	{"key": "tennis_atp_paris", "group": "Tennis", "title": "ATP Paris", "active": true},
	{"key": "tennis_wta_wuhan", "group": "Tennis", "title": "WTA Wuhan", "active": true},
	{"key": "tennis_atp_basel", "group": "Tennis", "title": "ATP Basel", "active": false},
	{"key": "soccer_epl", "group": "Soccer", "title": "EPL", "active": true}
]`

const oddsPayload = `[
	{
		"id": "e1", "sport_key": "tennis_atp_paris", "sport_title": "ATP Paris",
		"commence_time": "2025-10-30T12:00:00Z", "home_team": "Sinner", "away_team": "Alcaraz",
		"bookmakers": [
			{"key": "bet365", "title": "Bet365", "markets": [{"key": "h2h", "outcomes": [
				{"name": "Sinner", "price": 1.90}, {"name": "Alcaraz", "price": 1.95}]}]},
			{"key": "pinnacle", "title": "Pinnacle", "markets": [{"key": "h2h", "outcomes": [
				{"name": "Sinner", "price": 1.80}, {"name": "Alcaraz", "price": 2.10}]}]}
		]
	},
	{
		"id": "e2", "sport_key": "tennis_atp_paris", "commence_time": "2025-10-30T14:00:00Z",
		"home_team": "Zverev", "away_team": "Rune", "bookmakers": []
	},
	{
		"id": "e3", "sport_key": "tennis_atp_paris", "commence_time": "2025-10-30T16:00:00Z",
		"home_team": "", "away_team": "Fritz", "bookmakers": []
	}
]`

const scoresPayload = `[
	{"id": "e1", "completed": true, "home_team": "Sinner", "away_team": "Alcaraz",
	 "scores": [{"name": "Sinner", "score": "1"}, {"name": "Alcaraz", "score": "2"}]},
	{"id": "e2", "completed": false, "home_team": "Zverev", "away_team": "Rune", "scores": null},
	{"id": "e4", "completed": true, "home_team": "Ruud", "away_team": "Paul",
	 "scores": [{"name": "Ruud", "score": "x"}, {"name": "Paul", "score": "2"}]}
]`

func testHTTPClient() *RateLimitedHTTPClient {
	return NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:           2 * time.Second,
		MaxRetries:        0,
		CircuitBreakerMax: 100,
	}, nil)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts OddsAPIOptions) *OddsAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	if opts.SportPrefix == "" {
		opts.SportPrefix = "tennis_"
	}
	return NewOddsAPIClient(testHTTPClient(), opts, nil)
}

func TestActiveSportsFiltersByPrefixAndActive(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		_, _ = w.Write([]byte(sportsPayload))
	}, OddsAPIOptions{})

	sports, err := client.ActiveSports(context.Background())
	require.NoError(t, err)
	require.Len(t, sports, 2)
	assert.Equal(t, "tennis_atp_paris", sports[0].Key)
	assert.Equal(t, "tennis_wta_wuhan", sports[1].Key)
}

func TestActiveSportsAppliesFilterTokens(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sportsPayload))
	}, OddsAPIOptions{SportsFilter: " WTA , grand"})

	sports, err := client.ActiveSports(context.Background())
	require.NoError(t, err)
	require.Len(t, sports, 1)
	assert.Equal(t, "tennis_wta_wuhan", sports[0].Key)
}

func TestFetchFixturesPrefersPinnacle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/tennis_atp_paris/odds", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "uk", q.Get("regions"))
		assert.Equal(t, "h2h", q.Get("markets"))
		assert.Equal(t, "decimal", q.Get("oddsFormat"))
		assert.Equal(t, "iso", q.Get("dateFormat"))
		_, _ = w.Write([]byte(oddsPayload))
	}, OddsAPIOptions{})

	fixtures, err := client.FetchFixtures(context.Background(), "tennis_atp_paris", "uk")
	require.NoError(t, err)
	require.Len(t, fixtures, 2, "event without a home player is dropped")

	first := fixtures[0]
	assert.Equal(t, "e1", first.MatchID)
	assert.Equal(t, "Sinner", first.HomePlayer)
	assert.Equal(t, "Pinnacle", first.Bookmaker)
	assert.True(t, decimal.NewFromFloat(1.80).Equal(first.HomeOdds))
	assert.True(t, decimal.NewFromFloat(2.10).Equal(first.AwayOdds))
	assert.Equal(t, time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC), first.CommenceTime)
	assert.True(t, first.HasOdds())

	assert.Equal(t, "e2", fixtures[1].MatchID)
	assert.False(t, fixtures[1].HasOdds())
}

func TestFetchFixturesRespectsLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(oddsPayload))
	}, OddsAPIOptions{LimitPerSport: 1})

	fixtures, err := client.FetchFixtures(context.Background(), "tennis_atp_paris", "")
	require.NoError(t, err)
	assert.Len(t, fixtures, 1)
}

func TestFetchResult(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/sports/tennis_atp_paris/scores", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("daysFrom"))
		_, _ = w.Write([]byte(scoresPayload))
	}, OddsAPIOptions{ScoresCacheTTL: time.Minute})
	ctx := context.Background()

	tests := []struct {
		matchID   string
		completed bool
		winner    string
	}{
		{"e1", true, "Alcaraz"},
		{"e2", false, ""},
		{"e4", true, ""},
		{"unknown", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.matchID, func(t *testing.T) {
			res, err := client.FetchResult(ctx, "tennis_atp_paris", tt.matchID)
			require.NoError(t, err)
			assert.Equal(t, tt.matchID, res.MatchID)
			assert.Equal(t, tt.completed, res.Completed)
			assert.Equal(t, tt.winner, res.Winner)
		})
	}

	assert.Equal(t, int32(1), calls.Load(), "scores are fetched once per sport while cached")

	client.InvalidateScores()
	_, err := client.FetchResult(ctx, "tennis_atp_paris", "e1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchResultWithoutCacheRefetches(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(scoresPayload))
	}, OddsAPIOptions{})

	for i := 0; i < 2; i++ {
		_, err := client.FetchResult(context.Background(), "tennis_atp_paris", "e1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestUpstreamErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		code     string
	}{
		{"server error", http.StatusBadGateway, models.ErrUpstreamUnavailable, ErrCodeServerError},
		{"rate limited", http.StatusTooManyRequests, models.ErrUpstreamUnavailable, ErrCodeRateLimitExceeded},
		{"unauthorized", http.StatusUnauthorized, models.ErrUpstreamUnavailable, ErrCodeAuthenticationFailed},
		{"not found", http.StatusNotFound, models.ErrNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, OddsAPIOptions{})

			_, err := client.FetchFixtures(context.Background(), "tennis_atp_paris", "eu")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var dsErr DataSourceError
			require.True(t, errors.As(err, &dsErr))
			assert.Equal(t, tt.code, dsErr.Code)
		})
	}
}

func TestUnreachableUpstreamIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewOddsAPIClient(testHTTPClient(), OddsAPIOptions{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := client.ActiveSports(context.Background())
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestMissingAPIKey(t *testing.T) {
	client := NewOddsAPIClient(testHTTPClient(), OddsAPIOptions{BaseURL: "http://127.0.0.1:1"}, nil)

	_, err := client.ActiveSports(context.Background())
	var dsErr DataSourceError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, ErrCodeAuthenticationFailed, dsErr.Code)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout:               time.Second,
		CircuitBreakerMax:     2,
		CircuitBreakerCooloff: time.Minute,
	}, nil)
	now := time.Now()
	client.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := client.Get(ctx, srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.True(t, client.IsOpen())

	_, err := client.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// After the cooloff a probe is allowed and a success closes the circuit.
	now = now.Add(2 * time.Minute)
	failing.Store(false)
	resp, err := client.Get(ctx, srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, client.IsOpen())
}

func TestWinnerFromScores(t *testing.T) {
	tests := []struct {
		name   string
		scores []oddsAPIScore
		want   string
	}{
		{"home ahead", []oddsAPIScore{{"A", "2"}, {"B", "0"}}, "A"},
		{"away ahead", []oddsAPIScore{{"A", "1"}, {"B", "2"}}, "B"},
		{"level", []oddsAPIScore{{"A", "1"}, {"B", "1"}}, ""},
		{"missing", nil, ""},
		{"garbage", []oddsAPIScore{{"A", "w/o"}, {"B", "1"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, winnerFromScores(tt.scores))
		})
	}
}
