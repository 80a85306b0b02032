package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/forecast-ledger/internal/metrics"
)

const oddsAPISourceName = "odds_api"

// preferredBookmakers orders whose h2h prices are taken first.
var preferredBookmakers = []string{
	"pinnacle", "betfair", "unibet", "williamhill", "bet365",
	"marathonbet", "10bet", "matchbook", "skybet", "caesars",
}

// OddsAPIOptions configures an OddsAPIClient.
type OddsAPIOptions struct {
	BaseURL        string
	APIKey         string
	Markets        string
	OddsFormat     string
	SportPrefix    string
	SportsFilter   string // comma-separated substrings; empty keeps every sport
	ScoresDaysFrom int
	ScoresCacheTTL time.Duration
	LimitPerSport  int
}

// OddsAPIClient talks to The Odds API v4. It is both a FixtureSource and a
// ResultSource. Score lookups are fetched once per sport and shared between
// concurrent callers until the cache entry expires.
type OddsAPIClient struct {
	httpClient *RateLimitedHTTPClient
	opts       OddsAPIOptions
	logger     logrus.FieldLogger

	scores *cache.Cache
	group  singleflight.Group
}

// NewOddsAPIClient creates a new Odds API client
func NewOddsAPIClient(httpClient *RateLimitedHTTPClient, opts OddsAPIOptions, logger logrus.FieldLogger) *OddsAPIClient {
	if opts.Markets == "" {
		opts.Markets = "h2h"
	}
	if opts.OddsFormat == "" {
		opts.OddsFormat = "decimal"
	}
	if opts.ScoresDaysFrom <= 0 {
		opts.ScoresDaysFrom = 3
	}
	if opts.LimitPerSport <= 0 {
		opts.LimitPerSport = 200
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &OddsAPIClient{
		httpClient: httpClient,
		opts:       opts,
		logger:     logger.WithField("source", oddsAPISourceName),
		scores:     cache.New(opts.ScoresCacheTTL, 2*opts.ScoresCacheTTL+time.Minute),
	}
}

// Name returns the data source name
func (c *OddsAPIClient) Name() string {
	return oddsAPISourceName
}

type oddsAPISport struct {
	Key    string `json:"key"`
	Group  string `json:"group"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type oddsAPIOutcome struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type oddsAPIMarket struct {
	Key      string           `json:"key"`
	Outcomes []oddsAPIOutcome `json:"outcomes"`
}

type oddsAPIBookmaker struct {
	Key     string          `json:"key"`
	Title   string          `json:"title"`
	Markets []oddsAPIMarket `json:"markets"`
}

type oddsAPIEvent struct {
	ID           string             `json:"id"`
	SportKey     string             `json:"sport_key"`
	SportTitle   string             `json:"sport_title"`
	CommenceTime time.Time          `json:"commence_time"`
	HomeTeam     string             `json:"home_team"`
	AwayTeam     string             `json:"away_team"`
	Bookmakers   []oddsAPIBookmaker `json:"bookmakers"`
}

type oddsAPIScore struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

type oddsAPIScoreEvent struct {
	ID        string         `json:"id"`
	Completed bool           `json:"completed"`
	HomeTeam  string         `json:"home_team"`
	AwayTeam  string         `json:"away_team"`
	Scores    []oddsAPIScore `json:"scores"`
}

// ActiveSports lists active sports whose keys carry the configured prefix
// and, when set, contain one of the filter tokens.
func (c *OddsAPIClient) ActiveSports(ctx context.Context) ([]Sport, error) {
	var raw []oddsAPISport
	if err := c.getJSON(ctx, "sports", "/sports", nil, &raw); err != nil {
		return nil, err
	}

	var tokens []string
	for _, tok := range strings.Split(strings.ToLower(c.opts.SportsFilter), ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}

	sports := make([]Sport, 0, len(raw))
	for _, s := range raw {
		if !s.Active || !strings.HasPrefix(s.Key, c.opts.SportPrefix) {
			continue
		}
		if len(tokens) > 0 && !containsAny(s.Key, tokens) {
			continue
		}
		sports = append(sports, Sport(s))
	}
	return sports, nil
}

// FetchFixtures returns upcoming events for sportKey. Events missing a
// participant are dropped; events no preferred bookmaker priced are kept
// with zero odds so callers can account for them.
func (c *OddsAPIClient) FetchFixtures(ctx context.Context, sportKey, region string) ([]Fixture, error) {
	if region == "" {
		region = "eu"
	}
	params := url.Values{
		"regions":    {region},
		"markets":    {c.opts.Markets},
		"oddsFormat": {c.opts.OddsFormat},
		"dateFormat": {"iso"},
	}

	var events []oddsAPIEvent
	if err := c.getJSON(ctx, "odds", "/sports/"+url.PathEscape(sportKey)+"/odds", params, &events); err != nil {
		return nil, err
	}

	if len(events) > c.opts.LimitPerSport {
		events = events[:c.opts.LimitPerSport]
	}

	fixtures := make([]Fixture, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" || ev.HomeTeam == "" || ev.AwayTeam == "" {
			continue
		}
		f := Fixture{
			MatchID:      ev.ID,
			SportKey:     firstNonEmpty(ev.SportKey, sportKey),
			Tournament:   firstNonEmpty(ev.SportTitle, sportKey),
			HomePlayer:   ev.HomeTeam,
			AwayPlayer:   ev.AwayTeam,
			CommenceTime: ev.CommenceTime.UTC(),
		}
		f.HomeOdds, f.AwayOdds, f.Bookmaker = extractH2HPrices(ev)
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// FetchResult looks up matchID in the recent scores of sportKey.
func (c *OddsAPIClient) FetchResult(ctx context.Context, sportKey, matchID string) (*MatchResult, error) {
	results, err := c.recentResults(ctx, sportKey)
	if err != nil {
		return nil, err
	}
	if r, ok := results[matchID]; ok {
		return r, nil
	}
	return &MatchResult{MatchID: matchID}, nil
}

func (c *OddsAPIClient) recentResults(ctx context.Context, sportKey string) (map[string]*MatchResult, error) {
	if cached, ok := c.scores.Get(sportKey); ok {
		return cached.(map[string]*MatchResult), nil
	}

	v, err, _ := c.group.Do(sportKey, func() (interface{}, error) {
		params := url.Values{"daysFrom": {strconv.Itoa(c.opts.ScoresDaysFrom)}, "dateFormat": {"iso"}}

		var events []oddsAPIScoreEvent
		if err := c.getJSON(ctx, "scores", "/sports/"+url.PathEscape(sportKey)+"/scores", params, &events); err != nil {
			return nil, err
		}

		results := make(map[string]*MatchResult, len(events))
		for _, ev := range events {
			results[ev.ID] = toMatchResult(ev)
		}
		if c.opts.ScoresCacheTTL > 0 {
			c.scores.Set(sportKey, results, cache.DefaultExpiration)
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*MatchResult), nil
}

// InvalidateScores drops cached scores so the next lookup refetches.
func (c *OddsAPIClient) InvalidateScores() {
	c.scores.Flush()
}

func toMatchResult(ev oddsAPIScoreEvent) *MatchResult {
	r := &MatchResult{
		MatchID:    ev.ID,
		Completed:  ev.Completed,
		HomePlayer: ev.HomeTeam,
		AwayPlayer: ev.AwayTeam,
	}
	if len(ev.Scores) > 0 {
		r.Scores = make(map[string]string, len(ev.Scores))
		for _, s := range ev.Scores {
			r.Scores[s.Name] = s.Score
		}
	}
	if ev.Completed {
		r.Winner = winnerFromScores(ev.Scores)
	}
	return r
}

// winnerFromScores returns the side with the strictly higher numeric score,
// or "" when the scores are missing, unparseable or level.
func winnerFromScores(scores []oddsAPIScore) string {
	if len(scores) != 2 {
		return ""
	}
	a, errA := strconv.ParseFloat(strings.TrimSpace(scores[0].Score), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(scores[1].Score), 64)
	switch {
	case errA != nil || errB != nil:
		return ""
	case a > b:
		return scores[0].Name
	case b > a:
		return scores[1].Name
	default:
		return ""
	}
}

func extractH2HPrices(ev oddsAPIEvent) (decimal.Decimal, decimal.Decimal, string) {
	books := make([]oddsAPIBookmaker, len(ev.Bookmakers))
	copy(books, ev.Bookmakers)
	sort.SliceStable(books, func(i, j int) bool {
		return bookmakerRank(books[i].Key) < bookmakerRank(books[j].Key)
	})

	for _, bk := range books {
		for _, m := range bk.Markets {
			if m.Key != "h2h" {
				continue
			}
			var home, away decimal.Decimal
			for _, o := range m.Outcomes {
				switch o.Name {
				case ev.HomeTeam:
					home = o.Price
				case ev.AwayTeam:
					away = o.Price
				}
			}
			if home.IsPositive() && away.IsPositive() {
				return home, away, firstNonEmpty(bk.Title, bk.Key)
			}
		}
	}
	return decimal.Zero, decimal.Zero, ""
}

func bookmakerRank(key string) int {
	for i, k := range preferredBookmakers {
		if k == key {
			return i
		}
	}
	return len(preferredBookmakers)
}

func (c *OddsAPIClient) getJSON(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	if c.opts.APIKey == "" {
		return NewDataSourceError(oddsAPISourceName, ErrCodeAuthenticationFailed, "api key is not configured", nil)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return NewDataSourceError(oddsAPISourceName, ErrCodeNetworkError, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		metrics.RecordUpstreamRequest(oddsAPISourceName, endpoint, "error", time.Since(start))
		code := ErrCodeNetworkError
		if errors.Is(err, ErrCircuitOpen) {
			code = ErrCodeCircuitOpen
		}
		return NewDataSourceError(oddsAPISourceName, code, "failed to fetch "+endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(oddsAPISourceName, endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if remaining := resp.Header.Get("x-requests-remaining"); remaining != "" {
		c.logger.WithFields(logrus.Fields{"endpoint": endpoint, "requests_remaining": remaining}).Debug("Odds API quota")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return NewDataSourceError(oddsAPISourceName, ErrCodeAuthenticationFailed, "invalid API key", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewDataSourceError(oddsAPISourceName, ErrCodeRateLimitExceeded, "rate limit exceeded", nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewDataSourceError(oddsAPISourceName, ErrCodeNotFound, endpoint+" not found", nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewDataSourceError(oddsAPISourceName, ErrCodeServerError,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewDataSourceError(oddsAPISourceName, ErrCodeInvalidData, "failed to parse response", err)
	}
	return nil
}

func containsAny(s string, tokens []string) bool {
	s = strings.ToLower(s)
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
