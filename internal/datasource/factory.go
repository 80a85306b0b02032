package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/forecast-ledger/internal/config"
)

// Factory creates sources based on configuration
type Factory struct {
	logger logrus.FieldLogger
	config *config.Config
}

// NewFactory creates a new data source factory
func NewFactory(cfg *config.Config, logger logrus.FieldLogger) *Factory {
	return &Factory{
		logger: logger,
		config: cfg,
	}
}

// NewHTTPClient builds the shared rate-limited transport from odds_api settings.
func (f *Factory) NewHTTPClient() *RateLimitedHTTPClient {
	httpCfg := DefaultHTTPClientConfig()
	api := f.config.OddsAPI
	if api.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(api.TimeoutSeconds) * time.Second
	}
	httpCfg.MaxRetries = api.RetryAttempts
	if api.RateLimit > 0 {
		httpCfg.RateLimit = api.RateLimit
	}
	return NewRateLimitedHTTPClient(httpCfg, f.logger)
}

// NewOddsAPIClient creates the Odds API client used as both fixture and result source.
func (f *Factory) NewOddsAPIClient(httpClient *RateLimitedHTTPClient) (*OddsAPIClient, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}

	api := f.config.OddsAPI
	return NewOddsAPIClient(httpClient, OddsAPIOptions{
		BaseURL:        api.BaseURL,
		APIKey:         api.APIKey,
		Markets:        api.Markets,
		OddsFormat:     api.OddsFormat,
		SportPrefix:    api.SportPrefix,
		SportsFilter:   api.SportsFilter,
		ScoresDaysFrom: api.ScoresDaysFrom,
		ScoresCacheTTL: time.Duration(api.ScoresCacheSeconds) * time.Second,
		LimitPerSport:  api.LimitPerSport,
	}, f.logger), nil
}
