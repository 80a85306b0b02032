package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/forecaster"
	"github.com/yourusername/forecast-ledger/internal/logger"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

// app holds the wired pipeline shared by every command.
type app struct {
	repos      *repository.Repositories
	httpClient *datasource.RateLimitedHTTPClient
	source     *datasource.OddsAPIClient
	ratings    *forecaster.RatingBook
	ingestion  *service.IngestionPipeline
	reconciler *service.Reconciler
	scorer     *service.CachedScorer
}

func newApp(ctx context.Context) (*app, error) {
	repos, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open forecast store: %w", err)
	}

	factory := datasource.NewFactory(cfg, log)
	httpClient := factory.NewHTTPClient()
	source, err := factory.NewOddsAPIClient(httpClient)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("failed to create odds api client: %w", err)
	}

	ratings := forecaster.NewRatingBook(cfg.Forecaster.BaseRating, cfg.Forecaster.EloK)
	if cfg.Forecaster.Model == "elo_blend" {
		if err := warmRatings(ctx, repos.Forecast, ratings); err != nil {
			repos.Close()
			return nil, err
		}
	}

	fc, err := forecaster.New(cfg.Forecaster, ratings)
	if err != nil {
		repos.Close()
		return nil, err
	}

	pipelineLog := logger.NewPipelineLogger(log)
	scorer := service.NewCachedScorer(
		service.NewScoringEngine(repos.Forecast),
		time.Duration(cfg.Scoring.CacheTTLSeconds)*time.Second,
	)
	reconciler := service.NewReconciler(repos.Forecast, source, pipelineLog, cfg.Reconciliation.Concurrency)
	reconciler.AddListener(ratings)
	reconciler.AddListener(scorer)

	return &app{
		repos:      repos,
		httpClient: httpClient,
		source:     source,
		ratings:    ratings,
		ingestion:  service.NewIngestionPipeline(source, fc, repos.Forecast, pipelineLog),
		reconciler: reconciler,
		scorer:     scorer,
	}, nil
}

// warmRatings replays resolved forecasts into the rating book in the order
// they resolved, matching how live resolutions update it.
func warmRatings(ctx context.Context, store repository.ForecastRepository, ratings *forecaster.RatingBook) error {
	resolved, err := store.List(ctx, repository.ListFilter{State: models.StateResolved, Limit: -1, ByResolution: true})
	if err != nil {
		return fmt.Errorf("failed to load resolved forecasts for ratings: %w", err)
	}
	for _, f := range resolved {
		ratings.ForecastResolved(ctx, f)
	}
	log.WithField("players", ratings.Len()).Info("Elo ratings warmed from history")
	return nil
}

func (a *app) Close() {
	if err := a.httpClient.Close(); err != nil {
		log.WithError(err).Warn("Failed to close HTTP client")
	}
	if err := a.repos.Close(); err != nil {
		log.WithError(err).Warn("Failed to close forecast store")
	}
}
