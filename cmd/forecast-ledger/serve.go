package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/forecast-ledger/internal/api"
	"github.com/yourusername/forecast-ledger/internal/api/stream"
	"github.com/yourusername/forecast-ledger/internal/health"
	"github.com/yourusername/forecast-ledger/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, health server and scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	log.WithFields(logrus.Fields{
		"version":     Version,
		"commit":      GitCommit,
		"environment": cfg.App.Environment,
		"driver":      cfg.Database.Driver,
		"model":       cfg.Forecaster.Model,
	}).Info("Starting forecast-ledger")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := stream.NewHub(cfg.Server.CORSOrigins, log)
	a.reconciler.AddListener(hub)

	apiServer := api.NewServer(api.Config{
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		DefaultRegion:   cfg.Ingestion.Regions[0],
		CalibrationBins: cfg.Scoring.CalibrationBins,
	}, api.Deps{
		Ingester:   a.ingestion,
		Reconciler: a.reconciler,
		Scorer:     a.scorer,
		Forecasts:  a.repos.Forecast,
		Ratings:    a.ratings,
		Sports:     a.source,
		Hub:        hub,
		Logger:     log,
	})

	var healthServer *health.Server
	if cfg.Metrics.Enabled {
		healthServer = health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
			Logger:      log,
			Store:       a.repos,
			Stats:       a.repos.Forecast,
		})
		if err := healthServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
	}

	sched := scheduler.NewScheduler(scheduler.Options{
		Ingester:   a.ingestion,
		Reconciler: a.reconciler,
		Stats:      a.repos.Forecast,
		Scorer:     a.scorer,
		Logger:     log,
	})
	if cfg.Ingestion.Enabled {
		if err := sched.ScheduleIngestion(cfg.PollInterval(), cfg.Ingestion.SportKeys, cfg.Ingestion.Regions); err != nil {
			return err
		}
	}
	if cfg.Reconciliation.Enabled {
		if err := sched.ScheduleReconciliation(cfg.ReconcileInterval()); err != nil {
			return err
		}
	}
	if len(sched.Entries()) > 0 {
		if err := sched.Start(); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.WithError(err).Warn("Scheduler stop failed")
			}
		}()
	}

	if healthServer != nil {
		healthServer.SetReady(true)
	}

	err = apiServer.Start(ctx)
	log.Info("forecast-ledger stopped")
	return err
}
