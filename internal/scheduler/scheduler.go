// Package scheduler drives periodic ingestion and reconciliation runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/forecast-ledger/internal/metrics"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

// Ingester runs one ingestion pass.
type Ingester interface {
	Run(ctx context.Context, req service.IngestRequest) (*service.IngestionResult, error)
}

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context, sportKey string) (*service.ReconciliationReport, error)
}

// StatsSource reports store totals for the gauges refreshed after each job.
type StatsSource interface {
	Stats(ctx context.Context) (models.StoreStats, error)
}

// Scheduler manages periodic pipeline jobs. A job still running when its
// next tick fires is skipped.
type Scheduler struct {
	cron            *cron.Cron
	ingester        Ingester
	reconciler      Reconciler
	stats           StatsSource
	scorer          service.Scorer
	logger          logrus.FieldLogger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
}

// Options wires the scheduler's collaborators. Nil collaborators disable the
// matching jobs or refreshes.
type Options struct {
	Ingester   Ingester
	Reconciler Reconciler
	Stats      StatsSource
	Scorer     service.Scorer
	Logger     logrus.FieldLogger
}

// NewScheduler creates a new scheduler
func NewScheduler(opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	log = log.WithField("component", "scheduler")

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		ingester:        opts.Ingester,
		reconciler:      opts.Reconciler,
		stats:           opts.Stats,
		scorer:          opts.Scorer,
		logger:          log,
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
	}
}

// minInterval is the shortest polling period a job may run at.
const minInterval = 5 * time.Second

func clampInterval(interval time.Duration) time.Duration {
	if interval < minInterval {
		return minInterval
	}
	return interval
}

func every(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}

// ScheduleIngestion polls upcoming fixtures every interval for each sport
// key and region. An empty sportKeys list ingests the first active sport.
func (s *Scheduler) ScheduleIngestion(interval time.Duration, sportKeys, regions []string) error {
	if s.ingester == nil {
		return fmt.Errorf("no ingester configured")
	}
	if len(regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if len(sportKeys) == 0 {
		sportKeys = []string{""}
	}

	interval = clampInterval(interval)
	return s.addJob(every(interval), "ingestion", func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		s.RunIngestion(ctx, sportKeys, regions)
	})
}

// ScheduleReconciliation reconciles unresolved forecasts every interval.
func (s *Scheduler) ScheduleReconciliation(interval time.Duration) error {
	if s.reconciler == nil {
		return fmt.Errorf("no reconciler configured")
	}

	interval = clampInterval(interval)
	return s.addJob(every(interval), "reconciliation", func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		s.RunReconciliation(ctx)
	})
}

func (s *Scheduler) addJob(spec, name string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Scheduled job")
	return nil
}

// RunIngestion runs one ingestion pass per sport and region, then refreshes
// the store gauges. Failures are logged and do not stop later passes.
func (s *Scheduler) RunIngestion(ctx context.Context, sportKeys, regions []string) {
	for _, sportKey := range sportKeys {
		for _, region := range regions {
			if ctx.Err() != nil {
				return
			}
			result, err := s.ingester.Run(ctx, service.IngestRequest{SportKey: sportKey, Region: region})
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"sport_key": sportKey,
					"region":    region,
				}).Error("Scheduled ingestion failed")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"run_id": result.RunID,
				"region": region,
				"saved":  result.Saved,
			}).Debug("Scheduled ingestion finished")
		}
	}
	s.refresh(ctx)
}

// RunReconciliation runs one reconciliation pass over every sport, then
// refreshes the store and scorecard gauges.
func (s *Scheduler) RunReconciliation(ctx context.Context) {
	report, err := s.reconciler.Run(ctx, "")
	if err != nil {
		s.logger.WithError(err).Error("Scheduled reconciliation failed")
	} else if report.Resolved > 0 && s.scorer != nil {
		if _, err := s.scorer.Score(ctx, repository.ScoreFilter{}); err != nil {
			s.logger.WithError(err).Warn("Failed to refresh scorecard")
		}
	}
	s.refresh(ctx)
}

func (s *Scheduler) refresh(ctx context.Context) {
	if s.stats == nil {
		return
	}
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to refresh store gauges")
		return
	}
	metrics.UpdateStoredForecasts(stats.Unresolved, stats.Resolved)
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop stops the scheduler and waits for running jobs, up to the graceful
// timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler jobs still running after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() && (nextRun.IsZero() || entry.Next.Before(nextRun)) {
			nextRun = entry.Next
		}
	}
	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}
	return entries
}
