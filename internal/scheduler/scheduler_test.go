package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/metrics"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

type fakeIngester struct {
	mu        sync.Mutex
	reqs      []service.IngestRequest
	deadlines []time.Time
	fail      string
}

func (f *fakeIngester) Run(ctx context.Context, req service.IngestRequest) (*service.IngestionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if d, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, d)
	}
	if req.Region == f.fail {
		return nil, errors.New("upstream unavailable")
	}
	return &service.IngestionResult{RunID: "run"}, nil
}

type fakeReconciler struct {
	resolved int
	calls    int
}

func (f *fakeReconciler) Run(_ context.Context, _ string) (*service.ReconciliationReport, error) {
	f.calls++
	return &service.ReconciliationReport{Resolved: f.resolved}, nil
}

type fakeStats struct{ stats models.StoreStats }

func (f fakeStats) Stats(context.Context) (models.StoreStats, error) { return f.stats, nil }

type countingScorer struct{ calls int }

func (c *countingScorer) Score(context.Context, repository.ScoreFilter) (*service.Scorecard, error) {
	c.calls++
	return &service.Scorecard{}, nil
}

func (c *countingScorer) Calibration(context.Context, repository.ScoreFilter, int) (*service.CalibrationTable, error) {
	return &service.CalibrationTable{}, nil
}

func TestRunIngestionCoversEverySportAndRegion(t *testing.T) {
	ing := &fakeIngester{fail: "uk"}
	s := NewScheduler(Options{Ingester: ing, Stats: fakeStats{models.StoreStats{Unresolved: 7, Resolved: 3}}})

	s.RunIngestion(context.Background(), []string{"tennis_atp_paris", "tennis_wta_wuhan"}, []string{"eu", "uk"})

	require.Len(t, ing.reqs, 4, "a failing region does not stop later passes")
	assert.Equal(t, service.IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"}, ing.reqs[0])
	assert.Equal(t, service.IngestRequest{SportKey: "tennis_wta_wuhan", Region: "uk"}, ing.reqs[3])
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.StoredForecasts.WithLabelValues("unresolved")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.StoredForecasts.WithLabelValues("resolved")))
}

func TestRunReconciliationRefreshesScorecard(t *testing.T) {
	rec := &fakeReconciler{}
	scorer := &countingScorer{}
	s := NewScheduler(Options{Reconciler: rec, Scorer: scorer})

	s.RunReconciliation(context.Background())
	assert.Equal(t, 0, scorer.calls, "nothing resolved, nothing to rescore")

	rec.resolved = 2
	s.RunReconciliation(context.Background())
	assert.Equal(t, 2, rec.calls)
	assert.Equal(t, 1, scorer.calls)
}

func TestScheduleAndStart(t *testing.T) {
	s := NewScheduler(Options{Ingester: &fakeIngester{}, Reconciler: &fakeReconciler{}})

	assert.Error(t, s.Start(), "no jobs scheduled")
	assert.Error(t, s.ScheduleIngestion(time.Minute, nil, nil), "regions required")

	require.NoError(t, s.ScheduleIngestion(time.Minute, nil, []string{"eu"}))
	require.NoError(t, s.ScheduleReconciliation(2*time.Minute))
	assert.Len(t, s.Entries(), 2)
	assert.True(t, s.GetNextRun().IsZero(), "not running yet")

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleReconciliation(time.Minute), "cannot schedule while running")

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestShortIntervalsAreRaisedForScheduleAndTimeout(t *testing.T) {
	ing := &fakeIngester{}
	s := NewScheduler(Options{Ingester: ing, Reconciler: &fakeReconciler{}})

	require.NoError(t, s.ScheduleIngestion(2*time.Second, []string{"tennis_atp_paris"}, []string{"eu"}))
	require.NoError(t, s.ScheduleReconciliation(time.Second))

	for _, entry := range s.Entries() {
		sched, ok := entry.Schedule.(cron.ConstantDelaySchedule)
		require.True(t, ok)
		assert.Equal(t, minInterval, sched.Delay)
	}

	started := time.Now()
	s.Entries()[0].Job.Run()
	require.Len(t, ing.deadlines, 1)
	assert.GreaterOrEqual(t, ing.deadlines[0].Sub(started), minInterval-time.Second,
		"job timeout follows the clamped interval")
}

func TestScheduleRequiresCollaborators(t *testing.T) {
	s := NewScheduler(Options{})
	assert.Error(t, s.ScheduleIngestion(time.Minute, nil, []string{"eu"}))
	assert.Error(t, s.ScheduleReconciliation(time.Minute))
}
