package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/logger"
	"github.com/yourusername/forecast-ledger/internal/metrics"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
)

// Failure codes reported by reconciliation.
const (
	FailureLookup        = "lookup_failed"
	FailureInvalidWinner = "invalid_winner"
	FailureStore         = "store_error"
)

// DefaultReconcileConcurrency bounds parallel result lookups when no
// concurrency is configured.
const DefaultReconcileConcurrency = 4

// ResolutionListener is notified once for every forecast that transitions
// to resolved. Implementations must not block.
type ResolutionListener interface {
	ForecastResolved(ctx context.Context, f *models.Forecast)
}

// ReconcileFailure is a match whose outcome could not be attached.
type ReconcileFailure struct {
	MatchID string `json:"match_id"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ReconciliationReport summarizes one reconciliation pass.
type ReconciliationReport struct {
	RunID           string             `json:"run_id"`
	SportKey        *string            `json:"sport_key"`
	Checked         int                `json:"checked"`
	Resolved        int                `json:"resolved"`
	Pending         int                `json:"pending"`
	AlreadyResolved int                `json:"already_resolved"`
	Failures        []ReconcileFailure `json:"failures"`
	DurationMs      float64            `json:"duration_ms"`
}

// Reconciler attaches realized outcomes to unresolved forecasts.
type Reconciler struct {
	store       repository.ForecastRepository
	results     datasource.ResultSource
	logger      *logger.PipelineLogger
	concurrency int
	now         func() time.Time

	mu        sync.RWMutex
	listeners []ResolutionListener
}

// NewReconciler creates a new reconciler. results may be nil when only
// manual resolution through Resolve is used.
func NewReconciler(store repository.ForecastRepository, results datasource.ResultSource, log *logger.PipelineLogger, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultReconcileConcurrency
	}
	return &Reconciler{
		store:       store,
		results:     results,
		logger:      log,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// AddListener registers l for resolution events.
func (r *Reconciler) AddListener(l ResolutionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Run looks up the result of every unresolved forecast for sportKey (all
// sports when empty) and attaches completed outcomes. A failed lookup is
// recorded and the remaining matches continue.
func (r *Reconciler) Run(ctx context.Context, sportKey string) (*ReconciliationReport, error) {
	if r.results == nil {
		return nil, fmt.Errorf("reconciler has no result source")
	}

	started := time.Now()
	runID := uuid.NewString()
	log := r.logger.WithRun(runID, "reconcile")

	report := &ReconciliationReport{RunID: runID, Failures: []ReconcileFailure{}}
	if sportKey != "" {
		report.SportKey = &sportKey
	}

	forecasts, err := r.store.ListUnresolved(ctx, sportKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved forecasts: %w", err)
	}
	report.Checked = len(forecasts)

	var (
		mu       sync.Mutex
		resolved = make([]*models.Forecast, 0, len(forecasts))
	)
	fail := func(matchID, code string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures = append(report.Failures, ReconcileFailure{MatchID: matchID, Code: code, Error: err.Error()})
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, f := range forecasts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result, err := r.results.FetchResult(ctx, f.SportKey, f.MatchID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.LogLookupFailure(f.MatchID, err)
				fail(f.MatchID, FailureLookup, err)
				return nil
			}
			if result == nil || !result.Completed {
				mu.Lock()
				report.Pending++
				mu.Unlock()
				return nil
			}

			homeWon, err := homeWonFor(f, result.Winner)
			if err != nil {
				fail(f.MatchID, FailureInvalidWinner, err)
				return nil
			}

			winner := f.PlayerB
			if homeWon {
				winner = f.PlayerA
			}
			res := models.Resolution{HomeWon: homeWon, Winner: winner, ScoredAt: r.now().UTC()}
			updated, err := r.store.AttachOutcome(ctx, f.MatchID, res)
			if err != nil {
				fail(f.MatchID, FailureStore, err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if !updated {
				report.AlreadyResolved++
				return nil
			}
			report.Resolved++
			resolved = append(resolved, withResolution(f, res))
			return nil
		})
	}
	runErr := g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].MatchID < report.Failures[j].MatchID
	})
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].MatchID < resolved[j].MatchID
	})
	for _, f := range resolved {
		log.LogResolution(f.MatchID, f.Resolution.Winner, f.Resolution.HomeWon, f.PHome)
		r.notify(ctx, f)
	}

	d := time.Since(started)
	report.DurationMs = float64(d.Microseconds()) / 1000
	metrics.RecordReconciliationOutcomes("resolved", report.Resolved)
	metrics.RecordReconciliationOutcomes("pending", report.Pending)
	metrics.RecordReconciliationOutcomes("already_resolved", report.AlreadyResolved)
	metrics.RecordReconciliationOutcomes("failed", len(report.Failures))
	metrics.RecordReconciliationRun(d)
	log.LogReconciliationRun(report.Checked, report.Resolved, report.Pending, report.AlreadyResolved, len(report.Failures), report.DurationMs)

	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

// Resolve attaches a manually submitted result. side is "A" for the home
// player or "B" for the away player. It returns false when the forecast was
// already resolved and models.ErrNotFound when the match is unknown.
func (r *Reconciler) Resolve(ctx context.Context, matchID, side string) (bool, error) {
	var homeWon bool
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "A":
		homeWon = true
	case "B":
		homeWon = false
	default:
		return false, models.NewFieldValidationError("winner", "invalid_winner", `winner must be "A" or "B"`)
	}

	f, err := r.store.Get(ctx, matchID)
	if err != nil {
		return false, err
	}
	if f.IsResolved() {
		metrics.RecordReconciliationOutcomes("already_resolved", 1)
		return false, nil
	}

	winner := f.PlayerB
	if homeWon {
		winner = f.PlayerA
	}
	res := models.Resolution{HomeWon: homeWon, Winner: winner, ScoredAt: r.now().UTC()}

	updated, err := r.store.AttachOutcome(ctx, matchID, res)
	if err != nil {
		return false, fmt.Errorf("failed to attach outcome for %s: %w", matchID, err)
	}
	if !updated {
		metrics.RecordReconciliationOutcomes("already_resolved", 1)
		return false, nil
	}

	metrics.RecordReconciliationOutcomes("resolved", 1)
	resolvedForecast := withResolution(f, res)
	r.logger.LogResolution(matchID, winner, homeWon, f.PHome)
	r.notify(ctx, resolvedForecast)
	return true, nil
}

func (r *Reconciler) notify(ctx context.Context, f *models.Forecast) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		l.ForecastResolved(ctx, f)
	}
}

// homeWonFor maps a reported winner name onto the forecast's participants.
func homeWonFor(f *models.Forecast, winner string) (bool, error) {
	w := strings.TrimSpace(winner)
	switch {
	case w == "":
		return false, fmt.Errorf("%w: completed result has no winner", models.ErrInvalidWinner)
	case strings.EqualFold(w, strings.TrimSpace(f.PlayerA)):
		return true, nil
	case strings.EqualFold(w, strings.TrimSpace(f.PlayerB)):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is neither %q nor %q", models.ErrInvalidWinner, w, f.PlayerA, f.PlayerB)
	}
}

func withResolution(f *models.Forecast, res models.Resolution) *models.Forecast {
	out := *f
	out.State = models.StateResolved
	out.Resolution = &res
	return &out
}
