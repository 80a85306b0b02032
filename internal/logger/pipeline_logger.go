package logger

import (
	"github.com/sirupsen/logrus"
)

// PipelineLogger provides dedicated logging for ingestion and reconciliation runs.
type PipelineLogger struct {
	*logrus.Entry
}

// NewPipelineLogger creates a new pipeline logger.
func NewPipelineLogger(baseLogger *logrus.Logger) *PipelineLogger {
	return &PipelineLogger{
		Entry: baseLogger.WithField("component", "pipeline"),
	}
}

// WithRun returns a copy scoped to a single run.
func (pl *PipelineLogger) WithRun(runID, kind string) *PipelineLogger {
	return &PipelineLogger{Entry: pl.WithFields(logrus.Fields{"run_id": runID, "run_kind": kind})}
}

// LogIngestionRun logs the outcome of an ingestion run.
func (pl *PipelineLogger) LogIngestionRun(sportKey string, count, saved, duplicates, skipped, rejected int, durationMs float64) {
	pl.WithFields(logrus.Fields{
		"sport_key":   sportKey,
		"count":       count,
		"saved":       saved,
		"duplicates":  duplicates,
		"skipped":     skipped,
		"rejected":    rejected,
		"duration_ms": durationMs,
	}).Info("Ingestion run completed")
}

// LogRejection logs an input item that failed validation.
func (pl *PipelineLogger) LogRejection(index int, matchID, code, reason string) {
	pl.WithFields(logrus.Fields{
		"index":    index,
		"match_id": matchID,
		"code":     code,
		"reason":   reason,
	}).Warn("Forecast input rejected")
}

// LogReconciliationRun logs the outcome of a reconciliation pass.
func (pl *PipelineLogger) LogReconciliationRun(checked, resolved, pending, alreadyResolved, failures int, durationMs float64) {
	entry := pl.WithFields(logrus.Fields{
		"checked":          checked,
		"resolved":         resolved,
		"pending":          pending,
		"already_resolved": alreadyResolved,
		"failures":         failures,
		"duration_ms":      durationMs,
	})
	if failures > 0 {
		entry.Warn("Reconciliation run completed with failures")
		return
	}
	entry.Info("Reconciliation run completed")
}

// LogResolution logs a forecast transitioning to resolved.
func (pl *PipelineLogger) LogResolution(matchID, winner string, homeWon bool, pHome float64) {
	pl.WithFields(logrus.Fields{
		"match_id": matchID,
		"winner":   winner,
		"home_won": homeWon,
		"p_home":   pHome,
	}).Info("Forecast resolved")
}

// LogLookupFailure logs a per-match result lookup that failed.
func (pl *PipelineLogger) LogLookupFailure(matchID string, err error) {
	pl.WithFields(logrus.Fields{
		"match_id": matchID,
		"error":    err.Error(),
	}).Warn("Result lookup failed")
}
