package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/forecaster"
	"github.com/yourusername/forecast-ledger/internal/logger"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
)

// Notes attached to results that carry no items.
const (
	NoteNoActiveSport   = "no active sport"
	NoteNoUpcomingMatch = "no upcoming matches"
	NoteUpstreamFailure = "upstream unavailable"
	NoteRunCancelled    = "run cancelled"
)

// IngestRequest selects what Run fetches. An empty SportKey picks the first
// active sport reported by the fixture source.
type IngestRequest struct {
	SportKey string
	Region   string
}

// IngestionPipeline stores freshly produced forecasts, skipping matches
// already in the store.
type IngestionPipeline struct {
	source     datasource.FixtureSource
	forecaster forecaster.Forecaster
	store      repository.ForecastRepository
	validator  *ForecastValidator
	logger     *logger.PipelineLogger
	now        func() time.Time
}

// NewIngestionPipeline creates a new ingestion pipeline. source and fc may be
// nil when only IngestBatch is used.
func NewIngestionPipeline(
	source datasource.FixtureSource,
	fc forecaster.Forecaster,
	store repository.ForecastRepository,
	log *logger.PipelineLogger,
) *IngestionPipeline {
	return &IngestionPipeline{
		source:     source,
		forecaster: fc,
		store:      store,
		validator:  NewForecastValidator(),
		logger:     log,
		now:        time.Now,
	}
}

type candidate struct {
	input models.ForecastInput
	value *forecaster.Value
	err   error
}

// Run fetches upcoming fixtures, forecasts each one and ingests the batch.
// Nothing is written unless the fetch succeeds. Upstream failures return a
// result describing the run together with an error wrapping
// models.ErrUpstreamUnavailable.
func (p *IngestionPipeline) Run(ctx context.Context, req IngestRequest) (*IngestionResult, error) {
	if p.source == nil || p.forecaster == nil {
		return nil, fmt.Errorf("ingestion pipeline has no fixture source or forecaster")
	}

	runID := uuid.NewString()
	log := p.logger.WithRun(runID, "ingest")

	sportKey := req.SportKey
	if sportKey == "" {
		sports, err := p.source.ActiveSports(ctx)
		if err != nil {
			return p.upstreamFailure(newIngestionResult(runID, ""), req.Region, "list active sports", err)
		}
		if len(sports) == 0 {
			result := newIngestionResult(runID, "")
			result.Region = req.Region
			result.Note = NoteNoActiveSport
			result.finish("ok")
			log.Info("No active sport to ingest")
			return result, nil
		}
		sportKey = sports[0].Key
	}

	fixtures, err := p.source.FetchFixtures(ctx, sportKey, req.Region)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			result := newIngestionResult(runID, sportKey)
			result.finish("not_found")
			return result, fmt.Errorf("sport %s: %w", sportKey, err)
		}
		return p.upstreamFailure(newIngestionResult(runID, sportKey), req.Region, "fetch fixtures", err)
	}

	candidates := make([]candidate, 0, len(fixtures))
	for _, fx := range fixtures {
		in := models.ForecastInput{
			MatchID:      fx.MatchID,
			SportKey:     firstNonEmpty(fx.SportKey, sportKey),
			PlayerA:      fx.HomePlayer,
			PlayerB:      fx.AwayPlayer,
			Model:        p.forecaster.Name(),
			ModelVersion: p.forecaster.Version(),
		}
		if !fx.CommenceTime.IsZero() {
			t := fx.CommenceTime
			in.CommenceTime = &t
		}

		pHome, ferr := p.forecaster.Forecast(ctx, fx)
		in.PHome = models.Probability(pHome)
		c := candidate{input: in, err: ferr}
		if ferr == nil {
			if v, ok := forecaster.Assess(pHome, fx); ok {
				c.value = &v
			}
		}
		candidates = append(candidates, c)
	}

	result := newIngestionResult(runID, sportKey)
	result.Region = req.Region
	if len(candidates) == 0 {
		result.Note = NoteNoUpcomingMatch
	}
	return p.ingest(ctx, log, result, candidates)
}

// IngestBatch validates and stores externally produced forecasts. Items
// without a sport key inherit sportKey.
func (p *IngestionPipeline) IngestBatch(ctx context.Context, sportKey string, inputs []models.ForecastInput) (*IngestionResult, error) {
	runID := uuid.NewString()

	candidates := make([]candidate, len(inputs))
	for i, in := range inputs {
		if in.SportKey == "" {
			in.SportKey = sportKey
		}
		candidates[i] = candidate{input: in}
	}

	return p.ingest(ctx, p.logger.WithRun(runID, "batch"), newIngestionResult(runID, sportKey), candidates)
}

func (p *IngestionPipeline) ingest(ctx context.Context, log *logger.PipelineLogger, result *IngestionResult, candidates []candidate) (*IngestionResult, error) {
	result.Count = len(candidates)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			result.Note = NoteRunCancelled
			result.finish("cancelled")
			return result, err
		}

		in := c.input
		if c.err != nil {
			p.reject(log, result, Rejection{Index: i, MatchID: in.MatchID, Code: RejectForecastFailed, Reason: c.err.Error()})
			continue
		}
		if verr := p.validator.Validate(in); verr != nil {
			p.reject(log, result, Rejection{Index: i, MatchID: in.MatchID, Field: verr.Field, Code: verr.Code, Reason: verr.Message})
			continue
		}

		inserted, err := p.store.PutIfAbsent(ctx, in.ToForecast(p.now().UTC()))
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				p.reject(log, result, Rejection{Index: i, MatchID: in.MatchID, Field: verr.Field, Code: verr.Code, Reason: verr.Message})
			} else {
				p.reject(log, result, Rejection{Index: i, MatchID: in.MatchID, Code: RejectStoreError, Reason: err.Error()})
			}
			continue
		}
		result.recordSaved(in, c.value, inserted)
	}

	result.finish("ok")
	log.LogIngestionRun(result.sportKey(), result.Count, result.Saved, result.Duplicates, result.Skipped, len(result.Rejections), result.DurationMs)
	return result, nil
}

func (p *IngestionPipeline) reject(log *logger.PipelineLogger, result *IngestionResult, rej Rejection) {
	result.recordRejection(rej)
	log.LogRejection(rej.Index, rej.MatchID, rej.Code, rej.Reason)
}

func (p *IngestionPipeline) upstreamFailure(result *IngestionResult, region, step string, err error) (*IngestionResult, error) {
	result.Region = region
	result.Note = NoteUpstreamFailure
	result.finish("upstream_error")
	p.logger.WithField("run_id", result.RunID).WithError(err).Warn("Ingestion aborted before any write")

	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		err = fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}
	return result, fmt.Errorf("%s: %w", step, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
