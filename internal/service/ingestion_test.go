package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/models"
)

func TestIngestBatchIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	p := NewIngestionPipeline(nil, nil, store, testPipelineLogger())
	ctx := context.Background()

	batch := []models.ForecastInput{{MatchID: "m1", PlayerA: "Sinner", PlayerB: "Alcaraz", PHome: models.Probability(0.62)}}

	first, err := p.IngestBatch(ctx, "tennis_atp_paris", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 1, first.Saved)
	assert.Equal(t, 0, first.Duplicates)
	require.Len(t, first.Items, 1)
	assert.True(t, first.Items[0].Saved)

	second, err := p.IngestBatch(ctx, "tennis_atp_paris", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 1, second.Duplicates)
	require.Len(t, second.Items, 1)
	assert.False(t, second.Items[0].Saved)
	assert.NotEqual(t, first.RunID, second.RunID)

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "tennis_atp_paris", got.SportKey, "sport key inherited from the batch")
	assert.Equal(t, models.StateUnresolved, got.State)
}

func TestIngestBatchWithExistingMatches(t *testing.T) {
	store := newTestStore(t)
	p := NewIngestionPipeline(nil, nil, store, testPipelineLogger())
	ctx := context.Background()

	seedForecast(t, store, "m2", 0.4, time.Now())
	seedForecast(t, store, "m4", 0.6, time.Now())

	var batch []models.ForecastInput
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		batch = append(batch, models.ForecastInput{MatchID: id, PlayerA: "A " + id, PlayerB: "B " + id, PHome: models.Probability(0.5)})
	}

	result, err := p.IngestBatch(ctx, "tennis_atp_paris", batch)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Count)
	assert.Equal(t, 3, result.Saved)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 0, result.Skipped)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
}

func TestIngestBatchSkipsInvalidItems(t *testing.T) {
	store := newTestStore(t)
	p := NewIngestionPipeline(nil, nil, store, testPipelineLogger())
	ctx := context.Background()

	batch := []models.ForecastInput{
		{MatchID: "ok", PlayerA: "A", PlayerB: "B", PHome: models.Probability(0.7)},
		{MatchID: "high", PlayerA: "A", PlayerB: "B", PHome: models.Probability(1.2)},
		{MatchID: "nan", PlayerA: "A", PlayerB: "B", PHome: models.Probability(math.NaN())},
		{MatchID: "", PlayerA: "A", PlayerB: "B", PHome: models.Probability(0.3)},
	}

	result, err := p.IngestBatch(ctx, "tennis_atp_paris", batch)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Count)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Rejections, 3)
	assert.Equal(t, 1, result.Rejections[0].Index)
	assert.Equal(t, "p_home", result.Rejections[0].Field)
	assert.Equal(t, "out_of_range", result.Rejections[0].Code)
	assert.Equal(t, "out_of_range", result.Rejections[1].Code)
	assert.Equal(t, "match_id", result.Rejections[2].Field)

	_, err = store.Get(ctx, "high")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.Get(ctx, "nan")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIngestBatchStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	p := NewIngestionPipeline(nil, nil, store, testPipelineLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.IngestBatch(ctx, "tennis_atp_paris", []models.ForecastInput{
		{MatchID: "m1", PlayerA: "A", PlayerB: "B", PHome: models.Probability(0.5)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, NoteRunCancelled, result.Note)
}

func TestRunIngestsUpcomingFixtures(t *testing.T) {
	store := newTestStore(t)
	source := &fakeFixtureSource{fixtures: []datasource.Fixture{fixture("m1"), fixture("m2")}}
	p := NewIngestionPipeline(source, &fakeForecaster{p: 0.64}, store, testPipelineLogger())
	ctx := context.Background()

	result, err := p.Run(ctx, IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"})
	require.NoError(t, err)
	require.NotNil(t, result.SportKey)
	assert.Equal(t, "tennis_atp_paris", *result.SportKey)
	assert.Equal(t, "eu", result.Region)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, "eu", source.lastRegion)

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0.64, got.PHome)
	assert.Equal(t, "fake", got.Model)
	assert.Equal(t, "test", got.ModelVersion)
	require.NotNil(t, got.CommenceTime)
	assert.True(t, got.CommenceTime.Equal(time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)))

	again, err := p.Run(ctx, IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Saved)
	assert.Equal(t, 2, again.Duplicates)
}

func TestRunReportsPickEdgeAndKelly(t *testing.T) {
	priced := fixture("m1")
	priced.HomeOdds = decimal.NewFromFloat(2.0)
	priced.AwayOdds = decimal.NewFromFloat(2.0)
	source := &fakeFixtureSource{fixtures: []datasource.Fixture{priced, fixture("m2")}}
	p := NewIngestionPipeline(source, &fakeForecaster{p: 0.3}, newTestStore(t), testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	item := result.Items[0]
	assert.Equal(t, "B", item.Pick)
	require.NotNil(t, item.Edge)
	require.NotNil(t, item.Kelly)
	assert.InDelta(t, 0.2, *item.Edge, 1e-9)
	assert.InDelta(t, 0.4, *item.Kelly, 1e-9)

	unpriced := result.Items[1]
	assert.Equal(t, "B", unpriced.Pick)
	assert.Nil(t, unpriced.Edge, "no odds, no edge")
	assert.Nil(t, unpriced.Kelly)
}

func TestRunPicksFirstActiveSport(t *testing.T) {
	store := newTestStore(t)
	source := &fakeFixtureSource{
		sports:   []datasource.Sport{{Key: "tennis_wta_wuhan", Active: true}, {Key: "tennis_atp_paris", Active: true}},
		fixtures: []datasource.Fixture{fixture("m1")},
	}
	p := NewIngestionPipeline(source, &fakeForecaster{p: 0.5}, store, testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{Region: "uk"})
	require.NoError(t, err)
	assert.Equal(t, "tennis_wta_wuhan", source.lastSport)
	require.NotNil(t, result.SportKey)
	assert.Equal(t, "tennis_wta_wuhan", *result.SportKey)
}

func TestRunWithoutActiveSport(t *testing.T) {
	source := &fakeFixtureSource{}
	p := NewIngestionPipeline(source, &fakeForecaster{p: 0.5}, newTestStore(t), testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{Region: "eu"})
	require.NoError(t, err)
	assert.Nil(t, result.SportKey)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, NoteNoActiveSport, result.Note)
	assert.Equal(t, 0, source.fetchCalls)
	assert.NotNil(t, result.Items)
}

func TestRunWithNoUpcomingMatches(t *testing.T) {
	p := NewIngestionPipeline(&fakeFixtureSource{}, &fakeForecaster{p: 0.5}, newTestStore(t), testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, 0, result.Saved)
	assert.Equal(t, NoteNoUpcomingMatch, result.Note)
}

func TestRunUpstreamFailureWritesNothing(t *testing.T) {
	store := newTestStore(t)
	upstream := datasource.NewDataSourceError("odds_api", datasource.ErrCodeServerError, "status 503", nil)
	p := NewIngestionPipeline(&fakeFixtureSource{err: upstream}, &fakeForecaster{p: 0.5}, store, testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_atp_paris", Region: "eu"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, NoteUpstreamFailure, result.Note)
	assert.Equal(t, 0, result.Saved)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestRunWrapsPlainFetchErrors(t *testing.T) {
	p := NewIngestionPipeline(&fakeFixtureSource{err: errors.New("connection reset")}, &fakeForecaster{p: 0.5}, newTestStore(t), testPipelineLogger())

	_, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_atp_paris"})
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunUnknownSportIsNotFound(t *testing.T) {
	notFound := datasource.NewDataSourceError("odds_api", datasource.ErrCodeNotFound, "unknown sport", nil)
	p := NewIngestionPipeline(&fakeFixtureSource{err: notFound}, &fakeForecaster{p: 0.5}, newTestStore(t), testPipelineLogger())

	_, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_nope"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestRunSkipsForecasterFailures(t *testing.T) {
	store := newTestStore(t)
	source := &fakeFixtureSource{fixtures: []datasource.Fixture{fixture("m1"), fixture("m2"), fixture("m3")}}
	fc := &fakeForecaster{p: 0.7, fail: map[string]bool{"m2": true}}
	p := NewIngestionPipeline(source, fc, store, testPipelineLogger())

	result, err := p.Run(context.Background(), IngestRequest{SportKey: "tennis_atp_paris"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, "m2", result.Rejections[0].MatchID)
	assert.Equal(t, RejectForecastFailed, result.Rejections[0].Code)
}
