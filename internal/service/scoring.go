package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/yourusername/forecast-ledger/internal/metrics"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
)

// DefaultCalibrationBins is used when Calibration is asked for a
// non-positive bin count.
const DefaultCalibrationBins = 10

// Scorecard holds aggregate calibration metrics over resolved forecasts.
// Accuracy and Brier are nil when Count is zero.
type Scorecard struct {
	SportKey *string  `json:"sport_key"`
	Count    int64    `json:"count"`
	Accuracy *float64 `json:"accuracy"`
	Brier    *float64 `json:"brier"`
}

// CalibrationBin is one equal-width p_home bucket of the reliability table.
type CalibrationBin struct {
	Lower        float64  `json:"lower"`
	Upper        float64  `json:"upper"`
	Count        int64    `json:"count"`
	MeanForecast *float64 `json:"mean_forecast"`
	ObservedRate *float64 `json:"observed_rate"`
}

// CalibrationTable is a reliability diagram over resolved forecasts.
type CalibrationTable struct {
	SportKey *string          `json:"sport_key"`
	Count    int64            `json:"count"`
	Bins     []CalibrationBin `json:"bins"`
}

// Scorer computes scorecards and calibration tables.
type Scorer interface {
	Score(ctx context.Context, filter repository.ScoreFilter) (*Scorecard, error)
	Calibration(ctx context.Context, filter repository.ScoreFilter, bins int) (*CalibrationTable, error)
}

// ScoringEngine folds over the resolved forecasts in the store. It never
// holds the full set in memory.
type ScoringEngine struct {
	store repository.ForecastRepository
}

// NewScoringEngine creates a new scoring engine
func NewScoringEngine(store repository.ForecastRepository) *ScoringEngine {
	return &ScoringEngine{store: store}
}

// Score computes accuracy and Brier score. A forecast calls a home win when
// p_home >= 0.5.
func (e *ScoringEngine) Score(ctx context.Context, filter repository.ScoreFilter) (*Scorecard, error) {
	var (
		count   int64
		correct int64
		sse     neumaierSum
	)

	err := e.store.EachScored(ctx, filter, func(p models.ScoredPair) error {
		count++
		if p.Correct() {
			correct++
		}
		sse.Add(p.SquaredError())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score forecasts: %w", err)
	}

	card := &Scorecard{SportKey: optionalString(filter.SportKey), Count: count}
	if count > 0 {
		accuracy := float64(correct) / float64(count)
		brier := sse.Sum() / float64(count)
		card.Accuracy = &accuracy
		card.Brier = &brier
	}

	metrics.UpdateScorecard(filter.SportKey, card.Count, card.Accuracy, card.Brier)
	return card, nil
}

// Calibration buckets resolved forecasts into bins equal-width p_home
// intervals. p_home == 1 falls into the last bin.
func (e *ScoringEngine) Calibration(ctx context.Context, filter repository.ScoreFilter, bins int) (*CalibrationTable, error) {
	if bins <= 0 {
		bins = DefaultCalibrationBins
	}

	type acc struct {
		count int64
		sumP  neumaierSum
		wins  int64
	}
	buckets := make([]acc, bins)

	var total int64
	err := e.store.EachScored(ctx, filter, func(p models.ScoredPair) error {
		i := int(p.PHome * float64(bins))
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		buckets[i].count++
		buckets[i].sumP.Add(p.PHome)
		if p.HomeWon {
			buckets[i].wins++
		}
		total++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build calibration table: %w", err)
	}

	table := &CalibrationTable{
		SportKey: optionalString(filter.SportKey),
		Count:    total,
		Bins:     make([]CalibrationBin, bins),
	}
	width := 1.0 / float64(bins)
	for i, b := range buckets {
		bin := CalibrationBin{
			Lower: float64(i) * width,
			Upper: float64(i+1) * width,
			Count: b.count,
		}
		if i == bins-1 {
			bin.Upper = 1
		}
		if b.count > 0 {
			mean := b.sumP.Sum() / float64(b.count)
			rate := float64(b.wins) / float64(b.count)
			bin.MeanForecast = &mean
			bin.ObservedRate = &rate
		}
		table.Bins[i] = bin
	}
	return table, nil
}

// CachedScorer memoizes scorecards per filter for a TTL. Any resolution
// invalidates every cached entry, including scorecards still being computed
// when it lands.
type CachedScorer struct {
	inner Scorer
	cache *cache.Cache

	mu         sync.Mutex
	generation uint64
}

// NewCachedScorer wraps inner. A non-positive ttl disables caching.
func NewCachedScorer(inner Scorer, ttl time.Duration) *CachedScorer {
	s := &CachedScorer{inner: inner}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// Score returns a cached scorecard when one is fresh.
func (s *CachedScorer) Score(ctx context.Context, filter repository.ScoreFilter) (*Scorecard, error) {
	if s.cache == nil {
		return s.inner.Score(ctx, filter)
	}

	key := "score:" + filter.SportKey
	if v, ok := s.cache.Get(key); ok {
		card := *v.(*Scorecard)
		return &card, nil
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	card, err := s.inner.Score(ctx, filter)
	if err != nil {
		return nil, err
	}

	stored := *card
	s.mu.Lock()
	if s.generation == gen {
		s.cache.SetDefault(key, &stored)
	}
	s.mu.Unlock()
	return card, nil
}

// Calibration is not cached.
func (s *CachedScorer) Calibration(ctx context.Context, filter repository.ScoreFilter, bins int) (*CalibrationTable, error) {
	return s.inner.Calibration(ctx, filter, bins)
}

// Invalidate drops every cached scorecard.
func (s *CachedScorer) Invalidate() {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generation++
	s.cache.Flush()
	s.mu.Unlock()
}

// ForecastResolved invalidates the cache.
func (s *CachedScorer) ForecastResolved(_ context.Context, _ *models.Forecast) {
	s.Invalidate()
}

// neumaierSum is a compensated running sum.
type neumaierSum struct {
	sum float64
	c   float64
}

func (n *neumaierSum) Add(x float64) {
	t := n.sum + x
	if math.Abs(n.sum) >= math.Abs(x) {
		n.c += (n.sum - t) + x
	} else {
		n.c += (x - t) + n.sum
	}
	n.sum = t
}

func (n *neumaierSum) Sum() float64 {
	return n.sum + n.c
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
