package service

import (
	"time"

	"github.com/yourusername/forecast-ledger/internal/forecaster"
	"github.com/yourusername/forecast-ledger/internal/metrics"
	"github.com/yourusername/forecast-ledger/internal/models"
)

// Rejection codes that are not produced by the validator.
const (
	RejectForecastFailed = "forecast_failed"
	RejectStoreError     = "store_error"
)

// IngestedItem echoes an accepted forecast input. Pick is always set; Edge
// and Kelly only when the fixture carried two-way odds.
type IngestedItem struct {
	MatchID string   `json:"match_id"`
	PlayerA string   `json:"player_a"`
	PlayerB string   `json:"player_b"`
	PHome   float64  `json:"p_home"`
	Pick    string   `json:"pick"`
	Edge    *float64 `json:"edge,omitempty"`
	Kelly   *float64 `json:"kelly,omitempty"`
	Saved   bool     `json:"saved"`
}

// Rejection describes a skipped input item.
type Rejection struct {
	Index   int    `json:"index"`
	MatchID string `json:"match_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// IngestionResult is the outcome of one ingestion run. Count is the number
// of items fetched or submitted; Saved counts rows actually inserted.
type IngestionResult struct {
	RunID      string         `json:"run_id"`
	SportKey   *string        `json:"sport_key"`
	Region     string         `json:"region,omitempty"`
	Count      int            `json:"count"`
	Saved      int            `json:"saved"`
	Duplicates int            `json:"duplicates"`
	Skipped    int            `json:"skipped"`
	Items      []IngestedItem `json:"items"`
	Rejections []Rejection    `json:"rejections,omitempty"`
	Note       string         `json:"note,omitempty"`
	DurationMs float64        `json:"duration_ms"`

	startedAt time.Time
}

func newIngestionResult(runID, sportKey string) *IngestionResult {
	r := &IngestionResult{
		RunID:     runID,
		Items:     []IngestedItem{},
		startedAt: time.Now(),
	}
	if sportKey != "" {
		r.SportKey = &sportKey
	}
	return r
}

func (r *IngestionResult) sportKey() string {
	if r.SportKey == nil {
		return ""
	}
	return *r.SportKey
}

func (r *IngestionResult) recordSaved(in models.ForecastInput, value *forecaster.Value, inserted bool) {
	if inserted {
		r.Saved++
		metrics.RecordIngestedForecast("saved")
	} else {
		r.Duplicates++
		metrics.RecordIngestedForecast("duplicate")
	}
	item := IngestedItem{
		MatchID: in.MatchID,
		PlayerA: in.PlayerA,
		PlayerB: in.PlayerB,
		PHome:   in.PHomeValue(),
		Pick:    "B",
		Saved:   inserted,
	}
	if models.PredictsHome(item.PHome) {
		item.Pick = "A"
	}
	if value != nil {
		item.Edge = &value.Edge
		item.Kelly = &value.Kelly
	}
	r.Items = append(r.Items, item)
}

func (r *IngestionResult) recordRejection(rej Rejection) {
	r.Skipped++
	r.Rejections = append(r.Rejections, rej)
	metrics.RecordIngestedForecast("rejected")
}

func (r *IngestionResult) finish(status string) {
	d := time.Since(r.startedAt)
	r.DurationMs = float64(d.Microseconds()) / 1000
	metrics.RecordIngestionRun(status, d)
}
