package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yourusername/forecast-ledger/internal/api/stream"
	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/forecaster"
	"github.com/yourusername/forecast-ledger/internal/models"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

const (
	maxListLimit        = 1000
	maxCalibrationBins  = 50
	defaultRankingLimit = 50
)

// ingestBatchRequest is the body of POST /forecasts.
type ingestBatchRequest struct {
	SportKey string                 `json:"sport_key"`
	Items    []models.ForecastInput `json:"items"`
}

// submitResultRequest is the body of POST /results.
type submitResultRequest struct {
	MatchID string `json:"match_id"`
	Winner  string `json:"winner"`
}

type submitResultResponse struct {
	MatchID string `json:"match_id"`
	Updated bool   `json:"updated"`
}

type rankingsResponse struct {
	Items []forecaster.PlayerRating `json:"items"`
}

type sportsResponse struct {
	Items  []datasource.Sport `json:"items"`
	Source string             `json:"source"`
}

type listForecastsResponse struct {
	Items  []*models.Forecast `json:"items"`
	Count  int                `json:"count"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// ingestFailureResponse is a failed run's result with the error alongside,
// so the body keeps the ingestion shape.
type ingestFailureResponse struct {
	*service.IngestionResult
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// handlePredictUpcoming ingests forecasts for upcoming fixtures.
// An upstream failure is a 502 whose body is the empty run result.
func (s *Server) handlePredictUpcoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	region := strings.TrimSpace(q.Get("regions"))
	if region == "" {
		region = s.cfg.DefaultRegion
	}

	result, err := s.ingester.Run(r.Context(), service.IngestRequest{
		SportKey: strings.TrimSpace(q.Get("sport")),
		Region:   region,
	})
	if err != nil {
		if result == nil {
			s.writeError(w, r, err)
			return
		}
		resp := s.errorResponse(r, err)
		writeJSON(w, resp.Code, ingestFailureResponse{
			IngestionResult: result,
			Error:           resp.Error,
			Message:         resp.Message,
			Code:            resp.Code,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleIngestForecasts stores externally produced forecasts.
func (s *Server) handleIngestForecasts(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.ingester.IngestBatch(r.Context(), strings.TrimSpace(req.SportKey), req.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	f, err := s.forecasts.Get(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("forecast %q: %w", matchID, err)
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleListForecasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{
		State:    models.ForecastState(q.Get("state")),
		SportKey: q.Get("sport_key"),
		Limit:    repository.DefaultListLimit,
	}
	if filter.State != "" && !filter.State.Valid() {
		s.writeError(w, r, badRequest("state", `state must be "unresolved" or "resolved"`))
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit", repository.DefaultListLimit, 1, maxListLimit); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset", 0, 0, -1); err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.forecasts.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Forecast{}
	}

	writeJSON(w, http.StatusOK, listForecastsResponse{
		Items:  items,
		Count:  len(items),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// handleScore returns {count, accuracy, brier}; accuracy and brier are null
// until a forecast resolves.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	card, err := s.scorer.Score(r.Context(), repository.ScoreFilter{SportKey: r.URL.Query().Get("sport_key")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bins, err := intParam(q.Get("bins"), "bins", s.cfg.CalibrationBins, 2, maxCalibrationBins)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	table, err := s.scorer.Calibration(r.Context(), repository.ScoreFilter{SportKey: q.Get("sport_key")}, bins)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	sportKey := r.URL.Query().Get("sport_key")

	report, err := s.reconciler.Run(r.Context(), sportKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if report.Resolved > 0 {
		s.publishScorecard(r, sportKey)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req submitResultRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.MatchID = strings.TrimSpace(req.MatchID)
	if req.MatchID == "" {
		s.writeError(w, r, models.NewFieldValidationError("match_id", "required", "match_id is required"))
		return
	}

	updated, err := s.reconciler.Resolve(r.Context(), req.MatchID, req.Winner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updated {
		s.publishScorecard(r, "")
	}
	writeJSON(w, http.StatusOK, submitResultResponse{MatchID: req.MatchID, Updated: updated})
}

// handleModelRankings returns the Elo leaderboard, best first.
func (s *Server) handleModelRankings(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", defaultRankingLimit, 1, maxListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsResponse{Items: s.ratings.Top(limit)})
}

// handleListSports lists the active sports the fixture source ingests.
func (s *Server) handleListSports(w http.ResponseWriter, r *http.Request) {
	sports, err := s.sports.ActiveSports(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sports == nil {
		sports = []datasource.Sport{}
	}
	writeJSON(w, http.StatusOK, sportsResponse{Items: sports, Source: s.sports.Name()})
}

// publishScorecard pushes a fresh scorecard to stream clients.
func (s *Server) publishScorecard(r *http.Request, sportKey string) {
	if s.hub == nil {
		return
	}
	card, err := s.scorer.Score(r.Context(), repository.ScoreFilter{SportKey: sportKey})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to compute scorecard for stream")
		return
	}
	s.hub.Publish(stream.Event{Type: stream.EventScorecard, Data: card})
}

// intParam parses an optional integer query parameter. hi < 0 means no
// upper bound.
func intParam(raw, name string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name, name+" must be an integer")
	}
	switch {
	case hi >= 0 && (n < lo || n > hi):
		return 0, badRequest(name, fmt.Sprintf("%s must be between %d and %d", name, lo, hi))
	case n < lo:
		return 0, badRequest(name, fmt.Sprintf("%s must be at least %d", name, lo))
	}
	return n, nil
}
