package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yourusername/forecast-ledger/internal/models"
)

// ErrorResponse is the body of every non-2xx response except a failed
// ingestion run, which reports its result instead.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case models.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := s.errorResponse(r, err)
	writeJSON(w, resp.Code, resp)
}

func (s *Server) errorResponse(r *http.Request, err error) ErrorResponse {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		resp.Error = verr.Code
		resp.Field = verr.Field
		resp.Message = verr.Message
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		resp.Message = "internal error"
	}
	return resp
}

func badRequest(field, message string) error {
	return models.NewFieldValidationError(field, "invalid_request", message)
}
