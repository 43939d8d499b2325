package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"statusflow/internal/interfaces"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CountResponse represents a dead-letter count
type CountResponse struct {
	Channel string `json:"channel,omitempty"`
	Count   int64  `json:"count"`
}

// handleListDeadLetters handles GET /dead-letters?channel=&limit=&unresolved= requests
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	filter := interfaces.DeadLetterFilter{
		Channel: q.Get("channel"),
		Limit:   defaultListLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxListLimit {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("unresolved"); raw != "" {
		unresolved, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid unresolved flag", raw)
			return
		}
		filter.UnresolvedOnly = unresolved
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("channel", filter.Channel).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Failed to list dead letters")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, records)
}

// handleCountDeadLetters handles GET /dead-letters/count?channel= requests
func (s *Server) handleCountDeadLetters(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")

	n, err := s.store.Count(r.Context(), channel)
	if err != nil {
		s.logger.Error().Err(err).Str("channel", channel).Msg("Failed to count dead letters")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, CountResponse{Channel: channel, Count: n})
}

// handleHealth handles GET /health requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response in JSON format
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	errorResp := ErrorResponse{
		Error:   message,
		Message: details,
	}

	s.writeJSONResponse(w, statusCode, errorResp)
}
