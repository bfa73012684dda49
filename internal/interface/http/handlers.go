package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/application/command"
	"github.com/kurslab/kurslab-engagement/internal/application/query"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
	"github.com/kurslab/kurslab-engagement/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "kurslab-engagement",
		"status":  "running",
		"uptime":  s.Uptime().String(),
	})
}

// componentHealth is the per-dependency entry in the health report.
type componentHealth struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// handleHealth probes every registered dependency and reports them all.
// Any failing component makes the overall status degraded and turns the
// response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]componentHealth, len(s.deps.HealthChecks))
	healthy := true

	for name, check := range s.deps.HealthChecks {
		start := time.Now()
		err := check(ctx)
		entry := componentHealth{
			Status:    "up",
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Status = "down"
			entry.Error = err.Error()
			healthy = false
		}
		components[name] = entry
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, r, status, map[string]interface{}{
		"status":     overall,
		"components": components,
		"uptime":     s.Uptime().String(),
	})
}

// handleReady gates on the components the service cannot serve without.
// Redis is deliberately not in that set, the cache degrades gracefully.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for _, name := range s.deps.ReadinessChecks {
		check, ok := s.deps.HealthChecks[name]
		if !ok {
			continue
		}
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed",
				logger.String("component", name), logger.Err(err))
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "Service is not ready")
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive is the liveness probe; it only proves the process serves HTTP.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION INGEST
// ══════════════════════════════════════════════════════════════════════════════

// recordCompletionRequest is the body of POST /api/v1/completions.
type recordCompletionRequest struct {
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	LessonNumber int       `json:"lesson_number"`
	LessonTitle  string    `json:"lesson_title,omitempty"`
	OccurredAt   time.Time `json:"occurred_at,omitempty"`
}

// handleRecordCompletion ingests one lesson completion. Replays of the same
// lesson return 200 with duplicate=true instead of an error, the LMS retries
// deliveries and must be able to do so blindly.
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	var req recordCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	result, err := s.deps.RecordCompletion.Handle(r.Context(), command.RecordCompletionCommand{
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		LessonNumber:  req.LessonNumber,
		LessonTitle:   req.LessonTitle,
		OccurredAt:    req.OccurredAt,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStreak returns the streak stats for a user. A user the engine has
// never seen gets empty stats, not a 404: from the platform's point of view
// every user has a streak, most of them at zero. The optional at=YYYY-MM-DD
// parameter projects the stats for the week containing that date.
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	q := query.GetStreakStatsQuery{
		UserID:      r.PathValue("id"),
		BypassCache: getQueryParamBool(r, "fresh"),
	}

	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_at", "The at parameter must be a YYYY-MM-DD date")
			return
		}
		q.At = at
	}

	stats, err := s.deps.GetStreakStats.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates domain errors into HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidationError(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())

	case shared.IsConflictError(err):
		// Retries inside the command handler are already exhausted here.
		writeJSONError(w, http.StatusConflict, "conflict", "The operation conflicted with concurrent updates, retry later")

	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "timeout", "The operation timed out")

	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
