package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veriweb/veriweb/pkg/database"
	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/storage"
	"github.com/veriweb/veriweb/pkg/synthesis"
)

// SubmitQueryRequest is the body of POST /api/query.
type SubmitQueryRequest struct {
	Question string `json:"question"`
}

// SubmitQueryResponse is the 201 body of POST /api/query.
type SubmitQueryResponse struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
}

// StatusResponse is the body of GET /api/query/:id/status.
type StatusResponse struct {
	Status     models.SessionStatus `json:"status"`
	IsComplete bool                 `json:"is_complete"`
}

// ResultResponse is the body of GET /api/query/:id/result.
type ResultResponse struct {
	Answer           string                 `json:"answer"`
	ConfidenceLevel  models.ConfidenceLevel `json:"confidence_level"`
	ConfidenceReason string                 `json:"confidence_reason"`
	Evidence         []models.Evidence      `json:"evidence"`
}

// TraceResponse is the body of GET /api/query/:id/trace.
type TraceResponse struct {
	PlannerTraces []models.PlannerTrace `json:"planner_traces"`
	SearchLogs    []models.SearchLog    `json:"search_logs"`
}

// SubmitQuery handles POST /api/query: creates the session in INIT
// and returns immediately. Workers pick it up from the queue.
func (s *Server) SubmitQuery(c *gin.Context) {
	var req SubmitQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question must not be empty"})
		return
	}

	session, err := s.store.CreateSession(c.Request.Context(), req.Question)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	slog.Info("Session submitted", "session_id", session.ID)
	c.JSON(http.StatusCreated, SubmitQueryResponse{
		SessionID: session.ID,
		Status:    session.Status,
	})
}

// GetStatus handles GET /api/query/:id/status.
func (s *Server) GetStatus(c *gin.Context) {
	session, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Status:     session.Status,
		IsComplete: session.Status.IsTerminal(),
	})
}

// GetResult handles GET /api/query/:id/result. Non-terminal sessions
// get 409. FAILED sessions without a snapshot return the abstention
// document with whatever evidence was gathered.
func (s *Server) GetResult(c *gin.Context) {
	snapshot, evidence, err := s.store.ReadResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderStorageError(c, err)
		return
	}
	if evidence == nil {
		evidence = []models.Evidence{}
	}

	resp := ResultResponse{Evidence: evidence}
	if snapshot != nil {
		resp.Answer = snapshot.AnswerText
		resp.ConfidenceLevel = snapshot.ConfidenceLevel
		resp.ConfidenceReason = snapshot.ConfidenceReason
	} else {
		resp.Answer = synthesis.AbstentionAnswer
		resp.ConfidenceLevel = models.ConfidenceLow
		resp.ConfidenceReason = "The session failed before an answer could be synthesized."
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrace handles GET /api/query/:id/trace. Token gating happens in
// middleware.
func (s *Server) GetTrace(c *gin.Context) {
	traces, logs, err := s.store.ReadTrace(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderStorageError(c, err)
		return
	}
	if traces == nil {
		traces = []models.PlannerTrace{}
	}
	if logs == nil {
		logs = []models.SearchLog{}
	}
	c.JSON(http.StatusOK, TraceResponse{PlannerTraces: traces, SearchLogs: logs})
}

// Health handles GET /health: database reachability plus worker pool
// state.
func (s *Server) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	healthy := true

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(ctx, s.db.Pool())
		body["database"] = dbHealth
		if err != nil {
			healthy = false
			body["error"] = err.Error()
		}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health()
		body["worker_pool"] = poolHealth
		if !poolHealth.IsHealthy {
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// renderStorageError maps storage sentinels onto HTTP statuses.
func (s *Server) renderStorageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, storage.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "session not complete yet"})
	default:
		slog.Error("Storage error", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	}
}
