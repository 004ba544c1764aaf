// Package http implements the REST handlers of the AI server.
package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/buildinfo"
	"github.com/qgenie/ai-server/internal/domain/session"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/llm"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// ChatService answers chat requests.
type ChatService interface {
	Ask(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
}

// AnnotationService annotates schemas.
type AnnotationService interface {
	Annotate(ctx context.Context, req types.AnnotationRequest) (*types.AnnotationResponse, error)
}

// Catalog lists the queryable databases.
type Catalog interface {
	Summaries(ctx context.Context) ([]types.DatabaseSummary, error)
	Refresh()
}

// LLMManager is the slice of the LLM provider the handlers need.
type LLMManager interface {
	Ready() bool
	RefreshKey(ctx context.Context) error
	TestConnection(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	chat        ChatService
	annotations AnnotationService
	catalog     Catalog
	llm         LLMManager
	monitor     *backend.Monitor
	sessions    *session.Manager
	metrics     *monitoring.Metrics
	logger      *logging.Logger
}

// NewHandlers creates the handler set. monitor may be nil when
// connection monitoring is disabled.
func NewHandlers(
	chat ChatService,
	annotations AnnotationService,
	catalog Catalog,
	llmManager LLMManager,
	monitor *backend.Monitor,
	sessions *session.Manager,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		chat:        chat,
		annotations: annotations,
		catalog:     catalog,
		llm:         llmManager,
		monitor:     monitor,
		sessions:    sessions,
		metrics:     metrics,
		logger:      logger.Named("http"),
	}
}

// Root handles GET /
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(200, gin.H{
		"service": "qgenie-ai-server",
		"version": buildinfo.Version,
		"status":  "running",
	})
}

// Health handles GET /health. It answers 200 as soon as the server
// accepts connections; a lost backend degrades the status text without
// failing the probe.
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	if h.monitor != nil && !h.monitor.Status().Connected {
		status = "degraded"
	}
	c.JSON(200, gin.H{"status": status})
}

// HealthDetailed handles GET /api/v1/health/detailed
func (h *Handlers) HealthDetailed(c *gin.Context) {
	snapshot := h.metrics.Snapshot()

	resp := gin.H{
		"status":         "ok",
		"version":        buildinfo.Get(),
		"uptime_seconds": h.metrics.UptimeSeconds(),
		"llm_ready":      h.llm.Ready(),
		"requests": gin.H{
			"total":  snapshot.TotalRequests,
			"errors": snapshot.TotalErrors,
		},
	}

	if h.monitor != nil {
		resp["backend"] = h.monitor.Status()
	}

	if stats, err := h.sessions.Stats(c.Request.Context()); err == nil {
		resp["sessions"] = stats
	}

	c.JSON(200, resp)
}

// Version handles GET /api/v1/version
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(200, buildinfo.Get())
}

// RefreshAPIKey handles POST /api/v1/refresh-api-key. It re-fetches the
// key from the backend and verifies it with a probe completion.
func (h *Handlers) RefreshAPIKey(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.llm.RefreshKey(ctx); err != nil {
		h.logger.Warn("key refresh failed", zap.Error(err))
		c.JSON(502, gin.H{"error": "failed to fetch API key from backend"})
		return
	}

	if err := h.llm.TestConnection(ctx); err != nil {
		h.logger.Warn("refreshed key failed verification", zap.Error(err))
		c.JSON(502, gin.H{"error": "refreshed API key failed verification"})
		return
	}

	c.JSON(200, gin.H{"status": "refreshed"})
}

// Chat handles POST /api/v1/chat
func (h *Handlers) Chat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chat.Ask(c.Request.Context(), req)
	if err != nil {
		h.chatError(c, err)
		return
	}

	c.JSON(200, resp)
}

// ChatHealth handles GET /api/v1/chat/health
func (h *Handlers) ChatHealth(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"llm_ready": h.llm.Ready(),
	}
	if h.monitor != nil {
		resp["backend_connected"] = h.monitor.Status().Connected
	}
	c.JSON(200, resp)
}

// ChatDatabases handles GET /api/v1/chat/databases
func (h *Handlers) ChatDatabases(c *gin.Context) {
	summaries, err := h.catalog.Summaries(c.Request.Context())
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(200, gin.H{"databases": summaries})
}

// Annotate handles POST /api/v1/annotator
func (h *Handlers) Annotate(c *gin.Context) {
	var req types.AnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.annotations.Annotate(c.Request.Context(), req)
	if err != nil {
		h.chatError(c, err)
		return
	}

	// New annotations invalidate the cached catalog descriptions.
	h.catalog.Refresh()

	c.JSON(200, resp)
}

// AnnotatorHealth handles GET /api/v1/annotator/health
func (h *Handlers) AnnotatorHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":    "ok",
		"llm_ready": h.llm.Ready(),
	})
}

// ListSessions handles GET /api/v1/sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(200, gin.H{"sessions": sessions})
}

// GetSession handles GET /api/v1/sessions/:id
func (h *Handlers) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	sid := c.Param("id")

	sess, err := h.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(404, gin.H{"error": "session not found"})
			return
		}
		c.JSON(500, gin.H{"error": "failed to load session"})
		return
	}

	history, err := h.sessions.History(ctx, sid)
	if err != nil {
		c.JSON(500, gin.H{"error": "failed to load session history"})
		return
	}

	c.JSON(200, gin.H{
		"session": sess,
		"history": history,
	})
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *Handlers) DeleteSession(c *gin.Context) {
	err := h.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(404, gin.H{"error": "session not found"})
			return
		}
		c.JSON(500, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(200, gin.H{"status": "deleted"})
}

// Stats handles GET /api/v1/stats with aggregate counters for the
// frontend's status widget; Prometheus scrapes /metrics instead.
func (h *Handlers) Stats(c *gin.Context) {
	snapshot := h.metrics.Snapshot()

	avgMs := 0.0
	if snapshot.RequestCount > 0 {
		avgMs = snapshot.TotalDuration / float64(snapshot.RequestCount) * 1000
	}

	c.JSON(200, gin.H{
		"uptime_seconds":      h.metrics.UptimeSeconds(),
		"total_requests":      snapshot.TotalRequests,
		"total_errors":        snapshot.TotalErrors,
		"active_connections":  snapshot.ActiveConnections,
		"avg_request_time_ms": avgMs,
	})
}

// chatError maps service errors to status codes. Unknown errors become
// opaque 500s so internals do not leak to clients.
func (h *Handlers) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(404, gin.H{"error": "session not found"})
	case errors.Is(err, llm.ErrNotConfigured):
		c.JSON(503, gin.H{"error": "language model not configured"})
	case errors.Is(err, backend.ErrUnavailable):
		c.JSON(502, gin.H{"error": "backend unavailable"})
	case errors.Is(err, context.Canceled):
		c.JSON(499, gin.H{"error": "request canceled"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(500, gin.H{"error": "internal error"})
	}
}
