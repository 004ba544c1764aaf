// Package ws streams chat exchanges over a WebSocket connection so the
// frontend can show progress while the agent works.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// chatTimeout bounds one agent run triggered over the socket.
const chatTimeout = 2 * time.Minute

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback; the desktop frontend connects
		// from an app origin.
		return true
	},
}

// ChatService answers chat requests.
type ChatService interface {
	Ask(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
}

// message is one inbound WebSocket frame.
type message struct {
	Type        string              `json:"type"`
	Question    string              `json:"question,omitempty"`
	SessionID   string              `json:"session_id,omitempty"`
	ChatHistory []types.ChatMessage `json:"chat_history,omitempty"`
}

// Handler manages WebSocket connections.
type Handler struct {
	chat    ChatService
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler.
func NewHandler(chat ChatService, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		chat:    chat,
		logger:  logger.Named("ws"),
		metrics: metrics,
	}
}

// HandleConnection handles WebSocket upgrade and messages.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	reqCtx := c.Request.Context()

	h.send(conn, gin.H{
		"type":    "system",
		"message": "connected",
	})

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "chat":
			h.handleChat(reqCtx, conn, msg)
		case "ping":
			h.send(conn, gin.H{"type": "pong"})
		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

func (h *Handler) handleChat(reqCtx context.Context, conn *websocket.Conn, msg message) {
	if msg.Question == "" {
		h.sendError(conn, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(reqCtx, chatTimeout)
	defer cancel()

	h.send(conn, gin.H{
		"type":      "status",
		"message":   "thinking",
		"timestamp": time.Now().Unix(),
	})

	resp, err := h.chat.Ask(ctx, types.ChatRequest{
		Question:    msg.Question,
		SessionID:   msg.SessionID,
		ChatHistory: msg.ChatHistory,
	})
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.send(conn, gin.H{
		"type":       "answer",
		"content":    resp.Answer,
		"session_id": resp.SessionID,
		"timestamp":  time.Now().Unix(),
	})
	h.send(conn, gin.H{
		"type":      "complete",
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) send(conn *websocket.Conn, data gin.H) {
	if t, ok := data["type"].(string); ok {
		h.metrics.RecordWSMessage("out", t)
	}
	if err := conn.WriteJSON(data); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) {
	h.send(conn, gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
