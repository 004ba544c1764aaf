// Package chat orchestrates the SQL agent and session persistence for
// one question/answer exchange.
package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/agent"
	"github.com/qgenie/ai-server/internal/domain/session"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// Runner executes the agent pipeline. *agent.Graph implements it.
type Runner interface {
	Run(ctx context.Context, question string, history []types.ChatMessage) (*agent.State, error)
}

// Service answers chat requests.
type Service struct {
	agent    Runner
	sessions *session.Manager
	logger   *logging.Logger
}

// NewService creates a chat service.
func NewService(runner Runner, sessions *session.Manager, logger *logging.Logger) *Service {
	return &Service{
		agent:    runner,
		sessions: sessions,
		logger:   logger.Named("chat"),
	}
}

// Ask runs one exchange. History precedence: an inline chat_history in
// the request wins over stored session history, so stateless clients
// keep working; the exchange is persisted to the session either way.
func (s *Service) Ask(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	sessionID, stored, err := s.sessions.Resolve(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	history := req.ChatHistory
	if len(history) == 0 {
		history = stored
	}

	state, err := s.agent.Run(ctx, req.Question, history)
	if err != nil {
		return nil, err
	}

	if recErr := s.sessions.Record(ctx, sessionID, req.Question, state.Answer); recErr != nil {
		// The answer is already computed; losing persistence should not
		// fail the request.
		s.logger.Warn("failed to persist exchange",
			zap.String("session_id", sessionID),
			zap.Error(recErr))
	}

	return &types.ChatResponse{
		Answer:    state.Answer,
		SessionID: sessionID,
	}, nil
}

// Sessions exposes the session manager for the session endpoints.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}
