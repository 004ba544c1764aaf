package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/shared/id"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// Manager layers ID generation, history trimming and metrics on top of
// the store.
type Manager struct {
	store      *Store
	maxHistory int
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	mu           sync.RWMutex
	lastSaved    *time.Time
	lastRestored *time.Time
}

// NewManager creates a session manager. maxHistory bounds how much
// history is replayed into the agent per exchange.
func NewManager(store *Store, maxHistory int, logger *logging.Logger, metrics *monitoring.Metrics) *Manager {
	return &Manager{
		store:      store,
		maxHistory: maxHistory,
		logger:     logger.Named("session"),
		metrics:    metrics,
	}
}

// Resolve returns the session ID and replayable history for a chat
// request. An empty requested ID creates a fresh session; an unknown ID
// is an error so clients notice expired sessions instead of silently
// losing context.
func (m *Manager) Resolve(ctx context.Context, requested string) (string, []types.ChatMessage, error) {
	if requested == "" {
		sid := id.NewSessionID().String()
		if _, err := m.store.Create(ctx, sid, nil); err != nil {
			return "", nil, err
		}
		m.logger.Debug("session created", zap.String("session_id", sid))
		m.refreshActiveGauge(ctx)
		return sid, nil, nil
	}

	history, err := m.store.History(ctx, requested, m.maxHistory)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, requested)
		}
		return "", nil, err
	}

	now := time.Now()
	m.mu.Lock()
	m.lastRestored = &now
	m.mu.Unlock()

	m.metrics.IncSessionsRestored()
	return requested, history, nil
}

// Record appends one question/answer exchange to the session.
func (m *Manager) Record(ctx context.Context, sessionID, question, answer string) error {
	err := m.store.Append(ctx, sessionID,
		types.ChatMessage{Role: "u", Content: question},
		types.ChatMessage{Role: "a", Content: answer},
	)
	if err != nil {
		return err
	}

	now := time.Now()
	m.mu.Lock()
	m.lastSaved = &now
	m.mu.Unlock()

	m.metrics.IncSessionsSaved()
	return nil
}

// Get returns one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Get(ctx, sessionID)
}

// History returns the full stored history of a session.
func (m *Manager) History(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	return m.store.History(ctx, sessionID, 0)
}

// List returns all sessions, most recently updated first.
func (m *Manager) List(ctx context.Context) ([]Session, error) {
	return m.store.List(ctx)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	m.refreshActiveGauge(ctx)
	return nil
}

// Stats describes the manager's state for the detailed health endpoint.
type Stats struct {
	TotalSessions int        `json:"total_sessions"`
	LastSaved     *time.Time `json:"last_saved,omitempty"`
	LastRestored  *time.Time `json:"last_restored,omitempty"`
}

// Stats returns session statistics.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	total, err := m.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TotalSessions: total,
		LastSaved:     m.lastSaved,
		LastRestored:  m.lastRestored,
	}, nil
}

func (m *Manager) refreshActiveGauge(ctx context.Context) {
	if n, err := m.store.Count(ctx); err == nil {
		m.metrics.SetSessionsActive(n)
	}
}
