package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgenie/ai-server/internal/agent"
	"github.com/qgenie/ai-server/internal/domain/session"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/shared/types"
)

var testMetrics = monitoring.NewMetrics()

type fakeRunner struct {
	answer      string
	err         error
	lastHistory []types.ChatMessage
}

func (f *fakeRunner) Run(_ context.Context, _ string, history []types.ChatMessage) (*agent.State, error) {
	f.lastHistory = history
	if f.err != nil {
		return nil, f.err
	}
	return &agent.State{Answer: f.answer, Outcome: agent.OutcomeAnswered}, nil
}

func newService(t *testing.T, runner Runner) (*Service, *session.Manager) {
	t.Helper()
	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := session.NewManager(store, 20, logging.NewNop(), testMetrics)
	return NewService(runner, sessions, logging.NewNop()), sessions
}

func TestAskCreatesSessionAndPersists(t *testing.T) {
	runner := &fakeRunner{answer: "There are 42 orders."}
	svc, sessions := newService(t, runner)
	ctx := context.Background()

	resp, err := svc.Ask(ctx, types.ChatRequest{Question: "how many orders?"})
	require.NoError(t, err)
	assert.Equal(t, "There are 42 orders.", resp.Answer)
	require.NotEmpty(t, resp.SessionID)

	history, err := sessions.History(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "u", history[0].Role)
	assert.Equal(t, "how many orders?", history[0].Content)
	assert.Equal(t, "a", history[1].Role)
}

func TestAskReplaysStoredHistory(t *testing.T) {
	runner := &fakeRunner{answer: "17 customers."}
	svc, _ := newService(t, runner)
	ctx := context.Background()

	first, err := svc.Ask(ctx, types.ChatRequest{Question: "how many orders?"})
	require.NoError(t, err)

	_, err = svc.Ask(ctx, types.ChatRequest{
		Question:  "and customers?",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)

	require.Len(t, runner.lastHistory, 2, "previous exchange replayed into the agent")
	assert.Equal(t, "how many orders?", runner.lastHistory[0].Content)
}

func TestAskInlineHistoryWins(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	svc, _ := newService(t, runner)
	ctx := context.Background()

	first, err := svc.Ask(ctx, types.ChatRequest{Question: "q1"})
	require.NoError(t, err)

	inline := []types.ChatMessage{{Role: "u", Content: "client-side history"}}
	_, err = svc.Ask(ctx, types.ChatRequest{
		Question:    "q2",
		SessionID:   first.SessionID,
		ChatHistory: inline,
	})
	require.NoError(t, err)
	assert.Equal(t, inline, runner.lastHistory)
}

func TestAskUnknownSession(t *testing.T) {
	svc, _ := newService(t, &fakeRunner{answer: "x"})

	_, err := svc.Ask(context.Background(), types.ChatRequest{
		Question:  "q",
		SessionID: "sess_gone",
	})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestAskAgentErrorPropagates(t *testing.T) {
	runner := &fakeRunner{err: errors.New("backend unavailable")}
	svc, _ := newService(t, runner)

	_, err := svc.Ask(context.Background(), types.ChatRequest{Question: "q"})
	assert.Error(t, err)
}
