package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/shared/types"
)

var testMetrics = monitoring.NewMetrics()

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreCreateAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "sess_1", map[string]any{"client": "web"})
	require.NoError(t, err)
	assert.Equal(t, "sess_1", created.ID)

	got, err := store.Get(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Metadata["client"])
	assert.Zero(t, got.MessageCount)
}

func TestStoreGetMissing(t *testing.T) {
	store := openStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreAppendAndHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "sess_1", nil)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "sess_1",
		types.ChatMessage{Role: "u", Content: "how many orders?"},
		types.ChatMessage{Role: "a", Content: "There are 42 orders."},
	))
	require.NoError(t, store.Append(ctx, "sess_1",
		types.ChatMessage{Role: "u", Content: "and customers?"},
		types.ChatMessage{Role: "a", Content: "17 customers."},
	))

	history, err := store.History(ctx, "sess_1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "how many orders?", history[0].Content)
	assert.Equal(t, "17 customers.", history[3].Content)

	// Limited history keeps the most recent messages, still in order.
	recent, err := store.History(ctx, "sess_1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "and customers?", recent[0].Content)
	assert.Equal(t, "17 customers.", recent[1].Content)

	got, err := store.Get(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.MessageCount)
}

func TestStoreAppendToMissingSession(t *testing.T) {
	store := openStore(t)

	err := store.Append(context.Background(), "nope", types.ChatMessage{Role: "u", Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteCascades(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "sess_1", nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "sess_1", types.ChatMessage{Role: "u", Content: "x"}))

	require.NoError(t, store.Delete(ctx, "sess_1"))

	_, err = store.Get(ctx, "sess_1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.History(ctx, "sess_1", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "sess_1"), ErrNotFound)
}

func TestStoreList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "sess_a", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "sess_b", nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "sess_a", types.ChatMessage{Role: "u", Content: "x"}))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess_a", sessions[0].ID, "most recently updated first")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManagerResolveCreatesSession(t *testing.T) {
	store := openStore(t)
	m := NewManager(store, 20, logging.NewNop(), testMetrics)
	ctx := context.Background()

	sid, history, err := m.Resolve(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	assert.Empty(t, history)

	_, err = store.Get(ctx, sid)
	assert.NoError(t, err)
}

func TestManagerResolveUnknownSession(t *testing.T) {
	store := openStore(t)
	m := NewManager(store, 20, logging.NewNop(), testMetrics)

	_, _, err := m.Resolve(context.Background(), "sess_expired")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRecordAndResolveRoundTrip(t *testing.T) {
	store := openStore(t)
	m := NewManager(store, 2, logging.NewNop(), testMetrics)
	ctx := context.Background()

	sid, _, err := m.Resolve(ctx, "")
	require.NoError(t, err)

	require.NoError(t, m.Record(ctx, sid, "how many orders?", "42."))
	require.NoError(t, m.Record(ctx, sid, "and customers?", "17."))

	// maxHistory of 2 replays only the latest exchange.
	_, history, err := m.Resolve(ctx, sid)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "and customers?", history[0].Content)

	full, err := m.History(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, full, 4)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.NotNil(t, stats.LastSaved)
	assert.NotNil(t, stats.LastRestored)
}
