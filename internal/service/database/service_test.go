package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// countingAPI records how often each backend endpoint is hit.
type countingAPI struct {
	mu          sync.Mutex
	listCalls   int
	schemaCalls int

	databases []backend.DatabaseInfo
	schema    backend.Schema
}

func (c *countingAPI) Health(context.Context) error { return nil }

func (c *countingAPI) ListDatabases(context.Context) ([]backend.DatabaseInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	return c.databases, nil
}

func (c *countingAPI) GetSchema(context.Context, string) (*backend.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemaCalls++
	s := c.schema
	return &s, nil
}

func (c *countingAPI) ExecuteQuery(context.Context, string, string) (*backend.QueryResult, error) {
	return &backend.QueryResult{}, nil
}

func (c *countingAPI) FetchOpenAIKey(context.Context) (string, error) {
	return "", backend.ErrNoOpenAIKey
}

func newCountingAPI() *countingAPI {
	return &countingAPI{
		databases: []backend.DatabaseInfo{
			{Name: "sales", Description: "orders", DBMSType: "postgres"},
		},
		schema: backend.Schema{DatabaseName: "sales"},
	}
}

func TestListDatabasesCaches(t *testing.T) {
	api := newCountingAPI()
	svc := NewService(api, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dbs, err := svc.ListDatabases(ctx)
		require.NoError(t, err)
		require.Len(t, dbs, 1)
	}
	assert.Equal(t, 1, api.listCalls, "the list is fetched once")
}

func TestGetSchemaCachesPerDatabase(t *testing.T) {
	api := newCountingAPI()
	svc := NewService(api, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.GetSchema(ctx, "sales")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.schemaCalls)

	_, err := svc.GetSchema(ctx, "hr")
	require.NoError(t, err)
	assert.Equal(t, 2, api.schemaCalls, "a new database misses the cache")
}

func TestRefreshDropsCache(t *testing.T) {
	api := newCountingAPI()
	svc := NewService(api, logging.NewNop())
	ctx := context.Background()

	_, err := svc.ListDatabases(ctx)
	require.NoError(t, err)
	_, err = svc.GetSchema(ctx, "sales")
	require.NoError(t, err)

	svc.Refresh()

	_, err = svc.ListDatabases(ctx)
	require.NoError(t, err)
	_, err = svc.GetSchema(ctx, "sales")
	require.NoError(t, err)

	assert.Equal(t, 2, api.listCalls)
	assert.Equal(t, 2, api.schemaCalls)
}

func TestSummariesPreferAnnotatedDescription(t *testing.T) {
	api := newCountingAPI()
	api.databases[0].Annotations = &types.AnnotatedDatabase{
		DatabaseName: "sales",
		Description:  "retail order tracking",
	}
	svc := NewService(api, logging.NewNop())

	summaries, err := svc.Summaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "retail order tracking", summaries[0].Description)
}
