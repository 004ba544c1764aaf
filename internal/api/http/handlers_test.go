package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/domain/session"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/llm"
	"github.com/qgenie/ai-server/internal/shared/types"
)

var testMetrics = monitoring.NewMetrics()

type fakeChat struct {
	resp *types.ChatResponse
	err  error
}

func (f *fakeChat) Ask(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeAnnotator struct {
	resp *types.AnnotationResponse
	err  error
}

func (f *fakeAnnotator) Annotate(ctx context.Context, req types.AnnotationRequest) (*types.AnnotationResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeCatalog struct {
	summaries []types.DatabaseSummary
	err       error
	refreshed int
}

func (f *fakeCatalog) Summaries(ctx context.Context) ([]types.DatabaseSummary, error) {
	return f.summaries, f.err
}

func (f *fakeCatalog) Refresh() { f.refreshed++ }

type fakeLLM struct {
	ready      bool
	refreshErr error
	probeErr   error
}

func (f *fakeLLM) Ready() bool                              { return f.ready }
func (f *fakeLLM) RefreshKey(ctx context.Context) error     { return f.refreshErr }
func (f *fakeLLM) TestConnection(ctx context.Context) error { return f.probeErr }

type testEnv struct {
	router   *gin.Engine
	handlers *Handlers
	sessions *session.Manager
	chat     *fakeChat
	catalog  *fakeCatalog
	llm      *fakeLLM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logging.NewNop()
	sessions := session.NewManager(store, 10, logger, testMetrics)

	chat := &fakeChat{resp: &types.ChatResponse{Answer: "42 rows", SessionID: "sess_x"}}
	catalog := &fakeCatalog{summaries: []types.DatabaseSummary{{Name: "sales"}}}
	llmMgr := &fakeLLM{ready: true}

	h := NewHandlers(
		chat,
		&fakeAnnotator{resp: &types.AnnotationResponse{}},
		catalog,
		llmMgr,
		nil,
		sessions,
		testMetrics,
		logger,
	)

	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/api/v1/health/detailed", h.HealthDetailed)
	router.GET("/api/v1/version", h.Version)
	router.POST("/api/v1/refresh-api-key", h.RefreshAPIKey)
	router.POST("/api/v1/chat", h.Chat)
	router.GET("/api/v1/chat/health", h.ChatHealth)
	router.GET("/api/v1/chat/databases", h.ChatDatabases)
	router.POST("/api/v1/annotator", h.Annotate)
	router.GET("/api/v1/sessions", h.ListSessions)
	router.GET("/api/v1/sessions/:id", h.GetSession)
	router.DELETE("/api/v1/sessions/:id", h.DeleteSession)
	router.GET("/api/v1/stats", h.Stats)

	return &testEnv{router: router, handlers: h, sessions: sessions, chat: chat, catalog: catalog, llm: llmMgr}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/health", "")
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthWrongMethod(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/health", "")
	assert.NotEqual(t, 200, w.Code)
}

func TestHealthDetailed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/v1/health/detailed", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"llm_ready":true`)
	assert.Contains(t, w.Body.String(), `"uptime_seconds"`)
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/v1/version", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
}

func TestChat(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/v1/chat", `{"question":"how many orders?"}`)
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "42 rows")
	assert.Contains(t, w.Body.String(), "sess_x")
}

func TestChatMissingQuestion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/v1/chat", `{}`)
	assert.Equal(t, 400, w.Code)
}

func TestChatBadHistoryRole(t *testing.T) {
	env := newTestEnv(t)

	body := `{"question":"q","chat_history":[{"role":"system","content":"x"}]}`
	w := env.do("POST", "/api/v1/chat", body)
	assert.Equal(t, 400, w.Code)
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"unknown session", session.ErrNotFound, 404},
		{"llm not configured", llm.ErrNotConfigured, 503},
		{"backend down", backend.ErrUnavailable, 502},
		{"canceled", context.Canceled, 499},
		{"opaque", errors.New("template exploded"), 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.chat.err = tc.err

			w := env.do("POST", "/api/v1/chat", `{"question":"q"}`)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == 500 {
				assert.NotContains(t, w.Body.String(), "template exploded")
			}
		})
	}
}

func TestChatDatabases(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/v1/chat/databases", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "sales")
}

func TestChatHealthReportsLLM(t *testing.T) {
	env := newTestEnv(t)
	env.llm.ready = false

	w := env.do("GET", "/api/v1/chat/health", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"llm_ready":false`)
}

func TestRefreshAPIKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/v1/refresh-api-key", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "refreshed")
}

func TestRefreshAPIKeyBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.llm.refreshErr = backend.ErrUnavailable

	w := env.do("POST", "/api/v1/refresh-api-key", "")
	assert.Equal(t, 502, w.Code)
}

func TestRefreshAPIKeyBadKey(t *testing.T) {
	env := newTestEnv(t)
	env.llm.probeErr = errors.New("unauthorized")

	w := env.do("POST", "/api/v1/refresh-api-key", "")
	assert.Equal(t, 502, w.Code)
	assert.Contains(t, w.Body.String(), "verification")
}

func TestAnnotateBadRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/v1/annotator", `{"broken`)
	assert.Equal(t, 400, w.Code)
	assert.Zero(t, env.catalog.refreshed)
}

func TestAnnotateRefreshesCatalog(t *testing.T) {
	env := newTestEnv(t)

	body := `{"dbms_type":"postgres","databases":[{"database_name":"sales","tables":[]}]}`
	w := env.do("POST", "/api/v1/annotator", body)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 1, env.catalog.refreshed,
		"fresh annotations drop the cached catalog")
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sid, _, err := env.sessions.Resolve(ctx, "")
	require.NoError(t, err)
	require.NoError(t, env.sessions.Record(ctx, sid, "hello", "hi"))

	w := env.do("GET", "/api/v1/sessions", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), sid)

	w = env.do("GET", "/api/v1/sessions/"+sid, "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "hello")

	w = env.do("DELETE", "/api/v1/sessions/"+sid, "")
	assert.Equal(t, 200, w.Code)

	w = env.do("GET", "/api/v1/sessions/"+sid, "")
	assert.Equal(t, 404, w.Code)
}

func TestDeleteUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("DELETE", "/api/v1/sessions/sess_missing", "")
	assert.Equal(t, 404, w.Code)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/v1/stats", "")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "total_requests")
	assert.Contains(t, w.Body.String(), "avg_request_time_ms")
}
