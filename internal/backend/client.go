// Package backend implements the REST client for the management backend
// that owns database metadata, query execution and API key storage.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/infrastructure/resilience"
)

var (
	// ErrUnavailable means the backend could not be reached or the
	// circuit breaker refused the call.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNoOpenAIKey means the backend holds no key for the OpenAI service.
	ErrNoOpenAIKey = errors.New("no OpenAI API key registered in backend")
)

// API is the surface the rest of the server depends on. Tests substitute
// fakes for it.
type API interface {
	Health(ctx context.Context) error
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	GetSchema(ctx context.Context, database string) (*Schema, error)
	ExecuteQuery(ctx context.Context, database, query string) (*QueryResult, error)
	FetchOpenAIKey(ctx context.Context) (string, error)
}

// Config holds client connection settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	logger  *logging.Logger
	monitor *Monitor
}

// NewClient creates a production-ready backend client.
func NewClient(cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // Disable logging

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "qgenie-ai-server/1.0").
		SetHeader("Accept", "application/json")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)
	restyClient.JSONMarshal = sonic.Marshal
	restyClient.JSONUnmarshal = sonic.Unmarshal

	breaker := resilience.New("backend", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		breaker: breaker,
		metrics: metrics,
		logger:  logger.Named("backend"),
	}
}

// SetMonitor routes every call outcome into the connection monitor, so
// ordinary traffic detects loss and recovery without waiting for a
// probe. Set it before serving requests.
func (c *Client) SetMonitor(m *Monitor) {
	c.monitor = m
}

// do runs an HTTP call through the rate limiter and circuit breaker and
// records the per-operation metric.
func (c *Client) do(ctx context.Context, operation string, fn func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	timer := monitoring.NewTimer(c.metrics, operation)

	var resp *resty.Response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = fn(c.resty.R().SetContext(ctx))
		if callErr != nil {
			return callErr
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("backend returned %s", resp.Status())
		}
		return nil
	})

	if err != nil {
		timer.Stop("error")
		if c.monitor != nil {
			c.monitor.MarkFailure(operation, err)
		}
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %s %s", ErrUnavailable, operation, err)
	}

	timer.Stop("ok")
	if c.monitor != nil {
		c.monitor.MarkSuccess(operation)
	}
	return resp, nil
}

// Health probes GET /health. A nil error means the backend is reachable
// and answering.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, "health", func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/health")
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: health returned %s", ErrUnavailable, resp.Status())
	}
	return nil
}

// ListDatabases returns all databases registered in the backend.
func (c *Client) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	var out listDatabasesResponse
	resp, err := c.do(ctx, "list_databases", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/v1/databases")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list databases failed: %s", resp.Status())
	}
	return out.Databases, nil
}

// GetSchema returns the raw schema of one database.
func (c *Client) GetSchema(ctx context.Context, database string) (*Schema, error) {
	var out getSchemaResponse
	resp, err := c.do(ctx, "get_schema", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).
			SetPathParam("database", database).
			Get("/api/v1/databases/{database}/schema")
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("unknown database %q", database)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get schema for %q failed: %s", database, resp.Status())
	}
	return &out.Schema, nil
}

// ExecuteQuery runs a read-only SQL query against the named database.
// The backend signals business-level success with code "2400"; anything
// else is surfaced as an error so the agent can regenerate the query.
func (c *Client) ExecuteQuery(ctx context.Context, database, query string) (*QueryResult, error) {
	var out executeQueryResponse
	resp, err := c.do(ctx, "execute_query", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).
			SetBody(executeQueryRequest{Database: database, Query: query}).
			Post("/api/query/execute/actions")
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("query execution failed: %s", resp.Status())
	}
	if out.Code != codeQuerySuccess {
		c.logger.Debug("query rejected by backend",
			zap.String("database", database),
			zap.String("code", out.Code),
			zap.String("message", out.Message))
		return nil, fmt.Errorf("query execution failed (code %s): %s", out.Code, out.Message)
	}
	return &out.Result, nil
}

// FetchOpenAIKey looks up the stored OpenAI API key. The backend returns
// keys for several services; the first one named "OpenAI" wins.
func (c *Client) FetchOpenAIKey(ctx context.Context) (string, error) {
	var out findKeysResponse
	resp, err := c.do(ctx, "fetch_openai_key", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/keys/find")
	})
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("key lookup failed: %s", resp.Status())
	}
	for _, k := range out.Keys {
		if k.ServiceName == "OpenAI" && k.Key != "" {
			return k.Key, nil
		}
	}
	return "", ErrNoOpenAIKey
}
