package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
)

// KeySource looks up the OpenAI API key. The backend client implements it.
type KeySource interface {
	FetchOpenAIKey(ctx context.Context) (string, error)
}

// Config holds provider settings. APIKey, when set, skips the backend
// lookup entirely.
type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Provider is a lazy, refreshable Completer. The first completion
// triggers key resolution; RefreshKey swaps the key at runtime when it
// was rotated in the backend.
type Provider struct {
	cfg     Config
	keys    KeySource
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu     sync.RWMutex
	client *OpenAIClient
}

// NewProvider creates an unconfigured provider. No network calls happen
// until the first completion.
func NewProvider(cfg Config, keys KeySource, logger *logging.Logger, metrics *monitoring.Metrics) *Provider {
	return &Provider{
		cfg:     cfg,
		keys:    keys,
		logger:  logger.Named("llm"),
		metrics: metrics,
	}
}

// Ready reports whether a client is already initialized.
func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

// Complete implements Completer.
func (p *Provider) Complete(ctx context.Context, purpose string, messages []Message) (string, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	answer, err := client.Complete(ctx, messages)
	if err != nil {
		p.metrics.RecordLLMCall(p.cfg.Model, purpose, "error", time.Since(start))
		p.metrics.RecordLLMError(p.cfg.Model, purpose, classifyError(err))
		return "", err
	}

	p.metrics.RecordLLMCall(p.cfg.Model, purpose, "ok", time.Since(start))
	return answer, nil
}

// RefreshKey re-resolves the API key from the backend and rebuilds the
// client. Serves the refresh endpoint after a key rotation.
func (p *Provider) RefreshKey(ctx context.Context) error {
	key := p.cfg.APIKey
	if key == "" {
		var err error
		key, err = p.keys.FetchOpenAIKey(ctx)
		if err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.client = p.newClient(key)
	p.mu.Unlock()

	p.logger.Info("llm client refreshed", zap.String("model", p.cfg.Model))
	return nil
}

// TestConnection issues a minimal completion to verify the key works.
func (p *Provider) TestConnection(ctx context.Context) error {
	_, err := p.Complete(ctx, "probe", []Message{
		{Role: RoleUser, Content: "ping"},
	})
	return err
}

func (p *Provider) ensureClient(ctx context.Context) (*OpenAIClient, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	key := p.cfg.APIKey
	if key == "" {
		if p.keys == nil {
			return nil, ErrNotConfigured
		}
		var err error
		key, err = p.keys.FetchOpenAIKey(ctx)
		if err != nil {
			p.logger.Warn("api key lookup failed", zap.Error(err))
			return nil, ErrNotConfigured
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		p.client = p.newClient(key)
		p.logger.Info("llm client initialized", zap.String("model", p.cfg.Model))
	}
	return p.client, nil
}

func (p *Provider) newClient(key string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		BaseURL:     p.cfg.BaseURL,
		APIKey:      key,
		Model:       p.cfg.Model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "api"
	}
}
