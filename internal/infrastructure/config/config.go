// Package config loads application configuration from environment
// variables and validates it before the server starts.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	LLM        LLMConfig
	Agent      AgentConfig
	Prompt     PromptConfig
	Session    SessionConfig
	Monitoring MonitoringConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server configuration. The server binds to
// loopback only; a port of 0 asks the OS for a free one.
type ServerConfig struct {
	Port int    `envconfig:"PORT" default:"35816" validate:"min=0,max=65535"`
	Host string `envconfig:"HOST" default:"127.0.0.1" validate:"required"`
}

// BackendConfig holds the connection settings for the management backend
// that owns database metadata, query execution and API keys.
type BackendConfig struct {
	URL            string `envconfig:"BACKEND_URL" default:"http://localhost:39722" validate:"required,url"`
	TimeoutSeconds int    `envconfig:"BACKEND_TIMEOUT" default:"30" validate:"min=1"`
	MaxRetries     int    `envconfig:"BACKEND_MAX_RETRIES" default:"3" validate:"min=0"`
}

// LLMConfig holds language model settings. The API key is usually fetched
// from the backend at startup; OPENAI_API_KEY overrides that lookup.
type LLMConfig struct {
	Model       string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini" validate:"required"`
	APIKey      string  `envconfig:"OPENAI_API_KEY"`
	BaseURL     string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" validate:"url"`
	Temperature float64 `envconfig:"LLM_TEMPERATURE" default:"0" validate:"min=0,max=2"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"2048" validate:"min=1"`
}

// AgentConfig holds settings for the SQL agent state machine.
type AgentConfig struct {
	MaxErrors int `envconfig:"AGENT_MAX_ERRORS" default:"3" validate:"min=1"`
}

// PromptConfig locates the versioned prompt templates on disk.
type PromptConfig struct {
	Dir     string `envconfig:"PROMPT_DIR" default:"prompts" validate:"required"`
	Version string `envconfig:"PROMPT_VERSION" default:"v1" validate:"required"`
}

// SessionConfig holds chat session persistence settings.
type SessionConfig struct {
	DBPath     string `envconfig:"SESSION_DB_PATH" default:"sessions.db" validate:"required"`
	MaxHistory int    `envconfig:"SESSION_MAX_HISTORY" default:"20" validate:"min=1"`
}

// MonitoringConfig controls the background backend connection monitor.
type MonitoringConfig struct {
	Enabled         bool `envconfig:"ENABLE_CONNECTION_MONITORING" default:"false"`
	IntervalSeconds int  `envconfig:"MONITORING_INTERVAL" default:"10" validate:"min=1"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"min=1"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"min=1"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

var validate = validator.New()

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 35816,
			Host: "127.0.0.1",
		},
		Backend: BackendConfig{
			URL:            "http://localhost:39722",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0,
			MaxTokens:   2048,
		},
		Agent: AgentConfig{
			MaxErrors: 3,
		},
		Prompt: PromptConfig{
			Dir:     "prompts",
			Version: "v1",
		},
		Session: SessionConfig{
			DBPath:     "sessions.db",
			MaxHistory: 20,
		},
		Monitoring: MonitoringConfig{
			Enabled:         false,
			IntervalSeconds: 10,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
