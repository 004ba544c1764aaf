// Package llm provides the language model client used by the SQL agent
// and the schema annotator. The API key normally lives in the management
// backend, so the provider initializes lazily and can refresh its key at
// runtime without a restart.
package llm

import (
	"context"
	"errors"
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces one completion for a conversation. The purpose tag
// labels the call in metrics ("intent", "sql", "annotation", ...).
type Completer interface {
	Complete(ctx context.Context, purpose string, messages []Message) (string, error)
}

// ErrNotConfigured means no API key is available yet, neither from the
// environment nor from the backend.
var ErrNotConfigured = errors.New("llm provider not configured: no API key available")
