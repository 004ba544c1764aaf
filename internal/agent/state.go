// Package agent implements the staged pipeline that turns a
// natural-language question into an executed SQL query and a synthesized
// answer. The pipeline is a small state machine: each node enriches the
// shared state, and routing between nodes depends on what the previous
// node produced.
package agent

import (
	"context"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// Intent is the classified purpose of a question.
type Intent string

const (
	IntentSQL     Intent = "SQL"
	IntentGeneral Intent = "GENERAL"
)

// Node identifies one stage of the pipeline.
type Node string

const (
	NodeClassifyIntent   Node = "classify_intent"
	NodeClassifyDatabase Node = "classify_database"
	NodeGenerateSQL      Node = "generate_sql"
	NodeValidateSQL      Node = "validate_sql"
	NodeExecuteSQL       Node = "execute_sql"
	NodeSynthesize       Node = "synthesize"
	NodeRespondGeneral   Node = "respond_general"
	NodeRespondFailure   Node = "respond_failure"
	NodeEnd              Node = "end"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeGeneral  Outcome = "general"
	OutcomeFailed   Outcome = "failed"
)

// Store is the slice of the backend the agent needs.
type Store interface {
	ListDatabases(ctx context.Context) ([]backend.DatabaseInfo, error)
	GetSchema(ctx context.Context, database string) (*backend.Schema, error)
	ExecuteQuery(ctx context.Context, database, query string) (*backend.QueryResult, error)
}

// State carries everything the nodes accumulate during one run.
type State struct {
	Question string
	History  []types.ChatMessage

	Intent      Intent
	Databases   []backend.DatabaseInfo
	Database    string
	Dialect     string
	Schema      *backend.Schema
	Annotations *types.AnnotatedDatabase

	SQL    string
	Result *backend.QueryResult

	// Valid reports the outcome of the last validation pass.
	Valid bool
	// Executed reports whether the last execution attempt succeeded.
	Executed bool

	// ValidationErrors counts rejected queries since the last accepted
	// one; ExecutionErrors counts failed execution attempts. Each has its
	// own retry budget. A successful execution resets both, and a failed
	// execution resets the validation count so the regenerated query gets
	// a fresh validation budget.
	ValidationErrors int
	ExecutionErrors  int
	LastError        string

	Answer  string
	Outcome Outcome
}
