package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/llm"
	"github.com/qgenie/ai-server/internal/prompt"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// DefaultMaxErrors is the per-stage retry budget: how many rejected
// queries, and separately how many failed executions, a run tolerates
// before giving up.
const DefaultMaxErrors = 3

// maxSteps bounds the state machine against routing bugs. The longest
// legitimate run burns the validation budget before every execution
// attempt, burns the execution budget, and ends with the failure
// responder; that is well under this bound.
const maxSteps = 32

// Graph wires the pipeline nodes to their dependencies.
type Graph struct {
	llm       llm.Completer
	store     Store
	prompts   *prompt.Library
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	maxErrors int
}

// Options tunes graph construction.
type Options struct {
	// MaxErrors overrides DefaultMaxErrors when positive.
	MaxErrors int
}

// New creates a graph. All dependencies are required.
func New(completer llm.Completer, store Store, prompts *prompt.Library, logger *logging.Logger, metrics *monitoring.Metrics, opts Options) *Graph {
	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Graph{
		llm:       completer,
		store:     store,
		prompts:   prompts,
		logger:    logger.Named("agent"),
		metrics:   metrics,
		maxErrors: maxErrors,
	}
}

// Run executes the pipeline for one question. The returned state always
// carries an Answer and an Outcome unless err is non-nil, which means an
// infrastructure failure (backend down, prompts missing, LLM dead in a
// non-recoverable spot) rather than a bad question.
func (g *Graph) Run(ctx context.Context, question string, history []types.ChatMessage) (*State, error) {
	start := time.Now()
	s := &State{
		Question: question,
		History:  history,
	}

	node := NodeClassifyIntent
	for steps := 0; node != NodeEnd; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("agent exceeded %d steps at node %s", maxSteps, node)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.metrics.RecordAgentNodeVisit(string(node))
		if err := g.exec(ctx, node, s); err != nil {
			g.metrics.RecordAgentRun("error", time.Since(start))
			return nil, fmt.Errorf("node %s: %w", node, err)
		}
		node = g.route(node, s)
	}

	g.metrics.RecordAgentRun(string(s.Outcome), time.Since(start))
	g.logger.Info("agent run finished",
		zap.String("outcome", string(s.Outcome)),
		zap.String("database", s.Database),
		zap.Int("validation_errors", s.ValidationErrors),
		zap.Int("execution_errors", s.ExecutionErrors),
		zap.Duration("duration", time.Since(start)))
	return s, nil
}

func (g *Graph) exec(ctx context.Context, node Node, s *State) error {
	switch node {
	case NodeClassifyIntent:
		return g.classifyIntent(ctx, s)
	case NodeClassifyDatabase:
		return g.classifyDatabase(ctx, s)
	case NodeGenerateSQL:
		return g.generateSQL(ctx, s)
	case NodeValidateSQL:
		return g.validateSQL(ctx, s)
	case NodeExecuteSQL:
		return g.executeSQL(ctx, s)
	case NodeSynthesize:
		return g.synthesize(ctx, s)
	case NodeRespondGeneral:
		return g.respondGeneral(ctx, s)
	case NodeRespondFailure:
		return g.respondFailure(ctx, s)
	default:
		return fmt.Errorf("unknown node %s", node)
	}
}
