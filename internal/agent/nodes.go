package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

func (g *Graph) classifyIntent(ctx context.Context, s *State) error {
	tmpl, err := g.prompts.Get("sql_agent/intent_classifier")
	if err != nil {
		return err
	}
	messages, err := tmpl.Render(map[string]any{
		"Question": s.Question,
		"History":  formatHistory(s.History),
	})
	if err != nil {
		return err
	}

	answer, err := g.llm.Complete(ctx, "intent", messages)
	if err != nil {
		// A question we cannot classify is treated as a data question;
		// the rest of the pipeline surfaces real failures.
		g.logger.Warn("intent classification failed, assuming SQL", zap.Error(err))
		s.Intent = IntentSQL
		return nil
	}

	switch strings.ToUpper(strings.TrimSpace(answer)) {
	case string(IntentGeneral):
		s.Intent = IntentGeneral
	default:
		s.Intent = IntentSQL
	}
	return nil
}

func (g *Graph) classifyDatabase(ctx context.Context, s *State) error {
	dbs, err := g.store.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}
	if len(dbs) == 0 {
		return fmt.Errorf("no databases registered")
	}
	s.Databases = dbs

	chosen := dbs[0]
	if len(dbs) > 1 {
		tmpl, err := g.prompts.Get("sql_agent/db_classifier")
		if err != nil {
			return err
		}
		messages, err := tmpl.Render(map[string]any{
			"Question":  s.Question,
			"Databases": formatDatabases(dbs),
		})
		if err != nil {
			return err
		}

		answer, err := g.llm.Complete(ctx, "db_classify", messages)
		if err != nil {
			return fmt.Errorf("database classification: %w", err)
		}

		name := strings.TrimSpace(answer)
		found := false
		for _, db := range dbs {
			if strings.EqualFold(db.Name, name) {
				chosen = db
				found = true
				break
			}
		}
		if !found {
			g.logger.Warn("classifier picked unknown database, using first",
				zap.String("picked", name),
				zap.String("fallback", chosen.Name))
		}
	}

	schema, err := g.store.GetSchema(ctx, chosen.Name)
	if err != nil {
		return fmt.Errorf("get schema: %w", err)
	}

	s.Database = chosen.Name
	s.Dialect = chosen.DBMSType
	s.Schema = schema
	s.Annotations = chosen.Annotations
	return nil
}

func (g *Graph) generateSQL(ctx context.Context, s *State) error {
	tmpl, err := g.prompts.Get("sql_agent/sql_generator")
	if err != nil {
		return err
	}
	messages, err := tmpl.Render(map[string]any{
		"Question":      s.Question,
		"Dialect":       s.Dialect,
		"Schema":        formatSchema(s.Schema, s.Annotations),
		"History":       formatHistory(s.History),
		"ErrorFeedback": s.LastError,
		"PreviousSQL":   s.SQL,
	})
	if err != nil {
		return err
	}

	answer, err := g.llm.Complete(ctx, "sql", messages)
	if err != nil {
		return fmt.Errorf("sql generation: %w", err)
	}

	s.SQL = CleanSQL(answer)
	return nil
}

func (g *Graph) validateSQL(_ context.Context, s *State) error {
	if err := ValidateSQL(s.SQL); err != nil {
		s.Valid = false
		s.ValidationErrors++
		s.LastError = err.Error()
		g.metrics.IncAgentRetries()
		g.logger.Debug("generated query rejected",
			zap.String("sql", s.SQL),
			zap.String("reason", s.LastError),
			zap.Int("validation_errors", s.ValidationErrors))
		return nil
	}
	s.Valid = true
	s.ValidationErrors = 0
	s.LastError = ""
	return nil
}

func (g *Graph) executeSQL(ctx context.Context, s *State) error {
	result, err := g.store.ExecuteQuery(ctx, s.Database, s.SQL)
	if err != nil {
		s.Executed = false
		s.ExecutionErrors++
		// The regenerated query starts a fresh validation budget.
		s.ValidationErrors = 0
		s.LastError = err.Error()
		g.metrics.IncAgentRetries()
		g.logger.Debug("query execution failed",
			zap.String("database", s.Database),
			zap.String("sql", s.SQL),
			zap.Int("execution_errors", s.ExecutionErrors))
		return nil
	}
	s.Executed = true
	s.Result = result
	s.ValidationErrors = 0
	s.ExecutionErrors = 0
	s.LastError = ""
	return nil
}

func (g *Graph) synthesize(ctx context.Context, s *State) error {
	tmpl, err := g.prompts.Get("sql_agent/response_synthesizer")
	if err != nil {
		return err
	}
	messages, err := tmpl.Render(map[string]any{
		"Question": s.Question,
		"SQL":      s.SQL,
		"Columns":  strings.Join(s.Result.Columns, ", "),
		"Rows":     formatRows(s.Result),
	})
	if err != nil {
		return err
	}

	answer, err := g.llm.Complete(ctx, "synthesize", messages)
	if err != nil {
		// The data is already in hand; a broken LLM degrades the wording,
		// not the run.
		g.logger.Warn("answer synthesis failed", zap.Error(err))
		s.Answer = fmt.Sprintf("I'm sorry, something went wrong while composing the answer: %v", err)
		s.Outcome = OutcomeAnswered
		return nil
	}

	s.Answer = strings.TrimSpace(answer)
	s.Outcome = OutcomeAnswered
	return nil
}

func (g *Graph) respondGeneral(_ context.Context, s *State) error {
	s.Answer = "I'm sorry, I can't answer that question. " +
		"I only handle questions about your registered databases, " +
		"so please ask about your data or a SQL query."
	s.Outcome = OutcomeGeneral
	return nil
}

func (g *Graph) respondFailure(ctx context.Context, s *State) error {
	s.Outcome = OutcomeFailed

	tmpl, err := g.prompts.Get("sql_agent/failure_responder")
	if err != nil {
		return err
	}
	messages, err := tmpl.Render(map[string]any{
		"Question":      s.Question,
		"ErrorFeedback": s.LastError,
	})
	if err != nil {
		return err
	}

	answer, err := g.llm.Complete(ctx, "failure", messages)
	if err != nil {
		// Even the apology failed; fall back to a fixed message rather
		// than erroring the whole run.
		s.Answer = "I could not answer that question from the available data. Please try rephrasing it."
		return nil
	}

	s.Answer = strings.TrimSpace(answer)
	return nil
}
