// Package annotation generates natural-language descriptions for
// database schemas. Descriptions for all elements are produced
// concurrently; a failed element degrades to an empty description
// instead of failing the whole schema.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/llm"
	"github.com/qgenie/ai-server/internal/prompt"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// defaultConcurrency bounds parallel LLM calls per request.
const defaultConcurrency = 8

// maxSampleRows caps how many sample rows reach the prompts.
const maxSampleRows = 5

// Service annotates schemas.
type Service struct {
	llm         llm.Completer
	prompts     *prompt.Library
	logger      *logging.Logger
	concurrency int
}

// NewService creates an annotation service.
func NewService(completer llm.Completer, prompts *prompt.Library, logger *logging.Logger) *Service {
	return &Service{
		llm:         completer,
		prompts:     prompts,
		logger:      logger.Named("annotation"),
		concurrency: defaultConcurrency,
	}
}

// Annotate describes every database, table, column and relationship of
// the request.
func (s *Service) Annotate(ctx context.Context, req types.AnnotationRequest) (*types.AnnotationResponse, error) {
	resp := &types.AnnotationResponse{
		DBMSType:  req.DBMSType,
		Databases: make([]types.AnnotatedDatabase, len(req.Databases)),
	}

	for i, db := range req.Databases {
		annotated, err := s.annotateDatabase(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("annotate %s: %w", db.DatabaseName, err)
		}
		resp.Databases[i] = *annotated
	}

	return resp, nil
}

func (s *Service) annotateDatabase(ctx context.Context, db types.Database) (*types.AnnotatedDatabase, error) {
	out := &types.AnnotatedDatabase{
		DatabaseName:  db.DatabaseName,
		Tables:        make([]types.AnnotatedTable, len(db.Tables)),
		Relationships: make([]types.AnnotatedRelationship, len(db.Relationships)),
	}

	// The database description runs first and alone: a provider that is
	// not configured at all must fail the request, not degrade every
	// element to an empty string.
	desc, err := s.describe(ctx, "annotator/database", map[string]any{
		"DatabaseName": db.DatabaseName,
		"Tables":       tableNames(db.Tables),
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, err
		}
		s.logger.Warn("database description failed",
			zap.String("database", db.DatabaseName),
			zap.Error(err))
	}
	out.Description = desc

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	run := func(fn func()) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn()
		}()
	}

	for ti := range db.Tables {
		table := db.Tables[ti]
		target := &out.Tables[ti]
		target.TableName = table.TableName
		target.SampleRows = table.SampleRows
		target.Columns = make([]types.AnnotatedColumn, len(table.Columns))

		run(func() {
			target.Description = s.describeOrFallback(ctx, "annotator/table", map[string]any{
				"TableName":  table.TableName,
				"Columns":    columnList(table.Columns),
				"SampleRows": sampleRows(table.SampleRows),
			}, "table", table.TableName)
		})

		for ci := range table.Columns {
			col := table.Columns[ci]
			colTarget := &target.Columns[ci]
			colTarget.Column = col

			run(func() {
				colTarget.Description = s.describeOrFallback(ctx, "annotator/column", map[string]any{
					"TableName":    table.TableName,
					"ColumnName":   col.ColumnName,
					"DataType":     col.DataType,
					"SampleValues": sampleValues(table.SampleRows, col.ColumnName),
				}, "column", table.TableName+"."+col.ColumnName)
			})
		}
	}

	for ri := range db.Relationships {
		rel := db.Relationships[ri]
		target := &out.Relationships[ri]
		target.Relationship = rel

		run(func() {
			target.Description = s.describeOrFallback(ctx, "annotator/relationship", map[string]any{
				"FromTable":   rel.FromTable,
				"FromColumns": strings.Join(rel.FromColumns, ", "),
				"ToTable":     rel.ToTable,
				"ToColumns":   strings.Join(rel.ToColumns, ", "),
			}, "relationship", rel.FromTable+"->"+rel.ToTable)
		})
	}

	wg.Wait()
	return out, nil
}

func (s *Service) describe(ctx context.Context, template string, data map[string]any) (string, error) {
	tmpl, err := s.prompts.Get(template)
	if err != nil {
		return "", err
	}
	messages, err := tmpl.Render(data)
	if err != nil {
		return "", err
	}
	answer, err := s.llm.Complete(ctx, "annotation", messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// describeOrFallback degrades a failed element to an error-text
// description so the response still shows which elements went wrong.
func (s *Service) describeOrFallback(ctx context.Context, template string, data map[string]any, kind, name string) string {
	desc, err := s.describe(ctx, template, data)
	if err != nil {
		s.logger.Warn("description failed",
			zap.String("kind", kind),
			zap.String("element", name),
			zap.Error(err))
		return fmt.Sprintf("description generation failed: %v", err)
	}
	return desc
}

func tableNames(tables []types.Table) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.TableName
	}
	return strings.Join(names, ", ")
}

func columnList(columns []types.Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c.ColumnName + " " + c.DataType
	}
	return strings.Join(parts, ", ")
}

func sampleRows(rows []map[string]any) string {
	if len(rows) > maxSampleRows {
		rows = rows[:maxSampleRows]
	}
	var sb strings.Builder
	for _, row := range rows {
		if encoded, err := sonic.Marshal(row); err == nil {
			sb.Write(encoded)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sampleValues(rows []map[string]any, column string) string {
	var values []string
	for _, row := range rows {
		if len(values) >= maxSampleRows {
			break
		}
		if v, ok := row[column]; ok && v != nil {
			values = append(values, fmt.Sprint(v))
		}
	}
	return strings.Join(values, ", ")
}
