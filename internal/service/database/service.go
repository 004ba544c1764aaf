// Package database exposes the backend's database catalog to the chat
// API and the agent.
package database

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/shared/types"
)

// Service wraps the backend catalog endpoints. The database list and
// per-database schemas change rarely and are needed on every agent run,
// so both are cached after the first successful fetch.
type Service struct {
	api    backend.API
	logger *logging.Logger

	mu      sync.Mutex
	dbs     []backend.DatabaseInfo
	schemas map[string]*backend.Schema
}

// NewService creates a database catalog service.
func NewService(api backend.API, logger *logging.Logger) *Service {
	return &Service{
		api:     api,
		logger:  logger.Named("database"),
		schemas: make(map[string]*backend.Schema),
	}
}

// Summaries returns the databases as the compact wire form served to
// chat clients. The annotator's database description wins over the
// connection profile's when both exist.
func (s *Service) Summaries(ctx context.Context) ([]types.DatabaseSummary, error) {
	dbs, err := s.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.DatabaseSummary, 0, len(dbs))
	for _, db := range dbs {
		summary := db.Summary()
		if db.Annotations != nil && db.Annotations.Description != "" {
			summary.Description = db.Annotations.Description
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListDatabases returns the full backend records, including annotations.
// Implements the agent's Store interface together with GetSchema and
// ExecuteQuery.
func (s *Service) ListDatabases(ctx context.Context) ([]backend.DatabaseInfo, error) {
	s.mu.Lock()
	cached := s.dbs
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	dbs, err := s.api.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.dbs = dbs
	s.mu.Unlock()
	s.logger.Info("cached database list", zap.Int("databases", len(dbs)))
	return dbs, nil
}

// GetSchema returns the schema of one database, fetching it at most once.
func (s *Service) GetSchema(ctx context.Context, database string) (*backend.Schema, error) {
	s.mu.Lock()
	cached, ok := s.schemas[database]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	schema, err := s.api.GetSchema(ctx, database)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schemas[database] = schema
	s.mu.Unlock()
	s.logger.Info("cached schema", zap.String("database", database))
	return schema, nil
}

// Refresh drops the cached list and schemas so the next call refetches.
func (s *Service) Refresh() {
	s.mu.Lock()
	s.dbs = nil
	s.schemas = make(map[string]*backend.Schema)
	s.mu.Unlock()
	s.logger.Info("database cache cleared")
}

// ExecuteQuery runs a query through the backend. Results are never
// cached.
func (s *Service) ExecuteQuery(ctx context.Context, database, query string) (*backend.QueryResult, error) {
	return s.api.ExecuteQuery(ctx, database, query)
}
