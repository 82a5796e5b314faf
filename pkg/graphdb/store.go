// Package graphdb is the narrow adapter between the knowledge graph
// components and the property graph database. All reads and writes flow
// through Store; every mutation is expressed as an idempotent MERGE built by
// the statement helpers in this package.
package graphdb

import (
	"context"
	"fmt"
)

// Store executes parameterized graph queries.
type Store interface {
	RunRead(ctx context.Context, query string, params map[string]any) ([]Record, error)
	RunWrite(ctx context.Context, query string, params map[string]any) (WriteSummary, error)
}

// BatchWriter executes several statements in a single write transaction.
type BatchWriter interface {
	RunWriteBatch(ctx context.Context, stmts []Statement) (WriteSummary, error)
}

// WriteSummary carries the mutation counters reported by the database.
type WriteSummary struct {
	NodesCreated         int `json:"nodes_created"`
	NodesDeleted         int `json:"nodes_deleted"`
	RelationshipsCreated int `json:"relationships_created"`
	RelationshipsDeleted int `json:"relationships_deleted"`
	PropertiesSet        int `json:"properties_set"`
	LabelsAdded          int `json:"labels_added"`
}

// Add accumulates o into s.
func (s *WriteSummary) Add(o WriteSummary) {
	s.NodesCreated += o.NodesCreated
	s.NodesDeleted += o.NodesDeleted
	s.RelationshipsCreated += o.RelationshipsCreated
	s.RelationshipsDeleted += o.RelationshipsDeleted
	s.PropertiesSet += o.PropertiesSet
	s.LabelsAdded += o.LabelsAdded
}

// Created reports whether anything new was written.
func (s WriteSummary) Created() bool {
	return s.NodesCreated > 0 || s.RelationshipsCreated > 0
}

// Exec runs stmts in one transaction when the store supports batches and
// falls back to one RunWrite per statement otherwise.
func Exec(ctx context.Context, store Store, stmts ...Statement) (WriteSummary, error) {
	if len(stmts) == 0 {
		return WriteSummary{}, nil
	}
	if bw, ok := store.(BatchWriter); ok {
		return bw.RunWriteBatch(ctx, stmts)
	}
	var total WriteSummary
	for i, st := range stmts {
		sum, err := store.RunWrite(ctx, st.Query, st.Params)
		if err != nil {
			return total, fmt.Errorf("statement %d: %w", i, err)
		}
		total.Add(sum)
	}
	return total, nil
}
