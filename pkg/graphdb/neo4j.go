package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds the connection settings for Neo4jStore.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements Store and BatchWriter on top of the official driver.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	slow     time.Duration
}

type Neo4jOption func(*Neo4jStore)

// WithSlowQueryLog logs every query that runs longer than d.
func WithSlowQueryLog(d time.Duration) Neo4jOption {
	return func(s *Neo4jStore) {
		s.slow = d
	}
}

// NewNeo4jStore connects to the database and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, opts ...Neo4jOption) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	s := &Neo4jStore{driver: driver, database: db}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

func (s *Neo4jStore) observe(query string, start time.Time) {
	if s.slow <= 0 {
		return
	}
	if d := time.Since(start); d > s.slow {
		logger.Warn("[GraphDB] Slow query", "duration_ms", d.Milliseconds(), "query", query)
	}
}

func (s *Neo4jStore) RunRead(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	start := time.Now()
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Record, 0, len(records))
		for _, rec := range records {
			row := make(Record, len(rec.Keys))
			for i, k := range rec.Keys {
				row[k] = convertValue(rec.Values[i])
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	s.observe(query, start)
	if err != nil {
		return nil, fmt.Errorf("graph read: %w", err)
	}
	return out.([]Record), nil
}

func (s *Neo4jStore) RunWrite(ctx context.Context, query string, params map[string]any) (WriteSummary, error) {
	return s.RunWriteBatch(ctx, []Statement{{Query: query, Params: params}})
}

func (s *Neo4jStore) RunWriteBatch(ctx context.Context, stmts []Statement) (WriteSummary, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	start := time.Now()
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var total WriteSummary
		for _, st := range stmts {
			result, err := tx.Run(ctx, st.Query, st.Params)
			if err != nil {
				return nil, err
			}
			summary, err := result.Consume(ctx)
			if err != nil {
				return nil, err
			}
			c := summary.Counters()
			total.Add(WriteSummary{
				NodesCreated:         c.NodesCreated(),
				NodesDeleted:         c.NodesDeleted(),
				RelationshipsCreated: c.RelationshipsCreated(),
				RelationshipsDeleted: c.RelationshipsDeleted(),
				PropertiesSet:        c.PropertiesSet(),
				LabelsAdded:          c.LabelsAdded(),
			})
		}
		return total, nil
	})
	if len(stmts) == 1 {
		s.observe(stmts[0].Query, start)
	}
	if err != nil {
		return WriteSummary{}, fmt.Errorf("graph write: %w", err)
	}
	return out.(WriteSummary), nil
}

func convertValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return convertMap(val.Props)
	case neo4j.Relationship:
		return convertMap(val.Props)
	case map[string]any:
		return convertMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = convertValue(val[i])
		}
		return out
	default:
		return v
	}
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}
