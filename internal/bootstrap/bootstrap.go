// Package bootstrap builds the clients shared by the server and the worker.
// Everything is constructed once at startup and injected.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OFFIS-RIT/macrokg/internal/config"
	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	oai "github.com/OFFIS-RIT/macrokg/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/macrokg/pkg/ai/openai"
	"github.com/OFFIS-RIT/macrokg/pkg/answer"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/logger/console"
	"github.com/OFFIS-RIT/macrokg/pkg/monitor"
	"github.com/OFFIS-RIT/macrokg/pkg/nel"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
	"github.com/OFFIS-RIT/macrokg/pkg/store/migrations"
	pgstore "github.com/OFFIS-RIT/macrokg/pkg/store/pgx"
)

const slowQuery = 2 * time.Second

func InitLogger(cfg config.Config) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: cfg.Debug, JSON: cfg.LogJSON}))
}

// NewAIClient picks the adapter and records every call into sink when one
// is given.
func NewAIClient(cfg config.AIConfig, sink monitor.CallLogSink) (ai.GraphAIClient, error) {
	var client ai.GraphAIClient
	switch cfg.Adapter {
	case "ollama":
		c, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel:       cfg.ExtractModel,
			AnswerModel:           cfg.AnswerModel,
			BaseURL:               cfg.ChatURL,
			ApiKey:                cfg.ChatKey,
			MaxConcurrentRequests: cfg.ParallelReq,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = c
	default:
		client = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: cfg.ExtractModel,
			AnswerModel:     cfg.AnswerModel,
			ChatURL:         cfg.ChatURL,
			ChatKey:         cfg.ChatKey,
		})
	}
	if sink == nil {
		return client, nil
	}
	return monitor.NewLoggedClient(client, sink), nil
}

// LoadTables applies the optional normalization and alias files on top of
// the built-in tables and installs the result as the package default.
func LoadTables(files config.FileConfig) (*normalize.Tables, *nel.Dictionary, error) {
	tables, err := normalize.LoadExtensions(files.Normalization)
	if err != nil {
		return nil, nil, err
	}
	normalize.SetDefault(tables)

	dict := nel.DefaultDictionary()
	if files.Alias != "" {
		if err := dict.LoadAliases(files.Alias); err != nil {
			return nil, nil, err
		}
	}
	logger.Debug("[Bootstrap] Tables loaded", "themes", len(tables.Themes()),
		"indicators", len(tables.Indicators()), "entities", dict.Len())
	return tables, dict, nil
}

// OpenGraph connects to Neo4j and makes sure constraints and the full-text
// index exist.
func OpenGraph(ctx context.Context, cfg graphdb.Neo4jConfig) (*graphdb.Neo4jStore, error) {
	store, err := graphdb.NewNeo4jStore(ctx, cfg, graphdb.WithSlowQueryLog(slowQuery))
	if err != nil {
		return nil, err
	}
	if err := graphdb.EnsureSchema(ctx, store); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return store, nil
}

// OpenPostgres opens a pool once the database answers and applies pending
// migrations.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := util.RetryErrWithContext(ctx, 5, 2*time.Second, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrations.Up(url); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Core is what both processes need: stores, the logged model client and
// the read path from question to answer.
type Core struct {
	Graph     *graphdb.Neo4jStore
	Pool      *pgxpool.Pool
	Calls     *pgstore.CallLogStore
	AI        ai.GraphAIClient
	Tables    *normalize.Tables
	Entities  *nel.Dictionary
	Resolver  *nel.Resolver
	Retriever *retrieval.Retriever
	Generator *answer.Generator
}

func (c *Core) Close(ctx context.Context) {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Graph != nil {
		if err := c.Graph.Close(ctx); err != nil {
			logger.Warn("[Bootstrap] Failed to close neo4j driver", "err", err)
		}
	}
}

func NewCore(ctx context.Context, cfg config.Config) (*Core, error) {
	c := &Core{}
	var err error
	if c.Graph, err = OpenGraph(ctx, cfg.Neo4j); err != nil {
		return nil, err
	}
	if c.Pool, err = OpenPostgres(ctx, cfg.DatabaseURL); err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Calls = pgstore.NewCallLogStore(c.Pool)
	if c.AI, err = NewAIClient(cfg.AI, c.Calls); err != nil {
		c.Close(ctx)
		return nil, err
	}

	tables, dict, err := LoadTables(cfg.Files)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Tables = tables
	c.Entities = dict
	c.Resolver = nel.NewResolver(nel.ResolverParams{Dictionary: dict, MinConfidence: cfg.Extract.MinNELConfidence})
	c.Retriever = retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: c.Graph, Tables: tables})
	c.Generator = answer.NewGenerator(answer.NewGeneratorParams{
		Retriever:    c.Retriever,
		AI:           c.AI,
		Store:        c.Graph,
		Tables:       tables,
		DefaultModel: cfg.AI.AnswerModel,
	})
	return c, nil
}
