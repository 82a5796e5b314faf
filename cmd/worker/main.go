package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/bootstrap"
	"github.com/OFFIS-RIT/macrokg/internal/config"
	"github.com/OFFIS-RIT/macrokg/internal/queue"
	"github.com/OFFIS-RIT/macrokg/internal/scheduler"
	"github.com/OFFIS-RIT/macrokg/internal/storage"
	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/analytics"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/ingest"
	"github.com/OFFIS-RIT/macrokg/pkg/leaselock"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	pgstore "github.com/OFFIS-RIT/macrokg/pkg/store/pgx"
)

func main() {
	runJob := flag.String("run", "", "run a single job and exit instead of consuming the queue")
	window := flag.Int("window", 0, "window in days for -run, 0 uses the job default")
	flag.Parse()

	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// logger is not initialized yet
		bootstrap.InitLogger(config.Config{Debug: true})
		logger.Fatal("[Worker] Invalid configuration", "err", err)
	}
	bootstrap.InitLogger(cfg)

	core, err := bootstrap.NewCore(ctx, cfg)
	if err != nil {
		logger.Fatal("[Worker] Startup failed", "err", err)
	}
	defer core.Close(context.WithoutCancel(ctx))

	writer := graph.NewWriter(graph.NewWriterParams{Store: core.Graph, Tables: core.Tables, Dictionary: core.Entities})
	if summary, err := writer.SeedTaxonomy(ctx); err != nil {
		logger.Fatal("[Worker] Failed to seed taxonomy", "err", err)
	} else {
		logger.Debug("[Worker] Taxonomy seeded", "nodes", summary.NodesCreated)
	}

	extractor := extract.NewExtractor(extract.Params{
		Client:        core.AI,
		Resolver:      core.Resolver,
		Tables:        core.Tables,
		Cache:         pgstore.NewExtractionCache(core.Pool),
		Model:         cfg.AI.ExtractModel,
		AllowedModels: cfg.AI.AllowedModels,
		Version:       cfg.Extract.Version,
		Timeout:       cfg.AI.Timeout,
	})
	source := pgstore.NewSourceReader(core.Pool, pgstore.SourceReaderParams{
		NewsTable:        cfg.Source.NewsTable,
		ObservationTable: cfg.Source.ObservationTable,
	})

	params := queue.RunnerParams{
		Locker:     leaselock.New(core.Pool),
		Syncer:     ingest.NewSyncer(ingest.SyncerParams{Source: source, Writer: writer, Tables: core.Tables}),
		Backlog:    graph.NewBacklog(writer, extractor),
		Analytics:  analytics.NewAnalyzer(analytics.NewAnalyzerParams{Store: core.Graph}),
		Answerer:   core.Generator,
		GoldenFile: cfg.Files.Golden,
		Options: queue.JobOptions{
			SyncLookbackDays: int(cfg.Analytics.SyncLookback / (24 * time.Hour)),
			Backlog:          cfg.Extract.Backlog,
			Correlation:      cfg.Analytics.Correlation,
			Impact:           cfg.Analytics.Impact,
			Recalibrate:      cfg.Analytics.Recalibrate,
			Stories:          cfg.Analytics.Stories,
			MacroState:       cfg.Analytics.MacroState,
		},
	}
	if cfg.S3.Enabled() {
		bucket, err := storage.NewBucket(ctx, cfg.S3)
		if err != nil {
			logger.Fatal("[Worker] Failed to create s3 client", "err", err)
		}
		params.Archive = bucket
	}
	runner := queue.NewRunner(params)

	if *runJob != "" {
		res, err := runner.Handle(ctx, queue.JobMsg{Job: *runJob, WindowDays: *window, RequestedAt: time.Now().UTC()})
		if err != nil {
			logger.Fatal("[Worker] Job failed", "job", *runJob, "status", res.Status, "err", err)
		}
		return
	}

	conn, err := queue.Dial(ctx, cfg.Queue.URL())
	if err != nil {
		logger.Fatal("[Worker] Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, cfg.Queue.Name, cfg.Queue.RetryDelay); err != nil {
		logger.Fatal("[Worker] Failed to declare queues", "err", err)
	}

	if util.GetEnvBool("SCHEDULER_ENABLED", true) {
		sched, err := scheduler.New(cfg.Cron, func(ctx context.Context, msg queue.JobMsg) error {
			return queue.PublishJob(ctx, ch, cfg.Queue.Name, msg)
		})
		if err != nil {
			logger.Fatal("[Worker] Invalid schedule", "err", err)
		}
		go sched.Run(ctx)
	}

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	w := queue.NewWorker(queue.WorkerParams{
		Handler:    runner,
		Queue:      cfg.Queue.Name,
		MaxRetries: cfg.Queue.MaxRetries,
		AI:         core.AI,
	})
	logger.Info("[Worker] Listening for jobs", "queue", cfg.Queue.Name)
	if err := w.Consume(ctx, consumerCh); err != nil {
		logger.Error("[Worker] Consumer stopped", "err", err)
	}
	logger.Info("[Worker] Shutting down")
}
