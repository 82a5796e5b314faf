package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/macrokg/internal/bootstrap"
	"github.com/OFFIS-RIT/macrokg/internal/config"
	"github.com/OFFIS-RIT/macrokg/internal/queue"
	"github.com/OFFIS-RIT/macrokg/internal/server"
	mid "github.com/OFFIS-RIT/macrokg/internal/server/middleware"
	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.InitLogger(config.Config{Debug: true})
		logger.Fatal("[Server] Invalid configuration", "err", err)
	}
	bootstrap.InitLogger(cfg)

	core, err := bootstrap.NewCore(ctx, cfg)
	if err != nil {
		logger.Fatal("[Server] Startup failed", "err", err)
	}
	defer core.Close(context.WithoutCancel(ctx))

	app := &mid.App{
		Context:        core.Retriever,
		Answerer:       core.Generator,
		Calls:          core.Calls,
		RequestTimeout: util.GetEnvDuration("REQUEST_TIMEOUT", 0),
	}

	// The api still serves reads when RabbitMQ is down; job triggers answer 503.
	if conn, err := queue.Dial(ctx, cfg.Queue.URL()); err != nil {
		logger.Warn("[Server] RabbitMQ unavailable, job triggers disabled", "err", err)
	} else {
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("[Server] Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, cfg.Queue.Name, cfg.Queue.RetryDelay); err != nil {
			logger.Fatal("[Server] Failed to declare queues", "err", err)
		}
		app.Enqueue = func(ctx context.Context, msg queue.JobMsg) error {
			return queue.PublishJob(ctx, ch, cfg.Queue.Name, msg)
		}
	}

	if err := server.Run(ctx, server.New(app), cfg.Port); err != nil {
		logger.Error("[Server] Stopped", "err", err)
	}
}
