package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

type JobHandler interface {
	Handle(ctx context.Context, msg JobMsg) (JobResult, error)
}

type WorkerParams struct {
	Handler    JobHandler
	Queue      string
	MaxRetries int
	// AI is optional; its metrics are logged and reset after every job.
	AI ai.GraphAIClient
}

// Worker consumes the jobs queue one message at a time.
type Worker struct {
	handler    JobHandler
	queue      string
	maxRetries int
	ai         ai.GraphAIClient
}

func NewWorker(params WorkerParams) *Worker {
	w := &Worker{
		handler:    params.Handler,
		queue:      params.Queue,
		maxRetries: params.MaxRetries,
		ai:         params.AI,
	}
	if w.queue == "" {
		w.queue = "jobs_queue"
	}
	if w.maxRetries <= 0 {
		w.maxRetries = 3
	}
	return w
}

// Consume blocks until ctx is done or the delivery channel closes. Prefetch
// is one, so batch jobs never overlap on this worker.
func (w *Worker) Consume(ctx context.Context, ch *amqp.Channel) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, w.queue, w.queue+"_consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}
	logger.Info("[Queue] Listening for jobs", "queue", w.queue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", w.queue)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Delivery channel closed", "queue", w.queue)
				return nil
			}
			w.Process(ctx, ch, msg)
		}
	}
}

// Process runs one delivery and settles it.
func (w *Worker) Process(ctx context.Context, p Publisher, msg amqp.Delivery) Outcome {
	start := time.Now()
	job, err := ParseJobMsg(msg.Body)
	if err == nil {
		logger.Info("[Queue] Received job", "job", job.Job, "window", job.WindowDays, "retries", retries(msg.Headers))
		_, err = w.handler.Handle(ctx, job)
	}
	if err != nil {
		logger.Error("[Queue] Job failed", "queue", w.queue, "job", job.Job, "err", err)
	}
	outcome := Settle(ctx, p, msg, w.queue, w.maxRetries, err)

	if w.ai != nil {
		m := w.ai.GetMetrics()
		logger.Info("[Queue] AI metrics",
			"input_tokens", m.InputTokens,
			"output_tokens", m.OutputTokens,
			"total_tokens", m.TotalTokens,
			"duration", clock(time.Duration(m.DurationMs)*time.Millisecond))
		w.ai.ResetMetrics()
	}
	logger.Info("[Queue] Message settled", "job", job.Job, "outcome", outcome, "duration", clock(time.Since(start)))
	return outcome
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
