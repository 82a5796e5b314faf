package queue

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/leaselock"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// Outcome is what happened to a delivery after its job ran.
type Outcome string

const (
	OutcomeAcked   Outcome = "acked"
	OutcomeRetried Outcome = "retried"
	OutcomeDead    Outcome = "dead_lettered"
	OutcomeSkipped Outcome = "skipped"
	OutcomeNacked  Outcome = "nacked"
)

func retries(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Settle acks, retries or dead-letters msg depending on the job error.
// A busy lease means the same job is already running, so the message is
// dropped. Validation errors never succeed and go straight to the DLQ.
func Settle(ctx context.Context, p Publisher, msg amqp.Delivery, queueName string, maxRetries int, jobErr error) Outcome {
	if jobErr == nil {
		return ack(msg, OutcomeAcked)
	}
	if errors.Is(jobErr, leaselock.ErrBusy) {
		logger.Info("[Queue] Job already running, dropping message", "queue", queueName)
		return ack(msg, OutcomeSkipped)
	}

	n := retries(msg.Headers)
	if n >= maxRetries || errors.Is(jobErr, common.ErrValidation) {
		dlqName := queueName + dlqSuffix
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", n, "err", jobErr)
		if err := publish(ctx, p, dlqName, msg.Body, msg.Headers); err != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
			return nack(msg)
		}
		return ack(msg, OutcomeDead)
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(n + 1)

	retryName := queueName + retrySuffix
	if err := publish(ctx, p, retryName, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		return nack(msg)
	}
	return ack(msg, OutcomeRetried)
}

func ack(msg amqp.Delivery, o Outcome) Outcome {
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	return o
}

func nack(msg amqp.Delivery) Outcome {
	if err := msg.Nack(false, true); err != nil {
		logger.Error("[Queue] Failed to nack message", "err", err)
	}
	return OutcomeNacked
}
