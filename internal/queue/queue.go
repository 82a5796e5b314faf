// Package queue carries batch job requests over RabbitMQ and runs them on
// the worker.
package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/macrokg/internal/util"
)

const (
	retrySuffix = "_retry"
	dlqSuffix   = "_dlq"
	retryHeader = "x-retries"

	dialAttempts = 5
	dialBackoff  = 2 * time.Second
)

// Publisher is the part of *amqp.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Declarer is the part of *amqp.Channel used to declare queues.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// Dial connects to RabbitMQ, retrying while the broker starts up.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	conn, err := util.RetryWithContext(ctx, dialAttempts, dialBackoff, func(context.Context) (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// SetupQueues declares the jobs queue together with its retry queue, whose
// messages dead-letter back after retryDelay, and its dead-letter queue.
func SetupQueues(ch Declarer, name string, retryDelay time.Duration) error {
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}
	declare := []struct {
		name string
		args amqp.Table
	}{
		{name, nil},
		{name + dlqSuffix, nil},
		{name + retrySuffix, amqp.Table{
			"x-message-ttl":             int32(retryDelay.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		}},
	}
	for _, q := range declare {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func publish(ctx context.Context, p Publisher, queueName string, body []byte, headers amqp.Table) error {
	return p.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}
