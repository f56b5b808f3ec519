package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/config"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/metrics"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivered payload and decides its disposition.
type Handler func(ctx context.Context, body []byte) pipeline.Outcome

// Consumer owns the RabbitMQ connection and channel for the worker. It pulls
// messages strictly one at a time (prefetch = 1) in manual-ack mode and
// translates each handler outcome into the matching broker disposition.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	logger  *slog.Logger
}

// NewConsumer connects to RabbitMQ, declares the durable queue (idempotent,
// mirrors the producer's declare) and sets the prefetch limit. A connection
// failure here is fatal to startup and is propagated to the caller.
func NewConsumer(cfg config.RabbitMQConfig, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	var args amqp.Table
	if cfg.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange}
	}

	_, err = channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// At most one unacknowledged delivery in flight. Processing of a message
	// runs to completion before the broker hands over the next one.
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	logger.Info("RabbitMQ consumer initialized",
		"queue", cfg.Queue,
		"dead_letter_exchange", cfg.DeadLetterExchange,
	)

	return &Consumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Start begins consuming and blocks until ctx is cancelled or the delivery
// stream breaks. Cancellation stops intake after the in-flight handler call
// returns; a broken stream (connection loss mid-run) is returned as an error
// and the process is expected to exit and be restarted by its supervisor.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.config.Queue, // queue
		"",             // consumer tag (auto-generated)
		false,          // auto-ack (we ack manually)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("RabbitMQ consumer started", "queue", c.config.Queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, stopping consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery runs the handler for a single delivery and reports the
// resulting disposition to the broker. Ack/nack failures are logged, not
// propagated: the broker will redeliver an unacknowledged message anyway.
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	if msg.Redelivered {
		metrics.IncRedeliveries()
	}

	start := time.Now()
	outcome := handler(ctx, msg.Body)
	metrics.ObserveHandleDuration(time.Since(start))
	metrics.IncMessageOutcome(outcome.String())

	var err error
	switch outcome {
	case pipeline.OutcomeAck:
		err = msg.Ack(false)
	case pipeline.OutcomeRequeue:
		err = msg.Nack(false, true)
	case pipeline.OutcomeDrop:
		err = msg.Nack(false, false)
	default:
		c.logger.Error("unknown outcome, requeueing", "outcome", outcome)
		err = msg.Nack(false, true)
	}

	if err != nil {
		c.logger.Error("failed to report delivery disposition",
			"outcome", outcome.String(),
			"redelivered", msg.Redelivered,
			"error", err,
		)
	}
}

// Close releases the channel and connection. It is safe to call after a
// partially failed startup and safe to call more than once.
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("error closing channel", "error", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
