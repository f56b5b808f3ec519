// Package pipeline wires decode, scoring and persistence into a single
// per-message decision procedure. Each stage maps to one of three terminal
// dispositions for the delivery, so the requeue-vs-drop choice is explicit
// and testable rather than buried in error handling.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/metrics"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/models"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/repository"
	"github.com/google/uuid"
)

// Outcome is the disposition the consumer reports back to the broker for a
// delivery.
type Outcome int

const (
	// OutcomeAck confirms the delivery permanently. Used for success and for
	// duplicates of messages already fully processed.
	OutcomeAck Outcome = iota
	// OutcomeRequeue returns the message to the queue for redelivery.
	OutcomeRequeue
	// OutcomeDrop removes the message without redelivery. Reserved for
	// payloads that can never succeed, which would otherwise loop forever.
	OutcomeDrop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRequeue:
		return "requeue"
	case OutcomeDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Scorer computes a fraud score and reason string for an event.
type Scorer interface {
	Score(evt *models.TransactionCreatedEvent) (int, string)
}

// ScoreStore persists scores with the three-way conditional-write contract.
type ScoreStore interface {
	ApplyScore(ctx context.Context, id uuid.UUID, score int, reason string, scoredAt time.Time) (repository.ApplyResult, error)
}

// Processor runs the decode -> score -> persist procedure for each delivered
// payload and decides its disposition.
type Processor struct {
	scorer Scorer
	store  ScoreStore
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(scorer Scorer, store ScoreStore, logger *slog.Logger) *Processor {
	return &Processor{
		scorer: scorer,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Process handles one delivered payload. It never panics across the handler
// boundary: an unexpected fault resolves to a requeue so one poisoned
// invocation cannot halt the consumer loop.
func (p *Processor) Process(ctx context.Context, body []byte) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing message", "panic", r)
			outcome = OutcomeRequeue
		}
	}()

	evt, err := models.DecodeTransactionCreatedEvent(body)
	if err != nil {
		// A malformed payload can never succeed on redelivery. Dropping
		// instead of requeuing avoids a poison-message loop.
		p.logger.Warn("dropping malformed payload",
			"error", err,
			"payload", string(body),
		)
		return OutcomeDrop
	}

	score, reason := p.scorer.Score(evt)

	result, err := p.store.ApplyScore(ctx, evt.ID, score, reason, p.now().UTC())
	if err != nil {
		p.logger.Error("score store write failed, requeueing",
			"transaction_id", evt.ID,
			"error", err,
		)
		return OutcomeRequeue
	}

	metrics.IncScoreApply(result.String())

	switch result {
	case repository.ApplyApplied:
		p.logger.Info("transaction scored",
			"transaction_id", evt.ID,
			"score", score,
			"reason", reason,
		)
		return OutcomeAck

	case repository.ApplyAlreadyScored:
		p.logger.Info("transaction already scored, skipping",
			"transaction_id", evt.ID,
		)
		return OutcomeAck

	case repository.ApplyNotFound:
		// The producing write may not have committed yet when this consumer
		// observed the event. Requeueing gives the store time to catch up.
		p.logger.Warn("transaction not found yet, requeueing",
			"transaction_id", evt.ID,
		)
		return OutcomeRequeue

	default:
		p.logger.Error("unexpected apply result, requeueing",
			"transaction_id", evt.ID,
			"result", result.String(),
		)
		return OutcomeRequeue
	}
}
