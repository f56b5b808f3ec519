package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplyResult is the three-way outcome of ApplyScore. It is what lets the
// pipeline stay idempotent without a separate existence check: the store
// guarantees atomicity of the check-then-write.
type ApplyResult int

const (
	// ApplyApplied means the row existed, was unscored, and now carries the score.
	ApplyApplied ApplyResult = iota
	// ApplyAlreadyScored means a prior scoring already landed; nothing was mutated.
	ApplyAlreadyScored
	// ApplyNotFound means no matching row exists yet. The producing write may
	// not have committed when the event was observed.
	ApplyNotFound
)

func (r ApplyResult) String() string {
	switch r {
	case ApplyApplied:
		return "applied"
	case ApplyAlreadyScored:
		return "already_scored"
	case ApplyNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// TransactionRepository is the gateway to the transaction row store.
// The schema is owned by the transaction service; this repository only reads
// rows and fills in the fraud fields.
type TransactionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool, logger *slog.Logger) *TransactionRepository {
	return &TransactionRepository{
		pool:   pool,
		logger: logger,
	}
}

// FindByID retrieves the scoring projection of a transaction row.
// Returns (nil, nil) when no row exists.
func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.TransactionScore, error) {
	query := `
		SELECT id, fraud_score, fraud_reason, fraud_scored_at
		FROM transactions
		WHERE id = $1
	`

	var record models.TransactionScore
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.FraudScore,
		&record.FraudReason,
		&record.FraudScoredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}

	return &record, nil
}

// ApplyScore writes the fraud score onto the transaction row in a single
// conditional update. It succeeds only if the row exists and is currently
// unscored, so concurrent or duplicate deliveries for the same id can never
// both succeed.
func (r *TransactionRepository) ApplyScore(ctx context.Context, id uuid.UUID, score int, reason string, scoredAt time.Time) (ApplyResult, error) {
	query := `
		UPDATE transactions
		SET fraud_score = $2,
		    fraud_reason = $3,
		    fraud_scored_at = $4
		WHERE id = $1
		  AND fraud_scored_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, score, reason, scoredAt)
	if err != nil {
		return ApplyNotFound, fmt.Errorf("failed to apply score to transaction %s: %w", id, err)
	}

	if tag.RowsAffected() == 1 {
		return ApplyApplied, nil
	}

	// Zero rows affected: either the row is already scored or it does not
	// exist yet. A re-read distinguishes the two. If the row lands between
	// the two statements we report not-found, which only means one more
	// redelivery before the score is applied.
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return ApplyNotFound, err
	}
	if record == nil {
		return ApplyNotFound, nil
	}
	if record.Scored() {
		return ApplyAlreadyScored, nil
	}

	r.logger.Warn("transaction appeared unscored after conditional update",
		"transaction_id", id,
	)
	return ApplyNotFound, nil
}
