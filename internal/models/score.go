package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionScore is the fraud-scoring projection of a transaction row.
// The row itself is owned by the transaction service; this worker only ever
// fills in the three fraud fields, exactly once.
type TransactionScore struct {
	ID            uuid.UUID
	FraudScore    *int
	FraudReason   *string
	FraudScoredAt *time.Time
}

// Scored reports whether the row has already been scored. Once true the row
// is terminal for this pipeline.
func (t *TransactionScore) Scored() bool {
	return t.FraudScoredAt != nil
}
