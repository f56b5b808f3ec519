package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionCreatedEvent is published by the transaction service whenever a
// new transaction row is committed. It is immutable once received.
type TransactionCreatedEvent struct {
	ID         uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	MerchantID string
	CustomerID string
	Country    string
	Timestamp  time.Time
}

// transactionCreatedWire mirrors the JSON payload on the queue. Fields are
// kept loosely typed so validation can distinguish missing from malformed.
type transactionCreatedWire struct {
	ID         string           `json:"id"`
	Amount     *decimal.Decimal `json:"amount"`
	Currency   string           `json:"currency"`
	MerchantID string           `json:"merchantId"`
	CustomerID string           `json:"customerId"`
	Country    string           `json:"country"`
	Timestamp  string           `json:"timestamp"`
}

// DecodeTransactionCreatedEvent parses and validates a raw message body.
// Any error it returns means the payload can never be processed successfully,
// no matter how often it is redelivered.
func DecodeTransactionCreatedEvent(body []byte) (*TransactionCreatedEvent, error) {
	var wire transactionCreatedWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if wire.ID == "" {
		return nil, fmt.Errorf("transaction ID is required")
	}
	id, err := uuid.Parse(wire.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction ID %q: %w", wire.ID, err)
	}

	if wire.Amount == nil {
		return nil, fmt.Errorf("amount is required")
	}
	if wire.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative, got %s", wire.Amount)
	}

	if len(wire.Currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter code, got %q", wire.Currency)
	}
	if wire.MerchantID == "" {
		return nil, fmt.Errorf("merchant ID is required")
	}
	if wire.CustomerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if len(wire.Country) != 2 {
		return nil, fmt.Errorf("country must be a 2-letter code, got %q", wire.Country)
	}

	if wire.Timestamp == "" {
		return nil, fmt.Errorf("timestamp is required")
	}
	timestamp, err := time.Parse(time.RFC3339, wire.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", wire.Timestamp, err)
	}

	return &TransactionCreatedEvent{
		ID:         id,
		Amount:     *wire.Amount,
		Currency:   wire.Currency,
		MerchantID: wire.MerchantID,
		CustomerID: wire.CustomerID,
		Country:    wire.Country,
		Timestamp:  timestamp.UTC(),
	}, nil
}
