package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/models"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/repository"
	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/scoring"
	"github.com/google/uuid"
)

const eventPayload = `{
	"id": "11111111-1111-1111-1111-111111111111",
	"amount": 7000,
	"currency": "AUD",
	"merchantId": "m_001",
	"customerId": "c_001",
	"country": "NG",
	"timestamp": "2024-01-01T02:00:00Z"
}`

// fakeStore is a scripted ScoreStore for unit tests.
type fakeStore struct {
	result repository.ApplyResult
	err    error
	panics bool

	calls      int
	lastID     uuid.UUID
	lastScore  int
	lastReason string
	lastAt     time.Time
}

func (s *fakeStore) ApplyScore(ctx context.Context, id uuid.UUID, score int, reason string, scoredAt time.Time) (repository.ApplyResult, error) {
	if s.panics {
		panic("store exploded")
	}
	s.calls++
	s.lastID = id
	s.lastScore = score
	s.lastReason = reason
	s.lastAt = scoredAt
	return s.result, s.err
}

func newProcessor(store *fakeStore) *Processor {
	engine := scoring.NewEngine([]string{"NG", "RU", "IR", "KP"})
	return NewProcessor(engine, store, slog.New(slog.DiscardHandler))
}

func TestProcess_SuccessAcks(t *testing.T) {
	store := &fakeStore{result: repository.ApplyApplied}
	p := newProcessor(store)

	outcome := p.Process(context.Background(), []byte(eventPayload))

	if outcome != OutcomeAck {
		t.Errorf("expected ack, got %s", outcome)
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.calls)
	}
	if store.lastID != uuid.MustParse("11111111-1111-1111-1111-111111111111") {
		t.Errorf("unexpected transaction id: %s", store.lastID)
	}
	if store.lastScore != 75 {
		t.Errorf("expected score 75, got %d", store.lastScore)
	}
	if store.lastReason != "HIGH_AMOUNT;HIGH_RISK_COUNTRY;OFF_HOURS" {
		t.Errorf("unexpected reason: %s", store.lastReason)
	}
	if store.lastAt.Location() != time.UTC {
		t.Errorf("expected UTC scored-at, got %v", store.lastAt.Location())
	}
}

func TestProcess_AlreadyScoredAcks(t *testing.T) {
	store := &fakeStore{result: repository.ApplyAlreadyScored}
	p := newProcessor(store)

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeAck {
		t.Errorf("expected ack for duplicate delivery, got %s", outcome)
	}
}

func TestProcess_NotFoundRequeues(t *testing.T) {
	store := &fakeStore{result: repository.ApplyNotFound}
	p := newProcessor(store)

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeRequeue {
		t.Errorf("expected requeue when row is missing, got %s", outcome)
	}
}

func TestProcess_StoreErrorRequeues(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	p := newProcessor(store)

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeRequeue {
		t.Errorf("expected requeue on store error, got %s", outcome)
	}
}

func TestProcess_MalformedPayloadDrops(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not json at all"},
		{"missing fields", `{"id": "11111111-1111-1111-1111-111111111111"}`},
		{"bad uuid", `{"id": "nope", "amount": 1, "currency": "AUD", "merchantId": "m", "customerId": "c", "country": "AU", "timestamp": "2024-01-01T02:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{result: repository.ApplyApplied}
			p := newProcessor(store)

			if outcome := p.Process(context.Background(), []byte(tt.payload)); outcome != OutcomeDrop {
				t.Errorf("expected drop, got %s", outcome)
			}
			if store.calls != 0 {
				t.Errorf("expected no store call for malformed payload, got %d", store.calls)
			}
		})
	}
}

func TestProcess_PanicResolvesToRequeue(t *testing.T) {
	store := &fakeStore{panics: true}
	p := newProcessor(store)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped the handler boundary: %v", r)
		}
	}()

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeRequeue {
		t.Errorf("expected requeue after panic, got %s", outcome)
	}
}

// scriptedScorer lets a test pin the score independently of the rule engine.
type scriptedScorer struct {
	score  int
	reason string
}

func (s *scriptedScorer) Score(*models.TransactionCreatedEvent) (int, string) {
	return s.score, s.reason
}

func TestProcess_UsesScorerOutput(t *testing.T) {
	store := &fakeStore{result: repository.ApplyApplied}
	p := NewProcessor(&scriptedScorer{score: 42, reason: "LOW_RISK"}, store, slog.New(slog.DiscardHandler))

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeAck {
		t.Fatalf("expected ack, got %s", outcome)
	}
	if store.lastScore != 42 || store.lastReason != "LOW_RISK" {
		t.Errorf("expected scorer output to be persisted, got %d %s", store.lastScore, store.lastReason)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeAck, "ack"},
		{OutcomeRequeue, "requeue"},
		{OutcomeDrop, "drop"},
		{Outcome(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String(): expected %s, got %s", tt.outcome, tt.want, got)
		}
	}
}

func TestProcess_RedeliveryAfterSuccessDoesNotOverwrite(t *testing.T) {
	// First delivery applies, redelivery reports already-scored. The store
	// fake records write arguments; a second Process must not change them.
	store := &fakeStore{result: repository.ApplyApplied}
	p := newProcessor(store)

	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeAck {
		t.Fatalf("expected ack on first delivery, got %s", outcome)
	}
	firstScore, firstReason := store.lastScore, store.lastReason

	store.result = repository.ApplyAlreadyScored
	if outcome := p.Process(context.Background(), []byte(eventPayload)); outcome != OutcomeAck {
		t.Fatalf("expected ack on duplicate delivery, got %s", outcome)
	}

	if store.lastScore != firstScore || store.lastReason != firstReason {
		t.Errorf("duplicate delivery changed write arguments: %d %s", store.lastScore, store.lastReason)
	}
}
