// Package scoring computes a rule-based fraud score for a transaction event.
// The rules are simple and explainable on purpose; the interesting guarantees
// live in the pipeline around them.
package scoring

import (
	"strings"

	"github.com/CarterFitzgerald/distributed-fraud-detection-system/internal/models"
	"github.com/shopspring/decimal"
)

// Reason codes attached to a score, in evaluation order.
const (
	ReasonHighAmount      = "HIGH_AMOUNT"
	ReasonMediumAmount    = "MEDIUM_AMOUNT"
	ReasonElevatedAmount  = "ELEVATED_AMOUNT"
	ReasonHighRiskCountry = "HIGH_RISK_COUNTRY"
	ReasonOffHours        = "OFF_HOURS"
	ReasonTestIdentifiers = "TEST_IDENTIFIERS"
	ReasonLowRisk         = "LOW_RISK"
)

// ReasonDelimiter joins reason codes into the single string persisted on the
// transaction row.
const ReasonDelimiter = ";"

const maxScore = 100

// Amount tiers are mutually exclusive, evaluated high to low.
var (
	highAmountThreshold     = decimal.NewFromInt(5000)
	mediumAmountThreshold   = decimal.NewFromInt(1000)
	elevatedAmountThreshold = decimal.NewFromInt(200)
)

// Engine scores transaction events. It is pure and never fails: every event
// maps to a score in [0,100] and a non-empty reason string.
type Engine struct {
	highRiskCountries map[string]struct{}
}

// NewEngine creates an Engine with the given high-risk country codes.
// Matching is case-insensitive.
func NewEngine(highRiskCountries []string) *Engine {
	set := make(map[string]struct{}, len(highRiskCountries))
	for _, c := range highRiskCountries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return &Engine{highRiskCountries: set}
}

// Score accumulates points across the rules and clamps the total to [0,100].
func (e *Engine) Score(evt *models.TransactionCreatedEvent) (int, string) {
	points := 0
	var reasons []string

	switch {
	case evt.Amount.GreaterThan(highAmountThreshold):
		points += 40
		reasons = append(reasons, ReasonHighAmount)
	case evt.Amount.GreaterThan(mediumAmountThreshold):
		points += 25
		reasons = append(reasons, ReasonMediumAmount)
	case evt.Amount.GreaterThan(elevatedAmountThreshold):
		points += 10
		reasons = append(reasons, ReasonElevatedAmount)
	}

	if _, ok := e.highRiskCountries[strings.ToUpper(evt.Country)]; ok {
		points += 25
		reasons = append(reasons, ReasonHighRiskCountry)
	}

	if hour := evt.Timestamp.UTC().Hour(); hour <= 5 {
		points += 10
		reasons = append(reasons, ReasonOffHours)
	}

	if containsFold(evt.MerchantID, "test") || containsFold(evt.CustomerID, "test") {
		points += 10
		reasons = append(reasons, ReasonTestIdentifiers)
	}

	score := points
	if score > maxScore {
		score = maxScore
	}

	if len(reasons) == 0 {
		return score, ReasonLowRisk
	}
	return score, strings.Join(reasons, ReasonDelimiter)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
