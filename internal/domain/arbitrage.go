package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityType identifies the leg combination of an arbitrage opportunity.
type OpportunityType string

const (
	OpportunitySingleMarket    OpportunityType = "single_market"
	OpportunityMoneylineMethod OpportunityType = "moneyline_method"
	OpportunityRoundMethod     OpportunityType = "round_method"
	OpportunityPropMoneyline   OpportunityType = "prop_moneyline"
	OpportunityMultiMarket     OpportunityType = "multi_market"
)

// Confidence is a heuristic tier for how actionable an opportunity is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// StakeLeg is one leg of an arbitrage opportunity: a price at a book together
// with the stake allocated to it so that payout is equalized across outcomes.
type StakeLeg struct {
	Sportsbook  string          `json:"sportsbook"`
	Market      string          `json:"market"`    // "moneyline", "method", "round", "prop"
	Selection   string          `json:"selection"` // e.g. "fighter1", "ko", "round2"
	Odds        int             `json:"odds"`
	ImpliedProb float64         `json:"impliedProb"`
	Stake       decimal.Decimal `json:"stake"`
	Payout      decimal.Decimal `json:"payout"`
}

// ArbitrageOpportunity is a combination of prices across legs whose summed
// implied probability is below 1. Opportunities are advisory and naturally
// time-limited: the expiry is a hint, not enforced by a background sweep.
type ArbitrageOpportunity struct {
	ID           string               `json:"id"`
	FightID      string               `json:"fightId"`
	Type         OpportunityType      `json:"type"`
	Sportsbooks  []string             `json:"sportsbooks"`
	ProfitMargin float64              `json:"profitMargin"` // percent
	Legs         []StakeLeg           `json:"legs"`
	TotalStake   decimal.Decimal      `json:"totalStake"`
	Confidence   Confidence           `json:"confidence"`
	DetectedAt   time.Time            `json:"detectedAt"`
	ExpiresAt    time.Time            `json:"expiresAt"`
}
