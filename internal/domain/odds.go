// Package domain defines the canonical data model for the odds ingestion and
// arbitrage detection pipeline, together with the store, cache, and messaging
// interfaces implemented by the infrastructure packages.
package domain

import (
	"fmt"
	"math"
	"time"
)

// minOddsMagnitude is the smallest realistic American odds magnitude. Books do
// not quote prices between -100 and +100 exclusive.
const minOddsMagnitude = 100

// Moneyline is a two-way moneyline pair in American odds convention. A
// negative value denotes the favorite.
type Moneyline struct {
	Fighter1 int `json:"fighter1"`
	Fighter2 int `json:"fighter2"`
}

// MethodOdds prices the method-of-victory market.
type MethodOdds struct {
	KO         int `json:"ko"`
	Submission int `json:"submission"`
	Decision   int `json:"decision"`
}

// OddsSnapshot is the canonical unit of ingested data: one sportsbook's view
// of one fight at one point in time. Snapshots are immutable once created;
// later snapshots for the same (fight, sportsbook) key supersede earlier ones.
type OddsSnapshot struct {
	FightID    string         `json:"fightId"`
	Sportsbook string         `json:"sportsbook"`
	Timestamp  time.Time      `json:"timestamp"`
	Moneyline  Moneyline      `json:"moneyline"`
	Method     MethodOdds     `json:"method"`
	Rounds     map[string]int `json:"rounds,omitempty"` // "round1".."round5"
}

// Key returns the (fight, sportsbook) identity used for supersession and
// movement tracking.
func (s OddsSnapshot) Key() string {
	return s.FightID + "|" + s.Sportsbook
}

// ImpliedProbability converts an American odds value to the probability it
// encodes, in (0, 1). Negative odds are favorites:
//
//	+150 -> 100/(150+100) = 0.400
//	-200 -> 200/(200+100) = 0.667
func ImpliedProbability(odds int) float64 {
	if odds > 0 {
		return 100.0 / (float64(odds) + 100.0)
	}
	abs := math.Abs(float64(odds))
	return abs / (abs + 100.0)
}

// DecimalOdds converts an American odds value to the bettor-facing decimal
// multiplier (stake included in the payout).
func DecimalOdds(odds int) float64 {
	if odds > 0 {
		return 1.0 + float64(odds)/100.0
	}
	return 1.0 + 100.0/math.Abs(float64(odds))
}

// ValidOddsValue reports whether an American odds value lies in the realistic
// band (|odds| >= 100).
func ValidOddsValue(odds int) bool {
	return odds <= -minOddsMagnitude || odds >= minOddsMagnitude
}

// Validate checks the snapshot's structural invariants: identifiers present,
// odds magnitudes realistic, and at most one positive moneyline leg when both
// fighters are priced.
func (s OddsSnapshot) Validate() error {
	if s.FightID == "" {
		return fmt.Errorf("%w: empty fight id", ErrInvalidSnapshot)
	}
	if s.Sportsbook == "" {
		return fmt.Errorf("%w: empty sportsbook", ErrInvalidSnapshot)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidSnapshot)
	}
	if !ValidOddsValue(s.Moneyline.Fighter1) || !ValidOddsValue(s.Moneyline.Fighter2) {
		return fmt.Errorf("%w: moneyline %d/%d outside realistic band",
			ErrInvalidSnapshot, s.Moneyline.Fighter1, s.Moneyline.Fighter2)
	}
	if s.Moneyline.Fighter1 > 0 && s.Moneyline.Fighter2 > 0 {
		return fmt.Errorf("%w: both moneyline legs positive (%d/%d)",
			ErrInvalidSnapshot, s.Moneyline.Fighter1, s.Moneyline.Fighter2)
	}
	return nil
}

// Overround returns the book's summed implied moneyline probability. Values
// above 1 are the vig; below 1 would be a single-book arbitrage.
func (s OddsSnapshot) Overround() float64 {
	return ImpliedProbability(s.Moneyline.Fighter1) + ImpliedProbability(s.Moneyline.Fighter2)
}

// HasMethod reports whether the snapshot carries a priced method market.
func (s OddsSnapshot) HasMethod() bool {
	return ValidOddsValue(s.Method.KO) && ValidOddsValue(s.Method.Submission) && ValidOddsValue(s.Method.Decision)
}

// HasRounds reports whether the snapshot carries any priced round market.
func (s OddsSnapshot) HasRounds() bool {
	return len(s.Rounds) > 0
}
