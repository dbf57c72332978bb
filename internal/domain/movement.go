package domain

import "time"

// MovementType classifies a detected line movement.
type MovementType string

const (
	MovementSignificant MovementType = "significant"
	MovementReverse     MovementType = "reverse"
	MovementSteam       MovementType = "steam"
	MovementMinor       MovementType = "minor"
)

// MovementAlert is emitted when the implied-probability delta between two
// consecutive snapshots of the same (fight, sportsbook) key exceeds a
// configured threshold. Alerts are immutable once emitted.
type MovementAlert struct {
	ID            string       `json:"id"`
	FightID       string       `json:"fightId"`
	Sportsbook    string       `json:"sportsbook"`
	Movement      MovementType `json:"movement"`
	Previous      OddsSnapshot `json:"previous"`
	Current       OddsSnapshot `json:"current"`
	PercentChange float64      `json:"percentChange"` // signed, implied-probability delta of the primary leg
	DetectedAt    time.Time    `json:"detectedAt"`
}
