// Package detect implements the movement and arbitrage detectors that run on
// freshly ingested odds snapshots.
package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strikeodds/strikebot/internal/domain"
)

// MovementConfig holds the (tunable) classification thresholds.
type MovementConfig struct {
	SignificantPct float64
	ReversePct     float64
	SteamPct       float64
	SteamWindow    time.Duration
	SteamMinBooks  int
}

// bookMove records one qualifying move for steam detection.
type bookMove struct {
	sportsbook string
	direction  int // +1 or -1
	at         time.Time
}

// MovementDetector compares each new snapshot against the last known snapshot
// for the same (fight, sportsbook) key and emits an alert when the
// implied-probability delta crosses a threshold. State lives in memory only;
// one instance per process. Updates for different keys are independent; the
// map is guarded for concurrent callers.
type MovementDetector struct {
	cfg    MovementConfig
	logger *slog.Logger

	mu     sync.Mutex
	last   map[string]domain.OddsSnapshot // (fight|book) -> latest seen
	trend  map[string]float64             // fight -> cumulative signed change
	recent map[string][]bookMove          // fight -> qualifying moves, pruned to SteamWindow
}

// NewMovementDetector creates a detector with the given thresholds.
func NewMovementDetector(cfg MovementConfig, logger *slog.Logger) *MovementDetector {
	return &MovementDetector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "movement_detector")),
		last:   make(map[string]domain.OddsSnapshot),
		trend:  make(map[string]float64),
		recent: make(map[string][]bookMove),
	}
}

// Observe ingests one snapshot. The first snapshot for a key is a baseline and
// emits nothing. Later snapshots always replace the stored one, whether or not
// an alert fires.
func (d *MovementDetector) Observe(snap domain.OddsSnapshot) (*domain.MovementAlert, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("movement: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := snap.Key()
	prior, seen := d.last[key]
	d.last[key] = snap
	if !seen {
		return nil, nil
	}

	// The primary leg is whichever side moved more in implied probability.
	change1 := probChange(prior.Moneyline.Fighter1, snap.Moneyline.Fighter1)
	change2 := probChange(prior.Moneyline.Fighter2, snap.Moneyline.Fighter2)
	change := change1
	if abs(change2) > abs(change1) {
		change = change2
	}

	movement := d.classifyLocked(snap, change)

	// Track the fight's established trend and the steam window after
	// classification so the current move is judged against prior state.
	d.trend[snap.FightID] += change
	if abs(change) >= d.cfg.SteamPct {
		d.recordMoveLocked(snap, change)
	}

	if movement == "" {
		return nil, nil
	}

	alert := &domain.MovementAlert{
		ID:            uuid.NewString(),
		FightID:       snap.FightID,
		Sportsbook:    snap.Sportsbook,
		Movement:      movement,
		Previous:      prior,
		Current:       snap,
		PercentChange: change,
		DetectedAt:    time.Now().UTC(),
	}
	d.logger.Info("movement detected",
		slog.String("fight", snap.FightID),
		slog.String("sportsbook", snap.Sportsbook),
		slog.String("movement", string(movement)),
		slog.Float64("pct_change", change),
	)
	return alert, nil
}

// classifyLocked orders the thresholds so a larger |change| never downgrades:
// reverse (largest, against the trend) > significant > steam > none.
func (d *MovementDetector) classifyLocked(snap domain.OddsSnapshot, change float64) domain.MovementType {
	magnitude := abs(change)

	trend := d.trend[snap.FightID]
	if magnitude >= d.cfg.ReversePct && trend != 0 && oppositeSign(change, trend) {
		return domain.MovementReverse
	}
	if magnitude >= d.cfg.SignificantPct {
		return domain.MovementSignificant
	}
	if magnitude >= d.cfg.SteamPct && d.steamLocked(snap, change) {
		return domain.MovementSteam
	}
	return ""
}

// steamLocked reports whether enough other books moved the same direction
// within the steam window.
func (d *MovementDetector) steamLocked(snap domain.OddsSnapshot, change float64) bool {
	cutoff := time.Now().Add(-d.cfg.SteamWindow)
	direction := sign(change)

	moves := d.recent[snap.FightID]
	kept := moves[:0]
	books := map[string]bool{snap.Sportsbook: true}
	for _, m := range moves {
		if m.at.Before(cutoff) {
			continue
		}
		kept = append(kept, m)
		if m.direction == direction {
			books[m.sportsbook] = true
		}
	}
	d.recent[snap.FightID] = kept

	return len(books) >= d.cfg.SteamMinBooks
}

func (d *MovementDetector) recordMoveLocked(snap domain.OddsSnapshot, change float64) {
	d.recent[snap.FightID] = append(d.recent[snap.FightID], bookMove{
		sportsbook: snap.Sportsbook,
		direction:  sign(change),
		at:         time.Now(),
	})
}

// probChange is the signed percentage change in implied probability between
// two prices of the same leg.
func probChange(oldOdds, newOdds int) float64 {
	oldProb := domain.ImpliedProbability(oldOdds)
	newProb := domain.ImpliedProbability(newOdds)
	return (newProb - oldProb) / oldProb * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}

func oppositeSign(a, b float64) bool {
	return (a < 0) != (b < 0)
}
