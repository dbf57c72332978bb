package detect

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/strikeodds/strikebot/internal/domain"
)

// ArbitrageConfig holds detection parameters. Thresholds are heuristic
// defaults, configurable rather than load-bearing.
type ArbitrageConfig struct {
	TotalStake        float64
	MinProfitPct      float64
	HighConfidencePct float64
	SharpBooks        []string
	ThinBooks         []string
	OpportunityTTL    time.Duration
}

// leg is a candidate price before stake allocation.
type leg struct {
	sportsbook string
	market     string
	selection  string
	odds       int
}

// ArbitrageDetector finds cross-sportsbook and cross-market combinations whose
// summed best implied probabilities fall below 1. Opportunities are advisory;
// the detector keeps no state and callers re-derive from the latest snapshot
// set.
type ArbitrageDetector struct {
	cfg    ArbitrageConfig
	sharp  map[string]bool
	thin   map[string]bool
	logger *slog.Logger
}

// NewArbitrageDetector creates a detector.
func NewArbitrageDetector(cfg ArbitrageConfig, logger *slog.Logger) *ArbitrageDetector {
	sharp := make(map[string]bool, len(cfg.SharpBooks))
	for _, b := range cfg.SharpBooks {
		sharp[b] = true
	}
	thin := make(map[string]bool, len(cfg.ThinBooks))
	for _, b := range cfg.ThinBooks {
		thin[b] = true
	}
	return &ArbitrageDetector{
		cfg:    cfg,
		sharp:  sharp,
		thin:   thin,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// DetectSingleMarket scans the current snapshots for one fight and returns a
// moneyline opportunity if the best price for each side, taken independently
// across books, sums to an implied probability below 1.
func (d *ArbitrageDetector) DetectSingleMarket(fightID string, snaps []domain.OddsSnapshot) *domain.ArbitrageOpportunity {
	if len(snaps) < 2 {
		return nil
	}

	best1, ok1 := bestLeg(snaps, "moneyline", "fighter1", func(s domain.OddsSnapshot) (int, bool) {
		return s.Moneyline.Fighter1, domain.ValidOddsValue(s.Moneyline.Fighter1)
	})
	best2, ok2 := bestLeg(snaps, "moneyline", "fighter2", func(s domain.OddsSnapshot) (int, bool) {
		return s.Moneyline.Fighter2, domain.ValidOddsValue(s.Moneyline.Fighter2)
	})
	if !ok1 || !ok2 {
		return nil
	}

	return d.build(fightID, domain.OpportunitySingleMarket, []leg{best1, best2})
}

// bestLeg finds the numerically highest (most bettor-favorable) price for one
// selection across the snapshot set.
func bestLeg(snaps []domain.OddsSnapshot, market, selection string, pick func(domain.OddsSnapshot) (int, bool)) (leg, bool) {
	var best leg
	found := false
	for _, s := range snaps {
		odds, ok := pick(s)
		if !ok {
			continue
		}
		if !found || odds > best.odds {
			best = leg{sportsbook: s.Sportsbook, market: market, selection: selection, odds: odds}
			found = true
		}
	}
	return best, found
}

// build turns a mutually-exclusive-and-exhaustive leg set into an opportunity
// when its summed implied probability is below 1, allocating the notional
// total stake so the payout is equalized across outcomes.
func (d *ArbitrageDetector) build(fightID string, typ domain.OpportunityType, legs []leg) *domain.ArbitrageOpportunity {
	sum := 0.0
	for _, l := range legs {
		sum += domain.ImpliedProbability(l.odds)
	}
	if sum >= 1 {
		return nil
	}

	margin := (1 - sum) * 100
	if margin < d.cfg.MinProfitPct {
		return nil
	}

	total := decimal.NewFromFloat(d.cfg.TotalStake)
	sumDec := decimal.NewFromFloat(sum)

	stakes := make([]domain.StakeLeg, 0, len(legs))
	books := make([]string, 0, len(legs))
	seenBooks := map[string]bool{}
	for _, l := range legs {
		prob := domain.ImpliedProbability(l.odds)
		// Proportional allocation: stake_i = total * p_i / sum(p) makes
		// stake_i * decimalOdds_i identical for every leg.
		stake := total.Mul(decimal.NewFromFloat(prob)).Div(sumDec).Round(2)
		payout := stake.Mul(decimal.NewFromFloat(domain.DecimalOdds(l.odds))).Round(2)
		stakes = append(stakes, domain.StakeLeg{
			Sportsbook:  l.sportsbook,
			Market:      l.market,
			Selection:   l.selection,
			Odds:        l.odds,
			ImpliedProb: prob,
			Stake:       stake,
			Payout:      payout,
		})
		if !seenBooks[l.sportsbook] {
			seenBooks[l.sportsbook] = true
			books = append(books, l.sportsbook)
		}
	}

	now := time.Now().UTC()
	opp := &domain.ArbitrageOpportunity{
		ID:           uuid.NewString(),
		FightID:      fightID,
		Type:         typ,
		Sportsbooks:  books,
		ProfitMargin: margin,
		Legs:         stakes,
		TotalStake:   total,
		Confidence:   d.confidence(margin, stakes),
		DetectedAt:   now,
		ExpiresAt:    now.Add(d.cfg.OpportunityTTL),
	}
	d.logger.Info("arbitrage opportunity",
		slog.String("fight", fightID),
		slog.String("type", string(typ)),
		slog.Float64("margin_pct", margin),
		slog.Int("legs", len(stakes)),
	)
	return opp
}

// confidence grades an opportunity: high for generous margins across sharp
// books, low when any leg sits at a thin-volume book, medium otherwise.
func (d *ArbitrageDetector) confidence(margin float64, legs []domain.StakeLeg) domain.Confidence {
	allSharp := true
	for _, l := range legs {
		if d.thin[l.Sportsbook] {
			return domain.ConfidenceLow
		}
		if !d.sharp[l.Sportsbook] {
			allSharp = false
		}
	}
	if margin > d.cfg.HighConfidencePct && allSharp {
		return domain.ConfidenceHigh
	}
	return domain.ConfidenceMedium
}
