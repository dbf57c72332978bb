// Package analysis builds the consolidated market report: coverage and
// availability per market type, efficiency signals, cross-market arbitrage,
// and operator-facing recommendations.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/strikeodds/strikebot/internal/detect"
	"github.com/strikeodds/strikebot/internal/domain"
)

// Aggregator turns the latest snapshot set plus the cycle's ingestion results
// into one MarketReport. A fight that cannot be loaded or analyzed contributes
// nothing; it never aborts the report.
type Aggregator struct {
	cache  domain.SnapshotCache
	arb    *detect.ArbitrageDetector
	logger *slog.Logger
}

// NewAggregator creates an Aggregator reading the hot snapshot view.
func NewAggregator(cache domain.SnapshotCache, arb *detect.ArbitrageDetector, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		cache:  cache,
		arb:    arb,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

// Analyze produces the report for the current snapshot set. The error is
// non-nil only when the snapshot view itself is unreachable; per-fight
// failures are logged and skipped.
func (a *Aggregator) Analyze(ctx context.Context, ingestion []domain.IngestionResult) (domain.MarketReport, error) {
	report := domain.MarketReport{
		GeneratedAt: time.Now().UTC(),
		Ingestion:   ingestion,
		Markets:     make(map[domain.MarketType]domain.MarketAnalysis),
	}

	fights, err := a.cache.ListFights(ctx)
	if err != nil {
		return report, fmt.Errorf("listing fights: %w", err)
	}
	sort.Strings(fights)

	byFight := make(map[string][]domain.OddsSnapshot, len(fights))
	books := make(map[string]bool)
	for _, fightID := range fights {
		snaps, err := a.cache.ListByFight(ctx, fightID)
		if err != nil {
			a.logger.Warn("fight snapshots unavailable",
				slog.String("fight_id", fightID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		byFight[fightID] = snaps
		for _, s := range snaps {
			books[s.Sportsbook] = true
		}
	}

	report.TotalFights = len(byFight)
	report.TotalSportsbooks = len(books)

	for _, market := range domain.AllMarketTypes {
		report.Markets[market] = a.analyzeMarket(market, byFight)
	}
	report.CrossMarket = a.crossMarket(byFight)
	report.EfficiencyScore = weightedEfficiency(report.Markets)
	report.Recommendations = recommend(report)

	return report, nil
}

// analyzeMarket measures one market's coverage and efficiency across fights.
// Efficiency per fight is the best-price implied-probability sum clamped to
// [0,1]: a vigged market sits at 1.0, anything lower is an exploitable edge.
func (a *Aggregator) analyzeMarket(market domain.MarketType, byFight map[string][]domain.OddsSnapshot) domain.MarketAnalysis {
	analysis := domain.MarketAnalysis{Market: market, Efficiency: 1.0}

	books := make(map[string]bool)
	var effSum float64
	var effN int

	for fightID, snaps := range byFight {
		priced := pricedSnapshots(market, snaps)
		if len(priced) == 0 {
			continue
		}
		analysis.FightsCovered++
		for _, s := range priced {
			books[s.Sportsbook] = true
		}

		if sum, ok := bestImpliedSum(market, priced); ok {
			eff := sum
			if eff > 1 {
				eff = 1
			}
			effSum += eff
			effN++
		}

		if market == domain.MarketMoneyline && a.arb != nil {
			if opp := a.arb.DetectSingleMarket(fightID, priced); opp != nil {
				analysis.Opportunities = append(analysis.Opportunities, *opp)
			}
		}
	}

	analysis.BooksCovered = len(books)
	if total := len(byFight); total > 0 {
		analysis.Availability = float64(analysis.FightsCovered) / float64(total) * 100
	}
	if effN > 0 {
		analysis.Efficiency = effSum / float64(effN)
	}
	return analysis
}

// crossMarket re-derives cross-market opportunities from the latest snapshots.
func (a *Aggregator) crossMarket(byFight map[string][]domain.OddsSnapshot) []domain.ArbitrageOpportunity {
	if a.arb == nil {
		return nil
	}
	var opps []domain.ArbitrageOpportunity
	for fightID, snaps := range byFight {
		opps = append(opps, a.arb.DetectCrossMarket(fightID, snaps)...)
	}
	sort.Slice(opps, func(i, j int) bool { return opps[i].ProfitMargin > opps[j].ProfitMargin })
	return opps
}

// pricedSnapshots filters a fight's snapshots to those pricing the market.
func pricedSnapshots(market domain.MarketType, snaps []domain.OddsSnapshot) []domain.OddsSnapshot {
	var out []domain.OddsSnapshot
	for _, s := range snaps {
		switch market {
		case domain.MarketMoneyline:
			if domain.ValidOddsValue(s.Moneyline.Fighter1) && domain.ValidOddsValue(s.Moneyline.Fighter2) {
				out = append(out, s)
			}
		case domain.MarketMethod:
			if s.HasMethod() {
				out = append(out, s)
			}
		case domain.MarketRound:
			if s.HasRounds() {
				out = append(out, s)
			}
		case domain.MarketProp:
			// Prop markets are not in the snapshot shape yet.
		}
	}
	return out
}

// bestImpliedSum computes the summed best implied probabilities for the
// market's leg set across the given snapshots.
func bestImpliedSum(market domain.MarketType, snaps []domain.OddsSnapshot) (float64, bool) {
	switch market {
	case domain.MarketMoneyline:
		f1, ok1 := bestOdds(snaps, func(s domain.OddsSnapshot) int { return s.Moneyline.Fighter1 })
		f2, ok2 := bestOdds(snaps, func(s domain.OddsSnapshot) int { return s.Moneyline.Fighter2 })
		if !ok1 || !ok2 {
			return 0, false
		}
		return domain.ImpliedProbability(f1) + domain.ImpliedProbability(f2), true
	case domain.MarketMethod:
		ko, ok1 := bestOdds(snaps, func(s domain.OddsSnapshot) int { return s.Method.KO })
		sub, ok2 := bestOdds(snaps, func(s domain.OddsSnapshot) int { return s.Method.Submission })
		dec, ok3 := bestOdds(snaps, func(s domain.OddsSnapshot) int { return s.Method.Decision })
		if !ok1 || !ok2 || !ok3 {
			return 0, false
		}
		return domain.ImpliedProbability(ko) + domain.ImpliedProbability(sub) + domain.ImpliedProbability(dec), true
	default:
		// Round and prop leg sets are not exhaustive on their own; no
		// standalone efficiency signal.
		return 0, false
	}
}

// bestOdds returns the numerically highest valid price for one leg.
func bestOdds(snaps []domain.OddsSnapshot, pick func(domain.OddsSnapshot) int) (int, bool) {
	best, found := 0, false
	for _, s := range snaps {
		odds := pick(s)
		if !domain.ValidOddsValue(odds) {
			continue
		}
		if !found || odds > best {
			best, found = odds, true
		}
	}
	return best, found
}

// weightedEfficiency averages per-market efficiency, weighting each market by
// its availability so thin markets cannot dominate the score.
func weightedEfficiency(markets map[domain.MarketType]domain.MarketAnalysis) float64 {
	var weighted, weight float64
	for _, m := range markets {
		w := m.Availability / 100
		weighted += m.Efficiency * w
		weight += w
	}
	if weight == 0 {
		return 1.0
	}
	return weighted / weight
}

// recommend derives the operator-facing suggestions from the finished report.
func recommend(report domain.MarketReport) []string {
	var recs []string

	if report.TotalFights == 0 {
		return []string{"no snapshot coverage yet: check source connectivity"}
	}
	if report.TotalSportsbooks < 3 {
		recs = append(recs, fmt.Sprintf("only %d sportsbooks covered: arbitrage detection needs broader book coverage", report.TotalSportsbooks))
	}

	moneyline := report.Markets[domain.MarketMoneyline]
	method := report.Markets[domain.MarketMethod]
	if method.Availability < 50 && moneyline.Availability >= method.Availability {
		recs = append(recs, "method markets have limited availability: focus on moneyline")
	}
	if n := len(moneyline.Opportunities); n > 0 {
		recs = append(recs, fmt.Sprintf("%d moneyline arbitrage opportunities open: act before prices move", n))
	}
	if n := len(report.CrossMarket); n > 0 {
		recs = append(recs, fmt.Sprintf("%d cross-market combinations priced below fair: verify leg exclusivity before staking", n))
	}
	if len(recs) == 0 {
		recs = append(recs, "markets are efficient: no actionable edge in the current snapshot set")
	}
	return recs
}
