package detect

import (
	"sort"

	"github.com/strikeodds/strikebot/internal/domain"
)

// DetectCrossMarket enumerates the fixed set of cross-market leg combinations
// for one fight and returns every combination whose summed best implied
// probabilities fall below 1. With fight-level markets the exhaustive leg sets
// are the method partition (ko/submission/decision) and the rounds+decision
// partition; prop combinations require prop pricing, which the snapshot shape
// does not carry, so they enumerate to nothing.
func (d *ArbitrageDetector) DetectCrossMarket(fightID string, snaps []domain.OddsSnapshot) []domain.ArbitrageOpportunity {
	if len(snaps) < 2 {
		return nil
	}

	var opps []domain.ArbitrageOpportunity
	for _, combo := range []func(string, []domain.OddsSnapshot) *domain.ArbitrageOpportunity{
		d.methodCombination,
		d.roundMethodCombination,
		d.propMoneylineCombination,
	} {
		if opp := combo(fightID, snaps); opp != nil {
			opps = append(opps, *opp)
		}
	}
	return opps
}

// methodCombination covers the fight with the method-of-victory partition,
// each leg taken at its best price independently across books. When the legs
// span three or more books the opportunity is tagged multi_market, otherwise
// moneyline_method (the method legs are laid against the moneyline books).
func (d *ArbitrageDetector) methodCombination(fightID string, snaps []domain.OddsSnapshot) *domain.ArbitrageOpportunity {
	withMethod := filterSnapshots(snaps, domain.OddsSnapshot.HasMethod)
	if len(withMethod) < 2 {
		return nil
	}

	ko, _ := bestLeg(withMethod, "method", "ko", func(s domain.OddsSnapshot) (int, bool) {
		return s.Method.KO, true
	})
	sub, _ := bestLeg(withMethod, "method", "submission", func(s domain.OddsSnapshot) (int, bool) {
		return s.Method.Submission, true
	})
	dec, _ := bestLeg(withMethod, "method", "decision", func(s domain.OddsSnapshot) (int, bool) {
		return s.Method.Decision, true
	})

	legs := []leg{ko, sub, dec}
	typ := domain.OpportunityMoneylineMethod
	if distinctBooks(legs) >= 3 {
		typ = domain.OpportunityMultiMarket
	}
	return d.build(fightID, typ, legs)
}

// roundMethodCombination covers the fight with one leg per scheduled round
// (finish in that round) plus the method market's decision leg (goes the
// distance). Only rounds priced by every contributing book are comparable;
// the round set is taken from the union of priced rounds.
func (d *ArbitrageDetector) roundMethodCombination(fightID string, snaps []domain.OddsSnapshot) *domain.ArbitrageOpportunity {
	withRounds := filterSnapshots(snaps, domain.OddsSnapshot.HasRounds)
	withMethod := filterSnapshots(snaps, domain.OddsSnapshot.HasMethod)
	if len(withRounds) == 0 || len(withMethod) == 0 {
		return nil
	}

	rounds := map[string]bool{}
	for _, s := range withRounds {
		for r := range s.Rounds {
			rounds[r] = true
		}
	}
	if len(rounds) == 0 {
		return nil
	}
	names := make([]string, 0, len(rounds))
	for r := range rounds {
		names = append(names, r)
	}
	sort.Strings(names)

	legs := make([]leg, 0, len(names)+1)
	for _, r := range names {
		round := r
		l, ok := bestLeg(withRounds, "round", round, func(s domain.OddsSnapshot) (int, bool) {
			odds, priced := s.Rounds[round]
			return odds, priced && domain.ValidOddsValue(odds)
		})
		if !ok {
			return nil // a scheduled round nobody prices breaks exhaustiveness
		}
		legs = append(legs, l)
	}

	dec, ok := bestLeg(withMethod, "method", "decision", func(s domain.OddsSnapshot) (int, bool) {
		return s.Method.Decision, true
	})
	if !ok {
		return nil
	}
	legs = append(legs, dec)

	return d.build(fightID, domain.OpportunityRoundMethod, legs)
}

// propMoneylineCombination pairs prop legs with moneyline cover. The canonical
// snapshot shape carries no prop pricing, so the combination is enumerated for
// completeness and yields nothing until a source supplies props.
func (d *ArbitrageDetector) propMoneylineCombination(string, []domain.OddsSnapshot) *domain.ArbitrageOpportunity {
	return nil
}

func filterSnapshots(snaps []domain.OddsSnapshot, keep func(domain.OddsSnapshot) bool) []domain.OddsSnapshot {
	out := make([]domain.OddsSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func distinctBooks(legs []leg) int {
	seen := map[string]bool{}
	for _, l := range legs {
		seen[l.sportsbook] = true
	}
	return len(seen)
}
