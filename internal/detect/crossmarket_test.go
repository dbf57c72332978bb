package detect

import (
	"testing"
	"time"

	"github.com/strikeodds/strikebot/internal/domain"
)

func methodSnap(book string, ko, sub, dec int) domain.OddsSnapshot {
	s := snap("f1", book, -200, 170)
	s.Method = domain.MethodOdds{KO: ko, Submission: sub, Decision: dec}
	return s
}

func TestMethodCombination(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		methodSnap("DraftKings", 250, 400, -120),
		methodSnap("FanDuel", 300, 450, -150),
	}

	opps := d.DetectCrossMarket("f1", snaps)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.Type != domain.OpportunityMoneylineMethod {
		t.Errorf("Type = %q, want moneyline_method", opp.Type)
	}
	if len(opp.Legs) != 3 {
		t.Fatalf("expected ko/submission/decision legs, got %d", len(opp.Legs))
	}
	// Best prices: KO +300 (FanDuel), submission +450 (FanDuel), decision -120 (DraftKings).
	want := map[string]int{"ko": 300, "submission": 450, "decision": -120}
	for _, l := range opp.Legs {
		if want[l.Selection] != l.Odds {
			t.Errorf("leg %s = %d, want %d", l.Selection, l.Odds, want[l.Selection])
		}
	}
}

func TestMethodCombinationMultiMarket(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		methodSnap("DraftKings", 320, 350, -150),
		methodSnap("FanDuel", 250, 500, -140),
		methodSnap("BetMGM", 280, 400, -110),
	}

	opps := d.DetectCrossMarket("f1", snaps)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if opps[0].Type != domain.OpportunityMultiMarket {
		t.Errorf("Type = %q, want multi_market when legs span 3 books", opps[0].Type)
	}
	if len(opps[0].Sportsbooks) != 3 {
		t.Errorf("Sportsbooks = %v, want 3 distinct", opps[0].Sportsbooks)
	}
}

func TestRoundMethodCombination(t *testing.T) {
	d := arbDetector()
	withRounds := methodSnap("DraftKings", 250, 400, -110)
	withRounds.Rounds = map[string]int{"round1": 500, "round2": 600, "round3": 700}
	snaps := []domain.OddsSnapshot{
		withRounds,
		// Second book prices method only, with an uncompetitive decision line
		// so the vigged method partition does not also fire.
		methodSnap("FanDuel", 200, 320, -160),
	}

	opps := d.DetectCrossMarket("f1", snaps)
	var found *domain.ArbitrageOpportunity
	for i := range opps {
		if opps[i].Type == domain.OpportunityRoundMethod {
			found = &opps[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a round_method opportunity, got %+v", opps)
	}
	if len(found.Legs) != 4 {
		t.Fatalf("expected round1-3 + decision legs, got %d", len(found.Legs))
	}
	var dec *domain.StakeLeg
	for i := range found.Legs {
		if found.Legs[i].Market == "method" {
			dec = &found.Legs[i]
		}
	}
	if dec == nil || dec.Selection != "decision" || dec.Odds != -110 {
		t.Errorf("decision leg = %+v, want -110 from DraftKings", dec)
	}
}

func TestCrossMarketNoMethodPricing(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		snap("f1", "DraftKings", -200, 170),
		snap("f1", "FanDuel", -190, 160),
	}
	if opps := d.DetectCrossMarket("f1", snaps); len(opps) != 0 {
		t.Fatalf("moneyline-only snapshots produced %d cross-market opportunities", len(opps))
	}
}

func TestCrossMarketExpiry(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		methodSnap("DraftKings", 250, 400, -120),
		methodSnap("FanDuel", 300, 450, -150),
	}
	opps := d.DetectCrossMarket("f1", snaps)
	if len(opps) == 0 {
		t.Fatal("expected opportunity")
	}
	if got := opps[0].ExpiresAt.Sub(opps[0].DetectedAt); got != 2*time.Minute {
		t.Errorf("TTL = %v, want 2m", got)
	}
}
