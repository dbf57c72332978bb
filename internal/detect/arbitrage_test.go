package detect

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/strikeodds/strikebot/internal/domain"
)

func arbDetector() *ArbitrageDetector {
	return NewArbitrageDetector(ArbitrageConfig{
		TotalStake:        1000,
		MinProfitPct:      0.5,
		HighConfidencePct: 3.0,
		SharpBooks:        []string{"DraftKings", "FanDuel"},
		ThinBooks:         []string{"MicroBook"},
		OpportunityTTL:    2 * time.Minute,
	}, slog.Default())
}

func TestSingleMarketOpportunity(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		snap("f1", "DraftKings", -150, 200),
		snap("f1", "FanDuel", 180, -140),
	}

	opp := d.DetectSingleMarket("f1", snaps)
	if opp == nil {
		t.Fatal("expected an opportunity from +180/+200 best prices")
	}
	if opp.Type != domain.OpportunitySingleMarket {
		t.Errorf("Type = %q, want single_market", opp.Type)
	}
	if opp.ProfitMargin <= 0 {
		t.Errorf("ProfitMargin = %f, want positive", opp.ProfitMargin)
	}
	if len(opp.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(opp.Legs))
	}

	// Best price for fighter1 is +180 at FanDuel, fighter2 +200 at DraftKings.
	if opp.Legs[0].Odds != 180 || opp.Legs[0].Sportsbook != "FanDuel" {
		t.Errorf("leg1 = %+v, want +180 at FanDuel", opp.Legs[0])
	}
	if opp.Legs[1].Odds != 200 || opp.Legs[1].Sportsbook != "DraftKings" {
		t.Errorf("leg2 = %+v, want +200 at DraftKings", opp.Legs[1])
	}

	// Payout must be equalized across outcomes (within rounding cents).
	diff := opp.Legs[0].Payout.Sub(opp.Legs[1].Payout).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(0.10)) {
		t.Errorf("payouts not equalized: %s vs %s", opp.Legs[0].Payout, opp.Legs[1].Payout)
	}

	// Stakes sum to the notional total (within rounding cents).
	sum := opp.Legs[0].Stake.Add(opp.Legs[1].Stake)
	if sum.Sub(decimal.NewFromInt(1000)).Abs().GreaterThan(decimal.NewFromFloat(0.02)) {
		t.Errorf("stakes sum to %s, want ~1000", sum)
	}
}

func TestSingleMarketNoOpportunity(t *testing.T) {
	d := arbDetector()
	snaps := []domain.OddsSnapshot{
		snap("f1", "DraftKings", -200, 170),
		snap("f1", "FanDuel", -190, 160),
	}
	if opp := d.DetectSingleMarket("f1", snaps); opp != nil {
		t.Fatalf("vigged prices produced an opportunity: margin=%f", opp.ProfitMargin)
	}
}

func TestSingleMarketNeedsTwoBooks(t *testing.T) {
	d := arbDetector()
	if opp := d.DetectSingleMarket("f1", []domain.OddsSnapshot{snap("f1", "DraftKings", -150, 200)}); opp != nil {
		t.Fatal("single snapshot produced an opportunity")
	}
}

func TestConfidenceTiers(t *testing.T) {
	d := arbDetector()

	// Sharp books, wide margin: high.
	opp := d.DetectSingleMarket("f1", []domain.OddsSnapshot{
		snap("f1", "DraftKings", -150, 250),
		snap("f1", "FanDuel", 200, -140),
	})
	if opp == nil {
		t.Fatal("expected opportunity")
	}
	if opp.Confidence != domain.ConfidenceHigh {
		t.Errorf("Confidence = %q, want high (margin %.2f%% across sharp books)", opp.Confidence, opp.ProfitMargin)
	}

	// Thin book on one leg: low, regardless of margin.
	opp = d.DetectSingleMarket("f1", []domain.OddsSnapshot{
		snap("f1", "DraftKings", -150, 250),
		snap("f1", "MicroBook", 200, -140),
	})
	if opp == nil {
		t.Fatal("expected opportunity")
	}
	if opp.Confidence != domain.ConfidenceLow {
		t.Errorf("Confidence = %q, want low with a thin-volume leg", opp.Confidence)
	}
}

func TestExpiryIsAdvisory(t *testing.T) {
	d := arbDetector()
	before := time.Now()
	opp := d.DetectSingleMarket("f1", []domain.OddsSnapshot{
		snap("f1", "DraftKings", -150, 200),
		snap("f1", "FanDuel", 180, -140),
	})
	if opp == nil {
		t.Fatal("expected opportunity")
	}
	if !opp.ExpiresAt.After(before) {
		t.Error("ExpiresAt should be in the future")
	}
	if got := opp.ExpiresAt.Sub(opp.DetectedAt); got != 2*time.Minute {
		t.Errorf("TTL = %v, want 2m", got)
	}
}
