package analysis

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/strikeodds/strikebot/internal/detect"
	"github.com/strikeodds/strikebot/internal/domain"
)

type memCache struct {
	snaps    map[string][]domain.OddsSnapshot
	failures map[string]error
	listErr  error
}

func (c *memCache) SetLatest(ctx context.Context, snap domain.OddsSnapshot) error { return nil }

func (c *memCache) GetLatest(ctx context.Context, fightID, sportsbook string) (domain.OddsSnapshot, error) {
	return domain.OddsSnapshot{}, domain.ErrNotFound
}

func (c *memCache) ListByFight(ctx context.Context, fightID string) ([]domain.OddsSnapshot, error) {
	if err := c.failures[fightID]; err != nil {
		return nil, err
	}
	return c.snaps[fightID], nil
}

func (c *memCache) ListFights(ctx context.Context) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	fights := make([]string, 0, len(c.snaps))
	for f := range c.snaps {
		fights = append(fights, f)
	}
	for f := range c.failures {
		fights = append(fights, f)
	}
	return fights, nil
}

func snap(fight, book string, f1, f2 int) domain.OddsSnapshot {
	return domain.OddsSnapshot{
		FightID:    fight,
		Sportsbook: book,
		Timestamp:  time.Now(),
		Moneyline:  domain.Moneyline{Fighter1: f1, Fighter2: f2},
	}
}

func methodSnap(fight, book string, f1, f2, ko, sub, dec int) domain.OddsSnapshot {
	s := snap(fight, book, f1, f2)
	s.Method = domain.MethodOdds{KO: ko, Submission: sub, Decision: dec}
	return s
}

func testAggregator(cache domain.SnapshotCache) *Aggregator {
	arb := detect.NewArbitrageDetector(detect.ArbitrageConfig{
		TotalStake: 1000, MinProfitPct: 0.5, HighConfidencePct: 3,
		OpportunityTTL: 2 * time.Minute,
	}, slog.Default())
	return NewAggregator(cache, arb, slog.Default())
}

func TestAnalyzeCoverageAndAvailability(t *testing.T) {
	cache := &memCache{snaps: map[string][]domain.OddsSnapshot{
		"f1": {
			methodSnap("f1", "DraftKings", -200, 170, 250, 400, -120),
			snap("f1", "FanDuel", -190, 160),
		},
		"f2": {
			snap("f2", "DraftKings", -130, 110),
		},
	}}

	report, err := testAggregator(cache).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.TotalFights != 2 {
		t.Errorf("TotalFights = %d, want 2", report.TotalFights)
	}
	if report.TotalSportsbooks != 2 {
		t.Errorf("TotalSportsbooks = %d, want 2", report.TotalSportsbooks)
	}

	ml := report.Markets[domain.MarketMoneyline]
	if ml.Availability != 100 {
		t.Errorf("moneyline availability = %v, want 100", ml.Availability)
	}
	if ml.FightsCovered != 2 || ml.BooksCovered != 2 {
		t.Errorf("moneyline coverage = %d fights / %d books", ml.FightsCovered, ml.BooksCovered)
	}

	method := report.Markets[domain.MarketMethod]
	if method.Availability != 50 {
		t.Errorf("method availability = %v, want 50", method.Availability)
	}

	prop := report.Markets[domain.MarketProp]
	if prop.Availability != 0 || prop.Efficiency != 1.0 {
		t.Errorf("prop analysis = %+v, want empty with efficiency 1", prop)
	}
}

func TestAnalyzeEfficiencyBounds(t *testing.T) {
	cache := &memCache{snaps: map[string][]domain.OddsSnapshot{
		"f1": {snap("f1", "DraftKings", -200, 170), snap("f1", "FanDuel", -190, 160)},
	}}

	report, err := testAggregator(cache).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.EfficiencyScore < 0 || report.EfficiencyScore > 1 {
		t.Errorf("EfficiencyScore = %v, outside [0,1]", report.EfficiencyScore)
	}
	// Both books are vigged; no edge means full efficiency.
	if ml := report.Markets[domain.MarketMoneyline]; ml.Efficiency != 1.0 {
		t.Errorf("moneyline efficiency = %v, want 1.0 for vigged books", ml.Efficiency)
	}
}

func TestAnalyzeSurfacesOpportunities(t *testing.T) {
	cache := &memCache{snaps: map[string][]domain.OddsSnapshot{
		"f1": {snap("f1", "DraftKings", -150, 200), snap("f1", "FanDuel", 180, -140)},
	}}

	report, err := testAggregator(cache).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	ml := report.Markets[domain.MarketMoneyline]
	if len(ml.Opportunities) != 1 {
		t.Fatalf("moneyline opportunities = %d, want 1", len(ml.Opportunities))
	}
	if ml.Efficiency >= 1.0 {
		t.Errorf("moneyline efficiency = %v, want < 1 when an edge exists", ml.Efficiency)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected at least one recommendation")
	}
}

func TestAnalyzeSkipsFailingFight(t *testing.T) {
	cache := &memCache{
		snaps: map[string][]domain.OddsSnapshot{
			"f1": {snap("f1", "DraftKings", -200, 170)},
		},
		failures: map[string]error{"f2": errors.New("redis timeout")},
	}

	report, err := testAggregator(cache).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze must tolerate per-fight failures: %v", err)
	}
	if report.TotalFights != 1 {
		t.Errorf("TotalFights = %d, want 1 (failing fight skipped)", report.TotalFights)
	}
}

func TestAnalyzeEmptyCoverage(t *testing.T) {
	report, err := testAggregator(&memCache{snaps: map[string][]domain.OddsSnapshot{}}).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.TotalFights != 0 {
		t.Errorf("TotalFights = %d, want 0", report.TotalFights)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected a no-coverage recommendation")
	}
	if report.EfficiencyScore != 1.0 {
		t.Errorf("EfficiencyScore = %v, want 1.0 with no weight", report.EfficiencyScore)
	}
}
