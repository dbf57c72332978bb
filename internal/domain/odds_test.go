package domain

import (
	"math"
	"testing"
	"time"
)

func TestImpliedProbability(t *testing.T) {
	if p := ImpliedProbability(-200); math.Abs(p-0.6667) > 0.001 {
		t.Errorf("ImpliedProbability(-200) = %f, want ~0.667", p)
	}
	if p := ImpliedProbability(150); math.Abs(p-0.4) > 0.0001 {
		t.Errorf("ImpliedProbability(+150) = %f, want 0.400", p)
	}
	if p := ImpliedProbability(100); math.Abs(p-0.5) > 0.0001 {
		t.Errorf("ImpliedProbability(+100) = %f, want 0.500", p)
	}
}

func TestImpliedProbabilityBounds(t *testing.T) {
	for _, o := range []int{-10000, -500, -200, -110, -100, 100, 110, 200, 500, 10000} {
		p := ImpliedProbability(o)
		if p <= 0 || p >= 1 {
			t.Errorf("ImpliedProbability(%d) = %f, want in (0,1)", o, p)
		}
	}
}

func TestDecimalOdds(t *testing.T) {
	if d := DecimalOdds(150); math.Abs(d-2.5) > 0.0001 {
		t.Errorf("DecimalOdds(+150) = %f, want 2.5", d)
	}
	if d := DecimalOdds(-200); math.Abs(d-1.5) > 0.0001 {
		t.Errorf("DecimalOdds(-200) = %f, want 1.5", d)
	}
}

func validSnapshot() OddsSnapshot {
	return OddsSnapshot{
		FightID:    "ufc-300-main",
		Sportsbook: "DraftKings",
		Timestamp:  time.Now(),
		Moneyline:  Moneyline{Fighter1: -200, Fighter2: 170},
	}
}

func TestSnapshotValidate(t *testing.T) {
	if err := validSnapshot().Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	s := validSnapshot()
	s.FightID = ""
	if err := s.Validate(); err == nil {
		t.Error("empty fight id accepted")
	}

	s = validSnapshot()
	s.Moneyline = Moneyline{Fighter1: 150, Fighter2: 130}
	if err := s.Validate(); err == nil {
		t.Error("both positive moneyline legs accepted")
	}

	s = validSnapshot()
	s.Moneyline.Fighter1 = -50
	if err := s.Validate(); err == nil {
		t.Error("odds magnitude below 100 accepted")
	}
}

func TestOverround(t *testing.T) {
	s := validSnapshot()
	// -200/+170 sums to 0.667 + 0.370 = 1.037, a typical vig.
	if ov := s.Overround(); ov <= 1.0 || ov >= 1.1 {
		t.Errorf("Overround() = %f, want slightly above 1", ov)
	}
}
