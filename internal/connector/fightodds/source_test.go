package fightodds

import (
	"testing"
	"time"

	"github.com/strikeodds/strikebot/internal/config"
)

func testSource(authType, credential string) *Source {
	return New(config.SourceConfig{
		ID:       "fightodds",
		BaseURL:  "https://api.fightodds.example/",
		AuthType: authType,
	}, credential)
}

const feedFixture = `{
	"generatedAt": "2026-08-28T12:00:00Z",
	"events": [
		{
			"fightId": "ufc-319-main",
			"scheduledRounds": 5,
			"odds": [
				{
					"sportsbook": "DraftKings",
					"moneyline": {"fighter1": -150, "fighter2": 200},
					"method": {"ko": 250, "submission": 400, "decision": -120},
					"rounds": {"round1": 500, "round5": 900}
				},
				{
					"sportsbook": "FanDuel",
					"moneyline": {"fighter1": -145, "fighter2": 190}
				}
			]
		},
		{
			"fightId": "ufc-319-co-main",
			"scheduledRounds": 3,
			"odds": [
				{
					"sportsbook": "DraftKings",
					"moneyline": {"fighter1": 110, "fighter2": -130},
					"rounds": {"round1": 450, "round4": 800}
				}
			]
		}
	]
}`

func TestParseFansOutPerSportsbook(t *testing.T) {
	records, err := testSource("none", "").Parse([]byte(feedFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (one per fight+book pair)", len(records))
	}

	first := records[0].Snapshot
	if first.FightID != "ufc-319-main" || first.Sportsbook != "DraftKings" {
		t.Errorf("first record = %s/%s", first.FightID, first.Sportsbook)
	}
	if first.Moneyline.Fighter1 != -150 || first.Moneyline.Fighter2 != 200 {
		t.Errorf("moneyline = %+v", first.Moneyline)
	}
	if !first.HasMethod() {
		t.Error("method market should be priced")
	}
	if first.Rounds["round5"] != 900 {
		t.Errorf("rounds = %v, want round5 kept for a 5-round fight", first.Rounds)
	}

	want := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want feed generatedAt", first.Timestamp)
	}
}

func TestParseFlagsRoundsBeyondScheduled(t *testing.T) {
	records, err := testSource("none", "").Parse([]byte(feedFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	coMain := records[2]
	if _, ok := coMain.Snapshot.Rounds["round4"]; ok {
		t.Error("round4 kept for a 3-round fight")
	}
	if coMain.Snapshot.Rounds["round1"] != 450 {
		t.Errorf("rounds = %v, want round1 kept", coMain.Snapshot.Rounds)
	}
	found := false
	for _, w := range coMain.Warnings {
		if w.Field == "rounds.round4" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %+v do not flag round4", coMain.Warnings)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := testSource("none", "").Parse([]byte("not json")); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestRequestsCarryAuth(t *testing.T) {
	reqs := testSource("api_key", "s3cret").Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if got := reqs[0].URL; got != "https://api.fightodds.example/v1/fights/odds" {
		t.Errorf("URL = %q", got)
	}
	if got := reqs[0].Header.Get("X-Api-Key"); got != "s3cret" {
		t.Errorf("X-Api-Key = %q", got)
	}

	bearer := testSource("bearer", "tok").Requests()[0]
	if got := bearer.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}
