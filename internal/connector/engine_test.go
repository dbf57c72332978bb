package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/detect"
	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/fetch"
	"github.com/strikeodds/strikebot/internal/identity"
)

type stubSource struct {
	requests []Request
	records  [][]Record
	calls    int
}

func (s *stubSource) ID() string          { return "stub" }
func (s *stubSource) Requests() []Request { return s.requests }

func (s *stubSource) Parse(body []byte) ([]Record, error) {
	recs := s.records[s.calls]
	s.calls++
	return recs, nil
}

type stubFetcher struct {
	results []fetch.Result
	errs    []error
	calls   int
}

func (f *stubFetcher) Do(ctx context.Context, sess *identity.Session, url string, header http.Header) (fetch.Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	if f.errs != nil && f.errs[i] != nil {
		return fetch.Result{}, f.errs[i]
	}
	return f.results[i], nil
}

type stubRepo struct {
	snapshots     []domain.OddsSnapshot
	alerts        []domain.MovementAlert
	opportunities []domain.ArbitrageOpportunity
	snapshotErr   error
}

func (r *stubRepo) WriteOddsSnapshot(ctx context.Context, snap domain.OddsSnapshot) error {
	if r.snapshotErr != nil {
		return r.snapshotErr
	}
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *stubRepo) WriteMovementAlert(ctx context.Context, alert domain.MovementAlert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *stubRepo) WriteArbitrageOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	r.opportunities = append(r.opportunities, opp)
	return nil
}

func (r *stubRepo) Flush(ctx context.Context) error { return nil }
func (r *stubRepo) Close()                          {}

func record(fight, book string, f1, f2 int) Record {
	return Record{Snapshot: domain.OddsSnapshot{
		FightID:    fight,
		Sportsbook: book,
		Timestamp:  time.Now(),
		Moneyline:  domain.Moneyline{Fighter1: f1, Fighter2: f2},
	}}
}

func testEngine(src Source, fetcher Fetcher, repo domain.Repository) *Engine {
	cfg := config.SourceDefaults()
	cfg.ID = "stub"
	cfg.MaxRetries = 2
	cfg.MaxBackoffMs = 1
	cfg.RequestDelayMinMs = 0
	cfg.RequestDelayMaxMs = 1

	return NewEngine(EngineDeps{
		Source:  src,
		Config:  cfg,
		Pool:    testPool(3),
		Fetcher: fetcher,
		Repo:    repo,
		Movement: detect.NewMovementDetector(detect.MovementConfig{
			SignificantPct: 5, ReversePct: 10, SteamPct: 3,
			SteamWindow: 5 * time.Minute, SteamMinBooks: 2,
		}, slog.Default()),
		Arbitrage: detect.NewArbitrageDetector(detect.ArbitrageConfig{
			TotalStake: 1000, MinProfitPct: 0.5, HighConfidencePct: 3,
			OpportunityTTL: 2 * time.Minute,
		}, slog.Default()),
		Logger:       slog.Default(),
		SyncInterval: 5 * time.Minute,
		CrossMarket:  true,
	})
}

func testPool(sessions int) *identity.Pool {
	proxies := make([]identity.ProxyDescriptor, sessions)
	for i := range proxies {
		proxies[i] = identity.ProxyDescriptor{Host: "127.0.0.1", Port: 9000 + i, Protocol: "http"}
	}
	return identity.NewPool(identity.PoolConfig{
		SourceID: "stub",
		Proxies:  proxies,
		DelayMax: time.Millisecond,
		Logger:   slog.Default(),
	})
}

func okResult() fetch.Result {
	return fetch.Result{Outcome: fetch.OutcomeSuccess, StatusCode: 200, Body: []byte(`{}`)}
}

func TestRunCycleSkipsMalformedRecord(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records: [][]Record{{
			record("f1", "DraftKings", -150, 200),
			record("f1", "FanDuel", 180, 140), // both legs positive
			record("f1", "BetMGM", -190, 160),
		}},
	}
	repo := &stubRepo{}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{okResult()}}, repo)

	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2", res.RecordsProcessed)
	}
	if res.RecordsSkipped != 1 {
		t.Errorf("RecordsSkipped = %d, want 1", res.RecordsSkipped)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected a validation error for the malformed record")
	}
	found := false
	for _, e := range res.Errors {
		if strings.HasPrefix(e.Field, "moneyline") && e.Severity == domain.SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("errors %+v do not reference the moneyline field", res.Errors)
	}
	if len(repo.snapshots) != 2 {
		t.Errorf("persisted %d snapshots, want 2", len(repo.snapshots))
	}
}

func TestRunCycleRetriesSoftBlockWithNewSession(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records:  [][]Record{{record("f1", "DraftKings", -150, 200)}},
	}
	fetcher := &stubFetcher{results: []fetch.Result{
		{Outcome: fetch.OutcomeSoftBlock, StatusCode: 403, Reason: "403"},
		okResult(),
	}}
	eng := testEngine(src, fetcher, &stubRepo{})

	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (retry after soft block)", fetcher.calls)
	}
	if res.RecordsProcessed != 1 {
		t.Errorf("RecordsProcessed = %d, want 1", res.RecordsProcessed)
	}
	if eng.pool.UnblockedCount() != 2 {
		t.Errorf("UnblockedCount = %d, want 2 after one block", eng.pool.UnblockedCount())
	}
}

func TestRunCycleAbortsWhenAllSessionsBlocked(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records:  [][]Record{nil},
	}
	soft := fetch.Result{Outcome: fetch.OutcomeSoftBlock, StatusCode: 429, Reason: "429"}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{soft}}, &stubRepo{})
	// Two sessions, three attempts: the third acquire finds the pool empty.
	eng.pool = testPool(2)

	res, err := eng.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected a cycle-level error once every session is blocked")
	}
	if !errors.Is(err, domain.ErrAllSessionsBlocked) {
		t.Errorf("err = %v, want ErrAllSessionsBlocked", err)
	}
	if res == nil {
		t.Fatal("aborted cycle must still return its partial result")
	}
}

func TestRunCycleRecordsSkipOnRetryExhaustion(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/a"}, {URL: "http://feed/b"}},
		records:  [][]Record{{record("f1", "DraftKings", -150, 200)}},
	}
	// Three hard errors exhaust MaxRetries=2 for the first item; the three
	// blocks leave zero sessions, so pad the pool to keep item two alive.
	hard := errors.New("connection reset")
	fetcher := &stubFetcher{
		results: []fetch.Result{{}, {}, {}, okResult()},
		errs:    []error{hard, hard, hard, nil},
	}
	eng := testEngine(src, fetcher, &stubRepo{})
	eng.pool = testPool(4)

	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.RecordsSkipped != 1 {
		t.Errorf("RecordsSkipped = %d, want 1 (first item failed)", res.RecordsSkipped)
	}
	if res.RecordsProcessed != 1 {
		t.Errorf("RecordsProcessed = %d, want 1 (second item succeeded)", res.RecordsProcessed)
	}
	found := false
	for _, e := range res.Errors {
		if e.Field == "request" && e.Value == "http://feed/a" {
			found = true
		}
	}
	if !found {
		t.Errorf("errors %+v do not reference the failed request", res.Errors)
	}
}

func TestRunCycleSkipsRobotsExcludedRequest(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/private"}, {URL: "http://feed/odds"}},
		records:  [][]Record{{record("f1", "DraftKings", -150, 200)}},
	}
	fetcher := &stubFetcher{
		results: []fetch.Result{{Outcome: fetch.OutcomeHardError}, okResult()},
		errs:    []error{fmt.Errorf("fetch: http://feed/private: %w", fetch.ErrRobotsDisallowed), nil},
	}
	eng := testEngine(src, fetcher, &stubRepo{})

	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (no retry on robots exclusion)", fetcher.calls)
	}
	if res.RecordsSkipped != 1 {
		t.Errorf("RecordsSkipped = %d, want 1", res.RecordsSkipped)
	}
	if res.RecordsProcessed != 1 {
		t.Errorf("RecordsProcessed = %d, want 1", res.RecordsProcessed)
	}
	if n := eng.pool.UnblockedCount(); n != 3 {
		t.Errorf("UnblockedCount = %d, want 3 (robots exclusion must not block sessions)", n)
	}
}

func TestRunCycleCancelledStillStampsTiming(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records:  [][]Record{nil},
	}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{okResult()}}, &stubRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("cancelled cycle must still return its partial result")
	}
	if res.NextSyncTime.IsZero() {
		t.Error("cancelled cycle result missing NextSyncTime")
	}
}

func TestRunCycleContinuesPastWriteFailure(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records:  [][]Record{{record("f1", "DraftKings", -150, 200), record("f1", "FanDuel", -140, 180)}},
	}
	repo := &stubRepo{snapshotErr: errors.New("pg down")}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{okResult()}}, repo)

	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2 despite write failures", res.RecordsProcessed)
	}
}

func TestRunCycleDetectsArbitrageAtBatchEnd(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records: [][]Record{{
			record("f1", "DraftKings", -150, 200),
			record("f1", "FanDuel", 180, -140),
		}},
	}
	repo := &stubRepo{}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{okResult()}}, repo)

	if _, err := eng.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(repo.opportunities) != 1 {
		t.Fatalf("persisted %d opportunities, want 1", len(repo.opportunities))
	}
	if repo.opportunities[0].Type != domain.OpportunitySingleMarket {
		t.Errorf("Type = %q, want single_market", repo.opportunities[0].Type)
	}
}

func TestRunCycleSetsResultTiming(t *testing.T) {
	src := &stubSource{
		requests: []Request{{URL: "http://feed/odds"}},
		records:  [][]Record{nil},
	}
	eng := testEngine(src, &stubFetcher{results: []fetch.Result{okResult()}}, &stubRepo{})

	before := time.Now()
	res, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.SourceID != "stub" {
		t.Errorf("SourceID = %q", res.SourceID)
	}
	want := before.Add(5 * time.Minute)
	if res.NextSyncTime.Before(want) {
		t.Errorf("NextSyncTime = %v, want >= %v", res.NextSyncTime, want)
	}
}
