package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/identity"
)

type stubRunner struct {
	mu      sync.Mutex
	calls   int
	results []*domain.IngestionResult
	errs    []error
}

func (s *stubRunner) RunCycle(ctx context.Context) (*domain.IngestionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	if i < 0 {
		return &domain.IngestionResult{}, nil
	}
	return s.results[i], s.errs[i]
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRepo struct {
	mu      sync.Mutex
	flushes int
}

func (r *stubRepo) WriteOddsSnapshot(context.Context, domain.OddsSnapshot) error   { return nil }
func (r *stubRepo) WriteMovementAlert(context.Context, domain.MovementAlert) error { return nil }
func (r *stubRepo) WriteArbitrageOpportunity(context.Context, domain.ArbitrageOpportunity) error {
	return nil
}
func (r *stubRepo) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}
func (r *stubRepo) Close() {}

func (r *stubRepo) flushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

type stubBus struct {
	mu       sync.Mutex
	channels []string
}

func (b *stubBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *stubBus) published(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.channels {
		if c == channel {
			n++
		}
	}
	return n
}

type stubAnalyzer struct {
	mu   sync.Mutex
	seen [][]domain.IngestionResult
}

func (a *stubAnalyzer) Analyze(_ context.Context, ingestion []domain.IngestionResult) (domain.MarketReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, ingestion)
	return domain.MarketReport{GeneratedAt: time.Now().UTC()}, nil
}

func (a *stubAnalyzer) runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

type stubArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (s *stubArchiver) ArchiveSnapshots(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, before)
	return 1, nil
}

func (s *stubArchiver) runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

func testPool(t *testing.T) *identity.Pool {
	t.Helper()
	return identity.NewPool(identity.PoolConfig{
		SourceID:   "fightodds",
		UserAgents: []string{"test-agent/1.0"},
		Logger:     slog.Default(),
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestRunCyclesAndFlushes(t *testing.T) {
	runner := &stubRunner{
		results: []*domain.IngestionResult{{SourceID: "fightodds", RecordsProcessed: 3}},
		errs:    []error{nil},
	}
	repo := &stubRepo{}

	orch := NewOrchestrator(Options{
		Workers:      []Worker{{SourceID: "fightodds", Engine: runner, Pool: testPool(t)}},
		Repo:         repo,
		Logger:       slog.Default(),
		SyncInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitFor(t, func() bool { return runner.callCount() >= 2 })
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}
	if repo.flushCount() < 2 {
		t.Errorf("flush count = %d, want at least one per cycle", repo.flushCount())
	}
}

func TestCooldownResetsExhaustedPool(t *testing.T) {
	pool := testPool(t)
	sess, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.MarkBlocked(sess, "403 forbidden")
	if pool.UnblockedCount() != 0 {
		t.Fatalf("UnblockedCount = %d, want 0 before cooldown", pool.UnblockedCount())
	}

	runner := &stubRunner{
		results: []*domain.IngestionResult{{SourceID: "fightodds"}, {SourceID: "fightodds"}},
		errs:    []error{domain.ErrAllSessionsBlocked, nil},
	}

	orch := NewOrchestrator(Options{
		Workers:          []Worker{{SourceID: "fightodds", Engine: runner, Pool: pool}},
		Logger:           slog.Default(),
		SyncInterval:     5 * time.Millisecond,
		CooldownInterval: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitFor(t, func() bool { return pool.UnblockedCount() == 1 })
	cancel()
	<-done
}

func TestPoolEventsReachTheBus(t *testing.T) {
	pool := testPool(t)
	sess, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Blocking the only session emits both a session_blocked and a
	// pool_exhausted event before the orchestrator starts; the consumer
	// drains them from the buffered channel.
	pool.MarkBlocked(sess, "429 too many requests")

	bus := &stubBus{}
	runner := &stubRunner{
		results: []*domain.IngestionResult{{SourceID: "fightodds"}},
		errs:    []error{nil},
	}

	orch := NewOrchestrator(Options{
		Workers:      []Worker{{SourceID: "fightodds", Engine: runner, Pool: pool}},
		Bus:          bus,
		Logger:       slog.Default(),
		SyncInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitFor(t, func() bool { return bus.published(domain.ChannelPoolEvents) >= 2 })
	cancel()
	<-done
}

func TestAnalysisUsesLatestIngestion(t *testing.T) {
	runner := &stubRunner{
		results: []*domain.IngestionResult{{SourceID: "fightodds", RecordsProcessed: 2}},
		errs:    []error{nil},
	}
	analyzer := &stubAnalyzer{}

	orch := NewOrchestrator(Options{
		Workers:      []Worker{{SourceID: "fightodds", Engine: runner, Pool: testPool(t)}},
		Analyzer:     analyzer,
		Logger:       slog.Default(),
		SyncInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitFor(t, func() bool { return analyzer.runs() >= 1 })
	cancel()
	<-done

	analyzer.mu.Lock()
	first := analyzer.seen[0]
	analyzer.mu.Unlock()
	if len(first) != 1 || first[0].SourceID != "fightodds" {
		t.Errorf("analyzer input = %+v, want the fightodds ingestion result", first)
	}
}

func TestArchiveRunsImmediatelyWithHistoryCutoff(t *testing.T) {
	archiver := &stubArchiver{}
	runner := &stubRunner{
		results: []*domain.IngestionResult{{SourceID: "fightodds"}},
		errs:    []error{nil},
	}

	orch := NewOrchestrator(Options{
		Workers:       []Worker{{SourceID: "fightodds", Engine: runner, Pool: testPool(t)}},
		Archiver:      archiver,
		Logger:        slog.Default(),
		SyncInterval:  5 * time.Millisecond,
		HistoryWindow: 30 * 24 * time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	waitFor(t, func() bool { return archiver.runs() >= 1 })
	cancel()
	<-done

	archiver.mu.Lock()
	cutoff := archiver.cutoffs[0]
	archiver.mu.Unlock()
	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := cutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("archive cutoff = %v, want about %v", cutoff, want)
	}
}
