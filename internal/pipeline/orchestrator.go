// Package pipeline coordinates the long-running loops of the odds pipeline:
// per-source sync cycles, pool event fan-out, market analysis, and cold-storage
// archival.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/identity"
	"github.com/strikeodds/strikebot/internal/notify"
)

// How often archival eligibility is re-checked once the initial run completes.
const archiveInterval = 24 * time.Hour

// SyncRunner executes one sync cycle for a source. Satisfied by
// *connector.Engine.
type SyncRunner interface {
	RunCycle(ctx context.Context) (*domain.IngestionResult, error)
}

// Analyzer produces a market report from the latest ingestion results.
// Satisfied by *analysis.Aggregator.
type Analyzer interface {
	Analyze(ctx context.Context, ingestion []domain.IngestionResult) (domain.MarketReport, error)
}

// SnapshotArchiver moves expired snapshots to cold storage. Satisfied by
// *s3.Archiver.
type SnapshotArchiver interface {
	ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// Worker binds one source's sync engine to its identity pool so the
// orchestrator can schedule cycles and react to pool exhaustion.
type Worker struct {
	SourceID string
	Engine   SyncRunner
	Pool     *identity.Pool
}

// Options carries the orchestrator's collaborators and scheduling parameters.
// Analyzer, Archiver, Repo, Bus and Notifier are optional; a nil value disables
// the corresponding loop or fan-out.
type Options struct {
	Workers  []Worker
	Analyzer Analyzer
	Archiver SnapshotArchiver
	Repo     domain.Repository
	Bus      domain.SignalBus
	Notifier *notify.Notifier
	Logger   *slog.Logger

	SyncInterval     time.Duration
	CooldownInterval time.Duration
	HistoryWindow    time.Duration
}

// Orchestrator runs all pipeline goroutines under one errgroup: a sync loop
// and a pool event consumer per source, plus the analysis and archival loops.
// Cancellation of the parent context shuts everything down cleanly.
type Orchestrator struct {
	workers  []Worker
	analyzer Analyzer
	archiver SnapshotArchiver
	repo     domain.Repository
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	syncInterval     time.Duration
	cooldownInterval time.Duration
	historyWindow    time.Duration

	mu     sync.Mutex
	latest map[string]domain.IngestionResult
}

// NewOrchestrator creates an Orchestrator from its options.
func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		workers:          opts.Workers,
		analyzer:         opts.Analyzer,
		archiver:         opts.Archiver,
		repo:             opts.Repo,
		bus:              opts.Bus,
		notifier:         opts.Notifier,
		logger:           opts.Logger.With(slog.String("component", "orchestrator")),
		syncInterval:     opts.SyncInterval,
		cooldownInterval: opts.CooldownInterval,
		historyWindow:    opts.HistoryWindow,
		latest:           make(map[string]domain.IngestionResult),
	}
}

// Run starts every loop and blocks until the context is cancelled or a loop
// fails unrecoverably. Per-cycle failures are logged and retried on the next
// tick; only programming-level errors propagate out.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting",
		slog.Int("sources", len(o.workers)),
		slog.Duration("sync_interval", o.syncInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, w := range o.workers {
		w := w
		g.Go(func() error {
			err := o.runSyncLoop(ctx, w)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("sync loop %s: %w", w.SourceID, err)
		})
		g.Go(func() error {
			err := o.consumePoolEvents(ctx, w)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("pool events %s: %w", w.SourceID, err)
		})
	}

	if o.analyzer != nil {
		g.Go(func() error {
			err := o.runAnalysisLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("analysis loop: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.runArchiveLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive loop: %w", err)
		})
	}

	err := g.Wait()
	if o.repo != nil {
		// One last flush so buffered writes survive shutdown.
		if ferr := o.repo.Flush(context.Background()); ferr != nil {
			o.logger.Error("final flush failed", slog.String("error", ferr.Error()))
		}
	}
	if err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline stopped cleanly")
	return nil
}

// runSyncLoop runs the worker's sync cycle immediately, then on every tick of
// the shared sync interval.
func (o *Orchestrator) runSyncLoop(ctx context.Context, w Worker) error {
	o.runCycle(ctx, w)

	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("sync loop stopped", slog.String("source", w.SourceID))
			return ctx.Err()
		case <-ticker.C:
			o.runCycle(ctx, w)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context, w Worker) {
	res, err := w.Engine.RunCycle(ctx)
	if res != nil {
		o.mu.Lock()
		o.latest[w.SourceID] = *res
		o.mu.Unlock()
	}

	if o.repo != nil {
		if ferr := o.repo.Flush(ctx); ferr != nil {
			o.logger.Error("flush failed",
				slog.String("source", w.SourceID),
				slog.String("error", ferr.Error()),
			)
		}
	}

	if err == nil || ctx.Err() != nil {
		return
	}

	o.logger.Error("sync cycle failed",
		slog.String("source", w.SourceID),
		slog.String("error", err.Error()),
	)
	if o.notifier != nil {
		event, title, message := notify.FormatSyncFailure(w.SourceID, err)
		_ = o.notifier.Notify(ctx, event, title, message)
	}
	if errors.Is(err, domain.ErrAllSessionsBlocked) || errors.Is(err, domain.ErrNoSessions) {
		o.cooldown(ctx, w)
	}
}

// cooldown waits out the configured interval after an exhausted pool, then
// resets every session so the next cycle starts with fresh identities.
// Blocking here intentionally delays the worker's next tick.
func (o *Orchestrator) cooldown(ctx context.Context, w Worker) {
	if w.Pool == nil {
		return
	}
	if o.cooldownInterval <= 0 {
		w.Pool.ResetAll()
		return
	}

	o.logger.Warn("pool exhausted, cooling down",
		slog.String("source", w.SourceID),
		slog.Duration("cooldown", o.cooldownInterval),
	)

	timer := time.NewTimer(o.cooldownInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
		w.Pool.ResetAll()
		o.logger.Info("cooldown complete, sessions reset", slog.String("source", w.SourceID))
	}
}

// consumePoolEvents forwards pool lifecycle events to the signal bus and the
// notifier for as long as the context lives.
func (o *Orchestrator) consumePoolEvents(ctx context.Context, w Worker) error {
	if w.Pool == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	events := w.Pool.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handlePoolEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handlePoolEvent(ctx context.Context, ev identity.Event) {
	o.publish(ctx, domain.ChannelPoolEvents, ev)
	if o.notifier == nil {
		return
	}
	if event, title, message, ok := notify.FormatPoolEvent(ev); ok {
		_ = o.notifier.Notify(ctx, event, title, message)
	}
}

// runAnalysisLoop regenerates the market report once per sync interval from the
// most recent ingestion result of each source.
func (o *Orchestrator) runAnalysisLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("analysis loop stopped")
			return ctx.Err()
		case <-ticker.C:
			ingestion := o.latestResults()
			if len(ingestion) == 0 {
				continue
			}

			report, err := o.analyzer.Analyze(ctx, ingestion)
			if err != nil {
				o.logger.Error("market analysis failed", slog.String("error", err.Error()))
				continue
			}

			o.logger.Info("market report generated",
				slog.Int("fights", report.TotalFights),
				slog.Int("sportsbooks", report.TotalSportsbooks),
				slog.Float64("efficiency", report.EfficiencyScore),
				slog.Int("cross_market_opportunities", len(report.CrossMarket)),
				slog.Int("recommendations", len(report.Recommendations)),
			)
		}
	}
}

func (o *Orchestrator) latestResults() []domain.IngestionResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]domain.IngestionResult, 0, len(o.latest))
	for _, res := range o.latest {
		out = append(out, res)
	}
	return out
}

// runArchiveLoop moves snapshots older than the history window to cold storage,
// once at startup and then daily.
func (o *Orchestrator) runArchiveLoop(ctx context.Context) error {
	o.archiveExpired(ctx)

	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("archive loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.archiveExpired(ctx)
		}
	}
}

func (o *Orchestrator) archiveExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-o.historyWindow)
	archived, err := o.archiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		o.logger.Error("snapshot archival failed", slog.String("error", err.Error()))
		return
	}
	if archived > 0 {
		o.logger.Info("snapshots archived",
			slog.Int64("count", archived),
			slog.Time("cutoff", cutoff),
		)
	}
}

// publish fans a payload out over the signal bus, logging failures.
func (o *Orchestrator) publish(ctx context.Context, channel string, v any) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("signal encode failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := o.bus.Publish(ctx, channel, payload); err != nil {
		o.logger.Warn("signal publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
