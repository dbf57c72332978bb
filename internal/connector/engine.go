package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/detect"
	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/fetch"
	"github.com/strikeodds/strikebot/internal/identity"
	"github.com/strikeodds/strikebot/internal/metrics"
)

// Fetcher performs one exchange with a session's identity. Satisfied by
// *fetch.Fetcher; narrowed here so cycle tests can stub the network.
type Fetcher interface {
	Do(ctx context.Context, s *identity.Session, url string, header http.Header) (fetch.Result, error)
}

// EngineDeps carries the collaborators for one source's sync engine. Limiter,
// Archive and Metrics are optional.
type EngineDeps struct {
	Source    Source
	Config    config.SourceConfig
	Pool      *identity.Pool
	Fetcher   Fetcher
	Repo      domain.Repository
	Cache     domain.SnapshotCache
	Movement  *detect.MovementDetector
	Arbitrage *detect.ArbitrageDetector
	Limiter   domain.RateLimiter
	Archive   domain.BlobWriter
	Bus       domain.SignalBus
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// SyncInterval feeds the result's next-sync suggestion.
	SyncInterval time.Duration
	// ArchiveRaw uploads each raw payload to cold storage when Archive is set.
	ArchiveRaw bool
	// CrossMarket enables the cross-market combination detectors.
	CrossMarket bool
}

// Engine runs full sync cycles for one upstream source: fetch the batch
// through the identity pool, validate and transform payloads, persist the
// snapshots, and feed the detectors. A cycle always completes with an
// IngestionResult; only "no sessions available" or cancellation aborts it.
type Engine struct {
	src       Source
	cfg       config.SourceConfig
	pool      *identity.Pool
	fetcher   Fetcher
	repo      domain.Repository
	cache     domain.SnapshotCache
	movement  *detect.MovementDetector
	arbitrage *detect.ArbitrageDetector
	limiter   domain.RateLimiter
	archive   domain.BlobWriter
	bus       domain.SignalBus
	metrics   *metrics.Metrics
	logger    *slog.Logger

	syncInterval time.Duration
	archiveRaw   bool
	crossMarket  bool
}

// NewEngine wires a sync engine from its dependencies.
func NewEngine(d EngineDeps) *Engine {
	return &Engine{
		src:          d.Source,
		cfg:          d.Config,
		pool:         d.Pool,
		fetcher:      d.Fetcher,
		repo:         d.Repo,
		cache:        d.Cache,
		movement:     d.Movement,
		arbitrage:    d.Arbitrage,
		limiter:      d.Limiter,
		archive:      d.Archive,
		bus:          d.Bus,
		metrics:      d.Metrics,
		logger:       d.Logger.With(slog.String("source", d.Source.ID())),
		syncInterval: d.SyncInterval,
		archiveRaw:   d.ArchiveRaw,
		crossMarket:  d.CrossMarket,
	}
}

// RunCycle executes one sync cycle and returns its ingestion result. Item
// failures are recorded and skipped; the returned error is non-nil only for
// the cycle-level conditions (all sessions blocked, cancellation).
func (e *Engine) RunCycle(ctx context.Context) (*domain.IngestionResult, error) {
	start := time.Now()
	res := &domain.IngestionResult{SourceID: e.src.ID()}
	var batch []domain.OddsSnapshot

	for _, req := range e.src.Requests() {
		if err := ctx.Err(); err != nil {
			e.finish(res, start)
			return res, fmt.Errorf("sync cycle cancelled: %w", err)
		}

		body, err := e.fetchWithRetry(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrAllSessionsBlocked) || errors.Is(err, domain.ErrNoSessions) {
				e.finish(res, start)
				return res, fmt.Errorf("sync cycle aborted: %w", err)
			}
			if ctx.Err() != nil {
				e.finish(res, start)
				return res, fmt.Errorf("sync cycle cancelled: %w", ctx.Err())
			}
			res.RecordsSkipped++
			res.AddError(domain.ValidationError{
				Field:    "request",
				Message:  err.Error(),
				Value:    req.URL,
				Severity: domain.SeverityError,
			})
			continue
		}

		e.archivePayload(ctx, body)

		records, err := e.src.Parse(body)
		if err != nil {
			res.RecordsSkipped++
			res.AddError(domain.ValidationError{
				Field:    "payload",
				Message:  err.Error(),
				Value:    req.URL,
				Severity: domain.SeverityError,
			})
			continue
		}

		for _, rec := range records {
			keep := true
			for _, w := range rec.Warnings {
				keep = res.AddError(w) && keep
			}
			for _, finding := range domain.CheckSnapshot(rec.Snapshot) {
				keep = res.AddError(finding) && keep
			}
			if !keep {
				res.RecordsSkipped++
				continue
			}

			e.persistSnapshot(ctx, rec.Snapshot)
			res.RecordsProcessed++
			batch = append(batch, rec.Snapshot)

			e.observeMovement(ctx, rec.Snapshot)
		}
	}

	e.detectArbitrage(ctx, batch)
	e.finish(res, start)

	e.logger.Info("sync cycle complete",
		slog.Int("processed", res.RecordsProcessed),
		slog.Int("skipped", res.RecordsSkipped),
		slog.Int("errors", len(res.Errors)),
		slog.Int64("elapsed_ms", res.ProcessingTimeMs),
	)
	return res, nil
}

func (e *Engine) finish(res *domain.IngestionResult, start time.Time) {
	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	res.NextSyncTime = time.Now().Add(e.syncInterval)

	e.metrics.AddProcessed(res.SourceID, res.RecordsProcessed)
	e.metrics.AddSkipped(res.SourceID, res.RecordsSkipped)
	e.metrics.ObserveCycle(res.SourceID, time.Since(start).Seconds())
	e.metrics.SetBlockedSessions(res.SourceID, e.pool.Size()-e.pool.UnblockedCount())
}

// fetchWithRetry runs one batch item through the pool, retrying with a fresh
// session after each soft block or transport failure, up to max retries.
func (e *Engine) fetchWithRetry(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		sess, err := e.pool.Acquire()
		if err != nil {
			return nil, err
		}

		if err := e.waitBudget(ctx); err != nil {
			return nil, err
		}
		if err := e.pool.AwaitSpacing(ctx, sess); err != nil {
			return nil, err
		}

		result, err := e.fetcher.Do(ctx, sess, req.URL, req.Header)
		if err != nil {
			// Robots exclusion is a property of the path, not the session;
			// skip the item without blocking or retrying.
			if errors.Is(err, fetch.ErrRobotsDisallowed) {
				return nil, err
			}
			e.metrics.ObserveFetch(e.src.ID(), fetch.OutcomeHardError.String())
			e.pool.MarkBlocked(sess, err.Error())
			lastErr = err
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		e.metrics.ObserveFetch(e.src.ID(), result.Outcome.String())
		switch result.Outcome {
		case fetch.OutcomeSuccess:
			return result.Body, nil
		case fetch.OutcomeSoftBlock:
			e.pool.MarkBlocked(sess, result.Reason)
			lastErr = fmt.Errorf("soft block: %s", result.Reason)
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

// waitBudget blocks until the source's shared request budget admits another
// request. Spacing between sessions is handled separately by the pool.
func (e *Engine) waitBudget(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if e.cfg.RequestsPerMinute > 0 {
		if err := e.limiter.Wait(ctx, e.src.ID()+":minute", e.cfg.RequestsPerMinute, time.Minute); err != nil {
			return fmt.Errorf("minute budget: %w", err)
		}
	}
	if e.cfg.RequestsPerHour > 0 {
		if err := e.limiter.Wait(ctx, e.src.ID()+":hour", e.cfg.RequestsPerHour, time.Hour); err != nil {
			return fmt.Errorf("hour budget: %w", err)
		}
	}
	return nil
}

func (e *Engine) backoff(ctx context.Context, attempt int) error {
	if attempt >= e.cfg.MaxRetries {
		return nil
	}
	timer := time.NewTimer(e.cfg.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) persistSnapshot(ctx context.Context, snap domain.OddsSnapshot) {
	if err := e.repo.WriteOddsSnapshot(ctx, snap); err != nil {
		e.logger.Error("snapshot write failed",
			slog.String("fight_id", snap.FightID),
			slog.String("sportsbook", snap.Sportsbook),
			slog.String("error", err.Error()),
		)
	}
	if e.cache == nil {
		return
	}
	if err := e.cache.SetLatest(ctx, snap); err != nil {
		e.logger.Warn("snapshot cache update failed",
			slog.String("fight_id", snap.FightID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) observeMovement(ctx context.Context, snap domain.OddsSnapshot) {
	if e.movement == nil {
		return
	}
	alert, err := e.movement.Observe(snap)
	if err != nil {
		e.logger.Warn("movement detection failed",
			slog.String("fight_id", snap.FightID),
			slog.String("error", err.Error()),
		)
		return
	}
	if alert == nil {
		return
	}
	e.metrics.ObserveMovement(string(alert.Movement))
	if err := e.repo.WriteMovementAlert(ctx, *alert); err != nil {
		e.logger.Error("alert write failed",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()),
		)
	}
	e.publish(ctx, domain.ChannelMovementAlerts, alert)
}

// publish fans a detector payload out over the signal bus. Bus failures are
// logged and never interrupt the cycle.
func (e *Engine) publish(ctx context.Context, channel string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Warn("signal encode failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Warn("signal publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

// detectArbitrage runs the detectors over the completed batch, one fight at a
// time so a bad fight cannot poison the rest.
func (e *Engine) detectArbitrage(ctx context.Context, batch []domain.OddsSnapshot) {
	if e.arbitrage == nil || len(batch) == 0 {
		return
	}

	byFight := make(map[string][]domain.OddsSnapshot)
	for _, snap := range batch {
		byFight[snap.FightID] = append(byFight[snap.FightID], snap)
	}

	for fightID, snaps := range byFight {
		var opps []domain.ArbitrageOpportunity
		if opp := e.arbitrage.DetectSingleMarket(fightID, snaps); opp != nil {
			opps = append(opps, *opp)
		}
		if e.crossMarket {
			opps = append(opps, e.arbitrage.DetectCrossMarket(fightID, snaps)...)
		}

		for _, opp := range opps {
			e.metrics.ObserveOpportunity(string(opp.Type))
			if err := e.repo.WriteArbitrageOpportunity(ctx, opp); err != nil {
				e.logger.Error("opportunity write failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
			e.publish(ctx, domain.ChannelOpportunities, opp)
		}
	}
}

func (e *Engine) archivePayload(ctx context.Context, body []byte) {
	if e.archive == nil || !e.archiveRaw {
		return
	}
	path := fmt.Sprintf("raw/%s/%s.json", e.src.ID(), time.Now().UTC().Format("2006-01-02T15-04-05.000"))
	if err := e.archive.Put(ctx, path, body, "application/json"); err != nil {
		e.logger.Warn("raw payload archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
