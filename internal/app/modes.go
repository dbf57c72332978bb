package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strikeodds/strikebot/internal/analysis"
	"github.com/strikeodds/strikebot/internal/config"
	"github.com/strikeodds/strikebot/internal/connector"
	"github.com/strikeodds/strikebot/internal/connector/fightodds"
	"github.com/strikeodds/strikebot/internal/crypto"
	"github.com/strikeodds/strikebot/internal/detect"
	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/fetch"
	"github.com/strikeodds/strikebot/internal/identity"
	"github.com/strikeodds/strikebot/internal/metrics"
	"github.com/strikeodds/strikebot/internal/notify"
	"github.com/strikeodds/strikebot/internal/pipeline"
)

// SyncMode runs the ingestion pipeline: per-source sync cycles, movement and
// arbitrage detection, and snapshot retention. No market reports are produced.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")
	return a.runPipeline(ctx, deps, false)
}

// AnalyzeMode produces one market report from the cached snapshots and writes
// it to stdout as JSON.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode")

	aggregator := analysis.NewAggregator(deps.SnapshotCache, a.newArbitrageDetector(), a.logger)
	report, err := aggregator.Analyze(ctx, nil)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("analyze mode: encode report: %w", err)
	}

	a.logger.InfoContext(ctx, "market report generated",
		slog.Int("fights", report.TotalFights),
		slog.Int("sportsbooks", report.TotalSportsbooks),
		slog.Float64("efficiency", report.EfficiencyScore),
	)
	return nil
}

// MonitorMode consumes detector output from the signal bus and forwards it to
// the configured notification channels. It never fetches or persists anything,
// so it can run alongside a sync instance.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.consumeChannel(ctx, deps, domain.ChannelMovementAlerts, func(payload []byte) (string, string, string, error) {
			var alert domain.MovementAlert
			if err := json.Unmarshal(payload, &alert); err != nil {
				return "", "", "", err
			}
			event, title, message := notify.FormatMovementAlert(alert)
			return event, title, message, nil
		})
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	g.Go(func() error {
		err := a.consumeChannel(ctx, deps, domain.ChannelOpportunities, func(payload []byte) (string, string, string, error) {
			var opp domain.ArbitrageOpportunity
			if err := json.Unmarshal(payload, &opp); err != nil {
				return "", "", "", err
			}
			event, title, message := notify.FormatOpportunity(opp)
			return event, title, message, nil
		})
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	g.Go(func() error {
		err := a.consumeChannel(ctx, deps, domain.ChannelPoolEvents, func(payload []byte) (string, string, string, error) {
			var ev identity.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				return "", "", "", err
			}
			event, title, message, ok := notify.FormatPoolEvent(ev)
			if !ok {
				return "", "", "", nil
			}
			return event, title, message, nil
		})
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	return g.Wait()
}

// FullMode runs ingestion, analysis, and archival together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runPipeline(ctx, deps, true)
}

// runPipeline assembles the orchestrator and the metrics server and blocks
// until shutdown. withAnalysis enables the periodic market report loop.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, withAnalysis bool) error {
	workers, err := a.buildWorkers(deps)
	if err != nil {
		return err
	}

	var analyzer pipeline.Analyzer
	if withAnalysis {
		analyzer = analysis.NewAggregator(deps.SnapshotCache, a.newArbitrageDetector(), a.logger)
	}
	var archiver pipeline.SnapshotArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	orch := pipeline.NewOrchestrator(pipeline.Options{
		Workers:          workers,
		Analyzer:         analyzer,
		Archiver:         archiver,
		Repo:             deps.Repo,
		Bus:              deps.SignalBus,
		Notifier:         deps.Notifier,
		Logger:           a.logger,
		SyncInterval:     a.cfg.Pipeline.SyncInterval.Duration,
		CooldownInterval: a.cfg.Pipeline.CooldownInterval.Duration,
		HistoryWindow:    time.Duration(a.cfg.Pipeline.HistoryWindowDays) * 24 * time.Hour,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(ctx)
	})

	if deps.Metrics != nil {
		srv := metrics.NewServer(a.cfg.Metrics.Addr, deps.Metrics, a.logger)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

// buildWorkers constructs one identity pool, fetcher, and sync engine per
// configured source.
func (a *App) buildWorkers(deps *Dependencies) ([]pipeline.Worker, error) {
	// Detectors are shared so steam moves are correlated across sources.
	movement := detect.NewMovementDetector(detect.MovementConfig{
		SignificantPct: a.cfg.Movement.SignificantPct,
		ReversePct:     a.cfg.Movement.ReversePct,
		SteamPct:       a.cfg.Movement.SteamPct,
		SteamWindow:    a.cfg.Movement.SteamWindow.Duration,
		SteamMinBooks:  a.cfg.Movement.SteamMinBooks,
	}, a.logger)

	var arbitrage *detect.ArbitrageDetector
	if a.cfg.Arbitrage.Enabled {
		arbitrage = a.newArbitrageDetector()
	}

	workers := make([]pipeline.Worker, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		credential, err := a.resolveCredential(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}

		pool := identity.NewPool(identity.PoolConfig{
			SourceID:   src.ID,
			Proxies:    proxyDescriptors(src.Proxies),
			UserAgents: src.UserAgents,
			DelayMin:   time.Duration(src.RequestDelayMinMs) * time.Millisecond,
			DelayMax:   time.Duration(src.RequestDelayMaxMs) * time.Millisecond,
			PinSession: !src.RotateProxies,
			Logger:     a.logger,
		})

		fetcher := fetch.New(fetch.Config{
			Timeout:          src.FetchTimeout.Duration,
			RandomizeHeaders: src.RandomizeHeaders,
			RespectRobots:    src.RespectRobots,
			Logger:           a.logger,
		})

		engine := connector.NewEngine(connector.EngineDeps{
			Source:       fightodds.New(src, credential),
			Config:       src,
			Pool:         pool,
			Fetcher:      fetcher,
			Repo:         deps.Repo,
			Cache:        deps.SnapshotCache,
			Movement:     movement,
			Arbitrage:    arbitrage,
			Limiter:      deps.RateLimiter,
			Archive:      deps.BlobWriter,
			Bus:          deps.SignalBus,
			Metrics:      deps.Metrics,
			Logger:       a.logger,
			SyncInterval: a.cfg.Pipeline.SyncInterval.Duration,
			ArchiveRaw:   a.cfg.Pipeline.ArchiveRawPayload,
			CrossMarket:  a.cfg.Arbitrage.CrossMarket,
		})

		workers = append(workers, pipeline.Worker{
			SourceID: src.ID,
			Engine:   engine,
			Pool:     pool,
		})
	}
	return workers, nil
}

func (a *App) newArbitrageDetector() *detect.ArbitrageDetector {
	return detect.NewArbitrageDetector(detect.ArbitrageConfig{
		TotalStake:        a.cfg.Arbitrage.TotalStake,
		MinProfitPct:      a.cfg.Arbitrage.MinProfitPct,
		HighConfidencePct: a.cfg.Arbitrage.HighConfidencePct,
		SharpBooks:        a.cfg.Arbitrage.SharpBooks,
		ThinBooks:         a.cfg.Arbitrage.ThinBooks,
		OpportunityTTL:    a.cfg.Arbitrage.OpportunityTTL.Duration,
	}, a.logger)
}

func (a *App) resolveCredential(src config.SourceConfig) (string, error) {
	if src.AuthType == "none" || src.AuthType == "" {
		return "", nil
	}
	return crypto.ResolveCredential(crypto.CredentialConfig{
		ApiKey:           src.ApiKey,
		EncryptedKeyPath: src.EncryptedKeyPath,
		KeyPassword:      src.KeyPassword,
	})
}

// consumeChannel subscribes to one bus channel and forwards each decodable
// payload to the notifier. Undecodable payloads are logged and skipped.
func (a *App) consumeChannel(
	ctx context.Context,
	deps *Dependencies,
	channel string,
	format func(payload []byte) (event, title, message string, err error),
) error {
	ch, err := deps.SignalBus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("monitor: subscribe %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			event, title, message, err := format(payload)
			if err != nil {
				a.logger.WarnContext(ctx, "undecodable signal",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if event == "" {
				continue
			}
			_ = deps.Notifier.Notify(ctx, event, title, message)
		}
	}
}

func proxyDescriptors(proxies []config.ProxyConfig) []identity.ProxyDescriptor {
	out := make([]identity.ProxyDescriptor, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, identity.ProxyDescriptor{
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			Password: p.Password,
			Protocol: p.Protocol,
		})
	}
	return out
}
