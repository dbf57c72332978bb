package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strikeodds/strikebot/internal/domain"
)

// autoFlushThreshold bounds how many writes queue up before the repository
// flushes on its own.
const autoFlushThreshold = 64

// Repository implements domain.Repository by queueing writes into a pgx.Batch
// and sending them on Flush or when the queue fills. Callers treat writes as
// fire-and-forget; errors surface on Flush and are logged, never fatal to the
// batch that produced them.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu    sync.Mutex
	batch *pgx.Batch
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository creates a batching repository over the given pool.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(slog.String("component", "repository")),
		batch:  &pgx.Batch{},
	}
}

// WriteOddsSnapshot queues one snapshot insert.
func (r *Repository) WriteOddsSnapshot(ctx context.Context, snap domain.OddsSnapshot) error {
	return r.queue(ctx, insertSnapshotSQL, snapshotArgs(snap)...)
}

// WriteMovementAlert queues one alert insert.
func (r *Repository) WriteMovementAlert(ctx context.Context, alert domain.MovementAlert) error {
	return r.queue(ctx, insertAlertSQL, alertArgs(alert)...)
}

// WriteArbitrageOpportunity queues one opportunity insert.
func (r *Repository) WriteArbitrageOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return r.queue(ctx, insertOpportunitySQL, opportunityArgs(opp)...)
}

func (r *Repository) queue(ctx context.Context, sql string, args ...any) error {
	r.mu.Lock()
	r.batch.Queue(sql, args...)
	full := r.batch.Len() >= autoFlushThreshold
	r.mu.Unlock()

	if full {
		return r.Flush(ctx)
	}
	return nil
}

// Flush sends all queued writes in one round trip. Per-statement failures are
// logged and counted; the first error is returned after the whole batch has
// been drained.
func (r *Repository) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.batch
	r.batch = &pgx.Batch{}
	r.mu.Unlock()

	if batch.Len() == 0 {
		return nil
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var firstErr error
	failed := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		r.logger.Error("batch flush had failures",
			slog.Int("queued", batch.Len()),
			slog.Int("failed", failed),
			slog.String("error", firstErr.Error()),
		)
		return fmt.Errorf("postgres: flush batch (%d of %d failed): %w", failed, batch.Len(), firstErr)
	}
	return nil
}

// Close flushes what it can and releases nothing further; the pool is owned
// by the Client.
func (r *Repository) Close() {
	if err := r.Flush(context.Background()); err != nil {
		r.logger.Error("final flush failed", slog.String("error", err.Error()))
	}
}
