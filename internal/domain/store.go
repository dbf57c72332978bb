package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Repository is the narrow persistence contract the pipeline consumes. Writes
// are fire-and-forget from the pipeline's perspective: a write failure must be
// logged by the caller, never allowed to abort a batch.
type Repository interface {
	WriteOddsSnapshot(ctx context.Context, snap OddsSnapshot) error
	WriteMovementAlert(ctx context.Context, alert MovementAlert) error
	WriteArbitrageOpportunity(ctx context.Context, opp ArbitrageOpportunity) error
	Flush(ctx context.Context) error
	Close()
}

// SnapshotStore persists odds snapshots and serves the rolling history window.
type SnapshotStore interface {
	Insert(ctx context.Context, snap OddsSnapshot) error
	Latest(ctx context.Context, fightID, sportsbook string) (OddsSnapshot, error)
	ListByFight(ctx context.Context, fightID string, opts ListOpts) ([]OddsSnapshot, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]OddsSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// AlertStore persists movement alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert MovementAlert) error
	ListRecent(ctx context.Context, limit int) ([]MovementAlert, error)
	ListByFight(ctx context.Context, fightID string, opts ListOpts) ([]MovementAlert, error)
}

// OpportunityStore persists arbitrage opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListByFight(ctx context.Context, fightID string, opts ListOpts) ([]ArbitrageOpportunity, error)
}

// SnapshotCache is the hot view of the latest snapshot per (fight, sportsbook)
// key, shared with out-of-process consumers.
type SnapshotCache interface {
	SetLatest(ctx context.Context, snap OddsSnapshot) error
	GetLatest(ctx context.Context, fightID, sportsbook string) (OddsSnapshot, error)
	ListByFight(ctx context.Context, fightID string) ([]OddsSnapshot, error)
	ListFights(ctx context.Context) ([]string, error)
}

// RateLimiter enforces per-source request budgets (requests per minute/hour)
// across all sessions.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// Channel names for detector fan-out over the SignalBus. With a single
// publishing pipeline, per-channel ordering matches snapshot ingestion order.
const (
	ChannelMovementAlerts = "alerts:movement"
	ChannelOpportunities  = "alerts:arbitrage"
	ChannelPoolEvents     = "pool:events"
)

// SignalBus fans detector output out to external consumers. Per-channel
// ordering follows publish order.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads raw payloads and aged snapshots to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
