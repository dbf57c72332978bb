package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strikeodds/strikebot/internal/domain"
)

// snapshotTTL ages cache entries out on their own; fights that stop being
// synced disappear from the hot view without an explicit sweep.
const snapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache: the latest snapshot per
// (fight, sportsbook) key as JSON values, with index sets for enumeration.
type SnapshotCache struct {
	rdb *redis.Client
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(fightID, sportsbook string) string {
	return "odds:" + fightID + ":" + sportsbook
}

func fightBooksKey(fightID string) string {
	return "odds-books:" + fightID
}

const fightsKey = "odds-fights"

// SetLatest replaces the hot snapshot for the (fight, sportsbook) key and
// refreshes the enumeration indexes.
func (sc *SnapshotCache) SetLatest(ctx context.Context, snap domain.OddsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Key(), err)
	}

	pipe := sc.rdb.TxPipeline()
	pipe.Set(ctx, snapshotKey(snap.FightID, snap.Sportsbook), data, snapshotTTL)
	pipe.SAdd(ctx, fightBooksKey(snap.FightID), snap.Sportsbook)
	pipe.Expire(ctx, fightBooksKey(snap.FightID), snapshotTTL)
	pipe.SAdd(ctx, fightsKey, snap.FightID)
	pipe.Expire(ctx, fightsKey, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Key(), err)
	}
	return nil
}

// GetLatest returns the hot snapshot for a (fight, sportsbook) key, or
// domain.ErrNotFound when none is cached.
func (sc *SnapshotCache) GetLatest(ctx context.Context, fightID, sportsbook string) (domain.OddsSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(fightID, sportsbook)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OddsSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("redis: get snapshot %s|%s: %w", fightID, sportsbook, err)
	}

	var snap domain.OddsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s|%s: %w", fightID, sportsbook, err)
	}
	return snap, nil
}

// ListByFight returns every cached book's snapshot for one fight. Entries
// whose value has expired out from under the index are skipped.
func (sc *SnapshotCache) ListByFight(ctx context.Context, fightID string) ([]domain.OddsSnapshot, error) {
	books, err := sc.rdb.SMembers(ctx, fightBooksKey(fightID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list books for %s: %w", fightID, err)
	}
	if len(books) == 0 {
		return nil, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(books))
	for i, book := range books {
		cmds[i] = pipe.Get(ctx, snapshotKey(fightID, book))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: list snapshots for %s: %w", fightID, err)
	}

	var snaps []domain.OddsSnapshot
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: get snapshot %s|%s: %w", fightID, books[i], err)
		}
		var snap domain.OddsSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("redis: unmarshal snapshot %s|%s: %w", fightID, books[i], err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// ListFights returns the fight ids present in the hot view.
func (sc *SnapshotCache) ListFights(ctx context.Context) ([]string, error) {
	fights, err := sc.rdb.SMembers(ctx, fightsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list fights: %w", err)
	}
	return fights, nil
}
