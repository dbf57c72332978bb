package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strikeodds/strikebot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const insertSnapshotSQL = `
	INSERT INTO odds_snapshots (
		fight_id, sportsbook, captured_at,
		fighter1_ml, fighter2_ml,
		method_ko, method_sub, method_dec, rounds
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Insert appends one snapshot to the history.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.OddsSnapshot) error {
	_, err := s.pool.Exec(ctx, insertSnapshotSQL, snapshotArgs(snap)...)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.Key(), err)
	}
	return nil
}

func snapshotArgs(snap domain.OddsSnapshot) []any {
	return []any{
		snap.FightID, snap.Sportsbook, snap.Timestamp,
		snap.Moneyline.Fighter1, snap.Moneyline.Fighter2,
		snap.Method.KO, snap.Method.Submission, snap.Method.Decision,
		snap.Rounds,
	}
}

const selectSnapshotSQL = `
	SELECT fight_id, sportsbook, captured_at,
	       fighter1_ml, fighter2_ml,
	       method_ko, method_sub, method_dec, rounds
	FROM odds_snapshots`

// Latest returns the most recent snapshot for a (fight, sportsbook) key.
func (s *SnapshotStore) Latest(ctx context.Context, fightID, sportsbook string) (domain.OddsSnapshot, error) {
	row := s.pool.QueryRow(ctx, selectSnapshotSQL+`
		WHERE fight_id = $1 AND sportsbook = $2
		ORDER BY captured_at DESC
		LIMIT 1`, fightID, sportsbook)

	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OddsSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("postgres: latest snapshot %s|%s: %w", fightID, sportsbook, err)
	}
	return snap, nil
}

// ListByFight returns a fight's snapshot history, newest first.
func (s *SnapshotStore) ListByFight(ctx context.Context, fightID string, opts domain.ListOpts) ([]domain.OddsSnapshot, error) {
	query := selectSnapshotSQL + ` WHERE fight_id = $1`
	args := []any{fightID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND captured_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND captured_at < $%d", len(args))
	}
	query += " ORDER BY captured_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", fightID, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListBefore returns snapshots captured before the cutoff, oldest first, for
// archival.
func (s *SnapshotStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.OddsSnapshot, error) {
	rows, err := s.pool.Query(ctx, selectSnapshotSQL+`
		WHERE captured_at < $1
		ORDER BY captured_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// DeleteBefore drops snapshots that have aged out of the history window.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM odds_snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM odds_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count snapshots: %w", err)
	}
	return n, nil
}

func scanSnapshot(row pgx.Row) (domain.OddsSnapshot, error) {
	var snap domain.OddsSnapshot
	err := row.Scan(
		&snap.FightID, &snap.Sportsbook, &snap.Timestamp,
		&snap.Moneyline.Fighter1, &snap.Moneyline.Fighter2,
		&snap.Method.KO, &snap.Method.Submission, &snap.Method.Decision,
		&snap.Rounds,
	)
	return snap, err
}

func collectSnapshots(rows pgx.Rows) ([]domain.OddsSnapshot, error) {
	var snaps []domain.OddsSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate snapshots: %w", err)
	}
	return snaps, nil
}
