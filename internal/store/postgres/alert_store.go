package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strikeodds/strikebot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL. The before/after
// snapshots ride along as JSONB so an alert is self-contained.
type AlertStore struct {
	pool *pgxpool.Pool
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const insertAlertSQL = `
	INSERT INTO movement_alerts (
		id, fight_id, sportsbook, movement,
		previous, current, percent_change, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

// Insert persists one alert. Replays of the same alert id are no-ops.
func (s *AlertStore) Insert(ctx context.Context, alert domain.MovementAlert) error {
	_, err := s.pool.Exec(ctx, insertAlertSQL, alertArgs(alert)...)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", alert.ID, err)
	}
	return nil
}

func alertArgs(alert domain.MovementAlert) []any {
	return []any{
		alert.ID, alert.FightID, alert.Sportsbook, string(alert.Movement),
		alert.Previous, alert.Current, alert.PercentChange, alert.DetectedAt,
	}
}

const selectAlertSQL = `
	SELECT id, fight_id, sportsbook, movement,
	       previous, current, percent_change, detected_at
	FROM movement_alerts`

// ListRecent returns the newest alerts across all fights.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.MovementAlert, error) {
	rows, err := s.pool.Query(ctx, selectAlertSQL+`
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListByFight returns a fight's alerts, newest first.
func (s *AlertStore) ListByFight(ctx context.Context, fightID string, opts domain.ListOpts) ([]domain.MovementAlert, error) {
	query := selectAlertSQL + ` WHERE fight_id = $1`
	args := []any{fightID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND detected_at >= $%d", len(args))
	}
	query += " ORDER BY detected_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts for %s: %w", fightID, err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]domain.MovementAlert, error) {
	var alerts []domain.MovementAlert
	for rows.Next() {
		var alert domain.MovementAlert
		var movement string
		err := rows.Scan(
			&alert.ID, &alert.FightID, &alert.Sportsbook, &movement,
			&alert.Previous, &alert.Current, &alert.PercentChange, &alert.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alert.Movement = domain.MovementType(movement)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}
	return alerts, nil
}
