package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/strikeodds/strikebot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. Legs
// are stored as JSONB; stake amounts keep decimal precision via NUMERIC.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const insertOpportunitySQL = `
	INSERT INTO arbitrage_opportunities (
		id, fight_id, opp_type, sportsbooks, profit_margin,
		legs, total_stake, confidence, detected_at, expires_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

// Insert persists one opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	_, err := s.pool.Exec(ctx, insertOpportunitySQL, opportunityArgs(opp)...)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func opportunityArgs(opp domain.ArbitrageOpportunity) []any {
	return []any{
		opp.ID, opp.FightID, string(opp.Type), opp.Sportsbooks, opp.ProfitMargin,
		opp.Legs, opp.TotalStake.String(), string(opp.Confidence), opp.DetectedAt, opp.ExpiresAt,
	}
}

const selectOpportunitySQL = `
	SELECT id, fight_id, opp_type, sportsbooks, profit_margin,
	       legs, total_stake, confidence, detected_at, expires_at
	FROM arbitrage_opportunities`

// ListRecent returns the newest opportunities across all fights.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, selectOpportunitySQL+`
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

// ListByFight returns a fight's opportunity history, newest first.
func (s *OpportunityStore) ListByFight(ctx context.Context, fightID string, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	query := selectOpportunitySQL + ` WHERE fight_id = $1`
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
		return nil, fmt.Errorf("postgres: list opportunities for %s: %w", fightID, err)
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

func collectOpportunities(rows pgx.Rows) ([]domain.ArbitrageOpportunity, error) {
	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		var opp domain.ArbitrageOpportunity
		var typ, confidence, totalStake string
		err := rows.Scan(
			&opp.ID, &opp.FightID, &typ, &opp.Sportsbooks, &opp.ProfitMargin,
			&opp.Legs, &totalStake, &confidence, &opp.DetectedAt, &opp.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opp.Type = domain.OpportunityType(typ)
		opp.Confidence = domain.Confidence(confidence)
		stake, err := decimal.NewFromString(totalStake)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse total stake %q: %w", totalStake, err)
		}
		opp.TotalStake = stake
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}
