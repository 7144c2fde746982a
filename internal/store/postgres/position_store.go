package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// PositionStore implements domain.PositionStore. Rows are keyed by the
// session date and symbol.
type PositionStore struct {
	db querier
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{db: pool}
}

func sessionDate(day time.Time) string {
	return day.Format(time.DateOnly)
}

// Save upserts pos for day.
func (s *PositionStore) Save(ctx context.Context, day time.Time, pos domain.Position) error {
	const query = `
		INSERT INTO positions (session_date, symbol, stop, target, shares, entered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_date, symbol) DO UPDATE SET
			stop       = EXCLUDED.stop,
			target     = EXCLUDED.target,
			shares     = EXCLUDED.shares,
			entered_at = EXCLUDED.entered_at,
			updated_at = NOW()`
	_, err := s.db.Exec(ctx, query,
		sessionDate(day), pos.Symbol, pos.Stop, pos.Target, pos.Shares, pos.EnteredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.Symbol, err)
	}
	return nil
}

// Delete removes symbol's position for day. Deleting a missing row is not an error.
func (s *PositionStore) Delete(ctx context.Context, day time.Time, symbol string) error {
	const query = `DELETE FROM positions WHERE session_date = $1 AND symbol = $2`
	if _, err := s.db.Exec(ctx, query, sessionDate(day), symbol); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", symbol, err)
	}
	return nil
}

// ListByDay returns day's positions ordered by symbol.
func (s *PositionStore) ListByDay(ctx context.Context, day time.Time) ([]domain.Position, error) {
	const query = `
		SELECT symbol, stop, target, shares, entered_at
		FROM positions
		WHERE session_date = $1
		ORDER BY symbol`
	rows, err := s.db.Query(ctx, query, sessionDate(day))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Position, error) {
		var p domain.Position
		err := row.Scan(&p.Symbol, &p.Stop, &p.Target, &p.Shares, &p.EnteredAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
