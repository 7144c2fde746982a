package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	db querier
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: pool}
}

// Log appends entry. The detail map is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, entry domain.AuditEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (event, symbol, detail, created_at) VALUES ($1, $2, $3, COALESCE($4, NOW()))`
	var createdAt any
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}
	if _, err := s.db.Exec(ctx, query, entry.Event, entry.Symbol, detailJSON, createdAt); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", entry.Event, err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT event, symbol, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte
		if err := rows.Scan(&e.Event, &e.Symbol, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
