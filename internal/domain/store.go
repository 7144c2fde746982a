package domain

import (
	"context"
	"time"
)

// PositionStore persists the engine's positions so a restarted process can
// resume the day's stops and targets.
type PositionStore interface {
	Save(ctx context.Context, day time.Time, pos Position) error
	Delete(ctx context.Context, day time.Time, symbol string) error
	ListByDay(ctx context.Context, day time.Time) ([]Position, error)
}

// AuditEntry is an append-only record of an engine decision.
type AuditEntry struct {
	Event     string
	Symbol    string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records engine decisions.
type AuditStore interface {
	Log(ctx context.Context, entry AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}
