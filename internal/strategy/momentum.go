package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/schedule"
)

// SnapshotArchiver keeps the end-of-day session snapshot.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, date time.Time, body []byte) error
}

// Momentum wires the decision components into a daily plan.
type Momentum struct {
	universe   *UniverseFilter
	opening    *OpeningRangeTracker
	entries    *EntryScanner
	exits      *ExitMonitor
	liquidator *Liquidator
	store      domain.PositionStore
	archiver   SnapshotArchiver
	params     Params
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	current *Session
}

// NewMomentum creates the planner. store may be nil.
func NewMomentum(
	universe *UniverseFilter,
	opening *OpeningRangeTracker,
	entries *EntryScanner,
	exits *ExitMonitor,
	liquidator *Liquidator,
	store domain.PositionStore,
	params Params,
	logger *slog.Logger,
) *Momentum {
	return &Momentum{
		universe:   universe,
		opening:    opening,
		entries:    entries,
		exits:      exits,
		liquidator: liquidator,
		store:      store,
		params:     params,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "momentum")),
	}
}

// SetArchiver enables the end-of-day snapshot job.
func (m *Momentum) SetArchiver(a SnapshotArchiver) {
	m.archiver = a
}

// Session returns the current day's state, or nil before the first plan.
func (m *Momentum) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// BeforeSession builds the day's state and registers its jobs. A failed
// universe scan leaves the universe empty; liquidation still runs.
func (m *Momentum) BeforeSession(ctx context.Context, ts domain.TradingSession, plan *schedule.Plan) error {
	sess := NewSession(ts, m.store, m.logger)
	if err := sess.Restore(ctx); err != nil {
		m.logger.Warn("restore positions failed", slog.String("error", err.Error()))
	}
	metrics.OpenPositions.Set(float64(len(sess.Positions())))

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	universe, err := m.universe.Select(ctx)
	if err != nil {
		m.logger.Error("universe scan failed", slog.String("error", err.Error()))
	}
	sess.SetUniverse(universe)

	bind := func(fn func(context.Context, *Session) error) schedule.Job {
		return func(ctx context.Context) error { return fn(ctx, sess) }
	}

	plan.Add("liquidate_open", schedule.AfterOpen(m.params.LiquidateAfterOpen), bind(m.liquidator.Liquidate))
	if m.opening.Elapsed(ts, m.now()) {
		if err := m.opening.Mark(ctx, sess); err != nil {
			m.logger.Error("opening range failed", slog.String("error", err.Error()))
		}
	} else {
		plan.Add("opening_range", schedule.AfterOpen(m.params.OpeningRangeMinutes), bind(m.opening.Mark))
	}
	plan.Every("entry_scan", m.params.EntryFrom, m.params.EntryTo, bind(m.entries.Scan))
	plan.Every("exit_check", m.params.ExitFrom, m.params.ExitTo, bind(m.exits.Check))
	plan.Add("liquidate_close", schedule.BeforeClose(m.params.LiquidateBeforeClose), bind(m.liquidator.Liquidate))
	if m.archiver != nil {
		plan.Add("archive_session", schedule.BeforeClose(1), bind(m.archive))
	}
	return nil
}

func (m *Momentum) archive(ctx context.Context, sess *Session) error {
	snap := sess.Snapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("strategy: encode snapshot: %w", err)
	}
	if err := m.archiver.ArchiveSnapshot(ctx, snap.Date, body); err != nil {
		return fmt.Errorf("strategy: archive snapshot: %w", err)
	}
	return nil
}

var _ schedule.Planner = (*Momentum)(nil)
