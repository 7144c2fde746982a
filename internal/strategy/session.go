package strategy

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// Session is the state of one trading day: the universe, the opening range
// and the positions the engine opened. Decision callbacks mutate it from
// the scheduler goroutine; HTTP handlers read it concurrently.
type Session struct {
	trading domain.TradingSession
	store   domain.PositionStore
	logger  *slog.Logger

	mu           sync.RWMutex
	universe     []domain.Instrument
	openingRange map[string]float64
	rangeMarked  bool
	positions    map[string]domain.Position
}

// NewSession creates the state for ts. store may be nil.
func NewSession(ts domain.TradingSession, store domain.PositionStore, logger *slog.Logger) *Session {
	return &Session{
		trading:      ts,
		store:        store,
		logger:       logger.With(slog.String("component", "session")),
		openingRange: map[string]float64{},
		positions:    map[string]domain.Position{},
	}
}

// TradingSession returns the exchange session this state belongs to.
func (s *Session) TradingSession() domain.TradingSession { return s.trading }

// Restore reloads positions persisted earlier the same day.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	list, err := s.store.ListByDay(ctx, s.trading.Date)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range list {
		s.positions[p.Symbol] = p
	}
	if len(list) > 0 {
		s.logger.Info("restored positions", slog.Int("count", len(list)))
	}
	return nil
}

// SetUniverse replaces the day's instruments.
func (s *Session) SetUniverse(list []domain.Instrument) {
	s.mu.Lock()
	s.universe = slices.Clone(list)
	s.mu.Unlock()
}

// Universe returns a copy of the day's instruments.
func (s *Session) Universe() []domain.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.universe)
}

// Symbols returns the universe symbols in universe order.
func (s *Session) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.universe))
	for i, in := range s.universe {
		out[i] = in.Symbol
	}
	return out
}

// SetOpeningRange stores the opening-range highs. Later calls are ignored.
func (s *Session) SetOpeningRange(highs map[string]float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rangeMarked {
		return false
	}
	for k, v := range highs {
		s.openingRange[k] = v
	}
	s.rangeMarked = true
	return true
}

// OpeningHigh returns symbol's opening-range high.
func (s *Session) OpeningHigh(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.openingRange[symbol]
	return v, ok
}

// Position returns the recorded position for symbol.
func (s *Session) Position(symbol string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Positions returns all recorded positions ordered by symbol.
func (s *Session) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Open records a new position. Persistence failures are logged only.
func (s *Session) Open(ctx context.Context, p domain.Position) {
	s.mu.Lock()
	s.positions[p.Symbol] = p
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, s.trading.Date, p); err != nil {
			s.logger.Warn("persist position failed",
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close forgets symbol's position.
func (s *Session) Close(ctx context.Context, symbol string) {
	s.mu.Lock()
	_, ok := s.positions[symbol]
	delete(s.positions, symbol)
	s.mu.Unlock()

	if ok && s.store != nil {
		if err := s.store.Delete(ctx, s.trading.Date, symbol); err != nil {
			s.logger.Warn("delete position failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Settle drops the positions whose symbol has neither a holding nor a
// pending order: the closing sell filled, or the opening buy was rejected,
// canceled or expired. A position stays recorded while its order is in
// flight so a failed exit is retried on the next check. It returns the
// dropped symbols in order.
func (s *Session) Settle(ctx context.Context, holdings map[string]domain.Holding, pending map[string]bool) []string {
	var gone []string
	for _, p := range s.Positions() {
		if pending[p.Symbol] {
			continue
		}
		if h, held := holdings[p.Symbol]; held && h.Shares != 0 {
			continue
		}
		gone = append(gone, p.Symbol)
	}
	for _, sym := range gone {
		s.Close(ctx, sym)
	}
	if len(gone) > 0 {
		s.logger.Info("settled positions", slog.Any("symbols", gone))
	}
	return gone
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Date             time.Time         `json:"date"`
	Open             time.Time         `json:"open"`
	Close            time.Time         `json:"close"`
	UniverseSize     int               `json:"universe_size"`
	OpeningRangeSize int               `json:"opening_range_size"`
	OpeningRangeDone bool              `json:"opening_range_done"`
	Positions        []domain.Position `json:"positions"`
}

// Snapshot captures the session for reporting.
func (s *Session) Snapshot() Snapshot {
	positions := s.Positions()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Date:             s.trading.Date,
		Open:             s.trading.Open,
		Close:            s.trading.Close,
		UniverseSize:     len(s.universe),
		OpeningRangeSize: len(s.openingRange),
		OpeningRangeDone: s.rangeMarked,
		Positions:        positions,
	}
}
