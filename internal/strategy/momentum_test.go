package strategy

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/schedule"
)

type memPositionStore struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{rows: map[string]domain.Position{}}
}

func (s *memPositionStore) key(day time.Time, sym string) string {
	return day.Format(time.DateOnly) + "/" + sym
}

func (s *memPositionStore) Save(_ context.Context, day time.Time, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[s.key(day, p.Symbol)] = p
	return nil
}

func (s *memPositionStore) Delete(_ context.Context, day time.Time, sym string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, s.key(day, sym))
	return nil
}

func (s *memPositionStore) ListByDay(_ context.Context, day time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := day.Format(time.DateOnly) + "/"
	var out []domain.Position
	for k, p := range s.rows {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestMomentum(b *fakeBroker, store domain.PositionStore, now time.Time) *Momentum {
	portal := newTestPortal(b)
	params := DefaultParams()
	universe := newUniverse(b, now, 200)
	opening := NewOpeningRangeTracker(portal, params, quietLogger())
	opening.now = fixedClock(now)
	entries := newScanner(b, now)
	exits := NewExitMonitor(portal, b, b, nil, params, testPolicy(), quietLogger())
	liq := NewLiquidator(b, b, nil, testPolicy(), quietLogger())
	m := NewMomentum(universe, opening, entries, exits, liq, store, params, quietLogger())
	m.now = fixedClock(now)
	return m
}

func countJobs(plan *schedule.Plan) map[string]int {
	out := map[string]int{}
	for _, e := range plan.Entries() {
		out[e.Name]++
	}
	return out
}

func TestMomentumPlanBeforeOpeningRange(t *testing.T) {
	now := time.Date(2024, 3, 4, 8, 45, 0, 0, nyc)
	b := universeBroker(time.Date(2024, 3, 4, 0, 0, 0, 0, nyc))
	m := newTestMomentum(b, nil, now)

	plan := schedule.NewPlan(testSession())
	require.NoError(t, m.BeforeSession(context.Background(), testSession(), plan))

	assert.Equal(t, map[string]int{
		"liquidate_open":  1,
		"opening_range":   1,
		"entry_scan":      14,
		"exit_check":      336,
		"liquidate_close": 1,
	}, countJobs(plan))

	entries := plan.Entries()
	assert.Equal(t, "liquidate_open", entries[0].Name)
	assert.Equal(t, openPlus(1), entries[0].At)
	assert.Equal(t, "opening_range", entries[1].Name)
	assert.Equal(t, openPlus(15), entries[1].At)

	snap := m.Session().Snapshot()
	assert.Equal(t, 3, snap.UniverseSize)
	assert.False(t, snap.OpeningRangeDone)
}

func TestMomentumPlanAfterOpeningRangeMarksImmediately(t *testing.T) {
	now := openPlus(40)
	b := universeBroker(time.Date(2024, 3, 4, 0, 0, 0, 0, nyc))
	b.minute["GOOD"] = []domain.Bar{{Time: openPlus(3), Close: 5.2}, {Time: openPlus(20), Close: 5.9}}
	m := newTestMomentum(b, nil, now)

	plan := schedule.NewPlan(testSession())
	require.NoError(t, m.BeforeSession(context.Background(), testSession(), plan))

	assert.NotContains(t, countJobs(plan), "opening_range")
	hi, ok := m.Session().OpeningHigh("GOOD")
	require.True(t, ok)
	assert.Equal(t, 5.2, hi)
}

func TestMomentumRestoresPositions(t *testing.T) {
	store := newMemPositionStore()
	ts := testSession()
	require.NoError(t, store.Save(context.Background(), ts.Date, domain.Position{Symbol: "AAA", Stop: 4, Target: 7, Shares: 9}))
	require.NoError(t, store.Save(context.Background(), ts.Date.AddDate(0, 0, -1), domain.Position{Symbol: "OLD"}))

	b := universeBroker(ts.Date)
	m := newTestMomentum(b, store, openPlus(40))
	require.NoError(t, m.BeforeSession(context.Background(), ts, schedule.NewPlan(ts)))

	positions := m.Session().Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "AAA", positions[0].Symbol)

	m.Session().Close(context.Background(), "AAA")
	left, err := store.ListByDay(context.Background(), ts.Date)
	require.NoError(t, err)
	assert.Empty(t, left)
}

var _ Prices = (*marketdata.Portal)(nil)

type memArchiver struct {
	date time.Time
	body []byte
}

func (a *memArchiver) ArchiveSnapshot(_ context.Context, date time.Time, body []byte) error {
	a.date, a.body = date, body
	return nil
}

func TestMomentumArchivesSnapshotBeforeClose(t *testing.T) {
	ts := testSession()
	b := universeBroker(ts.Date)
	m := newTestMomentum(b, nil, openPlus(40))
	arch := &memArchiver{}
	m.SetArchiver(arch)

	plan := schedule.NewPlan(ts)
	require.NoError(t, m.BeforeSession(context.Background(), ts, plan))

	entries := plan.Entries()
	last := entries[len(entries)-1]
	require.Equal(t, "archive_session", last.Name)
	assert.Equal(t, ts.Close.Add(-time.Minute), last.At)

	require.NoError(t, last.Job(context.Background()))
	assert.True(t, arch.date.Equal(ts.Date))
	var snap Snapshot
	require.NoError(t, json.Unmarshal(arch.body, &snap))
	assert.Equal(t, 3, snap.UniverseSize)
}
