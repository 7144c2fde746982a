package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) wait(ctx context.Context, until time.Time) error {
	if until.After(c.t) {
		c.t = until
	}
	return ctx.Err()
}

type planFunc func(ctx context.Context, s domain.TradingSession, p *Plan) error

func (f planFunc) BeforeSession(ctx context.Context, s domain.TradingSession, p *Plan) error {
	return f(ctx, s, p)
}

type noCalendar struct{}

func (noCalendar) Session(context.Context, time.Time) (domain.TradingSession, bool, error) {
	return domain.TradingSession{}, false, nil
}

func session() domain.TradingSession {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	return domain.TradingSession{
		Date:  day,
		Open:  day.Add(14*time.Hour + 30*time.Minute),
		Close: day.Add(21 * time.Hour),
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTriggerResolution(t *testing.T) {
	s := session()
	assert.Equal(t, s.Open.Add(16*time.Minute), AfterOpen(16).At(s))
	assert.Equal(t, s.Close.Add(-25*time.Minute), BeforeClose(25).At(s))
	assert.Equal(t, "open+16m", AfterOpen(16).String())
	assert.Equal(t, "close-25m", BeforeClose(25).String())
}

func TestRunSessionOrdersJobsAndSkipsPast(t *testing.T) {
	s := session()
	clk := &fakeClock{t: s.Open.Add(20 * time.Minute)}
	sched := New(noCalendar{}, time.UTC, Config{}, quiet(), WithClock(clk.now, clk.wait))

	var ran []string
	record := func(name string) Job {
		return func(context.Context) error {
			ran = append(ran, name+"@"+clk.t.Format("15:04"))
			return nil
		}
	}
	planner := planFunc(func(_ context.Context, _ domain.TradingSession, p *Plan) error {
		p.Add("liquidate", AfterOpen(1), record("liquidate"))
		p.Every("entry", 16, 22, record("entry"))
		p.Every("exit", 21, 22, record("exit"))
		p.Add("close", BeforeClose(25), record("close"))
		p.Add("late", AfterOpen(400), record("late"))
		return nil
	})

	require.NoError(t, sched.RunSession(context.Background(), s, planner))
	assert.Equal(t, []string{
		"entry@14:50", "entry@14:51", "exit@14:51", "entry@14:52", "exit@14:52", "close@20:35",
	}, ran)
}

func TestRunSessionSurvivesFailingAndPanickingJobs(t *testing.T) {
	s := session()
	clk := &fakeClock{t: s.Open}
	sched := New(noCalendar{}, time.UTC, Config{JobTimeout: time.Second}, quiet(), WithClock(clk.now, clk.wait))

	calls := 0
	planner := planFunc(func(_ context.Context, _ domain.TradingSession, p *Plan) error {
		p.Add("boom", AfterOpen(1), func(context.Context) error { panic("nil map") })
		p.Add("fail", AfterOpen(2), func(context.Context) error { return errors.New("upstream") })
		p.Add("ok", AfterOpen(3), func(context.Context) error { calls++; return nil })
		return nil
	})

	require.NoError(t, sched.RunSession(context.Background(), s, planner))
	assert.Equal(t, 1, calls)
}

func TestRunSessionStopsOnCancel(t *testing.T) {
	s := session()
	clk := &fakeClock{t: s.Open}
	ctx, cancel := context.WithCancel(context.Background())
	sched := New(noCalendar{}, time.UTC, Config{}, quiet(), WithClock(clk.now, clk.wait))

	calls := 0
	planner := planFunc(func(_ context.Context, _ domain.TradingSession, p *Plan) error {
		p.Every("exit", 1, 5, func(context.Context) error {
			calls++
			if calls == 2 {
				cancel()
			}
			return nil
		})
		return nil
	})

	err := sched.RunSession(ctx, s, planner)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRunWaitsThroughClosedDays(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	checks := 0
	cal := calendarFunc(func(context.Context, time.Time) (domain.TradingSession, bool, error) {
		checks++
		if checks == 2 {
			cancel()
		}
		return domain.TradingSession{}, false, nil
	})
	sched := New(cal, time.UTC, Config{}, quiet(), WithClock(clk.now, clk.wait))

	err := sched.Run(ctx, planFunc(func(context.Context, domain.TradingSession, *Plan) error { return nil }))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), clk.t)
}

type calendarFunc func(context.Context, time.Time) (domain.TradingSession, bool, error)

func (f calendarFunc) Session(ctx context.Context, day time.Time) (domain.TradingSession, bool, error) {
	return f(ctx, day)
}
