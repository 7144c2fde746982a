package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// Config tunes the scheduler.
type Config struct {
	// Lead is how long before the open the planner runs.
	Lead time.Duration
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration
	Retry      retry.Policy
}

// Scheduler drives planners across trading days.
type Scheduler struct {
	cal    domain.Calendar
	loc    *time.Location
	cfg    Config
	now    func() time.Time
	wait   func(ctx context.Context, until time.Time) error
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock and the wait primitive.
func WithClock(now func() time.Time, wait func(ctx context.Context, until time.Time) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.wait = wait
	}
}

// New creates a scheduler for the exchange in loc.
func New(cal domain.Calendar, loc *time.Location, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cal:    cal,
		loc:    loc,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "scheduler")),
	}
	s.wait = s.sleepUntil
	if s.cfg.Retry.Logger == nil {
		s.cfg.Retry.Logger = s.logger
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run plans and executes sessions until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, planner Planner) error {
	s.logger.Info("scheduler started")
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("scheduler stopped")
			return err
		}

		now := s.now().In(s.loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		sess, err := retry.DoValue(ctx, s.cfg.Retry, func(ctx context.Context) (sessionResult, error) {
			ts, ok, err := s.cal.Session(ctx, today)
			return sessionResult{ts, ok}, err
		})
		if err != nil {
			s.logger.Error("calendar lookup failed", slog.String("error", err.Error()))
			if werr := s.wait(ctx, now.Add(time.Minute)); werr != nil {
				return werr
			}
			continue
		}

		if !sess.ok || !now.Before(sess.ts.Close) {
			next := today.AddDate(0, 0, 1)
			s.logger.Info("no session remaining today", slog.Time("next_check", next))
			if err := s.wait(ctx, next); err != nil {
				return err
			}
			continue
		}

		if prep := sess.ts.Open.Add(-s.cfg.Lead); now.Before(prep) {
			if err := s.wait(ctx, prep); err != nil {
				return err
			}
		}
		if err := s.RunSession(ctx, sess.ts, planner); err != nil {
			return err
		}
		if err := s.wait(ctx, sess.ts.Close); err != nil {
			return err
		}
	}
}

type sessionResult struct {
	ts domain.TradingSession
	ok bool
}

// RunSession plans one session and runs its jobs in time order. Jobs whose
// time has already passed, or that fall after the close, are skipped. It
// returns only when ctx is cancelled or the plan is exhausted.
func (s *Scheduler) RunSession(ctx context.Context, ts domain.TradingSession, planner Planner) error {
	plan := NewPlan(ts)
	if err := planner.BeforeSession(ctx, ts, plan); err != nil {
		s.logger.Error("session planning failed",
			slog.Time("date", ts.Date),
			slog.String("error", err.Error()),
		)
	}

	entries := plan.Entries()
	s.logger.Info("session planned",
		slog.Time("open", ts.Open),
		slog.Time("close", ts.Close),
		slog.Int("jobs", len(entries)),
	)

	start := s.now()
	for _, e := range entries {
		if e.At.Before(start) || e.At.After(ts.Close) {
			s.logger.Debug("job skipped", slog.String("job", e.Name), slog.Time("at", e.At))
			continue
		}
		if err := s.wait(ctx, e.At); err != nil {
			return err
		}
		s.runJob(ctx, e)
	}
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, e Entry) {
	jobCtx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	started := s.now()
	err := s.safeRun(jobCtx, e)
	if err != nil {
		metrics.JobRuns.WithLabelValues(e.Name, "error").Inc()
		s.logger.Warn("job failed",
			slog.String("job", e.Name),
			slog.String("trigger", e.Trigger.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.JobRuns.WithLabelValues(e.Name, "ok").Inc()
	s.logger.Debug("job done",
		slog.String("job", e.Name),
		slog.Duration("took", s.now().Sub(started)),
	)
}

// safeRun keeps a panicking job from taking the session down.
func (s *Scheduler) safeRun(ctx context.Context, e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule: job %s panicked: %v", e.Name, r)
		}
	}()
	return e.Job(ctx)
}

func (s *Scheduler) sleepUntil(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
