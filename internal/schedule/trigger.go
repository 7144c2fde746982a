// Package schedule fires jobs at fixed offsets from each trading session's
// open and close, one job at a time.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

type anchor int

const (
	anchorOpen anchor = iota
	anchorClose
)

// Trigger is a time relative to a session's open or close.
type Trigger struct {
	anchor anchor
	offset time.Duration
}

// AfterOpen fires n minutes after the session opens.
func AfterOpen(n int) Trigger {
	return Trigger{anchor: anchorOpen, offset: time.Duration(n) * time.Minute}
}

// BeforeClose fires n minutes before the session closes.
func BeforeClose(n int) Trigger {
	return Trigger{anchor: anchorClose, offset: -time.Duration(n) * time.Minute}
}

// At resolves the trigger against a session.
func (t Trigger) At(s domain.TradingSession) time.Time {
	if t.anchor == anchorClose {
		return s.Close.Add(t.offset)
	}
	return s.Open.Add(t.offset)
}

func (t Trigger) String() string {
	if t.anchor == anchorClose {
		return fmt.Sprintf("close%+dm", int(t.offset/time.Minute))
	}
	return fmt.Sprintf("open%+dm", int(t.offset/time.Minute))
}

// Job is a scheduled callback.
type Job func(ctx context.Context) error

// Entry is one planned job run.
type Entry struct {
	Name    string
	Trigger Trigger
	At      time.Time
	Job     Job
	seq     int
}

// Plan collects the jobs of one session.
type Plan struct {
	session domain.TradingSession
	entries []Entry
}

// NewPlan starts an empty plan for s.
func NewPlan(s domain.TradingSession) *Plan {
	return &Plan{session: s}
}

// Add registers job at trigger. Jobs sharing a time run in the order they
// were added.
func (p *Plan) Add(name string, t Trigger, job Job) {
	p.entries = append(p.entries, Entry{
		Name:    name,
		Trigger: t,
		At:      t.At(p.session),
		Job:     job,
		seq:     len(p.entries),
	})
}

// Every registers job at each minute offset from..to after the open.
func (p *Plan) Every(name string, from, to int, job Job) {
	for m := from; m <= to; m++ {
		p.Add(name, AfterOpen(m), job)
	}
}

// Entries returns the plan in firing order.
func (p *Plan) Entries() []Entry {
	out := append([]Entry(nil), p.entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Planner builds the day's plan before the session starts.
type Planner interface {
	BeforeSession(ctx context.Context, s domain.TradingSession, plan *Plan) error
}
