// Package notify fans trading events out to chat channels. Events can be
// filtered so operators only hear about the ones they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// Event names emitted by the engine.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventLiquidation    = "liquidation"
	EventFill           = "fill"
	EventError          = "error"
)

var titles = map[string]string{
	EventPositionOpened: "Position opened",
	EventPositionClosed: "Position closed",
	EventLiquidation:    "Liquidation",
	EventFill:           "Order filled",
	EventError:          "Engine error",
}

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implements domain.Notifier over a set of senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed events; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// delivered; an empty list delivers everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers message to every sender if event passes the filter. A
// failing sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	title, ok := titles[event]
	if !ok {
		title = event
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

var _ domain.Notifier = (*Notifier)(nil)
