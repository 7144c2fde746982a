package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/notify"
	"github.com/ankhone/alpacahq-zipline/internal/server"
	"github.com/ankhone/alpacahq-zipline/internal/server/handler"
)

const (
	instanceLockKey     = "momobot:instance"
	dedupCleanupPeriod  = time.Minute
	serverShutdownGrace = 5 * time.Second
)

// TradeMode runs the session scheduler, the trade_updates stream and the
// status server until ctx is cancelled. When redis is wired only one
// process per account may trade at a time.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	var lockLost <-chan struct{}
	if deps.LockManager != nil {
		unlock, lost, err := deps.LockManager.Acquire(ctx, instanceLockKey, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance is trading: %w", err)
			}
			return fmt.Errorf("app: acquire instance lock: %w", err)
		}
		defer unlock()
		lockLost = lost
	}

	eng := buildEngine(a.cfg, deps, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	if lockLost != nil {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-lockLost:
				a.logger.Error("instance lock lost, stopping trade mode")
				return fmt.Errorf("app: instance lock: %w", domain.ErrLockLost)
			}
		})
	}

	g.Go(func() error {
		return eng.scheduler.Run(ctx, eng.momentum)
	})

	if deps.Stream != nil {
		deps.Stream.OnTradeUpdate(a.tradeUpdateHandler(ctx, deps.Notifier))
		g.Go(func() error {
			return deps.Stream.Run(ctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(dedupCleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				eng.executor.Cleanup()
			}
		}
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// ScanMode runs the universe screen once and prints the selected symbols.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	eng := buildEngine(a.cfg, deps, a.logger)
	started := time.Now()
	universe, err := eng.universe.Select(ctx)
	if err != nil {
		return fmt.Errorf("app: universe scan: %w", err)
	}

	for _, inst := range universe {
		fmt.Fprintln(a.out, inst.Symbol)
	}
	a.logger.InfoContext(ctx, "universe scan complete",
		slog.Int("selected", len(universe)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, eng.momentum),
		Positions: handler.NewPositionHandler(eng.momentum, deps.Alpaca, a.logger),
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// tradeUpdateHandler counts fills and forwards completed ones to the
// notifier. Other lifecycle events are only logged.
func (a *App) tradeUpdateHandler(ctx context.Context, notifier *notify.Notifier) func(domain.TradeUpdate) {
	logger := a.logger.With(slog.String("component", "trade_updates"))
	return func(u domain.TradeUpdate) {
		attrs := []any{
			slog.String("event", u.Event),
			slog.String("symbol", u.Order.Symbol),
			slog.String("side", string(u.Order.Side)),
			slog.String("order_id", u.Order.ID),
		}
		switch u.Event {
		case "fill", "partial_fill":
			metrics.Fills.WithLabelValues(string(u.Order.Side)).Inc()
			logger.Info("order filled", append(attrs,
				slog.Int64("qty", u.Qty),
				slog.Float64("price", u.Price),
			)...)
		case "rejected", "canceled", "expired":
			logger.Warn("order not filled", attrs...)
		default:
			logger.Debug("trade update", attrs...)
		}

		if u.Event != "fill" || notifier == nil {
			return
		}
		msg := fmt.Sprintf("%s %d %s @ %.2f", u.Order.Side, u.Order.FilledQty, u.Order.Symbol, u.Price)
		if err := notifier.Notify(ctx, notify.EventFill, msg); err != nil {
			logger.Warn("fill notification failed", slog.String("error", err.Error()))
		}
	}
}
