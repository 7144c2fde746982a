// Package executor submits the engine's orders to the broker.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
)

// DefaultDedupTTL is how long an identical order is refused after the
// first submission.
const DefaultDedupTTL = 2 * time.Minute

// Executor stamps each order with a client order id, refuses duplicates,
// submits through the retry policy and records an audit entry.
type Executor struct {
	trading domain.Trading
	dedup   *Dedup
	policy  retry.Policy
	audit   domain.AuditStore
	logger  *slog.Logger
	newID   func() string
}

// New creates an Executor. audit may be nil.
func New(trading domain.Trading, policy retry.Policy, dedupTTL time.Duration, audit domain.AuditStore, logger *slog.Logger) *Executor {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &Executor{
		trading: trading,
		dedup:   NewDedup(dedupTTL),
		policy:  policy,
		audit:   audit,
		logger:  logger.With(slog.String("component", "executor")),
		newID:   func() string { return uuid.New().String() },
	}
}

func orderKey(req domain.OrderRequest) string {
	return req.Symbol + "|" + strconv.FormatInt(req.Quantity, 10) + "|" + string(req.Side())
}

// Submit places req. The same client order id is reused across retries, so
// a retried submission the broker already accepted is rejected rather than
// doubled. When the broker can look orders up by client id, such a
// rejection resolves to the accepted order.
func (e *Executor) Submit(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	side := string(req.Side())
	if req.Quantity == 0 || req.Symbol == "" {
		metrics.OrdersTotal.WithLabelValues(side, "error").Inc()
		return domain.Order{}, fmt.Errorf("executor: %w: empty order for %q", domain.ErrInvalidOrder, req.Symbol)
	}

	key := orderKey(req)
	if e.dedup.IsDuplicate(key) {
		metrics.OrdersTotal.WithLabelValues(side, "duplicate").Inc()
		e.logger.Warn("duplicate order refused", slog.String("key", key))
		return domain.Order{}, fmt.Errorf("executor: %s: %w", key, domain.ErrDuplicateOrder)
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = e.newID()
	}
	log := e.logger.With(
		slog.String("symbol", req.Symbol),
		slog.Int64("qty", req.Quantity),
		slog.String("client_order_id", req.ClientOrderID),
		slog.String("reason", req.Reason),
	)

	lookup, _ := e.trading.(domain.OrderLookup)
	attempt := 0
	order, err := retry.DoValue(ctx, e.policy, func(ctx context.Context) (domain.Order, error) {
		attempt++
		o, err := e.trading.SubmitOrder(ctx, req)
		if err == nil || attempt == 1 || lookup == nil || !errors.Is(err, domain.ErrInvalidOrder) {
			return o, err
		}
		prior, lerr := lookup.OrderByClientID(ctx, req.ClientOrderID)
		if lerr != nil {
			return o, err
		}
		log.Warn("earlier attempt was accepted", slog.String("order_id", prior.ID))
		return prior, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidOrder) {
			// A transport failure may be retried by the caller on its next tick.
			e.dedup.Forget(key)
		}
		metrics.OrdersTotal.WithLabelValues(side, "error").Inc()
		log.Error("order submission failed", slog.String("error", err.Error()))
		e.record(ctx, req, domain.Order{}, err)
		return domain.Order{}, fmt.Errorf("executor: submit %s: %w", req.Symbol, err)
	}

	metrics.OrdersTotal.WithLabelValues(side, "ok").Inc()
	log.Info("order submitted",
		slog.String("order_id", order.ID),
		slog.String("status", string(order.Status)),
	)
	e.record(ctx, req, order, nil)
	return order, nil
}

// Cleanup expires old dedup keys. Call it periodically.
func (e *Executor) Cleanup() {
	e.dedup.Cleanup()
}

func (e *Executor) record(ctx context.Context, req domain.OrderRequest, order domain.Order, submitErr error) {
	if e.audit == nil {
		return
	}
	detail := map[string]any{
		"qty":             req.Quantity,
		"side":            string(req.Side()),
		"reason":          req.Reason,
		"client_order_id": req.ClientOrderID,
	}
	event := "order_submitted"
	if submitErr != nil {
		event = "order_failed"
		detail["error"] = submitErr.Error()
	} else {
		detail["order_id"] = order.ID
		detail["status"] = string(order.Status)
	}
	entry := domain.AuditEntry{
		Event:     event,
		Symbol:    req.Symbol,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}
