package app

import (
	"log/slog"

	"github.com/ankhone/alpacahq-zipline/internal/config"
	"github.com/ankhone/alpacahq-zipline/internal/dailycache"
	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/executor"
	"github.com/ankhone/alpacahq-zipline/internal/fundamentals"
	"github.com/ankhone/alpacahq-zipline/internal/marketdata"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
	"github.com/ankhone/alpacahq-zipline/internal/platform/iex"
	"github.com/ankhone/alpacahq-zipline/internal/platform/polygon"
	"github.com/ankhone/alpacahq-zipline/internal/retry"
	"github.com/ankhone/alpacahq-zipline/internal/schedule"
	"github.com/ankhone/alpacahq-zipline/internal/strategy"
)

// engine holds the decision components built on top of Dependencies.
type engine struct {
	executor  *executor.Executor
	universe  *strategy.UniverseFilter
	momentum  *strategy.Momentum
	scheduler *schedule.Scheduler
}

func strategyParams(c config.StrategyConfig) strategy.Params {
	return strategy.Params{
		MinGap:               c.MinGap,
		RiskFraction:         c.RiskFraction,
		MaxNotional:          c.MaxNotional,
		RewardRisk:           c.RewardRisk,
		StopOffset:           c.StopOffset,
		OpeningRangeMinutes:  c.OpeningRangeMinutes,
		OpeningRangeLookback: c.OpeningRangeLookback,
		StopLookback:         c.StopLookback,
		ExitLookback:         c.ExitLookback,
		DailyLookback:        c.DailyLookback,
		MACDFast:             c.MACDFast,
		MACDSlow:             c.MACDSlow,
		MACDSignal:           c.MACDSignal,
		EntryFrom:            c.EntryFrom,
		EntryTo:              c.EntryTo,
		ExitFrom:             c.ExitFrom,
		ExitTo:               c.ExitTo,
		LiquidateAfterOpen:   c.LiquidateAfterOpen,
		LiquidateBeforeClose: c.LiquidateBeforeClose,
	}
}

func universeParams(c config.UniverseConfig) strategy.UniverseParams {
	return strategy.UniverseParams{
		BatchSize: c.BatchSize,
		Lookback:  c.Lookback,
		MaxBarAge: c.MaxBarAge.Duration,
		MinVolume: c.MinVolume,
		MinPrice:  c.MinPrice,
		MaxPrice:  c.MaxPrice,
	}
}

// maskFilters builds the optional fundamentals screens. Both share one
// day-cached service so a restarted process does not refetch them.
func maskFilters(cfg *config.Config, deps *Dependencies, logger *slog.Logger) []domain.MaskFilter {
	if !cfg.Universe.USCompanies && !cfg.Universe.RequireFinancials {
		return nil
	}

	var (
		companies  domain.CompanySource
		financials domain.FinancialsSource
	)
	if cfg.Universe.USCompanies {
		companies = polygon.NewClient(cfg.Polygon.BaseURL, cfg.Polygon.APIKey, deps.RateLimiter)
	}
	if cfg.Universe.RequireFinancials {
		financials = iex.NewClient(cfg.IEX.BaseURL, cfg.IEX.Token)
	}

	cache := dailycache.New(deps.CacheStore, logger, dailycache.WithObserver(func(name string, hit bool) {
		metrics.CacheObserver(name)(hit)
	}))
	svc := fundamentals.New(companies, financials, cache, logger)

	var filters []domain.MaskFilter
	if cfg.Universe.USCompanies {
		filters = append(filters, fundamentals.NewUSCompanyFilter(svc))
	}
	if cfg.Universe.RequireFinancials {
		filters = append(filters, fundamentals.NewFinancialsFilter(svc))
	}
	return filters
}

// buildEngine assembles the momentum planner and its scheduler.
func buildEngine(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *engine {
	policy := retry.Policy{Attempts: cfg.Retry.Attempts, Unit: cfg.Retry.Unit.Duration}
	dataPolicy := policy.WithAttempts(cfg.Retry.DataAttempts)
	params := strategyParams(cfg.Strategy)
	loc := deps.Location

	portal := marketdata.NewPortal(deps.Alpaca, marketdata.PortalConfig{
		MemoSize: cfg.Cache.MemoSize,
		MemoTTL:  cfg.Cache.MemoTTL.Duration,
		Retry:    dataPolicy,
	}, logger)
	portal.OnMemo(metrics.CacheObserver("price_window"))
	assets := marketdata.NewAssetFinder(deps.Alpaca, policy, logger)

	// A nil *Notifier must not reach the strategies as a non-nil interface.
	var notifier domain.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	exec := executor.New(deps.Alpaca, policy, cfg.Executor.DedupTTL.Duration, deps.AuditStore, logger)

	universe := strategy.NewUniverseFilter(
		deps.Alpaca, assets, universeParams(cfg.Universe), policy, loc, logger,
		maskFilters(cfg, deps, logger)...,
	)
	opening := strategy.NewOpeningRangeTracker(portal, params, logger)
	stops := strategy.NewStopDetector(portal, params, loc)
	entries := strategy.NewEntryScanner(portal, deps.Alpaca, exec, stops, notifier, params, policy, loc, logger)
	exits := strategy.NewExitMonitor(portal, deps.Alpaca, exec, notifier, params, policy, logger)
	liquidator := strategy.NewLiquidator(deps.Alpaca, exec, notifier, policy, logger)

	momentum := strategy.NewMomentum(universe, opening, entries, exits, liquidator, deps.PositionStore, params, logger)
	if deps.Archiver != nil {
		momentum.SetArchiver(deps.Archiver)
	}

	sched := schedule.New(deps.Alpaca, loc, schedule.Config{
		Lead:       cfg.Scheduler.Lead.Duration,
		JobTimeout: cfg.Scheduler.JobTimeout.Duration,
		Retry:      policy,
	}, logger)

	return &engine{
		executor:  exec,
		universe:  universe,
		momentum:  momentum,
		scheduler: sched,
	}
}
