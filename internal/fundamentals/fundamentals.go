// Package fundamentals fans company and financials lookups out over a
// bounded worker pool and exposes the results as universe mask filters.
package fundamentals

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ankhone/alpacahq-zipline/internal/dailycache"
	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/metrics"
)

const (
	companyWorkers   = 100
	financialWorkers = 10
	financialBatch   = 99
)

// Service resolves fundamentals for sets of symbols.
type Service struct {
	companies  domain.CompanySource
	financials domain.FinancialsSource
	logger     *slog.Logger

	companiesFn  func(context.Context, []string) (map[string]domain.Company, error)
	financialsFn func(context.Context, []string) (map[string][]domain.FinancialReport, error)
}

// New creates a Service. Either source may be nil, in which case the
// corresponding lookup fails. When cache is non-nil both lookups are
// memoized for the UTC day.
func New(companies domain.CompanySource, financials domain.FinancialsSource, cache *dailycache.Cache, logger *slog.Logger) *Service {
	s := &Service{
		companies:  companies,
		financials: financials,
		logger:     logger.With(slog.String("component", "fundamentals")),
	}
	s.companiesFn = s.fetchCompanies
	s.financialsFn = s.fetchFinancials
	if cache != nil {
		s.companiesFn = dailycache.Wrap(cache, "polygon_companies", s.companiesFn)
		s.financialsFn = dailycache.Wrap(cache, "iex_financials", s.financialsFn)
	}
	return s
}

// Companies returns issuer metadata keyed by symbol. Symbols whose lookup
// failed are absent from the result.
func (s *Service) Companies(ctx context.Context, symbols []string) (map[string]domain.Company, error) {
	return s.companiesFn(ctx, sortedCopy(symbols))
}

// Financials returns financial reports keyed by symbol, restricted to the
// symbols the provider covers.
func (s *Service) Financials(ctx context.Context, symbols []string) (map[string][]domain.FinancialReport, error) {
	return s.financialsFn(ctx, sortedCopy(symbols))
}

func (s *Service) fetchCompanies(ctx context.Context, symbols []string) (map[string]domain.Company, error) {
	if s.companies == nil {
		return nil, fmt.Errorf("fundamentals: no company source configured")
	}

	type result struct {
		symbol  string
		company domain.Company
	}
	results := make(chan result, len(symbols))
	prog := newProgress(s.logger, "companies", len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(companyWorkers)
	for _, sym := range symbols {
		g.Go(func() error {
			co, err := s.companies.Company(gctx, sym)
			prog.add(1)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.FetchFailures.WithLabelValues("company").Inc()
				s.logger.Debug("company lookup failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results <- result{symbol: sym, company: co}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fundamentals: companies: %w", err)
	}
	close(results)

	out := make(map[string]domain.Company, len(symbols))
	for r := range results {
		out[r.symbol] = r.company
	}
	if len(symbols) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("fundamentals: companies: every lookup failed: %w", domain.ErrTransientData)
	}
	return out, nil
}

func (s *Service) fetchFinancials(ctx context.Context, symbols []string) (map[string][]domain.FinancialReport, error) {
	if s.financials == nil {
		return nil, fmt.Errorf("fundamentals: no financials source configured")
	}

	available, err := s.financials.AvailableSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("fundamentals: available symbols: %w: %w", domain.ErrTransientData, err)
	}
	covered := make(map[string]struct{}, len(available))
	for _, sym := range available {
		covered[sym] = struct{}{}
	}
	wanted := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := covered[sym]; ok {
			wanted = append(wanted, sym)
		}
	}

	var (
		mu  sync.Mutex
		out = make(map[string][]domain.FinancialReport, len(wanted))
	)
	prog := newProgress(s.logger, "financials", len(wanted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(financialWorkers)
	for batch := range slices.Chunk(wanted, financialBatch) {
		g.Go(func() error {
			part, err := s.financials.Financials(gctx, batch)
			if err != nil {
				metrics.FetchFailures.WithLabelValues("financials").Inc()
				return err
			}
			mu.Lock()
			for sym, reports := range part {
				out[sym] = reports
			}
			mu.Unlock()
			prog.add(len(part))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fundamentals: financials: %w: %w", domain.ErrTransientData, err)
	}
	return out, nil
}

// progress logs completion each time another tenth of the work finishes.
type progress struct {
	mu     sync.Mutex
	logger *slog.Logger
	what   string
	total  int
	done   int
	next   float64
}

func newProgress(logger *slog.Logger, what string, total int) *progress {
	return &progress{logger: logger, what: what, total: total, next: 10}
}

func (p *progress) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return
	}
	p.done += n
	pct := float64(p.done) / float64(p.total) * 100
	if pct < p.next {
		return
	}
	p.logger.Debug("fetch progress",
		slog.String("what", p.what),
		slog.String("completed", fmt.Sprintf("%.2f%%", pct)),
	)
	p.next = float64(int(pct+10) / 10 * 10)
}

func sortedCopy(symbols []string) []string {
	out := slices.Clone(symbols)
	slices.Sort(out)
	return slices.Compact(out)
}
