package fundamentals

import (
	"context"
	"strings"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

func symbolsOf(instruments []domain.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}

// USCompanyFilter keeps instruments whose issuer is domiciled in the US.
type USCompanyFilter struct {
	svc *Service
}

// NewUSCompanyFilter creates the filter.
func NewUSCompanyFilter(svc *Service) *USCompanyFilter {
	return &USCompanyFilter{svc: svc}
}

func (f *USCompanyFilter) Name() string { return "us_company" }

func (f *USCompanyFilter) ComputeMask(ctx context.Context, instruments []domain.Instrument) ([]bool, error) {
	companies, err := f.svc.Companies(ctx, symbolsOf(instruments))
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(instruments))
	for i, inst := range instruments {
		co, ok := companies[inst.Symbol]
		mask[i] = ok && strings.EqualFold(co.Country, "us")
	}
	return mask, nil
}

// FinancialsFilter keeps instruments whose most recent report carries a
// non-zero total revenue.
type FinancialsFilter struct {
	svc *Service
}

// NewFinancialsFilter creates the filter.
func NewFinancialsFilter(svc *Service) *FinancialsFilter {
	return &FinancialsFilter{svc: svc}
}

func (f *FinancialsFilter) Name() string { return "company_with_financials" }

func (f *FinancialsFilter) ComputeMask(ctx context.Context, instruments []domain.Instrument) ([]bool, error) {
	financials, err := f.svc.Financials(ctx, symbolsOf(instruments))
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(instruments))
	for i, inst := range instruments {
		reports := financials[inst.Symbol]
		mask[i] = len(reports) > 0 && reports[0].TotalRevenue != nil && *reports[0].TotalRevenue != 0
	}
	return mask, nil
}

var (
	_ domain.MaskFilter = (*USCompanyFilter)(nil)
	_ domain.MaskFilter = (*FinancialsFilter)(nil)
)
