package domain

import "context"

// Company is reference metadata for a listed issuer.
type Company struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Exchange  string  `json:"exchange"`
	Industry  string  `json:"industry"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"marketcap"`
}

// FinancialReport is one reporting period of an issuer's statements. Nil
// fields were not reported.
type FinancialReport struct {
	ReportDate   string   `json:"reportDate"`
	TotalRevenue *float64 `json:"totalRevenue"`
	NetIncome    *float64 `json:"netIncome"`
	TotalAssets  *float64 `json:"totalAssets"`
}

// CompanySource looks up issuer metadata one symbol at a time.
type CompanySource interface {
	Company(ctx context.Context, symbol string) (Company, error)
}

// FinancialsSource returns financial reports for batches of symbols, newest
// report first.
type FinancialsSource interface {
	AvailableSymbols(ctx context.Context) ([]string, error)
	Financials(ctx context.Context, symbols []string) (map[string][]FinancialReport, error)
}
