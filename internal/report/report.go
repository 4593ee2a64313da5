package report

import "github.com/shopspring/decimal"

// Report is the composed usage report returned to callers. Field names and
// rounding are a compatibility contract with existing dashboard consumers:
// currency values carry 2 decimal places, percentages 1. Rounding happens
// here and nowhere else; everything upstream keeps full precision.
type Report struct {
	BusinessID     int64            `json:"businessId"`
	Period         string           `json:"period"`
	Aggregate      Totals           `json:"aggregate"`
	ByPlatform     []PlatformTotals `json:"byPlatform"`
	Daily          []DailyTotals    `json:"daily"`
	BudgetWarnings []BudgetWarning  `json:"budgetWarnings"`
}

// Totals holds the aggregate across all platforms in the period.
type Totals struct {
	TotalTokens      int64   `json:"totalTokens"`
	TotalRequests    int64   `json:"totalRequests"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// PlatformTotals is one row of the per-platform breakdown, platform ascending.
type PlatformTotals struct {
	Platform         string  `json:"platform"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	TotalRequests    int64   `json:"totalRequests"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// DailyTotals is one row of the per-day breakdown, most recent day first.
type DailyTotals struct {
	Date             string  `json:"date"` // YYYY-MM-DD
	Platform         string  `json:"platform"`
	TotalTokens      int64   `json:"totalTokens"`
	TotalRequests    int64   `json:"totalRequests"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// BudgetWarning is a triggered budget, most urgent first.
type BudgetWarning struct {
	Platform            string  `json:"platform"`
	MonthlyLimitUSD     float64 `json:"monthlyLimitUsd"`
	WarningThresholdPct int     `json:"warningThresholdPct"`
	CurrentMonthCostUSD float64 `json:"currentMonthCostUsd"`
	UsagePercent        float64 `json:"usagePercent"`
	IsWarning           bool    `json:"isWarning"`
	IsExceeded          bool    `json:"isExceeded"`
}

// roundCost rounds a full-precision cost to the 2-decimal output contract.
func roundCost(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// roundPercent rounds a full-precision percentage to 1 decimal place.
func roundPercent(d decimal.Decimal) float64 {
	return d.Round(1).InexactFloat64()
}
