package budget

import "github.com/shopspring/decimal"

// DefaultWarningThresholdPct is applied when a budget is configured without
// an explicit threshold.
const DefaultWarningThresholdPct = 80

// Budget is a per-business, per-platform monthly spending ceiling. A null
// MonthlyLimit means unlimited: the platform is metered but never warned on.
type Budget struct {
	ID                  int64               `json:"id"`
	BusinessID          int64               `json:"business_id"`
	Platform            string              `json:"platform"`
	MonthlyLimit        decimal.NullDecimal `json:"monthly_limit"`
	WarningThresholdPct int                 `json:"warning_threshold_pct"`
}

// SetBudgetInput holds the fields required to create or upsert a budget.
// A nil MonthlyLimit stores an unlimited budget; a zero WarningThresholdPct
// falls back to DefaultWarningThresholdPct.
type SetBudgetInput struct {
	BusinessID          int64               `json:"business_id"`
	Platform            string              `json:"platform"`
	MonthlyLimit        decimal.NullDecimal `json:"monthly_limit"`
	WarningThresholdPct int                 `json:"warning_threshold_pct"`
}

// Warning is an evaluated budget that is at or above its warning threshold.
// All values carry full precision; rounding happens at the report edge.
type Warning struct {
	Platform            string
	MonthlyLimit        decimal.Decimal
	WarningThresholdPct int
	CurrentMonthCost    decimal.Decimal
	UsagePercent        decimal.Decimal
	IsWarning           bool
	IsExceeded          bool
}
