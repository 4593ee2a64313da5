package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/budget"
	"github.com/gabellehq/gabelle/internal/business"
	"github.com/gabellehq/gabelle/internal/metering"
)

// UsageSource provides the two aggregation query shapes for a business.
type UsageSource interface {
	AggregateByPlatform(ctx context.Context, businessID int64, b metering.Bounds) ([]metering.PlatformUsage, error)
	DailyBreakdown(ctx context.Context, businessID int64, b metering.Bounds) ([]metering.DailyUsage, error)
}

// WarningSource evaluates the business's budgets against the current month.
type WarningSource interface {
	Evaluate(ctx context.Context, businessID int64, now time.Time) ([]budget.Warning, error)
}

// BusinessChecker distinguishes an unknown business from one with no usage.
type BusinessChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Assembler composes aggregation, daily breakdown, and budget evaluation
// into a single UsageReport.
type Assembler struct {
	usage      UsageSource
	warnings   WarningSource
	businesses BusinessChecker
	logger     *slog.Logger
}

// NewAssembler creates a report Assembler. logger may be nil, in which case
// the default slog logger is used.
func NewAssembler(usage UsageSource, warnings WarningSource, businesses BusinessChecker, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{usage: usage, warnings: warnings, businesses: businesses, logger: logger}
}

// Build assembles the usage report for a business over the selected period.
// The period is resolved exactly once and both aggregation queries run over
// the same resolved bounds, so the two halves of the report always describe
// the same window. Budget warnings are always evaluated against the current
// month, whatever period was requested. A budget evaluation failure degrades
// to an empty warnings list (logged); an aggregation failure fails the whole
// build, since totals are the report's primary product.
func (a *Assembler) Build(ctx context.Context, businessID int64, sel metering.Selector, now time.Time) (*Report, error) {
	exists, err := a.businesses.Exists(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("checking business: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("business %d: %w", businessID, business.ErrNotFound)
	}

	bounds, err := metering.Resolve(sel, now)
	if err != nil {
		return nil, err
	}

	platforms, err := a.usage.AggregateByPlatform(ctx, businessID, bounds)
	if err != nil {
		return nil, fmt.Errorf("aggregating platform totals: %w", err)
	}
	daily, err := a.usage.DailyBreakdown(ctx, businessID, bounds)
	if err != nil {
		return nil, fmt.Errorf("building daily breakdown: %w", err)
	}

	warnings, err := a.warnings.Evaluate(ctx, businessID, now)
	if err != nil {
		// Usage totals are never withheld because budget evaluation errored.
		a.logger.Warn("budget evaluation failed, returning report without warnings",
			"business_id", businessID, "error", err)
		warnings = nil
	}

	r := &Report{
		BusinessID:     businessID,
		Period:         sel.String(),
		ByPlatform:     make([]PlatformTotals, 0, len(platforms)),
		Daily:          make([]DailyTotals, 0, len(daily)),
		BudgetWarnings: make([]BudgetWarning, 0, len(warnings)),
	}

	var totalCost decimal.Decimal
	for _, p := range platforms {
		r.Aggregate.TotalTokens += p.TotalTokens
		r.Aggregate.TotalRequests += p.RequestCount
		totalCost = totalCost.Add(p.EstimatedCost)

		r.ByPlatform = append(r.ByPlatform, PlatformTotals{
			Platform:         p.Platform,
			PromptTokens:     p.PromptTokens,
			CompletionTokens: p.CompletionTokens,
			TotalTokens:      p.TotalTokens,
			TotalRequests:    p.RequestCount,
			EstimatedCostUSD: roundCost(p.EstimatedCost),
		})
	}
	r.Aggregate.EstimatedCostUSD = roundCost(totalCost)

	for _, d := range daily {
		r.Daily = append(r.Daily, DailyTotals{
			Date:             d.Date.Format("2006-01-02"),
			Platform:         d.Platform,
			TotalTokens:      d.TotalTokens,
			TotalRequests:    d.RequestCount,
			EstimatedCostUSD: roundCost(d.EstimatedCost),
		})
	}

	for _, w := range warnings {
		r.BudgetWarnings = append(r.BudgetWarnings, BudgetWarning{
			Platform:            w.Platform,
			MonthlyLimitUSD:     roundCost(w.MonthlyLimit),
			WarningThresholdPct: w.WarningThresholdPct,
			CurrentMonthCostUSD: roundCost(w.CurrentMonthCost),
			UsagePercent:        roundPercent(w.UsagePercent),
			IsWarning:           w.IsWarning,
			IsExceeded:          w.IsExceeded,
		})
	}

	return r, nil
}
