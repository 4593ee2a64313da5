package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/metering"
)

var hundred = decimal.NewFromInt(100)

// UsageSource provides the single aggregation query the evaluator needs.
type UsageSource interface {
	AggregateByPlatform(ctx context.Context, businessID int64, b metering.Bounds) ([]metering.PlatformUsage, error)
}

// BudgetSource lists the limited budgets configured for a business.
type BudgetSource interface {
	ListLimited(ctx context.Context, businessID int64) ([]*Budget, error)
}

// Evaluator compares a business's current-month spend against its configured
// platform budgets. Budgets are a standing monthly concern: evaluation always
// covers the current UTC month regardless of any report period the caller is
// otherwise looking at.
type Evaluator struct {
	budgets BudgetSource
	usage   UsageSource
}

// NewEvaluator creates an Evaluator over the given budget and usage sources.
func NewEvaluator(budgets BudgetSource, usage UsageSource) *Evaluator {
	return &Evaluator{budgets: budgets, usage: usage}
}

// Evaluate returns the budgets that are at or above their warning threshold,
// most urgent first (usage percent descending, platform ascending on ties).
// Budgets without a limit never appear. Current-month spend for every
// platform comes from one aggregation pass over [first of month, today].
func (e *Evaluator) Evaluate(ctx context.Context, businessID int64, now time.Time) ([]Warning, error) {
	budgets, err := e.budgets.ListLimited(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("loading budgets: %w", err)
	}
	if len(budgets) == 0 {
		return nil, nil
	}

	totals, err := e.usage.AggregateByPlatform(ctx, businessID, metering.MonthToDate(now))
	if err != nil {
		return nil, fmt.Errorf("aggregating current-month spend: %w", err)
	}
	spend := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		spend[t.Platform] = t.EstimatedCost
	}

	var warnings []Warning
	for _, b := range budgets {
		if !b.MonthlyLimit.Valid {
			continue
		}
		limit := b.MonthlyLimit.Decimal
		cost := spend[b.Platform]

		// A zero limit is "no usable budget", not a division fault.
		var pct decimal.Decimal
		if limit.IsPositive() {
			pct = cost.Div(limit).Mul(hundred)
		}

		w := Warning{
			Platform:            b.Platform,
			MonthlyLimit:        limit,
			WarningThresholdPct: b.WarningThresholdPct,
			CurrentMonthCost:    cost,
			UsagePercent:        pct,
			IsWarning:           limit.IsPositive() && pct.GreaterThanOrEqual(decimal.NewFromInt(int64(b.WarningThresholdPct))),
			IsExceeded:          limit.IsPositive() && pct.GreaterThanOrEqual(hundred),
		}
		if w.IsWarning || w.IsExceeded {
			warnings = append(warnings, w)
		}
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		if !warnings[i].UsagePercent.Equal(warnings[j].UsagePercent) {
			return warnings[i].UsagePercent.GreaterThan(warnings[j].UsagePercent)
		}
		return warnings[i].Platform < warnings[j].Platform
	})

	return warnings, nil
}
