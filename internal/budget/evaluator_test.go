package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/metering"
)

type fakeBudgets struct {
	budgets []*Budget
	err     error
}

func (f *fakeBudgets) ListLimited(_ context.Context, _ int64) ([]*Budget, error) {
	return f.budgets, f.err
}

type fakeUsage struct {
	totals []metering.PlatformUsage
	bounds metering.Bounds
	calls  int
	err    error
}

func (f *fakeUsage) AggregateByPlatform(_ context.Context, _ int64, b metering.Bounds) ([]metering.PlatformUsage, error) {
	f.bounds = b
	f.calls++
	return f.totals, f.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limited(platform, limit string, threshold int) *Budget {
	return &Budget{
		BusinessID:          42,
		Platform:            platform,
		MonthlyLimit:        decimal.NewNullDecimal(dec(limit)),
		WarningThresholdPct: threshold,
	}
}

func spent(platform, cost string) metering.PlatformUsage {
	return metering.PlatformUsage{Platform: platform, EstimatedCost: dec(cost)}
}

var evalNow = time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)

func TestEvaluate_WarningAtThreshold(t *testing.T) {
	tests := []struct {
		name         string
		limit        string
		threshold    int
		cost         string
		wantIncluded bool
		wantWarning  bool
		wantExceeded bool
	}{
		{
			name:         "well under threshold",
			limit:        "100",
			threshold:    80,
			cost:         "50",
			wantIncluded: false,
		},
		{
			name:         "at threshold",
			limit:        "100",
			threshold:    80,
			cost:         "80",
			wantIncluded: true,
			wantWarning:  true,
		},
		{
			name:         "above threshold below limit",
			limit:        "100",
			threshold:    80,
			cost:         "85.004",
			wantIncluded: true,
			wantWarning:  true,
		},
		{
			name:         "exactly at limit",
			limit:        "100",
			threshold:    80,
			cost:         "100",
			wantIncluded: true,
			wantWarning:  true,
			wantExceeded: true,
		},
		{
			name:         "over limit",
			limit:        "200",
			threshold:    90,
			cost:         "250",
			wantIncluded: true,
			wantWarning:  true,
			wantExceeded: true,
		},
		{
			name:         "zero limit never warns",
			limit:        "0",
			threshold:    80,
			cost:         "9999",
			wantIncluded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(
				&fakeBudgets{budgets: []*Budget{limited("openai", tt.limit, tt.threshold)}},
				&fakeUsage{totals: []metering.PlatformUsage{spent("openai", tt.cost)}},
			)

			warnings, err := e.Evaluate(context.Background(), 42, evalNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !tt.wantIncluded {
				if len(warnings) != 0 {
					t.Fatalf("expected no warnings, got %+v", warnings)
				}
				return
			}
			if len(warnings) != 1 {
				t.Fatalf("expected 1 warning, got %d", len(warnings))
			}
			w := warnings[0]
			if w.IsWarning != tt.wantWarning || w.IsExceeded != tt.wantExceeded {
				t.Errorf("flags = (%v, %v), want (%v, %v)", w.IsWarning, w.IsExceeded, tt.wantWarning, tt.wantExceeded)
			}
		})
	}
}

func TestEvaluate_FullPrecisionPercent(t *testing.T) {
	// budget_limit=100, threshold=80, cost=85.004: usage percent carries full
	// precision here and rounds to 85.0 only at the report edge.
	e := NewEvaluator(
		&fakeBudgets{budgets: []*Budget{limited("openai", "100", 80)}},
		&fakeUsage{totals: []metering.PlatformUsage{spent("openai", "85.004")}},
	)

	warnings, err := e.Evaluate(context.Background(), 42, evalNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	w := warnings[0]
	if !w.UsagePercent.Equal(dec("85.004")) {
		t.Errorf("usage percent = %s, want 85.004", w.UsagePercent)
	}
	if !w.IsWarning || w.IsExceeded {
		t.Errorf("flags = (%v, %v), want (true, false)", w.IsWarning, w.IsExceeded)
	}
}

func TestEvaluate_ZeroSpendPlatformAbsentFromTotals(t *testing.T) {
	// The aggregator omits zero-row platforms; the evaluator must treat the
	// missing entry as zero spend, not an error.
	e := NewEvaluator(
		&fakeBudgets{budgets: []*Budget{limited("anthropic", "100", 80)}},
		&fakeUsage{totals: nil},
	)

	warnings, err := e.Evaluate(context.Background(), 42, evalNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for zero spend, got %+v", warnings)
	}
}

func TestEvaluate_OrderedByUsagePercentDescending(t *testing.T) {
	e := NewEvaluator(
		&fakeBudgets{budgets: []*Budget{
			limited("anthropic", "100", 50),
			limited("gemini", "100", 50),
			limited("openai", "100", 50),
		}},
		&fakeUsage{totals: []metering.PlatformUsage{
			spent("anthropic", "60"),
			spent("gemini", "95"),
			spent("openai", "60"),
		}},
	)

	warnings, err := e.Evaluate(context.Background(), 42, evalNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, w := range warnings {
		got = append(got, w.Platform)
	}
	want := []string{"gemini", "anthropic", "openai"} // ties break on platform
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEvaluate_CurrentMonthBounds(t *testing.T) {
	usage := &fakeUsage{totals: []metering.PlatformUsage{spent("openai", "90")}}
	e := NewEvaluator(&fakeBudgets{budgets: []*Budget{limited("openai", "100", 80)}}, usage)

	if _, err := e.Evaluate(context.Background(), 42, evalNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if usage.calls != 1 {
		t.Fatalf("expected a single aggregation pass, got %d", usage.calls)
	}
	wantStart := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)
	if usage.bounds.Unbounded || !usage.bounds.Start.Equal(wantStart) || !usage.bounds.End.Equal(wantEnd) {
		t.Errorf("bounds = %+v, want %v..%v", usage.bounds, wantStart, wantEnd)
	}
}

func TestEvaluate_NoBudgetsSkipsAggregation(t *testing.T) {
	usage := &fakeUsage{}
	e := NewEvaluator(&fakeBudgets{}, usage)

	warnings, err := e.Evaluate(context.Background(), 42, evalNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warnings != nil {
		t.Errorf("expected nil warnings, got %+v", warnings)
	}
	if usage.calls != 0 {
		t.Errorf("expected no aggregation call, got %d", usage.calls)
	}
}

func TestEvaluate_PropagatesErrors(t *testing.T) {
	wantErr := errors.New("boom")

	e := NewEvaluator(&fakeBudgets{err: wantErr}, &fakeUsage{})
	if _, err := e.Evaluate(context.Background(), 42, evalNow); !errors.Is(err, wantErr) {
		t.Errorf("budget source error not propagated: %v", err)
	}

	e = NewEvaluator(
		&fakeBudgets{budgets: []*Budget{limited("openai", "100", 80)}},
		&fakeUsage{err: wantErr},
	)
	if _, err := e.Evaluate(context.Background(), 42, evalNow); !errors.Is(err, wantErr) {
		t.Errorf("usage source error not propagated: %v", err)
	}
}
