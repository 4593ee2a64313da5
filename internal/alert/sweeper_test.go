package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/budget"
)

type fakeLister struct {
	ids []int64
	err error
}

func (f *fakeLister) ListBusinessesWithLimits(_ context.Context) ([]int64, error) {
	return f.ids, f.err
}

type fakeEvaluator struct {
	byBusiness map[int64][]budget.Warning
	errFor     map[int64]error
	evaluated  []int64
}

func (f *fakeEvaluator) Evaluate(_ context.Context, businessID int64, _ time.Time) ([]budget.Warning, error) {
	f.evaluated = append(f.evaluated, businessID)
	if err := f.errFor[businessID]; err != nil {
		return nil, err
	}
	return f.byBusiness[businessID], nil
}

type recordingObserver struct {
	businesses int
	warnings   int
	exceeded   int
	calls      int
}

func (r *recordingObserver) SweepCompleted(_ time.Duration, businesses, warnings, exceeded int) {
	r.calls++
	r.businesses = businesses
	r.warnings = warnings
	r.exceeded = exceeded
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func warning(platform string, pct string, exceeded bool) budget.Warning {
	return budget.Warning{
		Platform:         platform,
		MonthlyLimit:     decimal.NewFromInt(100),
		CurrentMonthCost: decimal.RequireFromString(pct),
		UsagePercent:     decimal.RequireFromString(pct),
		IsWarning:        true,
		IsExceeded:       exceeded,
	}
}

func TestRunOnce_CountsWarningsAndExceeded(t *testing.T) {
	eval := &fakeEvaluator{byBusiness: map[int64][]budget.Warning{
		1: {warning("openai", "85", false)},
		2: {warning("openai", "120", true), warning("anthropic", "90", false)},
		3: nil,
	}}
	obs := &recordingObserver{}
	s := NewSweeper(&fakeLister{ids: []int64{1, 2, 3}}, eval, obs, "@hourly", quiet())

	s.RunOnce()

	if obs.calls != 1 {
		t.Fatalf("observer called %d times, want 1", obs.calls)
	}
	if obs.businesses != 3 || obs.warnings != 2 || obs.exceeded != 1 {
		t.Errorf("observed (%d, %d, %d), want (3, 2, 1)", obs.businesses, obs.warnings, obs.exceeded)
	}
	if len(eval.evaluated) != 3 {
		t.Errorf("evaluated %v, want all three businesses", eval.evaluated)
	}
}

func TestRunOnce_OneFailureDoesNotStopSweep(t *testing.T) {
	eval := &fakeEvaluator{
		byBusiness: map[int64][]budget.Warning{3: {warning("openai", "95", false)}},
		errFor:     map[int64]error{2: errors.New("boom")},
	}
	obs := &recordingObserver{}
	s := NewSweeper(&fakeLister{ids: []int64{1, 2, 3}}, eval, obs, "@hourly", quiet())

	s.RunOnce()

	if len(eval.evaluated) != 3 {
		t.Fatalf("evaluated %v, want all three businesses despite the failure", eval.evaluated)
	}
	if obs.warnings != 1 {
		t.Errorf("warnings = %d, want 1", obs.warnings)
	}
}

func TestRunOnce_ListFailureSkipsObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSweeper(&fakeLister{err: errors.New("db down")}, &fakeEvaluator{}, obs, "@hourly", quiet())

	s.RunOnce()

	if obs.calls != 0 {
		t.Errorf("observer called on list failure")
	}
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&fakeLister{}, &fakeEvaluator{}, nil, "not a schedule", quiet())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}
