// Package alert runs the scheduled budget sweep: every business with at
// least one limited budget is evaluated against the current month and any
// triggered budget is surfaced as a structured log line and a metric, ahead
// of the consumer ever asking for a report.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/gabellehq/gabelle/internal/budget"
)

// Evaluator is the budget evaluation entry point the sweeper drives.
type Evaluator interface {
	Evaluate(ctx context.Context, businessID int64, now time.Time) ([]budget.Warning, error)
}

// BusinessLister returns the businesses that have limited budgets configured.
type BusinessLister interface {
	ListBusinessesWithLimits(ctx context.Context) ([]int64, error)
}

// Observer receives the outcome of each sweep for metric export. It exists
// so the sweeper does not depend on the metrics package directly.
type Observer interface {
	SweepCompleted(duration time.Duration, businesses, warnings, exceeded int)
}

// Sweeper evaluates all budgeted businesses on a cron schedule.
type Sweeper struct {
	budgets  BusinessLister
	eval     Evaluator
	observer Observer
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	now      func() time.Time
}

// NewSweeper creates a Sweeper with the given cron schedule (standard 5-field
// spec). observer may be nil; logger may be nil for the default logger.
func NewSweeper(budgets BusinessLister, eval Evaluator, observer Observer, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		budgets:  budgets,
		eval:     eval,
		observer: observer,
		logger:   logger,
		schedule: schedule,
		timeout:  time.Minute,
		now:      time.Now,
	}
}

// Start registers the sweep on its schedule and starts the cron runner.
func (s *Sweeper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("budget sweep scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce executes a single sweep over every budgeted business. Failures for
// one business are logged and do not stop the sweep.
func (s *Sweeper) RunOnce() {
	start := s.now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ids, err := s.budgets.ListBusinessesWithLimits(ctx)
	if err != nil {
		s.logger.Error("budget sweep failed to list businesses", "error", err)
		return
	}

	var warned, exceeded int
	for _, id := range ids {
		warnings, err := s.eval.Evaluate(ctx, id, s.now())
		if err != nil {
			s.logger.Error("budget sweep evaluation failed", "business_id", id, "error", err)
			continue
		}
		for _, w := range warnings {
			severity := "warning"
			if w.IsExceeded {
				severity = "exceeded"
				exceeded++
			} else {
				warned++
			}
			s.logger.Warn("budget threshold reached",
				"alert_id", uuid.NewString(),
				"business_id", id,
				"platform", w.Platform,
				"severity", severity,
				"usage_percent", w.UsagePercent.StringFixed(1),
				"monthly_limit", w.MonthlyLimit.StringFixed(2),
				"current_month_cost", w.CurrentMonthCost.StringFixed(2),
			)
		}
	}

	if s.observer != nil {
		s.observer.SweepCompleted(s.now().Sub(start), len(ids), warned, exceeded)
	}
	s.logger.Info("budget sweep finished",
		"businesses", len(ids), "warnings", warned, "exceeded", exceeded,
		"duration_ms", s.now().Sub(start).Milliseconds())
}
