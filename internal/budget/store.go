package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no budget row exists for the requested key.
var ErrNotFound = errors.New("budget not found")

// Store provides database operations for platform budgets. The metering core
// only reads budgets; writes come from the configuration surface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Set upserts a budget for the given business/platform combination.
func (s *Store) Set(ctx context.Context, in SetBudgetInput) (*Budget, error) {
	threshold := in.WarningThresholdPct
	if threshold == 0 {
		threshold = DefaultWarningThresholdPct
	}
	if threshold < 1 || threshold > 100 {
		return nil, fmt.Errorf("warning threshold must be between 1 and 100, got %d", threshold)
	}
	if in.MonthlyLimit.Valid && in.MonthlyLimit.Decimal.IsNegative() {
		return nil, fmt.Errorf("monthly limit must not be negative")
	}

	b := &Budget{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO platform_budgets (business_id, platform, monthly_limit, warning_threshold_pct)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (business_id, platform)
		 DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit,
		               warning_threshold_pct = EXCLUDED.warning_threshold_pct
		 RETURNING id, business_id, platform, monthly_limit, warning_threshold_pct`,
		in.BusinessID, in.Platform, in.MonthlyLimit, threshold,
	).Scan(&b.ID, &b.BusinessID, &b.Platform, &b.MonthlyLimit, &b.WarningThresholdPct)
	if err != nil {
		return nil, fmt.Errorf("upserting budget: %w", err)
	}
	return b, nil
}

// Get retrieves a budget for the given business and platform.
func (s *Store) Get(ctx context.Context, businessID int64, platform string) (*Budget, error) {
	b := &Budget{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, business_id, platform, monthly_limit, warning_threshold_pct
		 FROM platform_budgets
		 WHERE business_id = $1 AND platform = $2`,
		businessID, platform,
	).Scan(&b.ID, &b.BusinessID, &b.Platform, &b.MonthlyLimit, &b.WarningThresholdPct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting budget: %w", err)
	}
	return b, nil
}

// ListByBusiness returns all budgets for the given business, platform ascending.
func (s *Store) ListByBusiness(ctx context.Context, businessID int64) ([]*Budget, error) {
	return s.list(ctx,
		`SELECT id, business_id, platform, monthly_limit, warning_threshold_pct
		 FROM platform_budgets
		 WHERE business_id = $1
		 ORDER BY platform`,
		businessID)
}

// ListLimited returns only the budgets for the given business that carry a
// monthly limit. Unlimited budgets never produce warnings, so the evaluator
// does not need them.
func (s *Store) ListLimited(ctx context.Context, businessID int64) ([]*Budget, error) {
	return s.list(ctx,
		`SELECT id, business_id, platform, monthly_limit, warning_threshold_pct
		 FROM platform_budgets
		 WHERE business_id = $1 AND monthly_limit IS NOT NULL
		 ORDER BY platform`,
		businessID)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Budget, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*Budget
	for rows.Next() {
		b := &Budget{}
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.Platform, &b.MonthlyLimit, &b.WarningThresholdPct); err != nil {
			return nil, fmt.Errorf("scanning budget row: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating budget rows: %w", err)
	}
	return budgets, nil
}

// Delete removes a budget for the given business and platform. Returns
// ErrNotFound when no such budget exists.
func (s *Store) Delete(ctx context.Context, businessID int64, platform string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM platform_budgets WHERE business_id = $1 AND platform = $2`,
		businessID, platform,
	)
	if err != nil {
		return fmt.Errorf("deleting budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBusinessesWithLimits returns the IDs of every business that has at
// least one limited budget, for the scheduled sweep.
func (s *Store) ListBusinessesWithLimits(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT business_id FROM platform_budgets
		 WHERE monthly_limit IS NOT NULL
		 ORDER BY business_id`)
	if err != nil {
		return nil, fmt.Errorf("listing budgeted businesses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning business id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating business ids: %w", err)
	}
	return ids, nil
}
