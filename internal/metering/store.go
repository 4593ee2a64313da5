package metering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStorageUnavailable wraps any failure to reach the underlying store. The
// core never retries; retries, if any, belong to the connection pool.
var ErrStorageUnavailable = errors.New("usage store unavailable")

// Store provides database operations over the usage_events table: one row per
// (business_id, platform, usage_date), accumulated in place on ingest and
// read back as period rollups.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Accumulate applies a batch of deltas in a single multi-row upsert. Deltas
// for an existing (business, platform, day) key add onto the stored counters;
// all columns of a key move together in one statement, so a concurrent read
// never observes a half-applied increment. It is a no-op when deltas is empty.
func (s *Store) Accumulate(ctx context.Context, deltas []UsageDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	const cols = 7
	args := make([]any, 0, len(deltas)*cols)
	rows := make([]string, 0, len(deltas))

	for i, d := range deltas {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			d.BusinessID,
			d.Platform,
			DayOf(d.Date),
			d.PromptTokens,
			d.CompletionTokens,
			d.RequestCount,
			d.EstimatedCost,
		)
	}

	query := `INSERT INTO usage_events
		(business_id, platform, usage_date, prompt_tokens, completion_tokens, request_count, estimated_cost)
		VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (business_id, platform, usage_date) DO UPDATE SET
			prompt_tokens = usage_events.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = usage_events.completion_tokens + EXCLUDED.completion_tokens,
			request_count = usage_events.request_count + EXCLUDED.request_count,
			estimated_cost = usage_events.estimated_cost + EXCLUDED.estimated_cost,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return storageErr("accumulating usage deltas", err)
	}
	return nil
}

// AggregateByPlatform returns per-platform totals for the business within the
// bounds, ordered by platform ascending. Totals come from a single GROUP BY
// pass over the period; platforms with no matching rows are omitted. An
// unbounded Bounds aggregates all recorded days through the same query shape,
// differing only in the date predicate.
func (s *Store) AggregateByPlatform(ctx context.Context, businessID int64, b Bounds) ([]PlatformUsage, error) {
	where, args := boundsClause(businessID, b)

	query := `SELECT platform,
		COALESCE(SUM(prompt_tokens), 0),
		COALESCE(SUM(completion_tokens), 0),
		COALESCE(SUM(total_tokens), 0),
		COALESCE(SUM(request_count), 0),
		COALESCE(SUM(estimated_cost), 0)
	FROM usage_events` + where + `
	GROUP BY platform
	ORDER BY platform ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying platform totals", err)
	}
	defer rows.Close()

	var totals []PlatformUsage
	for rows.Next() {
		var u PlatformUsage
		if err := rows.Scan(
			&u.Platform, &u.PromptTokens, &u.CompletionTokens,
			&u.TotalTokens, &u.RequestCount, &u.EstimatedCost,
		); err != nil {
			return nil, storageErr("scanning platform totals row", err)
		}
		totals = append(totals, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating platform totals rows", err)
	}
	return totals, nil
}

// DailyBreakdown returns per-day, per-platform rows for the business within
// the bounds, ordered by date descending (most recent first) then platform
// ascending.
func (s *Store) DailyBreakdown(ctx context.Context, businessID int64, b Bounds) ([]DailyUsage, error) {
	where, args := boundsClause(businessID, b)

	query := `SELECT usage_date, platform,
		total_tokens, request_count, estimated_cost
	FROM usage_events` + where + `
	ORDER BY usage_date DESC, platform ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying daily breakdown", err)
	}
	defer rows.Close()

	var days []DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Platform, &d.TotalTokens, &d.RequestCount, &d.EstimatedCost); err != nil {
			return nil, storageErr("scanning daily breakdown row", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating daily breakdown rows", err)
	}
	return days, nil
}

// boundsClause builds the WHERE clause shared by both aggregation queries.
// The bounded and unbounded paths differ only in the date predicate.
func boundsClause(businessID int64, b Bounds) (string, []any) {
	conditions := []string{"business_id = $1"}
	args := []any{businessID}

	if !b.Unbounded {
		args = append(args, b.Start)
		conditions = append(conditions, "usage_date >= $"+strconv.Itoa(len(args)))
		args = append(args, b.End)
		conditions = append(conditions, "usage_date <= $"+strconv.Itoa(len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// SortDeltas orders deltas by (business, platform, date) so that batched
// upserts touch rows in a stable order. Two concurrent flushes that share
// keys then lock those rows in the same order, which avoids deadlocking the
// multi-row upsert.
func SortDeltas(deltas []UsageDelta) {
	sort.Slice(deltas, func(i, j int) bool {
		a, b := deltas[i], deltas[j]
		if a.BusinessID != b.BusinessID {
			return a.BusinessID < b.BusinessID
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.Date.Before(b.Date)
	})
}
