package metering

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageDelta is a single ingest increment for one (business, platform, day)
// key. Repeated deltas for the same key accumulate in the event store; the
// store keeps one row per key, not one row per call.
type UsageDelta struct {
	BusinessID       int64           `json:"business_id"`
	Platform         string          `json:"platform"`
	Date             time.Time       `json:"date"` // UTC calendar day
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	RequestCount     int64           `json:"request_count"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
}

// TotalTokens returns the derived token total for the delta. The stored
// total_tokens column is always prompt + completion; it is never accepted
// from callers.
func (d UsageDelta) TotalTokens() int64 {
	return d.PromptTokens + d.CompletionTokens
}

// PlatformUsage holds aggregate totals for a single platform within a period.
// Platforms with no rows in the period are never emitted as zero rows.
type PlatformUsage struct {
	Platform         string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	RequestCount     int64
	EstimatedCost    decimal.Decimal
}

// DailyUsage holds totals for one (platform, day) within a period.
type DailyUsage struct {
	Date          time.Time
	Platform      string
	TotalTokens   int64
	RequestCount  int64
	EstimatedCost decimal.Decimal
}
