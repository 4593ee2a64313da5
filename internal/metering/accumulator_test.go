package metering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// mockDeltaStore records all batches that were flushed.
type mockDeltaStore struct {
	mu      sync.Mutex
	batches [][]UsageDelta
}

func (m *mockDeltaStore) Accumulate(_ context.Context, deltas []UsageDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]UsageDelta, len(deltas))
	copy(cp, deltas)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockDeltaStore) totals() map[deltaKey]UsageDelta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[deltaKey]UsageDelta)
	for _, b := range m.batches {
		for _, d := range b {
			k := deltaKey{businessID: d.BusinessID, platform: d.Platform, date: d.Date}
			cur := out[k]
			cur.PromptTokens += d.PromptTokens
			cur.CompletionTokens += d.CompletionTokens
			cur.RequestCount += d.RequestCount
			cur.EstimatedCost = cur.EstimatedCost.Add(d.EstimatedCost)
			out[k] = cur
		}
	}
	return out
}

func sampleDelta(platform string, cost string) UsageDelta {
	return UsageDelta{
		BusinessID:       42,
		Platform:         platform,
		Date:             time.Date(2026, time.August, 29, 13, 0, 0, 0, time.UTC),
		PromptTokens:     100,
		CompletionTokens: 50,
		RequestCount:     1,
		EstimatedCost:    decimal.RequireFromString(cost),
	}
}

func TestAccumulator_MergesSameKey(t *testing.T) {
	ms := &mockDeltaStore{}
	a := NewAccumulator(ms, 100, time.Hour)

	a.Record(sampleDelta("openai", "0.25"))
	a.Record(sampleDelta("openai", "0.50"))
	a.Record(sampleDelta("anthropic", "1.00"))

	if got := a.Pending(); got != 2 {
		t.Fatalf("expected 2 buffered keys, got %d", got)
	}

	a.flush()

	ms.mu.Lock()
	batchCount, firstLen := len(ms.batches), len(ms.batches[0])
	ms.mu.Unlock()
	if batchCount != 1 || firstLen != 2 {
		t.Fatalf("expected a single flush of 2 merged deltas, got %d batches (first len %d)", batchCount, firstLen)
	}

	k := deltaKey{businessID: 42, platform: "openai", date: date(2026, time.August, 29)}
	got := ms.totals()[k]
	if got.PromptTokens != 200 || got.CompletionTokens != 100 || got.RequestCount != 2 {
		t.Errorf("merged counters wrong: %+v", got)
	}
	if !got.EstimatedCost.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("merged cost = %s, want 0.75", got.EstimatedCost)
	}
}

func TestAccumulator_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		platforms []string
		wantKeys  int // flushed keys
	}{
		{
			name:      "distinct keys reach batch size",
			batchSize: 2,
			platforms: []string{"openai", "anthropic"},
			wantKeys:  2,
		},
		{
			name:      "repeat keys do not grow the buffer",
			batchSize: 3,
			platforms: []string{"openai", "openai", "openai"},
			wantKeys:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockDeltaStore{}
			a := NewAccumulator(ms, tt.batchSize, time.Hour)

			for _, p := range tt.platforms {
				a.Record(sampleDelta(p, "0.10"))
			}

			time.Sleep(50 * time.Millisecond)

			if got := len(ms.totals()); got != tt.wantKeys {
				t.Errorf("expected %d flushed keys, got %d", tt.wantKeys, got)
			}
		})
	}
}

func TestAccumulator_StopDoesFinalFlush(t *testing.T) {
	ms := &mockDeltaStore{}
	a := NewAccumulator(ms, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Start(ctx)

	a.Record(sampleDelta("openai", "0.10"))
	a.Record(sampleDelta("gemini", "0.20"))

	a.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := len(ms.totals()); got != 2 {
		t.Fatalf("expected 2 keys after Stop, got %d", got)
	}
}

func TestAccumulator_TimerFlush(t *testing.T) {
	ms := &mockDeltaStore{}
	a := NewAccumulator(ms, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Start(ctx)

	a.Record(sampleDelta("openai", "0.10"))

	time.Sleep(200 * time.Millisecond)

	if got := len(ms.totals()); got != 1 {
		t.Fatalf("expected 1 key after timer flush, got %d", got)
	}

	a.Stop()
}

func TestAccumulator_ConcurrentRecordsFullyAccumulate(t *testing.T) {
	ms := &mockDeltaStore{}
	a := NewAccumulator(ms, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Start(ctx)

	// Concurrent deltas for the same key must never lose an increment: a
	// report read after the final flush reflects the fully accumulated total.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(sampleDelta("openai", "0.01"))
		}()
	}
	wg.Wait()

	a.Stop()
	time.Sleep(100 * time.Millisecond)

	k := deltaKey{businessID: 42, platform: "openai", date: date(2026, time.August, 29)}
	got := ms.totals()[k]
	if got.RequestCount != 50 || got.PromptTokens != 5000 {
		t.Fatalf("lost increments: %+v", got)
	}
	if !got.EstimatedCost.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("cost = %s, want 0.50", got.EstimatedCost)
	}
}

func TestSortDeltas_StableKeyOrder(t *testing.T) {
	deltas := []UsageDelta{
		{BusinessID: 2, Platform: "openai", Date: date(2026, time.August, 1)},
		{BusinessID: 1, Platform: "openai", Date: date(2026, time.August, 2)},
		{BusinessID: 1, Platform: "anthropic", Date: date(2026, time.August, 2)},
		{BusinessID: 1, Platform: "anthropic", Date: date(2026, time.August, 1)},
	}
	SortDeltas(deltas)

	want := []struct {
		business int64
		platform string
		day      int
	}{
		{1, "anthropic", 1},
		{1, "anthropic", 2},
		{1, "openai", 2},
		{2, "openai", 1},
	}
	for i, w := range want {
		d := deltas[i]
		if d.BusinessID != w.business || d.Platform != w.platform || d.Date.Day() != w.day {
			t.Fatalf("position %d: got (%d, %s, %d)", i, d.BusinessID, d.Platform, d.Date.Day())
		}
	}
}
