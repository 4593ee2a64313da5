package metering

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeltaStore is the interface used by Accumulator to persist usage deltas.
// It exists to allow testing without a real database.
type DeltaStore interface {
	Accumulate(ctx context.Context, deltas []UsageDelta) error
}

// deltaKey identifies one accumulated row in the buffer.
type deltaKey struct {
	businessID int64
	platform   string
	date       time.Time
}

// Accumulator buffers ingest deltas in memory, merging deltas for the same
// (business, platform, day) key, and periodically flushes the merged batch to
// the store as one upsert. It is safe for concurrent use.
type Accumulator struct {
	store         DeltaStore
	mu            sync.Mutex
	buffer        map[deltaKey]UsageDelta
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
}

// NewAccumulator creates an Accumulator that flushes to the given store when
// the buffer holds batchSize distinct keys or every flushInterval, whichever
// comes first.
func NewAccumulator(store DeltaStore, batchSize int, flushInterval time.Duration) *Accumulator {
	return &Accumulator{
		store:         store,
		buffer:        make(map[deltaKey]UsageDelta, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// Start begins a background goroutine that flushes buffered deltas on a
// timer. It blocks until Stop is called or the context is cancelled.
func (a *Accumulator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-ctx.Done():
			a.flush()
			return
		case <-a.done:
			a.flush()
			return
		}
	}
}

// Record merges a delta into the buffer. If the buffer reaches batchSize
// distinct keys, a flush is triggered immediately.
func (a *Accumulator) Record(d UsageDelta) {
	k := deltaKey{businessID: d.BusinessID, platform: d.Platform, date: DayOf(d.Date)}

	a.mu.Lock()
	cur, ok := a.buffer[k]
	if !ok {
		cur = UsageDelta{BusinessID: d.BusinessID, Platform: d.Platform, Date: k.date}
	}
	cur.PromptTokens += d.PromptTokens
	cur.CompletionTokens += d.CompletionTokens
	cur.RequestCount += d.RequestCount
	cur.EstimatedCost = cur.EstimatedCost.Add(d.EstimatedCost)
	a.buffer[k] = cur
	shouldFlush := len(a.buffer) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.flush()
	}
}

// Pending returns the number of distinct keys currently buffered.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// flush drains the buffer and writes the merged deltas to the store. It logs
// errors rather than returning them so ingest callers are never blocked on
// the database.
func (a *Accumulator) flush() {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := make([]UsageDelta, 0, len(a.buffer))
	for _, d := range a.buffer {
		batch = append(batch, d)
	}
	a.buffer = make(map[deltaKey]UsageDelta, a.batchSize)
	a.mu.Unlock()

	SortDeltas(batch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.Accumulate(ctx, batch); err != nil {
		slog.Error("failed to flush usage deltas", "keys", len(batch), "error", err)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (a *Accumulator) Stop() {
	close(a.done)
}
