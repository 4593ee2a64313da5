package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/metering"
	"github.com/gabellehq/gabelle/internal/metrics"
)

// DeltaRecorder buffers validated usage deltas for asynchronous accumulation.
type DeltaRecorder interface {
	Record(d metering.UsageDelta)
}

// ingestHandler accepts usage delta batches from upstream services.
type ingestHandler struct {
	recorder DeltaRecorder
	metrics  *metrics.Metrics
}

func newIngestHandler(recorder DeltaRecorder, m *metrics.Metrics) *ingestHandler {
	return &ingestHandler{recorder: recorder, metrics: m}
}

type ingestEvent struct {
	BusinessID       int64       `json:"businessId"`
	Platform         string      `json:"platform"`
	Date             string      `json:"date"` // YYYY-MM-DD, UTC
	PromptTokens     int64       `json:"promptTokens"`
	CompletionTokens int64       `json:"completionTokens"`
	RequestCount     int64       `json:"requestCount"`
	EstimatedCost    json.Number `json:"estimatedCost"`
}

type ingestRequest struct {
	Events []ingestEvent `json:"events"`
}

// toDelta validates one event and converts it to a UsageDelta.
func (e ingestEvent) toDelta() (metering.UsageDelta, error) {
	if e.BusinessID <= 0 {
		return metering.UsageDelta{}, fmt.Errorf("businessId must be a positive integer")
	}
	if e.Platform == "" {
		return metering.UsageDelta{}, fmt.Errorf("platform is required")
	}
	day, err := time.Parse("2006-01-02", e.Date)
	if err != nil {
		return metering.UsageDelta{}, fmt.Errorf("date must be YYYY-MM-DD: %v", err)
	}
	if e.PromptTokens < 0 || e.CompletionTokens < 0 || e.RequestCount < 0 {
		return metering.UsageDelta{}, fmt.Errorf("token and request counts must not be negative")
	}

	cost := decimal.Zero
	if e.EstimatedCost != "" {
		cost, err = decimal.NewFromString(e.EstimatedCost.String())
		if err != nil {
			return metering.UsageDelta{}, fmt.Errorf("estimatedCost is not a valid decimal: %v", err)
		}
		if cost.IsNegative() {
			return metering.UsageDelta{}, fmt.Errorf("estimatedCost must not be negative")
		}
	}

	return metering.UsageDelta{
		BusinessID:       e.BusinessID,
		Platform:         e.Platform,
		Date:             day.UTC(),
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		RequestCount:     e.RequestCount,
		EstimatedCost:    cost,
	}, nil
}

// IngestEvents handles POST /api/v1/usage/events. The whole batch is
// validated before anything is recorded, so a rejected request records
// nothing.
func (h *ingestHandler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readJSON(r, &req); err != nil {
		h.metrics.IngestRejectedTotal.Inc()
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if len(req.Events) == 0 {
		h.metrics.IngestRejectedTotal.Inc()
		writeError(w, http.StatusBadRequest, "invalid_body", "events must not be empty")
		return
	}

	deltas := make([]metering.UsageDelta, 0, len(req.Events))
	for i, e := range req.Events {
		d, err := e.toDelta()
		if err != nil {
			h.metrics.IngestRejectedTotal.Inc()
			writeError(w, http.StatusBadRequest, "invalid_event", fmt.Sprintf("event %d: %v", i, err))
			return
		}
		deltas = append(deltas, d)
	}

	for _, d := range deltas {
		h.recorder.Record(d)
	}
	h.metrics.IngestDeltasTotal.Add(float64(len(deltas)))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(deltas),
		"batchId":  uuid.NewString(),
	})
}
