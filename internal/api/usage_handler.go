package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gabellehq/gabelle/internal/business"
	"github.com/gabellehq/gabelle/internal/cache"
	"github.com/gabellehq/gabelle/internal/metering"
	"github.com/gabellehq/gabelle/internal/metrics"
	"github.com/gabellehq/gabelle/internal/report"
)

// ReportBuilder assembles a usage report for a business over a period.
type ReportBuilder interface {
	Build(ctx context.Context, businessID int64, sel metering.Selector, now time.Time) (*report.Report, error)
}

// usageHandler serves the usage report endpoint.
type usageHandler struct {
	reports ReportBuilder
	cache   *cache.ReportCache
	metrics *metrics.Metrics
	now     func() time.Time
}

func newUsageHandler(reports ReportBuilder, c *cache.ReportCache, m *metrics.Metrics, now func() time.Time) *usageHandler {
	return &usageHandler{reports: reports, cache: c, metrics: m, now: now}
}

// parsePeriod maps the period query param onto a selector. Explicit date
// ranges are supported internally but not exposed at this boundary.
func parsePeriod(raw string) (metering.Selector, bool) {
	switch raw {
	case "", metering.PeriodLast30Days:
		return metering.Last30Days(), true
	case metering.PeriodAllTime:
		return metering.AllTime(), true
	default:
		return metering.Selector{}, false
	}
}

// GetUsageReport handles GET /api/v1/businesses/{businessID}/usage.
func (h *usageHandler) GetUsageReport(w http.ResponseWriter, r *http.Request) {
	businessID, err := strconv.ParseInt(chi.URLParam(r, "businessID"), 10, 64)
	if err != nil || businessID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_params", "business id must be a positive integer")
		return
	}

	sel, ok := parsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_params", "period must be one of: 30days, all")
		return
	}

	if payload, hit := h.cache.Get(r.Context(), businessID, sel.String()); hit {
		h.metrics.CacheHitsTotal.Inc()
		writeRawJSON(w, http.StatusOK, payload)
		return
	}
	h.metrics.CacheMissesTotal.Inc()

	start := time.Now()
	rep, err := h.reports.Build(r.Context(), businessID, sel, h.now())
	switch {
	case errors.Is(err, business.ErrNotFound):
		h.metrics.ReportsBuiltTotal.WithLabelValues(sel.String(), "not_found").Inc()
		writeError(w, http.StatusNotFound, "not_found", "unknown business")
		return
	case err != nil:
		h.metrics.ReportsBuiltTotal.WithLabelValues(sel.String(), "error").Inc()
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to build usage report")
		return
	}
	h.metrics.ReportsBuiltTotal.WithLabelValues(sel.String(), "ok").Inc()
	h.metrics.ReportBuildDuration.Observe(time.Since(start).Seconds())

	payload, err := json.Marshal(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode usage report")
		return
	}
	h.cache.Set(r.Context(), businessID, sel.String(), payload)

	writeRawJSON(w, http.StatusOK, payload)
}
