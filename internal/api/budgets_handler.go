package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gabellehq/gabelle/internal/budget"
)

// BudgetConfig is the budget configuration surface exposed to admins.
type BudgetConfig interface {
	Set(ctx context.Context, in budget.SetBudgetInput) (*budget.Budget, error)
	Get(ctx context.Context, businessID int64, platform string) (*budget.Budget, error)
	ListByBusiness(ctx context.Context, businessID int64) ([]*budget.Budget, error)
	Delete(ctx context.Context, businessID int64, platform string) error
}

// BusinessRegistry answers whether a business is known.
type BusinessRegistry interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type budgetsHandler struct {
	budgets    BudgetConfig
	businesses BusinessRegistry
}

func newBudgetsHandler(budgets BudgetConfig, businesses BusinessRegistry) *budgetsHandler {
	return &budgetsHandler{budgets: budgets, businesses: businesses}
}

type setBudgetBody struct {
	MonthlyLimit        *json.Number `json:"monthlyLimit"`
	WarningThresholdPct int          `json:"warningThresholdPct"`
}

type budgetResponse struct {
	BusinessID          int64    `json:"businessId"`
	Platform            string   `json:"platform"`
	MonthlyLimit        *float64 `json:"monthlyLimit"`
	WarningThresholdPct int      `json:"warningThresholdPct"`
}

func toBudgetResponse(b *budget.Budget) budgetResponse {
	resp := budgetResponse{
		BusinessID:          b.BusinessID,
		Platform:            b.Platform,
		WarningThresholdPct: b.WarningThresholdPct,
	}
	if b.MonthlyLimit.Valid {
		v := b.MonthlyLimit.Decimal.Round(2).InexactFloat64()
		resp.MonthlyLimit = &v
	}
	return resp
}

// resolveBusiness parses the businessID path param and verifies the business
// exists. A false return means the response has already been written.
func (h *budgetsHandler) resolveBusiness(w http.ResponseWriter, r *http.Request) (int64, bool) {
	businessID, err := strconv.ParseInt(chi.URLParam(r, "businessID"), 10, 64)
	if err != nil || businessID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_params", "business id must be a positive integer")
		return 0, false
	}
	exists, err := h.businesses.Exists(r.Context(), businessID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to look up business")
		return 0, false
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "unknown business")
		return 0, false
	}
	return businessID, true
}

// SetBudget handles PUT /api/v1/admin/businesses/{businessID}/budgets/{platform}.
func (h *budgetsHandler) SetBudget(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}
	platform := chi.URLParam(r, "platform")
	if platform == "" {
		writeError(w, http.StatusBadRequest, "invalid_params", "platform is required")
		return
	}

	var body setBudgetBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}

	in := budget.SetBudgetInput{
		BusinessID:          businessID,
		Platform:            platform,
		WarningThresholdPct: body.WarningThresholdPct,
	}
	if body.MonthlyLimit != nil {
		limit, err := decimal.NewFromString(body.MonthlyLimit.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "monthlyLimit is not a valid decimal")
			return
		}
		in.MonthlyLimit = decimal.NewNullDecimal(limit)
	}

	b, err := h.budgets.Set(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(b))
}

// GetBudget handles GET /api/v1/admin/businesses/{businessID}/budgets/{platform}.
func (h *budgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}
	platform := chi.URLParam(r, "platform")

	b, err := h.budgets.Get(r.Context(), businessID, platform)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no budget for this platform")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load budget")
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(b))
}

// ListBudgets handles GET /api/v1/admin/businesses/{businessID}/budgets.
func (h *budgetsHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}

	budgets, err := h.budgets.ListByBusiness(r.Context(), businessID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list budgets")
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": out})
}

// DeleteBudget handles DELETE /api/v1/admin/businesses/{businessID}/budgets/{platform}.
func (h *budgetsHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}
	platform := chi.URLParam(r, "platform")

	err := h.budgets.Delete(r.Context(), businessID, platform)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no budget for this platform")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete budget")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
