package promotion

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// Handler exposes promotion rule endpoints.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/promotions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Svc.List(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Create handles POST /api/v1/promotions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	rule, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// Update handles PATCH /api/v1/promotions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	rule, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Toggle handles POST /api/v1/promotions/{id}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Svc.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Delete handles DELETE /api/v1/promotions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewLine struct {
	VariantID string `json:"variantId,omitempty"`
	Subtotal  string `json:"subtotal"`
	Discount  string `json:"discount"`
	RuleID    string `json:"ruleId,omitempty"`
}

type previewWarning struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}

// Preview handles POST /api/v1/promotions/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	result, err := h.Svc.Preview(r.Context(), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	lines := make([]previewLine, 0, len(result.Lines))
	for _, l := range result.Lines {
		lines = append(lines, previewLine{
			VariantID: l.VariantID,
			Subtotal:  l.Subtotal.String(),
			Discount:  l.Discount.String(),
			RuleID:    l.RuleID,
		})
	}
	warnings := make([]previewWarning, 0, len(result.Warnings))
	for _, wrn := range result.Warnings {
		warnings = append(warnings, previewWarning{RuleID: wrn.RuleID, Reason: wrn.Reason})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"subtotal":       result.Totals.Subtotal,
			"itemDiscount":   result.Totals.ItemDiscount,
			"globalDiscount": result.Totals.GlobalDiscount,
			"shippingCost":   result.Totals.ShippingCost,
			"total":          result.Totals.Total,
			"appliedRuleIds": result.Totals.AppliedRuleIDs,
			"lines":          lines,
			"warnings":       warnings,
		},
	})
}
