package shipping

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// Handler exposes shipping endpoints.
type Handler struct {
	Svc *Service
}

// Districts handles GET /api/v1/shipping/districts.
func (h *Handler) Districts(w http.ResponseWriter, r *http.Request) {
	districts, err := h.Svc.List(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": districts})
}

// UpdateDistrict handles PATCH /api/v1/shipping/districts/{name}.
func (h *Handler) UpdateDistrict(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	d, err := h.Svc.Update(r.Context(), chi.URLParam(r, "name"), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}

// Quote handles GET /api/v1/shipping/quote?district=...
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Svc.QuoteFor(r.Context(), r.URL.Query().Get("district"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}
