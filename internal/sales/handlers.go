package sales

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// Handler exposes sale endpoints.
type Handler struct {
	Svc *Service
}

// Create handles POST /api/v1/sales.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	sale, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sale})
}

// List handles GET /api/v1/sales.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.Svc.DefaultPerPage, h.Svc.MaxPerPage)
	items, total, err := h.Svc.List(r.Context(), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /api/v1/sales/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sale})
}

// UpdateStatus handles PATCH /api/v1/sales/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	sale, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sale})
}
