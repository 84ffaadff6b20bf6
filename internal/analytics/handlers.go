package analytics

import (
	"net/http"
	"strconv"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// Handler exposes analytics endpoints.
type Handler struct {
	Svc *Service
}

// Overview handles GET /api/v1/analytics/overview?from=...&to=...
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	from, to := h.Svc.Range(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	o, err := h.Svc.Overview(r.Context(), from, to)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// TopProducts handles GET /api/v1/analytics/top-products?from=...&to=...&limit=...
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	from, to := h.Svc.Range(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	rows, err := h.Svc.TopProducts(r.Context(), from, to, limit)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
