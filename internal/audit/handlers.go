package audit

import (
	"net/http"
	"strconv"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// Handler exposes the audit log read API.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/audit-logs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.Store.List(r.Context(), Filter{
		Resource: q.Get("resource"),
		Action:   q.Get("action"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "list audit logs", nil)
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "total": total})
}
