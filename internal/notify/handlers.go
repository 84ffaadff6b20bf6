package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/events"
)

// AdminHandler exposes management endpoints for webhook configuration and
// delivery monitoring.
type AdminHandler struct {
	Store Store
	Disp  *Dispatcher
}

type endpointRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics"`
}

func (req endpointRequest) params() (EndpointParams, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Secret) == "" {
		return EndpointParams{}, errors.New("name, url and secret are required")
	}
	if err := validateURL(req.URL); err != nil {
		return EndpointParams{}, err
	}
	topics := normaliseTopics(req.Topics)
	for _, topic := range topics {
		if !events.ValidTopic(topic) {
			return EndpointParams{}, errors.New("unknown topic: " + topic)
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return EndpointParams{
		Name:   strings.TrimSpace(req.Name),
		URL:    strings.TrimSpace(req.URL),
		Secret: req.Secret,
		Topics: topics,
		Active: active,
	}, nil
}

// CreateEndpoint handles POST /api/v1/webhooks.
func (h *AdminHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	params, err := req.params()
	if err != nil {
		common.RenderError(w, common.Invalid(err.Error()))
		return
	}
	endpoint, err := h.Store.CreateEndpoint(r.Context(), params)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": endpoint})
}

// UpdateEndpoint handles PUT /api/v1/webhooks/{id}.
func (h *AdminHandler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	params, err := req.params()
	if err != nil {
		common.RenderError(w, common.Invalid(err.Error()))
		return
	}
	endpoint, err := h.Store.UpdateEndpoint(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		common.RenderError(w, mapNotFound(err, "webhook endpoint"))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": endpoint})
}

// ListEndpoints handles GET /api/v1/webhooks.
func (h *AdminHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	endpoints, err := h.Store.ListEndpoints(r.Context(), limit, offset)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if endpoints == nil {
		endpoints = []Endpoint{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": endpoints})
}

// DeleteEndpoint handles DELETE /api/v1/webhooks/{id}.
func (h *AdminHandler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.RenderError(w, mapNotFound(err, "webhook endpoint"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries handles GET /api/v1/webhook-deliveries.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := DeliveryFilter{
		EndpointID: strings.TrimSpace(r.URL.Query().Get("endpointId")),
		EventID:    strings.TrimSpace(r.URL.Query().Get("eventId")),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	}
	rows, total, err := h.Store.ListDeliveries(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if rows == nil {
		rows = []Delivery{}
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": rows, "total": total})
}

// ReplayDelivery handles POST /api/v1/webhook-deliveries/{id}/replay.
func (h *AdminHandler) ReplayDelivery(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.Store.ResetDeliveryForReplay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, mapNotFound(err, "webhook delivery"))
		return
	}
	if h.Disp != nil && h.Disp.Replay != nil {
		_ = h.Disp.Replay.Release(r.Context(), replayKey(delivery.EndpointID, delivery.EventID))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": delivery})
}

func mapNotFound(err error, entity string) error {
	if errors.Is(err, ErrNotFound) {
		return common.NotFound(entity)
	}
	return err
}

func normaliseTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	result := make([]string, 0, len(topics))
	for _, topic := range topics {
		trimmed := strings.TrimSpace(strings.ToLower(topic))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return
}
