package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/obs"
)

// Entry is a persisted record of a mutating API call.
type Entry struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	Route      string          `json:"route"`
	Status     int             `json:"status"`
	IP         string          `json:"ip"`
	UserAgent  string          `json:"userAgent"`
	RequestID  string          `json:"requestId"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Filter narrows audit log listings.
type Filter struct {
	Resource string
	Action   string
	Limit    int
	Offset   int
}

// Store persists and queries audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, int64, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) Insert(ctx context.Context, e Entry) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO audit_logs (action, resource, resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.Action, e.Resource, e.ResourceID, e.Method, e.Path, e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, e.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Entry, int64, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if f.Resource != "" {
		args = append(args, f.Resource)
		where = append(where, fmt.Sprintf("resource = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.Pool.QueryRow(ctx, "SELECT count(*) FROM audit_logs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT id, action, resource, resource_id, method, path, route, status, ip, user_agent, request_id, metadata, created_at
		FROM audit_logs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Action, &e.Resource, &e.ResourceID, &e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &e.Metadata, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan audit logs: %w", err)
	}
	return entries, total, nil
}

// Service records mutation audit entries.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists an entry for the given request outcome. A zero status is
// normalised to 200. Entries may be dropped when sampling is configured.
func (s Service) Record(ctx context.Context, req *http.Request, status int, resourceID string, metadata []byte) error {
	if !s.Enabled || s.Store == nil || req == nil {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}

	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = req.URL.Path
	}
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.Insert(ctx, Entry{
		Action:     strings.ToUpper(req.Method) + " " + route,
		Resource:   resourceFromRoute(route),
		ResourceID: resourceID,
		Method:     req.Method,
		Path:       req.URL.Path,
		Route:      route,
		Status:     status,
		IP:         common.ClientIP(req),
		UserAgent:  req.Header.Get("User-Agent"),
		RequestID:  req.Header.Get("X-Request-ID"),
		Metadata:   metadata,
	})
}

// resourceFromRoute turns "/api/v1/products/{id}" into "products".
func resourceFromRoute(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return segments[2]
	}
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}
