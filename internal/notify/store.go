package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scs-studio/backend-atelier/internal/events"
)

// ErrNotFound is returned when an endpoint or delivery does not exist.
var ErrNotFound = errors.New("notify: not found")

// Delivery lifecycle states.
const (
	StatusQueued     = "queued"
	StatusDelivering = "delivering"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusDead       = "dead"
)

// Endpoint is a webhook subscriber registration.
type Endpoint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EndpointParams carries the mutable endpoint fields.
type EndpointParams struct {
	Name   string
	URL    string
	Secret string
	Topics []string
	Active bool
}

// Delivery is one scheduled webhook dispatch for an endpoint/event pair.
type Delivery struct {
	ID            string          `json:"id"`
	EndpointID    string          `json:"endpointId"`
	EventID       string          `json:"eventId"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DeliveryFilter narrows delivery listings.
type DeliveryFilter struct {
	EndpointID string
	EventID    string
	Status     string
	Limit      int
	Offset     int
}

// Store defines the persistence operations used by the dispatcher and the
// admin handlers.
type Store interface {
	CreateEndpoint(ctx context.Context, p EndpointParams) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, id string, p EndpointParams) (Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID string, event events.Event) (Delivery, error)
	DequeueDueDeliveries(ctx context.Context, batch int) ([]Delivery, error)
	MarkDelivering(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string) error
	MarkFailedWithBackoff(ctx context.Context, id string, delaySec int, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, int64, error)
	ResetDeliveryForReplay(ctx context.Context, id string) (Delivery, error)
}

const endpointColumns = `id::text, name, url, secret, topics, active, created_at, updated_at`

const deliveryColumns = `id::text, endpoint_id::text, event_id::text, topic, payload, status,
	attempts, next_attempt_at, last_error, delivered_at, created_at, updated_at`

// PGStore is the Postgres-backed Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) CreateEndpoint(ctx context.Context, p EndpointParams) (Endpoint, error) {
	row := s.Pool.QueryRow(ctx, `
INSERT INTO webhook_endpoints (id, name, url, secret, topics, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+endpointColumns,
		uuid.NewString(), p.Name, p.URL, p.Secret, p.Topics, p.Active)
	return scanEndpoint(row)
}

func (s *PGStore) UpdateEndpoint(ctx context.Context, id string, p EndpointParams) (Endpoint, error) {
	row := s.Pool.QueryRow(ctx, `
UPDATE webhook_endpoints
SET name = $2, url = $3, secret = $4, topics = $5, active = $6, updated_at = now()
WHERE id = $1
RETURNING `+endpointColumns,
		id, p.Name, p.URL, p.Secret, p.Topics, p.Active)
	ep, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return ep, err
}

func (s *PGStore) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return ep, err
}

func (s *PGStore) ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+endpointColumns+` FROM webhook_endpoints
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *PGStore) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE active AND $1 = ANY(topics)
ORDER BY created_at`, topic)
	if err != nil {
		return nil, fmt.Errorf("list endpoints for topic: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *PGStore) EnqueueDelivery(ctx context.Context, endpointID string, event events.Event) (Delivery, error) {
	row := s.Pool.QueryRow(ctx, `
INSERT INTO webhook_deliveries (id, endpoint_id, event_id, topic, payload)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+deliveryColumns,
		uuid.NewString(), endpointID, event.ID, event.Topic, []byte(event.Payload))
	return scanDelivery(row)
}

// DequeueDueDeliveries selects due queued/failed rows. SKIP LOCKED only
// skips rows locked by a concurrent statement; the locks end with this one,
// so single-dispatcher semantics come from the redis lock the worker holds
// around each WorkOnce pass.
func (s *PGStore) DequeueDueDeliveries(ctx context.Context, batch int) ([]Delivery, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+deliveryColumns+` FROM webhook_deliveries
WHERE status IN ('queued', 'failed') AND next_attempt_at <= now()
ORDER BY next_attempt_at
LIMIT $1
FOR UPDATE SKIP LOCKED`, batch)
	if err != nil {
		return nil, fmt.Errorf("dequeue deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkDelivering(ctx context.Context, id string) error {
	return s.setStatus(ctx, `
UPDATE webhook_deliveries
SET status = 'delivering', attempts = attempts + 1, updated_at = now()
WHERE id = $1`, id)
}

func (s *PGStore) MarkDelivered(ctx context.Context, id string) error {
	return s.setStatus(ctx, `
UPDATE webhook_deliveries
SET status = 'delivered', last_error = '', delivered_at = now(), updated_at = now()
WHERE id = $1`, id)
}

func (s *PGStore) MarkFailedWithBackoff(ctx context.Context, id string, delaySec int, lastError string) error {
	tag, err := s.Pool.Exec(ctx, `
UPDATE webhook_deliveries
SET status = 'failed', last_error = $2,
    next_attempt_at = now() + make_interval(secs => $3), updated_at = now()
WHERE id = $1`, id, truncateError(lastError), delaySec)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkDead(ctx context.Context, id string, lastError string) error {
	tag, err := s.Pool.Exec(ctx, `
UPDATE webhook_deliveries
SET status = 'dead', last_error = $2, updated_at = now()
WHERE id = $1`, id, truncateError(lastError))
	if err != nil {
		return fmt.Errorf("mark dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, int64, error) {
	where, args := deliveryWhere(f)
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM webhook_deliveries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM webhook_deliveries%s
ORDER BY created_at DESC
LIMIT $%d OFFSET $%d`, deliveryColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// ResetDeliveryForReplay requeues a delivery regardless of its current state.
func (s *PGStore) ResetDeliveryForReplay(ctx context.Context, id string) (Delivery, error) {
	row := s.Pool.QueryRow(ctx, `
UPDATE webhook_deliveries
SET status = 'queued', attempts = 0, last_error = '',
    next_attempt_at = now(), delivered_at = NULL, updated_at = now()
WHERE id = $1
RETURNING `+deliveryColumns, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return d, err
}

func (s *PGStore) setStatus(ctx context.Context, query, id string) error {
	tag, err := s.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func deliveryWhere(f DeliveryFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.EndpointID != "" {
		add("endpoint_id = $%d", f.EndpointID)
	}
	if f.EventID != "" {
		add("event_id = $%d", f.EventID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func truncateError(msg string) string {
	const max = 1024
	if len(msg) > max {
		return msg[:max]
	}
	return msg
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.Name, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Topic, &d.Payload, &d.Status,
		&d.Attempts, &d.NextAttemptAt, &d.LastError, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Delivery{}, err
	}
	return d, nil
}
