package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists domain events in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent appends an event row and returns the persisted record.
func (s *PGStore) InsertDomainEvent(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error) {
	var ev Event
	err := s.Pool.QueryRow(ctx, `
INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4)
RETURNING id::text, topic, aggregate_id::text, payload, occurred_at`,
		uuid.NewString(), topic, aggregateID, payload,
	).Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}

// GetDomainEvent loads a single event by id.
func (s *PGStore) GetDomainEvent(ctx context.Context, id string) (Event, error) {
	var ev Event
	err := s.Pool.QueryRow(ctx, `
SELECT id::text, topic, aggregate_id::text, payload, occurred_at
FROM domain_events WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("get domain event: %w", err)
	}
	return ev, nil
}
