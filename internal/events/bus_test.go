package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastAggID   string
	lastPayload []byte
	err         error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.lastTopic = topic
	s.lastAggID = aggregateID
	s.lastPayload = payload
	return events.Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureScheduler struct {
	events []events.Event
	err    error
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := &events.Bus{Store: store, Scheduler: scheduler, Notifiers: []events.Notifier{notifier}}

	saleID := uuid.NewString()
	ev, err := bus.Emit(context.Background(), events.TopicSaleCreated, saleID, map[string]any{"total": "49.90"})
	require.NoError(t, err)
	require.Equal(t, events.TopicSaleCreated, ev.Topic)
	require.Equal(t, saleID, ev.AggregateID)
	require.True(t, json.Valid(ev.Payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), "  ", uuid.NewString(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicSaleCreated, "", nil)
	require.Error(t, err)
}

func TestEmitNilPayloadDefaultsToEmptyObject(t *testing.T) {
	store := &stubStore{}
	bus := &events.Bus{Store: store}

	_, err := bus.Emit(context.Background(), events.TopicPromotionUpdated, uuid.NewString(), nil)
	require.NoError(t, err)
	require.JSONEq(t, "{}", string(store.lastPayload))
}

func TestEmitRejectsInvalidJSONString(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), events.TopicSaleCreated, uuid.NewString(), "{not json")
	require.Error(t, err)
}

func TestEmitSchedulerFailureStillReturnsEvent(t *testing.T) {
	scheduler := &captureScheduler{err: errors.New("queue full")}
	bus := &events.Bus{Store: &stubStore{}, Scheduler: scheduler}

	ev, err := bus.Emit(context.Background(), events.TopicSaleCreated, uuid.NewString(), nil)
	require.Error(t, err)
	require.NotEmpty(t, ev.ID)
}
