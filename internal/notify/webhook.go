package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/obs"
)

// EventSource loads persisted domain events for delivery.
type EventSource interface {
	GetDomainEvent(ctx context.Context, id string) (events.Event, error)
}

// Doer abstracts the HTTP client used for delivery attempts. Both *http.Client
// and resilience.HTTPClient satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher coordinates webhook scheduling and delivery.
type Dispatcher struct {
	Store          Store
	Events         EventSource
	Client         Doer
	BackoffBaseSec int
	MaxAttempts    int
	Enabled        bool
	Replay         ReplayProtector
	ReplayTTL      time.Duration
}

// Schedule enqueues deliveries for active endpoints subscribed to the topic.
// It implements events.DeliveryScheduler.
func (d *Dispatcher) Schedule(ctx context.Context, event events.Event) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.Store.ListActiveEndpointsForTopic(ctx, event.Topic)
	if err != nil {
		return err
	}
	var joined error
	for _, ep := range endpoints {
		if _, err := d.Store.EnqueueDelivery(ctx, ep.ID, event); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// already enqueued for this endpoint/event pair
				continue
			}
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.ID, err))
		}
	}
	return joined
}

// WorkOnce dequeues eligible deliveries and attempts each one.
func (d *Dispatcher) WorkOnce(ctx context.Context, batch int) error {
	if d == nil || !d.Enabled || d.Store == nil {
		return nil
	}
	if batch <= 0 {
		batch = 1
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.WorkOnce")
	defer span.End()
	span.SetAttributes(attribute.Int("webhook.batch", batch))

	deliveries, err := d.Store.DequeueDueDeliveries(ctx, batch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, del := range deliveries {
		attemptStart := time.Now()
		if err := d.Store.MarkDelivering(ctx, del.ID); err != nil {
			continue
		}
		endpoint, err := d.Store.GetEndpoint(ctx, del.EndpointID)
		if err != nil {
			d.recordFailure(ctx, del, attemptStart, fmt.Errorf("load endpoint: %w", err))
			continue
		}
		event, err := d.loadEvent(ctx, del)
		if err != nil {
			d.recordFailure(ctx, del, attemptStart, fmt.Errorf("load event: %w", err))
			continue
		}
		status, deliverErr := d.deliver(ctx, endpoint, event, del)
		if deliverErr == nil && status >= 200 && status < 300 {
			observeAttempt("delivered", attemptStart)
			if err := d.Store.MarkDelivered(ctx, del.ID); err != nil {
				return err
			}
			continue
		}
		d.recordFailure(ctx, del, attemptStart, fmt.Errorf("status=%d err=%v", status, deliverErr))
	}
	return nil
}

func (d *Dispatcher) loadEvent(ctx context.Context, del Delivery) (events.Event, error) {
	if d.Events != nil {
		return d.Events.GetDomainEvent(ctx, del.EventID)
	}
	// fall back to the snapshot captured at enqueue time
	return events.Event{ID: del.EventID, Topic: del.Topic, Payload: del.Payload, OccurredAt: del.CreatedAt}, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, del Delivery, attemptStart time.Time, cause error) {
	reason := cause.Error()
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	// MarkDelivering already counted this attempt.
	if del.Attempts+1 >= maxAttempts {
		observeAttempt("dead", attemptStart)
		_ = d.Store.MarkDead(ctx, del.ID, reason)
		return
	}
	observeAttempt("failed", attemptStart)
	_ = d.Store.MarkFailedWithBackoff(ctx, del.ID, d.nextDelay(del.Attempts), reason)
}

func (d *Dispatcher) nextDelay(attempt int) int {
	base := d.BackoffBaseSec
	if base <= 0 {
		base = 5
	}
	factor := 1 << attempt
	if factor < 1 {
		factor = 1
	}
	return base * factor
}

func observeAttempt(result string, start time.Time) {
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, error) {
	if d.Client == nil {
		d.Client = HTTPClient(5000, false)
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID),
		attribute.String("webhook.delivery_id", del.ID),
		attribute.String("webhook.topic", ev.Topic),
	)
	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, err
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    ev.ID,
		Topic:      ev.Topic,
		Data:       ev.Payload,
		OccurredAt: occurred,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	ts := time.Now().Unix()
	if d.Replay != nil && d.ReplayTTL > 0 {
		ok, err := d.Replay.Acquire(ctx, replayKey(ep.ID, ev.ID), d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "atelier-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", del.ID)
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, ev.ID, body))
	resp, err := d.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, nil
}

// Deliver exposes the low-level delivery routine for manual replays and tests.
func (d *Dispatcher) Deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, error) {
	return d.deliver(ctx, ep, ev, del)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload.
// The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint
// secret, hex encoded.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

func replayKey(endpointID, eventID string) string {
	return fmt.Sprintf("wh:%s:%s", endpointID, eventID)
}
