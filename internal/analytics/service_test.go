package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQuerier struct {
	overviewCalls int
	topCalls      int
}

func (c *countingQuerier) Overview(_ context.Context, from, to time.Time) (Overview, error) {
	c.overviewCalls++
	return Overview{
		From:      from,
		To:        to,
		Revenue:   decimal.RequireFromString("150.50"),
		SaleCount: 3,
		UnitsSold: 7,
	}, nil
}

func (c *countingQuerier) TopProducts(_ context.Context, _, _ time.Time, limit int) ([]TopProduct, error) {
	c.topCalls++
	return []TopProduct{
		{ProductName: "Polo Basico", SKU: "VER-POL-H-PB-BLK-M", UnitsSold: 5, Revenue: decimal.RequireFromString("100")},
	}, nil
}

func newCachedService(t *testing.T, q Querier) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{Q: q, R: client, TTL: time.Minute, DefaultRange: 30}
}

func TestOverviewCachesSecondRead(t *testing.T) {
	q := &countingQuerier{}
	svc := newCachedService(t, q)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	first, err := svc.Overview(context.Background(), from, to)
	require.NoError(t, err)
	second, err := svc.Overview(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, q.overviewCalls)
	assert.True(t, first.Revenue.Equal(second.Revenue))
	assert.Equal(t, first.SaleCount, second.SaleCount)
}

func TestTopProductsCachesSecondRead(t *testing.T) {
	q := &countingQuerier{}
	svc := newCachedService(t, q)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	first, err := svc.TopProducts(context.Background(), from, to, 10)
	require.NoError(t, err)
	second, err := svc.TopProducts(context.Background(), from, to, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, q.topCalls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].SKU, second[0].SKU)
}

func TestRangeDefaultsToTrailingWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc := &Service{DefaultRange: 30, Now: func() time.Time { return now }}

	from, to := svc.Range("", "")
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -30), from)
}

func TestRangeParsesExplicitBounds(t *testing.T) {
	svc := &Service{DefaultRange: 30}

	from, to := svc.Range("2026-08-01", "2026-08-15")
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	// "to" is exclusive: the parsed day is included by advancing one day.
	assert.Equal(t, time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC), to)
}
