// Package analytics aggregates sales figures for the dashboard.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Overview summarises sales in a date range. Cancelled sales are excluded.
type Overview struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Revenue       decimal.Decimal `json:"revenue"`
	DiscountGiven decimal.Decimal `json:"discountGiven"`
	ShippingTaken decimal.Decimal `json:"shippingTaken"`
	SaleCount     int64           `json:"saleCount"`
	UnitsSold     int64           `json:"unitsSold"`
	ExpenseTotal  decimal.Decimal `json:"expenseTotal"`
}

// TopProduct is one row of the top-sellers report.
type TopProduct struct {
	ProductName string          `json:"productName"`
	SKU         string          `json:"sku"`
	UnitsSold   int64           `json:"unitsSold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Querier runs the aggregate queries.
type Querier interface {
	Overview(ctx context.Context, from, to time.Time) (Overview, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error)
}

// PGQuerier aggregates directly over the sales tables.
type PGQuerier struct {
	Pool *pgxpool.Pool
}

// Overview computes range totals over non-cancelled sales plus the expense
// total for the same range.
func (q *PGQuerier) Overview(ctx context.Context, from, to time.Time) (Overview, error) {
	o := Overview{From: from, To: to}
	err := q.Pool.QueryRow(ctx, `
SELECT COALESCE(SUM(s.total), 0),
       COALESCE(SUM(s.item_discount + s.global_discount), 0),
       COALESCE(SUM(s.shipping_cost), 0),
       COUNT(*),
       COALESCE((SELECT SUM(i.quantity) FROM sale_items i
                 JOIN sales si ON si.id = i.sale_id
                 WHERE si.status <> 'CANCELADO'
                   AND si.created_at >= $1 AND si.created_at < $2), 0)
FROM sales s
WHERE s.status <> 'CANCELADO' AND s.created_at >= $1 AND s.created_at < $2`,
		from, to,
	).Scan(&o.Revenue, &o.DiscountGiven, &o.ShippingTaken, &o.SaleCount, &o.UnitsSold)
	if err != nil {
		return Overview{}, fmt.Errorf("overview aggregate: %w", err)
	}
	err = q.Pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0) FROM expenses
WHERE expense_date >= $1 AND expense_date < $2`, from, to).Scan(&o.ExpenseTotal)
	if err != nil {
		return Overview{}, fmt.Errorf("expense aggregate: %w", err)
	}
	return o, nil
}

// TopProducts ranks products by units sold in the range.
func (q *PGQuerier) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	rows, err := q.Pool.Query(ctx, `
SELECT i.product_name, i.sku, SUM(i.quantity), SUM(i.subtotal)
FROM sale_items i
JOIN sales s ON s.id = i.sale_id
WHERE s.status <> 'CANCELADO' AND s.created_at >= $1 AND s.created_at < $2
GROUP BY i.product_name, i.sku
ORDER BY SUM(i.quantity) DESC, SUM(i.subtotal) DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	out := make([]TopProduct, 0, limit)
	for rows.Next() {
		var tp TopProduct
		if err := rows.Scan(&tp.ProductName, &tp.SKU, &tp.UnitsSold, &tp.Revenue); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// Service provides cached access to the aggregates.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Range resolves from/to query values, defaulting to the configured trailing
// window ending now.
func (s *Service) Range(fromRaw, toRaw string) (time.Time, time.Time) {
	to := s.now()
	days := s.DefaultRange
	if days <= 0 {
		days = 30
	}
	from := to.AddDate(0, 0, -days)
	if parsed, err := time.Parse("2006-01-02", fromRaw); err == nil {
		from = parsed
	}
	if parsed, err := time.Parse("2006-01-02", toRaw); err == nil {
		to = parsed.AddDate(0, 0, 1)
	}
	return from, to
}

// Overview returns the cached range summary.
func (s *Service) Overview(ctx context.Context, from, to time.Time) (Overview, error) {
	key := cacheKey("an", "overview", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached Overview
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	o, err := s.Q.Overview(ctx, from, to)
	if err != nil {
		return Overview{}, err
	}
	s.store(ctx, key, o)
	return o, nil
}

// TopProducts returns the cached top-sellers for the range.
func (s *Service) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	key := cacheKey("an", "top", from.Format("2006-01-02"), to.Format("2006-01-02"), limit)
	var cached []TopProduct
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.TopProducts(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func (s *Service) fromCache(ctx context.Context, key string, dst any) bool {
	if s.R == nil {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.R == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}
