package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a sale does not exist.
var ErrNotFound = errors.New("sales: not found")

// InsufficientStockError identifies the variant that blocked a sale.
type InsufficientStockError struct {
	VariantID string
}

func (e *InsufficientStockError) Error() string {
	return "sales: insufficient stock for variant " + e.VariantID
}

// ListFilter narrows sale listings.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Repo persists sales in Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

const saleColumns = `id::text, customer_name, customer_address, customer_phone,
customer_department, customer_district, customer_reference, status, payment_status,
subtotal, item_discount, global_discount, shipping_cost, total, applied_rule_ids,
delivery_date, created_at, updated_at`

const itemColumns = `id::text, sale_id::text, variant_id::text, sku, product_name,
collection, product_type, gender, color, size, quantity, unit_price, discount, subtotal,
COALESCE(rule_id::text, '')`

// Create persists the sale and its items and decrements variant stock, all
// in one transaction. A variant without enough stock aborts the whole sale
// with an InsufficientStockError.
func (r *Repo) Create(ctx context.Context, sale Sale) (Sale, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Sale{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range sale.Items {
		tag, err := tx.Exec(ctx, `
UPDATE product_variants
SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2`, item.VariantID, item.Quantity)
		if err != nil {
			return Sale{}, fmt.Errorf("decrement stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return Sale{}, &InsufficientStockError{VariantID: item.VariantID}
		}
	}

	row := tx.QueryRow(ctx, `
INSERT INTO sales (id, customer_name, customer_address, customer_phone,
    customer_department, customer_district, customer_reference, status, payment_status,
    subtotal, item_discount, global_discount, shipping_cost, total, applied_rule_ids,
    delivery_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING `+saleColumns,
		sale.ID, sale.Customer.Name, sale.Customer.Address, sale.Customer.Phone,
		sale.Customer.Department, sale.Customer.District, sale.Customer.Reference,
		sale.Status, sale.PaymentStatus, sale.Subtotal, sale.ItemDiscount,
		sale.GlobalDiscount, sale.ShippingCost, sale.Total, sale.AppliedRuleIDs,
		sale.DeliveryDate)
	created, err := scanSale(row)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	created.Items = make([]Item, 0, len(sale.Items))
	for _, item := range sale.Items {
		var ruleID any
		if item.RuleID != "" {
			ruleID = item.RuleID
		}
		itemRow := tx.QueryRow(ctx, `
INSERT INTO sale_items (id, sale_id, variant_id, sku, product_name, collection,
    product_type, gender, color, size, quantity, unit_price, discount, subtotal, rule_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+itemColumns,
			item.ID, sale.ID, item.VariantID, item.SKU, item.ProductName, item.Collection,
			item.ProductType, item.Gender, item.Color, item.Size, item.Quantity,
			item.UnitPrice, item.Discount, item.Subtotal, ruleID)
		inserted, err := scanItem(itemRow)
		if err != nil {
			return Sale{}, fmt.Errorf("insert sale item: %w", err)
		}
		created.Items = append(created.Items, inserted.Item)
	}

	if err := tx.Commit(ctx); err != nil {
		return Sale{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// Get returns a sale with its items.
func (r *Repo) Get(ctx context.Context, id string) (Sale, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, fmt.Errorf("get sale: %w", err)
	}
	sales := []Sale{sale}
	if err := r.attachItems(ctx, sales, []string{sale.ID}); err != nil {
		return Sale{}, err
	}
	return sales[0], nil
}

// List returns a page of sales, newest first, with items attached.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Sale, int64, error) {
	where := ""
	args := []any{}
	if f.Status != "" {
		where = " WHERE status = $1"
		args = append(args, f.Status)
	}

	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	q := `SELECT ` + saleColumns + ` FROM sales` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.Pool.Query(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	out := make([]Sale, 0, f.Limit)
	ids := make([]string, 0, f.Limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, out, ids); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatus moves a sale to a new status. When restock is set, the items'
// quantities are added back to variant stock in the same transaction.
func (r *Repo) UpdateStatus(ctx context.Context, id, status, paymentStatus string, restock bool) (Sale, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Sale{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE sales
SET status = $2,
    payment_status = COALESCE(NULLIF($3, ''), payment_status),
    updated_at = now()
WHERE id = $1
RETURNING `+saleColumns, id, status, paymentStatus)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, fmt.Errorf("update sale status: %w", err)
	}

	if restock {
		if _, err := tx.Exec(ctx, `
UPDATE product_variants v
SET stock = v.stock + i.quantity, updated_at = now()
FROM sale_items i
WHERE i.sale_id = $1 AND i.variant_id = v.id`, id); err != nil {
			return Sale{}, fmt.Errorf("restore stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Sale{}, fmt.Errorf("commit: %w", err)
	}
	sales := []Sale{sale}
	if err := r.attachItems(ctx, sales, []string{sale.ID}); err != nil {
		return Sale{}, err
	}
	return sales[0], nil
}

func (r *Repo) attachItems(ctx context.Context, sales []Sale, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+itemColumns+` FROM sale_items WHERE sale_id::text = ANY($1) ORDER BY sku`, ids)
	if err != nil {
		return fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	bySale := make(map[string][]Item, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		bySale[item.saleID] = append(bySale[item.saleID], item.Item)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range sales {
		items := bySale[sales[i].ID]
		if items == nil {
			items = []Item{}
		}
		sales[i].Items = items
	}
	return nil
}

type scannedItem struct {
	Item
	saleID string
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.Customer.Name, &s.Customer.Address, &s.Customer.Phone,
		&s.Customer.Department, &s.Customer.District, &s.Customer.Reference,
		&s.Status, &s.PaymentStatus, &s.Subtotal, &s.ItemDiscount, &s.GlobalDiscount,
		&s.ShippingCost, &s.Total, &s.AppliedRuleIDs, &s.DeliveryDate,
		&s.CreatedAt, &s.UpdatedAt)
	if s.AppliedRuleIDs == nil {
		s.AppliedRuleIDs = []string{}
	}
	return s, err
}

func scanItem(row pgx.Row) (scannedItem, error) {
	var it scannedItem
	err := row.Scan(&it.ID, &it.saleID, &it.VariantID, &it.SKU, &it.ProductName,
		&it.Collection, &it.ProductType, &it.Gender, &it.Color, &it.Size,
		&it.Quantity, &it.UnitPrice, &it.Discount, &it.Subtotal, &it.RuleID)
	return it, err
}
