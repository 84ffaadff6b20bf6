package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a product or variant does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ErrInsufficientStock is returned when a stock adjustment would drive a
// variant's stock below zero.
var ErrInsufficientStock = errors.New("catalog: insufficient stock")

// ListFilter narrows product listings.
type ListFilter struct {
	Query      string
	Collection string
	Type       string
	Gender     string
	Status     string
	Limit      int
	Offset     int
}

// Repo persists products and variants in Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

const productColumns = `id::text, name, description, collection, product_type, gender, base_sku, status, created_at, updated_at`
const variantColumns = `id::text, product_id::text, sku, color, color_code, size, stock, price_production, price_retail, created_at, updated_at`

// List returns a page of products with their variants and the total count.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Product, int64, error) {
	where, args := listWhere(f)

	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	q := `SELECT ` + productColumns + ` FROM products` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.Pool.Query(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, f.Limit)
	ids := make([]string, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachVariants(ctx, products, ids); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Get returns a single product with its variants.
func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	products := []Product{p}
	if err := r.attachVariants(ctx, products, []string{p.ID}); err != nil {
		return Product{}, err
	}
	return products[0], nil
}

// Create inserts a product and its variants in one transaction.
func (r *Repo) Create(ctx context.Context, p Product) (Product, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO products (id, name, description, collection, product_type, gender, base_sku, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Collection, p.ProductType, p.Gender, p.BaseSKU, p.Status)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	created.Variants = make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		inserted, err := insertVariant(ctx, tx, p.ID, v)
		if err != nil {
			return Product{}, err
		}
		created.Variants = append(created.Variants, inserted)
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// Update rewrites product fields and reconciles its variant set: variants
// present in p are upserted, variants absent from p are deleted.
func (r *Repo) Update(ctx context.Context, p Product) (Product, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE products
SET name = $2, description = $3, collection = $4, product_type = $5,
    gender = $6, base_sku = $7, status = $8, updated_at = now()
WHERE id = $1
RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Collection, p.ProductType, p.Gender, p.BaseSKU, p.Status)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}

	keep := make([]string, 0, len(p.Variants))
	updated.Variants = make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		saved, err := upsertVariant(ctx, tx, p.ID, v)
		if err != nil {
			return Product{}, err
		}
		keep = append(keep, saved.ID)
		updated.Variants = append(updated.Variants, saved)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM product_variants WHERE product_id = $1 AND NOT (id::text = ANY($2))`,
		p.ID, keep); err != nil {
		return Product{}, fmt.Errorf("prune variants: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// Delete removes a product; variants cascade.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock applies a delta to a variant's stock, failing if the result
// would be negative.
func (r *Repo) AdjustStock(ctx context.Context, variantID string, delta int) (Variant, error) {
	row := r.Pool.QueryRow(ctx, `
UPDATE product_variants
SET stock = stock + $2, updated_at = now()
WHERE id = $1 AND stock + $2 >= 0
RETURNING `+variantColumns, variantID, delta)
	v, err := scanVariant(row)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, fmt.Errorf("adjust stock: %w", err)
	}
	var exists bool
	if err := r.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1)`, variantID).Scan(&exists); err != nil {
		return Variant{}, fmt.Errorf("adjust stock: %w", err)
	}
	if !exists {
		return Variant{}, ErrNotFound
	}
	return Variant{}, ErrInsufficientStock
}

// VariantSnapshot joins a variant with the product metadata the pricing
// engine scopes against.
type VariantSnapshot struct {
	Variant
	ProductName string
	Collection  string
	ProductType string
	Gender      string
}

// Snapshots loads pricing snapshots for the given variant ids.
func (r *Repo) Snapshots(ctx context.Context, variantIDs []string) (map[string]VariantSnapshot, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT v.id::text, v.product_id::text, v.sku, v.color, v.color_code, v.size, v.stock,
       v.price_production, v.price_retail, v.created_at, v.updated_at,
       p.name, p.collection, p.product_type, p.gender
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.id::text = ANY($1)`, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("load variant snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]VariantSnapshot, len(variantIDs))
	for rows.Next() {
		var s VariantSnapshot
		if err := rows.Scan(
			&s.ID, &s.ProductID, &s.SKU, &s.Color, &s.ColorCode, &s.Size, &s.Stock,
			&s.PriceProduction, &s.PriceRetail, &s.CreatedAt, &s.UpdatedAt,
			&s.ProductName, &s.Collection, &s.ProductType, &s.Gender,
		); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (r *Repo) attachVariants(ctx context.Context, products []Product, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id::text = ANY($1) ORDER BY sku`, ids)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	byProduct := make(map[string][]Variant, len(ids))
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return err
		}
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range products {
		variants := byProduct[products[i].ID]
		if variants == nil {
			variants = []Variant{}
		}
		products[i].Variants = variants
	}
	return nil
}

func insertVariant(ctx context.Context, tx pgx.Tx, productID string, v Variant) (Variant, error) {
	row := tx.QueryRow(ctx, `
INSERT INTO product_variants (id, product_id, sku, color, color_code, size, stock, price_production, price_retail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+variantColumns,
		v.ID, productID, v.SKU, v.Color, v.ColorCode, v.Size, v.Stock, v.PriceProduction, v.PriceRetail)
	inserted, err := scanVariant(row)
	if err != nil {
		return Variant{}, fmt.Errorf("insert variant: %w", err)
	}
	return inserted, nil
}

func upsertVariant(ctx context.Context, tx pgx.Tx, productID string, v Variant) (Variant, error) {
	row := tx.QueryRow(ctx, `
INSERT INTO product_variants (id, product_id, sku, color, color_code, size, stock, price_production, price_retail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE
SET sku = EXCLUDED.sku, color = EXCLUDED.color, color_code = EXCLUDED.color_code,
    size = EXCLUDED.size, stock = EXCLUDED.stock,
    price_production = EXCLUDED.price_production, price_retail = EXCLUDED.price_retail,
    updated_at = now()
RETURNING `+variantColumns,
		v.ID, productID, v.SKU, v.Color, v.ColorCode, v.Size, v.Stock, v.PriceProduction, v.PriceRetail)
	saved, err := scanVariant(row)
	if err != nil {
		return Variant{}, fmt.Errorf("upsert variant: %w", err)
	}
	return saved, nil
}

func listWhere(f ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Query != "" {
		add(`name ILIKE '%%' || $%d || '%%'`, f.Query)
	}
	if f.Collection != "" {
		add(`collection = $%d`, f.Collection)
	}
	if f.Type != "" {
		add(`product_type = $%d`, f.Type)
	}
	if f.Gender != "" {
		add(`gender = $%d`, f.Gender)
	}
	if f.Status != "" {
		add(`status = $%d`, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Collection, &p.ProductType,
		&p.Gender, &p.BaseSKU, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Color, &v.ColorCode, &v.Size,
		&v.Stock, &v.PriceProduction, &v.PriceRetail, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}
