// Package shipping maintains the Lima/Callao district delivery table and
// quotes shipping costs for the POS.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/common"
)

// ErrNotFound is returned when a district does not exist.
var ErrNotFound = errors.New("shipping: district not found")

// District is one deliverable district with its base price.
type District struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Department        string          `json:"department"`
	BasePrice         decimal.Decimal `json:"basePrice"`
	AllowDoorDelivery bool            `json:"allowDoorDelivery"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Quote is the result of pricing a delivery.
type Quote struct {
	District          string          `json:"district,omitempty"`
	Cost              decimal.Decimal `json:"cost"`
	AllowDoorDelivery bool            `json:"allowDoorDelivery"`
	Fallback          bool            `json:"fallback"`
}

// Repo persists districts in Postgres.
type Repo struct {
	Pool *pgxpool.Pool
}

const districtColumns = `id::text, name, department, base_price, allow_door_delivery, created_at, updated_at`

// List returns all districts sorted by name.
func (r *Repo) List(ctx context.Context) ([]District, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+districtColumns+` FROM shipping_districts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	defer rows.Close()

	districts := make([]District, 0, 50)
	for rows.Next() {
		d, err := scanDistrict(rows)
		if err != nil {
			return nil, err
		}
		districts = append(districts, d)
	}
	return districts, rows.Err()
}

// GetByName does a case-insensitive lookup.
func (r *Repo) GetByName(ctx context.Context, name string) (District, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+districtColumns+` FROM shipping_districts WHERE lower(name) = lower($1)`, name)
	d, err := scanDistrict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return District{}, ErrNotFound
		}
		return District{}, fmt.Errorf("get district: %w", err)
	}
	return d, nil
}

// Update patches price and door-delivery flag for a district.
func (r *Repo) Update(ctx context.Context, name string, basePrice *decimal.Decimal, allowDoor *bool) (District, error) {
	row := r.Pool.QueryRow(ctx, `
UPDATE shipping_districts
SET base_price = COALESCE($2, base_price),
    allow_door_delivery = COALESCE($3, allow_door_delivery),
    updated_at = now()
WHERE lower(name) = lower($1)
RETURNING `+districtColumns, name, basePrice, allowDoor)
	d, err := scanDistrict(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return District{}, ErrNotFound
		}
		return District{}, fmt.Errorf("update district: %w", err)
	}
	return d, nil
}

func scanDistrict(row pgx.Row) (District, error) {
	var d District
	err := row.Scan(&d.ID, &d.Name, &d.Department, &d.BasePrice,
		&d.AllowDoorDelivery, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

type repoProvider interface {
	List(ctx context.Context) ([]District, error)
	GetByName(ctx context.Context, name string) (District, error)
	Update(ctx context.Context, name string, basePrice *decimal.Decimal, allowDoor *bool) (District, error)
}

// Service quotes deliveries, falling back to the configured base price for
// unknown districts.
type Service struct {
	Repo       repoProvider
	GlobalBase decimal.Decimal
}

// List returns the district table.
func (s *Service) List(ctx context.Context) ([]District, error) {
	return s.Repo.List(ctx)
}

// UpdateInput patches a district.
type UpdateInput struct {
	BasePrice         *decimal.Decimal `json:"basePrice,omitempty"`
	AllowDoorDelivery *bool            `json:"allowDoorDelivery,omitempty"`
}

// Update patches a district's price or door-delivery flag.
func (s *Service) Update(ctx context.Context, name string, in UpdateInput) (District, error) {
	if in.BasePrice == nil && in.AllowDoorDelivery == nil {
		return District{}, common.Invalid("nothing to update")
	}
	if in.BasePrice != nil && in.BasePrice.IsNegative() {
		return District{}, common.Invalid("basePrice cannot be negative")
	}
	d, err := s.Repo.Update(ctx, name, in.BasePrice, in.AllowDoorDelivery)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return District{}, common.NotFound("district")
		}
		return District{}, err
	}
	return d, nil
}

// QuoteFor prices a delivery to the named district. An empty or unknown
// district quotes the global base price.
func (s *Service) QuoteFor(ctx context.Context, district string) (Quote, error) {
	district = strings.TrimSpace(district)
	if district == "" {
		return Quote{Cost: s.GlobalBase, Fallback: true}, nil
	}
	d, err := s.Repo.GetByName(ctx, district)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Quote{District: district, Cost: s.GlobalBase, Fallback: true}, nil
		}
		return Quote{}, err
	}
	return Quote{District: d.Name, Cost: d.BasePrice, AllowDoorDelivery: d.AllowDoorDelivery}, nil
}
