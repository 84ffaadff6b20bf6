package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gender values recognised by the catalog.
const (
	GenderHombre = "HOMBRE"
	GenderMujer  = "MUJER"
	GenderUnisex = "UNISEX"
)

// Product statuses.
const (
	StatusActive       = "ACTIVO"
	StatusDiscontinued = "DESCATALOGADO"
)

// Variant is a sellable unit of a product: a concrete color/size with its
// own SKU, stock, and prices.
type Variant struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	SKU             string          `json:"sku"`
	Color           string          `json:"color"`
	ColorCode       string          `json:"colorCode,omitempty"`
	Size            string          `json:"size"`
	Stock           int             `json:"stock"`
	PriceProduction decimal.Decimal `json:"priceProduction"`
	PriceRetail     decimal.Decimal `json:"priceRetail"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Product groups variants under a shared name and classification. The
// classification fields drive promotion scope matching.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Collection  string    `json:"collection"`
	ProductType string    `json:"type"`
	Gender      string    `json:"gender"`
	BaseSKU     string    `json:"baseSku"`
	Status      string    `json:"status"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
