package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale statuses, in the order a sale normally moves through them.
const (
	StatusAdelantado = "ADELANTADO"
	StatusCompleto   = "COMPLETO"
	StatusEntregado  = "ENTREGADO"
	StatusCancelado  = "CANCELADO"
)

// Payment statuses.
const (
	PaymentPendiente = "PENDIENTE"
	PaymentPagado    = "PAGADO"
)

// ValidStatus reports whether s is a known sale status.
func ValidStatus(s string) bool {
	switch s {
	case StatusAdelantado, StatusCompleto, StatusEntregado, StatusCancelado:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	return s == PaymentPendiente || s == PaymentPagado
}

// Customer is the buyer block captured on a sale.
type Customer struct {
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
	District   string `json:"district,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// Item is a sale line with the product metadata snapshotted at sale time,
// so later catalog edits never reprice history.
type Item struct {
	ID          string          `json:"id"`
	VariantID   string          `json:"variantId"`
	SKU         string          `json:"sku"`
	ProductName string          `json:"productName"`
	Collection  string          `json:"collection"`
	ProductType string          `json:"type"`
	Gender      string          `json:"gender"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	RuleID      string          `json:"ruleId,omitempty"`
}

// Sale is a persisted order with its priced totals.
type Sale struct {
	ID             string          `json:"id"`
	Customer       Customer        `json:"customer"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"paymentStatus"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ItemDiscount   decimal.Decimal `json:"itemDiscount"`
	GlobalDiscount decimal.Decimal `json:"globalDiscount"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	Total          decimal.Decimal `json:"total"`
	AppliedRuleIDs []string        `json:"appliedRuleIds"`
	Items          []Item          `json:"items"`
	DeliveryDate   *time.Time      `json:"deliveryDate,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
