package sales

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/catalog"
	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/obs"
	"github.com/scs-studio/backend-atelier/internal/pricing"
)

type repoProvider interface {
	Create(ctx context.Context, sale Sale) (Sale, error)
	Get(ctx context.Context, id string) (Sale, error)
	List(ctx context.Context, f ListFilter) ([]Sale, int64, error)
	UpdateStatus(ctx context.Context, id, status, paymentStatus string, restock bool) (Sale, error)
}

type snapshotProvider interface {
	Snapshots(ctx context.Context, variantIDs []string) (map[string]catalog.VariantSnapshot, error)
}

type ruleProvider interface {
	ActivePricingRules(ctx context.Context) ([]pricing.Rule, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service creates and manages sales. Creation snapshots catalog metadata,
// prices the cart with the engine, and persists everything transactionally.
type Service struct {
	Repo    repoProvider
	Catalog snapshotProvider
	Rules   ruleProvider
	Bus     eventEmitter

	DefaultPerPage int
	MaxPerPage     int
}

// ItemInput is one requested cart line.
type ItemInput struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// CreateRequest is the POS checkout payload.
type CreateRequest struct {
	Customer       Customer        `json:"customer"`
	Items          []ItemInput     `json:"items"`
	GlobalDiscount decimal.Decimal `json:"globalDiscount"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	Status         string          `json:"status,omitempty"`
	PaymentStatus  string          `json:"paymentStatus,omitempty"`
	DeliveryDate   *time.Time      `json:"deliveryDate,omitempty"`
}

// StatusRequest patches a sale's status and optionally its payment status.
type StatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// Create validates the request, prices the cart against the active rules,
// and persists the sale with stock decremented.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Sale, error) {
	if strings.TrimSpace(req.Customer.Name) == "" {
		return Sale{}, common.Invalid("customer name is required")
	}
	if len(req.Items) == 0 {
		return Sale{}, common.Invalid("at least one item is required")
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		status = StatusAdelantado
	}
	if !ValidStatus(status) || status == StatusCancelado {
		return Sale{}, common.Invalid("invalid initial status " + status)
	}
	paymentStatus := strings.ToUpper(strings.TrimSpace(req.PaymentStatus))
	if paymentStatus == "" {
		paymentStatus = PaymentPendiente
	}
	if !ValidPaymentStatus(paymentStatus) {
		return Sale{}, common.Invalid("invalid payment status " + paymentStatus)
	}

	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return Sale{}, common.Invalid("item quantity must be positive")
		}
		if strings.TrimSpace(it.VariantID) == "" {
			return Sale{}, common.Invalid("item variantId is required")
		}
		ids = append(ids, it.VariantID)
	}
	snapshots, err := s.Catalog.Snapshots(ctx, ids)
	if err != nil {
		return Sale{}, err
	}

	lines := make([]pricing.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		snap, ok := snapshots[it.VariantID]
		if !ok {
			return Sale{}, common.NotFound("variant " + it.VariantID)
		}
		lines = append(lines, pricing.LineItem{
			VariantID:   snap.ID,
			ProductName: snap.ProductName,
			Collection:  snap.Collection,
			ProductType: snap.ProductType,
			Gender:      snap.Gender,
			Quantity:    it.Quantity,
			UnitPrice:   snap.PriceRetail,
		})
	}

	rules, err := s.Rules.ActivePricingRules(ctx)
	if err != nil {
		return Sale{}, err
	}
	result, err := pricing.Compute(lines, rules, req.GlobalDiscount, req.ShippingCost)
	observePricing(err == nil, len(result.Warnings))
	if err != nil {
		var verr *pricing.ValidationError
		if errors.As(err, &verr) {
			return Sale{}, common.NewAppError("VALIDATION_ERROR", verr.Error(), 400, err)
		}
		return Sale{}, err
	}

	sale := Sale{
		ID:             uuid.NewString(),
		Customer:       trimCustomer(req.Customer),
		Status:         status,
		PaymentStatus:  paymentStatus,
		Subtotal:       result.Totals.Subtotal,
		ItemDiscount:   result.Totals.ItemDiscount,
		GlobalDiscount: result.Totals.GlobalDiscount,
		ShippingCost:   result.Totals.ShippingCost,
		Total:          result.Totals.Total,
		AppliedRuleIDs: result.Totals.AppliedRuleIDs,
		DeliveryDate:   req.DeliveryDate,
	}
	sale.Items = make([]Item, 0, len(lines))
	for i, line := range result.Lines {
		snap := snapshots[line.VariantID]
		sale.Items = append(sale.Items, Item{
			ID:          uuid.NewString(),
			VariantID:   line.VariantID,
			SKU:         snap.SKU,
			ProductName: snap.ProductName,
			Collection:  snap.Collection,
			ProductType: snap.ProductType,
			Gender:      snap.Gender,
			Color:       snap.Color,
			Size:        snap.Size,
			Quantity:    lines[i].Quantity,
			UnitPrice:   snap.PriceRetail,
			Discount:    line.Discount,
			Subtotal:    line.Subtotal.Sub(line.Discount),
			RuleID:      line.RuleID,
		})
	}

	created, err := s.Repo.Create(ctx, sale)
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			if obs.StockRejectedTotal != nil {
				obs.StockRejectedTotal.Inc()
			}
			return Sale{}, common.NewAppError("INSUFFICIENT_STOCK",
				"not enough stock for variant "+stockErr.VariantID, 422, err)
		}
		return Sale{}, err
	}
	if obs.SalesCreatedTotal != nil {
		obs.SalesCreatedTotal.WithLabelValues(created.Status).Inc()
	}
	s.emit(ctx, events.TopicSaleCreated, created.ID, map[string]any{
		"saleId": created.ID,
		"status": created.Status,
		"total":  created.Total.String(),
	})
	return created, nil
}

// Get returns a sale with items.
func (s *Service) Get(ctx context.Context, id string) (Sale, error) {
	sale, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sale{}, common.NotFound("sale")
		}
		return Sale{}, err
	}
	return sale, nil
}

// List returns a page of sales filtered by status.
func (s *Service) List(ctx context.Context, status string, page, perPage int) ([]Sale, int64, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !ValidStatus(status) {
		return nil, 0, common.Invalid("unknown status filter " + status)
	}
	return s.Repo.List(ctx, ListFilter{
		Status: status,
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	})
}

// UpdateStatus transitions a sale. Cancelling restores stock; a cancelled
// sale cannot move again.
func (s *Service) UpdateStatus(ctx context.Context, id string, req StatusRequest) (Sale, error) {
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !ValidStatus(status) {
		return Sale{}, common.Invalid("invalid status " + status)
	}
	paymentStatus := strings.ToUpper(strings.TrimSpace(req.PaymentStatus))
	if paymentStatus != "" && !ValidPaymentStatus(paymentStatus) {
		return Sale{}, common.Invalid("invalid payment status " + paymentStatus)
	}

	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sale{}, common.NotFound("sale")
		}
		return Sale{}, err
	}
	if current.Status == StatusCancelado {
		return Sale{}, common.NewAppError("INVALID_TRANSITION",
			"cancelled sales cannot change status", 409, nil)
	}
	if current.Status == status && paymentStatus == "" {
		return current, nil
	}

	restock := status == StatusCancelado
	updated, err := s.Repo.UpdateStatus(ctx, id, status, paymentStatus, restock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Sale{}, common.NotFound("sale")
		}
		return Sale{}, err
	}
	s.emit(ctx, events.TopicSaleStatusChanged, updated.ID, map[string]any{
		"saleId": updated.ID,
		"from":   current.Status,
		"to":     updated.Status,
	})
	return updated, nil
}

func (s *Service) emit(ctx context.Context, topic, id string, payload any) {
	if s.Bus == nil {
		return
	}
	_, _ = s.Bus.Emit(ctx, topic, id, payload)
}

func trimCustomer(c Customer) Customer {
	return Customer{
		Name:       strings.TrimSpace(c.Name),
		Address:    strings.TrimSpace(c.Address),
		Phone:      strings.TrimSpace(c.Phone),
		Department: strings.ToUpper(strings.TrimSpace(c.Department)),
		District:   strings.TrimSpace(c.District),
		Reference:  strings.TrimSpace(c.Reference),
	}
}

func observePricing(ok bool, warnings int) {
	if obs.PricingComputeTotal != nil {
		result := "ok"
		if !ok {
			result = "error"
		}
		obs.PricingComputeTotal.WithLabelValues(result).Inc()
	}
	if obs.PricingRuleWarnings != nil && warnings > 0 {
		obs.PricingRuleWarnings.Add(float64(warnings))
	}
}
