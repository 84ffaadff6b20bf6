package promotion

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/pricing"
)

type repoProvider interface {
	List(ctx context.Context) ([]Rule, error)
	ListActive(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id string) (Rule, error)
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) (Rule, error)
	Toggle(ctx context.Context, id string) (Rule, error)
	Delete(ctx context.Context, id string) error
}

type eventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service manages promotion rules and cart previews.
type Service struct {
	Repo repoProvider
	Bus  eventEmitter
}

// RuleInput is the caller-supplied rule shape.
type RuleInput struct {
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Value  decimal.Decimal `json:"value"`
	Scope  string          `json:"scope"`
	Target string          `json:"target,omitempty"`
	Active *bool           `json:"active,omitempty"`
}

// PreviewItem is a hypothetical cart line for preview pricing.
type PreviewItem struct {
	VariantID   string          `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	Collection  string          `json:"collection"`
	Type        string          `json:"type"`
	Gender      string          `json:"gender"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// PreviewRequest carries the cart to price against the active rules.
type PreviewRequest struct {
	Items          []PreviewItem   `json:"items"`
	GlobalDiscount decimal.Decimal `json:"globalDiscount"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
}

// List returns all rules in evaluation order.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	rules, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

// ActivePricingRules loads the active rules converted for the engine.
func (s *Service) ActivePricingRules(ctx context.Context) ([]pricing.Rule, error) {
	rules, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return ToPricingRules(rules), nil
}

// Create validates and persists a new rule.
func (s *Service) Create(ctx context.Context, in RuleInput) (Rule, error) {
	rule, err := buildRule(uuid.NewString(), in, true)
	if err != nil {
		return Rule{}, err
	}
	created, err := s.Repo.Create(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	s.emit(ctx, created.ID, "created")
	return created, nil
}

// Update validates and rewrites an existing rule. When the payload omits the
// active flag the stored flag is preserved, so editing an inactive rule does
// not reactivate it.
func (s *Service) Update(ctx context.Context, id string, in RuleInput) (Rule, error) {
	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Rule{}, mapNotFound(err)
	}
	rule, err := buildRule(id, in, current.Active)
	if err != nil {
		return Rule{}, err
	}
	updated, err := s.Repo.Update(ctx, rule)
	if err != nil {
		return Rule{}, mapNotFound(err)
	}
	s.emit(ctx, updated.ID, "updated")
	return updated, nil
}

// Toggle flips a rule's active flag.
func (s *Service) Toggle(ctx context.Context, id string) (Rule, error) {
	rule, err := s.Repo.Toggle(ctx, id)
	if err != nil {
		return Rule{}, mapNotFound(err)
	}
	s.emit(ctx, rule.ID, "toggled")
	return rule, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}
	s.emit(ctx, id, "deleted")
	return nil
}

// Preview prices a hypothetical cart against the currently active rules.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (pricing.Result, error) {
	rules, err := s.ActivePricingRules(ctx)
	if err != nil {
		return pricing.Result{}, err
	}
	items := make([]pricing.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.LineItem{
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Collection:  it.Collection,
			ProductType: it.Type,
			Gender:      it.Gender,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	result, err := pricing.Compute(items, rules, req.GlobalDiscount, req.ShippingCost)
	if err != nil {
		var verr *pricing.ValidationError
		if errors.As(err, &verr) {
			return pricing.Result{}, common.NewAppError("VALIDATION_ERROR", verr.Error(), 400, err)
		}
		return pricing.Result{}, err
	}
	return result, nil
}

func buildRule(id string, in RuleInput, defaultActive bool) (Rule, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Rule{}, common.Invalid("name is required")
	}
	kind := strings.ToUpper(strings.TrimSpace(in.Kind))
	if kind != string(pricing.KindPercentage) && kind != string(pricing.KindFixedAmount) {
		return Rule{}, common.Invalid("kind must be PERCENTAGE or FIXED_AMOUNT")
	}
	if in.Value.IsNegative() {
		return Rule{}, common.Invalid("value cannot be negative")
	}
	if kind == string(pricing.KindPercentage) && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return Rule{}, common.Invalid("percentage value cannot exceed 100")
	}
	scope := strings.ToUpper(strings.TrimSpace(in.Scope))
	switch pricing.Scope(scope) {
	case pricing.ScopeGlobal, pricing.ScopeCollection, pricing.ScopeProductType,
		pricing.ScopeGender, pricing.ScopeProductName:
	default:
		return Rule{}, common.Invalid("unknown scope " + scope)
	}
	target := strings.TrimSpace(in.Target)
	if scope != string(pricing.ScopeGlobal) && target == "" {
		return Rule{}, common.Invalid("scoped rules require a target")
	}
	active := defaultActive
	if in.Active != nil {
		active = *in.Active
	}
	return Rule{
		ID:     id,
		Name:   name,
		Kind:   kind,
		Value:  in.Value,
		Scope:  scope,
		Target: target,
		Active: active,
	}, nil
}

func (s *Service) emit(ctx context.Context, ruleID, action string) {
	if s.Bus == nil {
		return
	}
	_, _ = s.Bus.Emit(ctx, events.TopicPromotionUpdated, ruleID, map[string]string{
		"ruleId": ruleID,
		"action": action,
	})
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NotFound("promotion rule")
	}
	return err
}
