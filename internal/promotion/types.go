package promotion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/pricing"
)

// Rule is a persisted promotion rule. Position fixes evaluation order so
// tie-breaking between equal discounts stays stable across restarts.
type Rule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	Scope     string          `json:"scope"`
	Target    string          `json:"target,omitempty"`
	Active    bool            `json:"active"`
	Position  int             `json:"position"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ToPricing converts the stored rule into the engine's rule shape.
func (r Rule) ToPricing() pricing.Rule {
	return pricing.Rule{
		ID:     r.ID,
		Name:   r.Name,
		Kind:   pricing.Kind(r.Kind),
		Value:  r.Value,
		Scope:  pricing.Scope(r.Scope),
		Target: r.Target,
		Active: r.Active,
	}
}

// ToPricingRules converts a slice preserving order.
func ToPricingRules(rules []Rule) []pricing.Rule {
	out := make([]pricing.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.ToPricing())
	}
	return out
}
