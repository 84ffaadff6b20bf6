// Package pricing computes order totals for a cart of line items against a
// set of promotion rules. It is a pure computation: no clocks, no I/O, no
// shared state, so it is safe to call concurrently and repeatedly (the POS
// re-prices on every cart change).
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind describes how a rule's value is interpreted.
type Kind string

const (
	// KindPercentage takes Value percent off the line subtotal (0-100).
	KindPercentage Kind = "PERCENTAGE"
	// KindFixedAmount takes Value off per unit of the matching line.
	KindFixedAmount Kind = "FIXED_AMOUNT"
)

// Scope describes which dimension of a line item a rule matches on.
type Scope string

const (
	// ScopeGlobal matches every line.
	ScopeGlobal Scope = "GLOBAL"
	// ScopeCollection matches on exact collection equality.
	ScopeCollection Scope = "COLLECTION"
	// ScopeProductType matches on exact product type equality.
	ScopeProductType Scope = "PRODUCT_TYPE"
	// ScopeGender matches on exact gender equality.
	ScopeGender Scope = "GENDER"
	// ScopeProductName matches lines whose product name contains the target.
	ScopeProductName Scope = "PRODUCT_NAME"
)

// LineItem is one purchased variant. Classification fields are snapshots
// taken at add-to-cart time; pricing never re-reads the catalog, so a cart
// prices identically regardless of later catalog edits.
type LineItem struct {
	VariantID   string
	ProductName string
	Collection  string
	ProductType string
	Gender      string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal returns unit price times quantity for the line.
func (it LineItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Rule is one promotion definition. Inactive rules are ignored entirely.
type Rule struct {
	ID     string
	Name   string
	Kind   Kind
	Value  decimal.Decimal
	Scope  Scope
	Target string
	Active bool
}

// LineResult is the per-line pricing breakdown. RuleID is empty when no
// rule discounted the line.
type LineResult struct {
	VariantID string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	RuleID    string
}

// Totals aggregates the order-level amounts.
type Totals struct {
	Subtotal       decimal.Decimal
	ItemDiscount   decimal.Decimal
	GlobalDiscount decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	AppliedRuleIDs []string
}

// Warning flags a rule that was skipped without failing the computation.
type Warning struct {
	RuleID string
	Reason string
}

// Result is the full outcome of a pricing computation.
type Result struct {
	Totals   Totals
	Lines    []LineResult
	Warnings []Warning
}

// ValidationError reports an input that violates the pricing contract.
// Validation failures reject the whole computation: a partially priced cart
// is more dangerous than a rejected one.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("pricing: invalid %s: %s", e.Field, e.Reason)
}

var hundred = decimal.NewFromInt(100)

// Compute prices the cart. Per line, every active rule is tested for a
// match and the single largest candidate discount wins; candidates from
// multiple matching rules are never summed. On an exact tie the first rule
// in input order wins. The winning discount is clamped to the line subtotal
// so no line contributes a negative amount, and the grand total floors at
// zero.
//
// A FIXED_AMOUNT value is applied per unit (value x quantity), not per
// line; this matches how the shop has always priced multi-quantity lines.
//
// Rules with an unrecognised kind or scope are skipped and reported in
// Result.Warnings rather than failing the cart.
func Compute(items []LineItem, rules []Rule, globalDiscount, shippingCost decimal.Decimal) (Result, error) {
	if globalDiscount.IsNegative() {
		return Result{}, &ValidationError{Field: "globalDiscount", Reason: "must not be negative"}
	}
	if shippingCost.IsNegative() {
		return Result{}, &ValidationError{Field: "shippingCost", Reason: "must not be negative"}
	}
	for i, it := range items {
		if it.Quantity < 1 {
			return Result{}, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be at least 1"}
		}
		if it.UnitPrice.IsNegative() {
			return Result{}, &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Reason: "must not be negative"}
		}
	}

	var warnings []Warning
	active := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !r.Active {
			continue
		}
		if r.Value.IsNegative() {
			return Result{}, &ValidationError{Field: fmt.Sprintf("rules[%d].value", i), Reason: "must not be negative"}
		}
		if r.Kind == KindPercentage && r.Value.GreaterThan(hundred) {
			return Result{}, &ValidationError{Field: fmt.Sprintf("rules[%d].value", i), Reason: "percentage must be within [0,100]"}
		}
		switch r.Kind {
		case KindPercentage, KindFixedAmount:
		default:
			warnings = append(warnings, Warning{RuleID: r.ID, Reason: fmt.Sprintf("unknown kind %q", r.Kind)})
			continue
		}
		switch r.Scope {
		case ScopeGlobal, ScopeCollection, ScopeProductType, ScopeGender, ScopeProductName:
		default:
			warnings = append(warnings, Warning{RuleID: r.ID, Reason: fmt.Sprintf("unknown scope %q", r.Scope)})
			continue
		}
		active = append(active, r)
	}

	res := Result{
		Lines:    make([]LineResult, 0, len(items)),
		Warnings: warnings,
	}
	subtotal := decimal.Zero
	itemDiscount := decimal.Zero
	applied := make([]string, 0, len(active))
	appliedSeen := make(map[string]struct{}, len(active))

	for _, it := range items {
		lineSubtotal := it.Subtotal()
		subtotal = subtotal.Add(lineSubtotal)

		best := decimal.Zero
		bestRule := ""
		for _, r := range active {
			if !r.matches(it) {
				continue
			}
			candidate := candidateDiscount(r, it, lineSubtotal)
			if candidate.IsPositive() {
				if _, ok := appliedSeen[r.ID]; !ok {
					appliedSeen[r.ID] = struct{}{}
					applied = append(applied, r.ID)
				}
			}
			// Strictly greater: the first rule in input order wins ties.
			if candidate.GreaterThan(best) {
				best = candidate
				bestRule = r.ID
			}
		}
		// Round before clamping: clamping after rounding can push a
		// sub-cent subtotal's discount past the subtotal again.
		best = best.Round(2)
		if best.GreaterThan(lineSubtotal) {
			best = lineSubtotal
		}
		itemDiscount = itemDiscount.Add(best)
		res.Lines = append(res.Lines, LineResult{
			VariantID: it.VariantID,
			Subtotal:  lineSubtotal,
			Discount:  best,
			RuleID:    bestRule,
		})
	}

	total := subtotal.Sub(itemDiscount).Sub(globalDiscount).Add(shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}
	res.Totals = Totals{
		Subtotal:       subtotal,
		ItemDiscount:   itemDiscount,
		GlobalDiscount: globalDiscount,
		ShippingCost:   shippingCost,
		Total:          total,
		AppliedRuleIDs: applied,
	}
	return res, nil
}

func (r Rule) matches(it LineItem) bool {
	switch r.Scope {
	case ScopeGlobal:
		return true
	case ScopeCollection:
		return it.Collection == r.Target
	case ScopeProductType:
		return it.ProductType == r.Target
	case ScopeGender:
		return it.Gender == r.Target
	case ScopeProductName:
		return strings.Contains(it.ProductName, r.Target)
	}
	return false
}

func candidateDiscount(r Rule, it LineItem, lineSubtotal decimal.Decimal) decimal.Decimal {
	switch r.Kind {
	case KindPercentage:
		return lineSubtotal.Mul(r.Value).Div(hundred)
	case KindFixedAmount:
		return r.Value.Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	return decimal.Zero
}
