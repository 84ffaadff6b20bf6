package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func line(variantID string, qty int, unitPrice string) LineItem {
	return LineItem{VariantID: variantID, Quantity: qty, UnitPrice: dec(unitPrice)}
}

func TestComputeGlobalPercentage(t *testing.T) {
	items := []LineItem{line("v1", 2, "25")}
	rules := []Rule{{ID: "r1", Kind: KindPercentage, Value: dec("20"), Scope: ScopeGlobal, Active: true}}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.Subtotal.Equal(dec("50")) {
		t.Fatalf("expected subtotal 50, got %s", res.Totals.Subtotal)
	}
	if !res.Totals.ItemDiscount.Equal(dec("10")) {
		t.Fatalf("expected item discount 10, got %s", res.Totals.ItemDiscount)
	}
	if !res.Totals.Total.Equal(dec("40")) {
		t.Fatalf("expected total 40, got %s", res.Totals.Total)
	}
	if len(res.Totals.AppliedRuleIDs) != 1 || res.Totals.AppliedRuleIDs[0] != "r1" {
		t.Fatalf("expected applied rule r1, got %v", res.Totals.AppliedRuleIDs)
	}
}

func TestComputeLargestCandidateWins(t *testing.T) {
	items := []LineItem{line("v1", 2, "25")}
	rules := []Rule{
		{ID: "pct", Kind: KindPercentage, Value: dec("20"), Scope: ScopeGlobal, Active: true},
		{ID: "fix", Kind: KindFixedAmount, Value: dec("3"), Scope: ScopeGlobal, Active: true},
	}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// percentage candidate 10 beats fixed candidate 3*2=6
	if !res.Totals.ItemDiscount.Equal(dec("10")) {
		t.Fatalf("expected discount 10, got %s", res.Totals.ItemDiscount)
	}
	if res.Lines[0].RuleID != "pct" {
		t.Fatalf("expected winning rule pct, got %q", res.Lines[0].RuleID)
	}
	// the losing rule still counts as applied: its candidate was non-zero
	if len(res.Totals.AppliedRuleIDs) != 2 {
		t.Fatalf("expected both rules applied, got %v", res.Totals.AppliedRuleIDs)
	}
}

func TestComputeNoStacking(t *testing.T) {
	items := []LineItem{line("v1", 1, "100")}
	rules := []Rule{
		{ID: "ten", Kind: KindFixedAmount, Value: dec("10"), Scope: ScopeGlobal, Active: true},
		{ID: "fifteen", Kind: KindFixedAmount, Value: dec("15"), Scope: ScopeGlobal, Active: true},
	}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.ItemDiscount.Equal(dec("15")) {
		t.Fatalf("expected 15 not 25, got %s", res.Totals.ItemDiscount)
	}
}

func TestComputeTieBreakFirstRuleWins(t *testing.T) {
	items := []LineItem{line("v1", 1, "40")}
	rules := []Rule{
		{ID: "first", Kind: KindFixedAmount, Value: dec("8"), Scope: ScopeGlobal, Active: true},
		{ID: "second", Kind: KindPercentage, Value: dec("20"), Scope: ScopeGlobal, Active: true},
	}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// both candidates are exactly 8; input order decides
	if res.Lines[0].RuleID != "first" {
		t.Fatalf("expected first rule to win the tie, got %q", res.Lines[0].RuleID)
	}
	if !res.Totals.ItemDiscount.Equal(dec("8")) {
		t.Fatalf("expected discount 8, got %s", res.Totals.ItemDiscount)
	}
}

func TestComputeScopeMatching(t *testing.T) {
	lineA := LineItem{VariantID: "a", Collection: "VERANO", Quantity: 1, UnitPrice: dec("100")}
	lineB := LineItem{VariantID: "b", Collection: "INVIERNO", Quantity: 1, UnitPrice: dec("50")}
	rules := []Rule{{ID: "summer", Kind: KindFixedAmount, Value: dec("10"), Scope: ScopeCollection, Target: "VERANO", Active: true}}

	res, err := Compute([]LineItem{lineA, lineB}, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Lines[0].Discount.Equal(dec("10")) {
		t.Fatalf("expected line A discounted by 10, got %s", res.Lines[0].Discount)
	}
	if !res.Lines[1].Discount.IsZero() {
		t.Fatalf("expected line B untouched, got %s", res.Lines[1].Discount)
	}
	if !res.Totals.ItemDiscount.Equal(dec("10")) {
		t.Fatalf("expected total item discount 10, got %s", res.Totals.ItemDiscount)
	}
	if len(res.Totals.AppliedRuleIDs) != 1 || res.Totals.AppliedRuleIDs[0] != "summer" {
		t.Fatalf("expected applied [summer], got %v", res.Totals.AppliedRuleIDs)
	}
}

func TestComputeScopeTable(t *testing.T) {
	item := LineItem{
		VariantID:   "v1",
		ProductName: "Polo Basico Oversize",
		Collection:  "VERANO",
		ProductType: "POLO",
		Gender:      "UNISEX",
		Quantity:    1,
		UnitPrice:   dec("30"),
	}
	cases := []struct {
		name    string
		scope   Scope
		target  string
		matches bool
	}{
		{"global always", ScopeGlobal, "", true},
		{"collection equal", ScopeCollection, "VERANO", true},
		{"collection case sensitive", ScopeCollection, "verano", false},
		{"type equal", ScopeProductType, "POLO", true},
		{"type mismatch", ScopeProductType, "CASACA", false},
		{"gender equal", ScopeGender, "UNISEX", true},
		{"name substring", ScopeProductName, "Basico", true},
		{"name not contained", ScopeProductName, "Denim", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := []Rule{{ID: "r", Kind: KindFixedAmount, Value: dec("5"), Scope: tc.scope, Target: tc.target, Active: true}}
			res, err := Compute([]LineItem{item}, rules, decimal.Zero, decimal.Zero)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			discounted := res.Lines[0].Discount.IsPositive()
			if discounted != tc.matches {
				t.Fatalf("scope %s target %q: expected match=%v", tc.scope, tc.target, tc.matches)
			}
		})
	}
}

func TestComputeEmptyCart(t *testing.T) {
	res, err := Compute(nil, nil, decimal.Zero, dec("15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.Subtotal.IsZero() || !res.Totals.ItemDiscount.IsZero() {
		t.Fatalf("expected zero subtotal and discount, got %s / %s", res.Totals.Subtotal, res.Totals.ItemDiscount)
	}
	if !res.Totals.Total.Equal(dec("15")) {
		t.Fatalf("expected total 15 (shipping only), got %s", res.Totals.Total)
	}
}

func TestComputeFixedAmountClampedToLineSubtotal(t *testing.T) {
	items := []LineItem{line("v1", 1, "20")}
	rules := []Rule{{ID: "big", Kind: KindFixedAmount, Value: dec("50"), Scope: ScopeGlobal, Active: true}}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Lines[0].Discount.Equal(dec("20")) {
		t.Fatalf("expected discount clamped to 20, got %s", res.Lines[0].Discount)
	}
	if !res.Totals.Total.IsZero() {
		t.Fatalf("expected total 0, got %s", res.Totals.Total)
	}
}

func TestComputeClampHoldsForSubCentPrices(t *testing.T) {
	items := []LineItem{line("v1", 1, "19.999")}
	rules := []Rule{{ID: "big", Kind: KindFixedAmount, Value: dec("50"), Scope: ScopeGlobal, Active: true}}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ln := res.Lines[0]
	if ln.Discount.GreaterThan(ln.Subtotal) {
		t.Fatalf("discount %s exceeds line subtotal %s", ln.Discount, ln.Subtotal)
	}
	if !ln.Discount.Equal(dec("19.999")) {
		t.Fatalf("expected discount clamped to 19.999, got %s", ln.Discount)
	}
	if res.Totals.Total.IsNegative() {
		t.Fatalf("expected non-negative total, got %s", res.Totals.Total)
	}
}

func TestComputeTotalFloorsAtZero(t *testing.T) {
	items := []LineItem{line("v1", 1, "10")}

	res, err := Compute(items, nil, dec("25"), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.Total.IsZero() {
		t.Fatalf("expected total floored at 0, got %s", res.Totals.Total)
	}
	if !res.Totals.GlobalDiscount.Equal(dec("25")) {
		t.Fatalf("expected global discount passed through, got %s", res.Totals.GlobalDiscount)
	}
}

func TestComputeInactiveRulesIgnored(t *testing.T) {
	items := []LineItem{line("v1", 1, "100")}
	rules := []Rule{
		{ID: "off", Kind: KindPercentage, Value: dec("50"), Scope: ScopeGlobal, Active: false},
		// an inactive rule is excluded before validation, so a broken
		// disabled rule must not fail the cart either
		{ID: "broken-off", Kind: KindPercentage, Value: dec("150"), Scope: ScopeGlobal, Active: false},
	}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.ItemDiscount.IsZero() {
		t.Fatalf("expected no discount from inactive rules, got %s", res.Totals.ItemDiscount)
	}
	if len(res.Totals.AppliedRuleIDs) != 0 {
		t.Fatalf("expected no applied rules, got %v", res.Totals.AppliedRuleIDs)
	}
}

func TestComputeUnknownScopeWarnsAndSkips(t *testing.T) {
	items := []LineItem{line("v1", 1, "100")}
	rules := []Rule{
		{ID: "legacy", Kind: KindFixedAmount, Value: dec("5"), Scope: Scope("VARIANT"), Target: "x", Active: true},
		{ID: "ok", Kind: KindFixedAmount, Value: dec("3"), Scope: ScopeGlobal, Active: true},
	}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("one malformed rule must not fail the cart: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].RuleID != "legacy" {
		t.Fatalf("expected warning for legacy rule, got %v", res.Warnings)
	}
	if !res.Totals.ItemDiscount.Equal(dec("3")) {
		t.Fatalf("expected remaining rule still applied, got %s", res.Totals.ItemDiscount)
	}
}

func TestComputeValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		items  []LineItem
		rules  []Rule
		global decimal.Decimal
		ship   decimal.Decimal
	}{
		{"zero quantity", []LineItem{line("v1", 0, "10")}, nil, decimal.Zero, decimal.Zero},
		{"negative price", []LineItem{line("v1", 1, "-1")}, nil, decimal.Zero, decimal.Zero},
		{"negative rule value", []LineItem{line("v1", 1, "10")}, []Rule{{ID: "r", Kind: KindFixedAmount, Value: dec("-2"), Scope: ScopeGlobal, Active: true}}, decimal.Zero, decimal.Zero},
		{"percentage above 100", []LineItem{line("v1", 1, "10")}, []Rule{{ID: "r", Kind: KindPercentage, Value: dec("120"), Scope: ScopeGlobal, Active: true}}, decimal.Zero, decimal.Zero},
		{"negative global discount", []LineItem{line("v1", 1, "10")}, nil, dec("-1"), decimal.Zero},
		{"negative shipping", []LineItem{line("v1", 1, "10")}, nil, decimal.Zero, dec("-1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(tc.items, tc.rules, tc.global, tc.ship)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	items := []LineItem{
		{VariantID: "a", ProductName: "Polo Basico", Collection: "VERANO", ProductType: "POLO", Gender: "HOMBRE", Quantity: 3, UnitPrice: dec("19.90")},
		{VariantID: "b", ProductName: "Casaca Denim", Collection: "INVIERNO", ProductType: "CASACA", Gender: "MUJER", Quantity: 1, UnitPrice: dec("120")},
	}
	rules := []Rule{
		{ID: "r1", Kind: KindPercentage, Value: dec("15"), Scope: ScopeCollection, Target: "VERANO", Active: true},
		{ID: "r2", Kind: KindFixedAmount, Value: dec("10"), Scope: ScopeProductType, Target: "CASACA", Active: true},
	}

	first, err := Compute(items, rules, dec("5"), dec("8"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Compute(items, rules, dec("5"), dec("8"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Totals.Total.Equal(second.Totals.Total) || !first.Totals.ItemDiscount.Equal(second.Totals.ItemDiscount) {
		t.Fatalf("expected identical totals, got %s vs %s", first.Totals.Total, second.Totals.Total)
	}
	if len(first.Totals.AppliedRuleIDs) != len(second.Totals.AppliedRuleIDs) {
		t.Fatalf("applied rule sets differ: %v vs %v", first.Totals.AppliedRuleIDs, second.Totals.AppliedRuleIDs)
	}
	for i := range first.Totals.AppliedRuleIDs {
		if first.Totals.AppliedRuleIDs[i] != second.Totals.AppliedRuleIDs[i] {
			t.Fatalf("applied rule order differs: %v vs %v", first.Totals.AppliedRuleIDs, second.Totals.AppliedRuleIDs)
		}
	}
}

func TestComputeQuantityMonotonic(t *testing.T) {
	rules := []Rule{{ID: "r", Kind: KindFixedAmount, Value: dec("2"), Scope: ScopeGlobal, Active: true}}
	prevSubtotal := decimal.Zero
	prevDiscount := decimal.Zero
	for qty := 1; qty <= 6; qty++ {
		res, err := Compute([]LineItem{line("v1", qty, "9.50")}, rules, decimal.Zero, decimal.Zero)
		if err != nil {
			t.Fatalf("qty %d: unexpected error: %v", qty, err)
		}
		if res.Totals.Subtotal.LessThan(prevSubtotal) {
			t.Fatalf("subtotal decreased at qty %d", qty)
		}
		if res.Totals.ItemDiscount.LessThan(prevDiscount) {
			t.Fatalf("per-unit discount decreased at qty %d", qty)
		}
		prevSubtotal = res.Totals.Subtotal
		prevDiscount = res.Totals.ItemDiscount
	}
}

func TestComputePercentageRounding(t *testing.T) {
	// 19.90 * 3 = 59.70; 15% = 8.955, rounded to 8.96
	items := []LineItem{line("v1", 3, "19.90")}
	rules := []Rule{{ID: "r", Kind: KindPercentage, Value: dec("15"), Scope: ScopeGlobal, Active: true}}

	res, err := Compute(items, rules, decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Totals.ItemDiscount.Equal(dec("8.96")) {
		t.Fatalf("expected discount rounded to 8.96, got %s", res.Totals.ItemDiscount)
	}
	if !res.Totals.Total.Equal(dec("50.74")) {
		t.Fatalf("expected total 50.74, got %s", res.Totals.Total)
	}
}
