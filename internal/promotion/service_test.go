package promotion

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/common"
	"github.com/scs-studio/backend-atelier/internal/events"
)

type fakeRepo struct {
	rules   []Rule
	created *Rule
	deleted string
}

func (f *fakeRepo) List(_ context.Context) ([]Rule, error) { return f.rules, nil }

func (f *fakeRepo) ListActive(_ context.Context) ([]Rule, error) {
	var active []Rule
	for _, r := range f.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Rule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return Rule{}, ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, rule Rule) (Rule, error) {
	f.created = &rule
	return rule, nil
}

func (f *fakeRepo) Update(_ context.Context, rule Rule) (Rule, error) {
	for _, r := range f.rules {
		if r.ID == rule.ID {
			return rule, nil
		}
	}
	return Rule{}, ErrNotFound
}

func (f *fakeRepo) Toggle(_ context.Context, id string) (Rule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			r.Active = !r.Active
			return r, nil
		}
	}
	return Rule{}, ErrNotFound
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	f.deleted = id
	for _, r := range f.rules {
		if r.ID == id {
			return nil
		}
	}
	return ErrNotFound
}

type captureBus struct {
	topics []string
}

func (c *captureBus) Emit(_ context.Context, topic, _ string, _ any) (events.Event, error) {
	c.topics = append(c.topics, topic)
	return events.Event{Topic: topic}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateValidRuleEmitsEvent(t *testing.T) {
	repo := &fakeRepo{}
	bus := &captureBus{}
	svc := &Service{Repo: repo, Bus: bus}

	rule, err := svc.Create(context.Background(), RuleInput{
		Name:  "Summer 20",
		Kind:  "percentage",
		Value: dec("20"),
		Scope: "collection",
		Target: "VERANO",
	})
	require.NoError(t, err)
	assert.Equal(t, "PERCENTAGE", rule.Kind)
	assert.Equal(t, "COLLECTION", rule.Scope)
	assert.True(t, rule.Active)
	require.Len(t, bus.topics, 1)
	assert.Equal(t, events.TopicPromotionUpdated, bus.topics[0])
}

func TestCreateValidation(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	cases := []struct {
		name string
		in   RuleInput
	}{
		{"missing name", RuleInput{Kind: "PERCENTAGE", Value: dec("10"), Scope: "GLOBAL"}},
		{"bad kind", RuleInput{Name: "x", Kind: "BOGO", Value: dec("10"), Scope: "GLOBAL"}},
		{"negative value", RuleInput{Name: "x", Kind: "FIXED_AMOUNT", Value: dec("-5"), Scope: "GLOBAL"}},
		{"percent over 100", RuleInput{Name: "x", Kind: "PERCENTAGE", Value: dec("101"), Scope: "GLOBAL"}},
		{"unknown scope", RuleInput{Name: "x", Kind: "PERCENTAGE", Value: dec("10"), Scope: "VARIANT"}},
		{"scoped without target", RuleInput{Name: "x", Kind: "PERCENTAGE", Value: dec("10"), Scope: "COLLECTION"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", common.AsAppError(err).Code)
		})
	}
}

func TestUpdatePreservesInactiveFlag(t *testing.T) {
	repo := &fakeRepo{rules: []Rule{
		{ID: "r1", Name: "Dormant", Kind: "PERCENTAGE", Value: dec("10"), Scope: "GLOBAL", Active: false},
	}}
	svc := &Service{Repo: repo}

	updated, err := svc.Update(context.Background(), "r1", RuleInput{
		Name:  "Dormant renamed",
		Kind:  "PERCENTAGE",
		Value: dec("15"),
		Scope: "GLOBAL",
	})
	require.NoError(t, err)
	assert.False(t, updated.Active, "editing must not reactivate an inactive rule")
	assert.Equal(t, "Dormant renamed", updated.Name)

	reactivate := true
	updated, err = svc.Update(context.Background(), "r1", RuleInput{
		Name:   "Dormant renamed",
		Kind:   "PERCENTAGE",
		Value:  dec("15"),
		Scope:  "GLOBAL",
		Active: &reactivate,
	})
	require.NoError(t, err)
	assert.True(t, updated.Active)
}

func TestToggleUnknownRule(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	_, err := svc.Toggle(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", common.AsAppError(err).Code)
}

func TestPreviewUsesActiveRulesOnly(t *testing.T) {
	repo := &fakeRepo{rules: []Rule{
		{ID: "on", Name: "Active 10", Kind: "PERCENTAGE", Value: dec("10"), Scope: "GLOBAL", Active: true},
		{ID: "off", Name: "Inactive 50", Kind: "PERCENTAGE", Value: dec("50"), Scope: "GLOBAL", Active: false},
	}}
	svc := &Service{Repo: repo}

	result, err := svc.Preview(context.Background(), PreviewRequest{
		Items: []PreviewItem{
			{ProductName: "Polo", Collection: "VERANO", Type: "POLO", Gender: "HOMBRE", Quantity: 2, UnitPrice: dec("25")},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Totals.ItemDiscount.Equal(dec("5")), "got %s", result.Totals.ItemDiscount)
	assert.Equal(t, []string{"on"}, result.Totals.AppliedRuleIDs)
}

func TestPreviewRejectsInvalidCart(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	_, err := svc.Preview(context.Background(), PreviewRequest{
		Items: []PreviewItem{
			{ProductName: "Polo", Quantity: 0, UnitPrice: dec("25")},
		},
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", common.AsAppError(err).Code)
}
