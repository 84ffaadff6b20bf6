package expenses

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/common"
)

type fakeRepo struct {
	created *Expense
	updated *Expense
	deleted string
	known   map[string]struct{}
}

func (f *fakeRepo) List(_ context.Context, _, _ int) ([]Expense, int64, error) {
	return []Expense{}, 0, nil
}

func (f *fakeRepo) Create(_ context.Context, e Expense) (Expense, error) {
	f.created = &e
	return e, nil
}

func (f *fakeRepo) Update(_ context.Context, e Expense) (Expense, error) {
	if _, ok := f.known[e.ID]; !ok {
		return Expense{}, ErrNotFound
	}
	f.updated = &e
	return e, nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.known[id]; !ok {
		return ErrNotFound
	}
	f.deleted = id
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateNormalisesAndDefaultsDate(t *testing.T) {
	repo := &fakeRepo{}
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc := &Service{Repo: repo, Now: func() time.Time { return fixed }}

	e, err := svc.Create(context.Background(), Input{
		Description: "  Alquiler local marzo  ",
		Amount:      dec("1200"),
		Category:    "alquiler",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alquiler local marzo", e.Description)
	assert.Equal(t, "ALQUILER", e.Category)
	assert.Equal(t, fixed, e.Date)
	assert.NotEmpty(t, e.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	cases := []struct {
		name string
		in   Input
	}{
		{"missing description", Input{Amount: dec("10"), Category: "OTROS"}},
		{"negative amount", Input{Description: "x", Amount: dec("-10"), Category: "OTROS"}},
		{"unknown category", Input{Description: "x", Amount: dec("10"), Category: "VIAJES"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", common.AsAppError(err).Code)
		})
	}
}

func TestUpdateUnknownExpense(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	_, err := svc.Update(context.Background(), "missing", Input{
		Description: "x", Amount: dec("10"), Category: "OTROS",
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", common.AsAppError(err).Code)
}

func TestDeleteUnknownExpense(t *testing.T) {
	svc := &Service{Repo: &fakeRepo{}}

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", common.AsAppError(err).Code)
}
