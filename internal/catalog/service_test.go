package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/common"
)

type fakeRepo struct {
	created  *Product
	updated  *Product
	deleted  string
	adjusted struct {
		variantID string
		delta     int
	}
	adjustErr error
	listCalls int
	products  []Product
}

func (f *fakeRepo) List(_ context.Context, _ ListFilter) ([]Product, int64, error) {
	f.listCalls++
	return f.products, int64(len(f.products)), nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, p Product) (Product, error) {
	f.created = &p
	return p, nil
}

func (f *fakeRepo) Update(_ context.Context, p Product) (Product, error) {
	f.updated = &p
	return p, nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeRepo) AdjustStock(_ context.Context, variantID string, delta int) (Variant, error) {
	if f.adjustErr != nil {
		return Variant{}, f.adjustErr
	}
	f.adjusted.variantID = variantID
	f.adjusted.delta = delta
	return Variant{ID: variantID, Stock: delta}, nil
}

func (f *fakeRepo) Snapshots(_ context.Context, _ []string) (map[string]VariantSnapshot, error) {
	return nil, nil
}

func newTestService(repo *fakeRepo) *Service {
	return &Service{Repo: repo, DefaultPerPage: 20, MaxPerPage: 100}
}

func TestCreateDerivesSKUs(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	p, err := svc.Create(context.Background(), ProductInput{
		Name:       "Polo Basico",
		Collection: "verano",
		Type:       "polo",
		Gender:     "hombre",
		Variants: []VariantInput{
			{Color: "Negro", Size: "m", Stock: 10, PriceProduction: "12.50", PriceRetail: "25.00"},
			{Color: "Blanco", Size: "l", Stock: 5, PriceProduction: "12.50", PriceRetail: "25.00"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "VER-POL-H-PB", p.BaseSKU)
	require.Len(t, p.Variants, 2)
	assert.Equal(t, "VER-POL-H-PB-BLK-M", p.Variants[0].SKU)
	assert.Equal(t, "VER-POL-H-PB-WHT-L", p.Variants[1].SKU)
	assert.Equal(t, StatusActive, p.Status)
	assert.NotEmpty(t, p.ID)
	assert.NotNil(t, repo.created)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	cases := []struct {
		name string
		in   ProductInput
	}{
		{"missing name", ProductInput{Collection: "VERANO", Type: "POLO", Gender: "HOMBRE", Variants: []VariantInput{{Color: "Negro", Size: "M", PriceProduction: "1", PriceRetail: "2"}}}},
		{"bad gender", ProductInput{Name: "Polo", Collection: "VERANO", Type: "POLO", Gender: "OTRO", Variants: []VariantInput{{Color: "Negro", Size: "M", PriceProduction: "1", PriceRetail: "2"}}}},
		{"no variants", ProductInput{Name: "Polo", Collection: "VERANO", Type: "POLO", Gender: "HOMBRE"}},
		{"negative price", ProductInput{Name: "Polo", Collection: "VERANO", Type: "POLO", Gender: "HOMBRE", Variants: []VariantInput{{Color: "Negro", Size: "M", PriceProduction: "-1", PriceRetail: "2"}}}},
		{"bad price literal", ProductInput{Name: "Polo", Collection: "VERANO", Type: "POLO", Gender: "HOMBRE", Variants: []VariantInput{{Color: "Negro", Size: "M", PriceProduction: "abc", PriceRetail: "2"}}}},
		{"negative stock", ProductInput{Name: "Polo", Collection: "VERANO", Type: "POLO", Gender: "HOMBRE", Variants: []VariantInput{{Color: "Negro", Size: "M", Stock: -1, PriceProduction: "1", PriceRetail: "2"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			require.Error(t, err)
			appErr := common.AsAppError(err)
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
		})
	}
}

func TestAdjustStockMapsInsufficient(t *testing.T) {
	repo := &fakeRepo{adjustErr: ErrInsufficientStock}
	svc := newTestService(repo)

	_, err := svc.AdjustStock(context.Background(), "prod-1", "var-1", -5)
	require.Error(t, err)
	appErr := common.AsAppError(err)
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Equal(t, 422, appErr.HTTPStatus)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	appErr := common.AsAppError(err)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestParseListParamsCapsLimit(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	params := svc.ParseListParams(map[string][]string{
		"limit":      {"500"},
		"page":       {"3"},
		"collection": {"VERANO"},
	})
	assert.Equal(t, 100, params.PerPage)
	assert.Equal(t, 3, params.Page)
	assert.Equal(t, "VERANO", params.Collection)
}
