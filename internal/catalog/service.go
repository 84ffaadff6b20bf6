package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/common"
)

type repoProvider interface {
	List(ctx context.Context, f ListFilter) ([]Product, int64, error)
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, variantID string, delta int) (Variant, error)
	Snapshots(ctx context.Context, variantIDs []string) (map[string]VariantSnapshot, error)
}

// Service orchestrates catalog persistence, SKU generation, and caching.
type Service struct {
	Repo  repoProvider
	Cache *Cache

	DefaultPerPage int
	MaxPerPage     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query      string
	Collection string
	Type       string
	Gender     string
	Status     string
	Page       int
	PerPage    int
}

// ListResult carries a product page plus pagination metadata.
type ListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// VariantInput is the caller-supplied shape for a variant.
type VariantInput struct {
	ID              string `json:"id,omitempty"`
	Color           string `json:"color"`
	ColorCode       string `json:"colorCode,omitempty"`
	Size            string `json:"size"`
	Stock           int    `json:"stock"`
	PriceProduction string `json:"priceProduction"`
	PriceRetail     string `json:"priceRetail"`
}

// ProductInput is the caller-supplied shape for create/update.
type ProductInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Collection  string         `json:"collection"`
	Type        string         `json:"type"`
	Gender      string         `json:"gender"`
	Status      string         `json:"status,omitempty"`
	Variants    []VariantInput `json:"variants"`
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) ListParams {
	params := ListParams{
		Query:      strings.TrimSpace(values.Get("q")),
		Collection: strings.TrimSpace(values.Get("collection")),
		Type:       strings.TrimSpace(values.Get("type")),
		Gender:     strings.TrimSpace(values.Get("gender")),
		Status:     strings.TrimSpace(values.Get("status")),
		Page:       1,
		PerPage:    s.DefaultPerPage,
	}
	if v := values.Get("page"); v != "" {
		if page, err := parsePositive(v); err == nil {
			params.Page = page
		}
	}
	if v := values.Get("limit"); v != "" {
		if limit, err := parsePositive(v); err == nil {
			params.PerPage = limit
		}
	}
	if s.MaxPerPage > 0 && params.PerPage > s.MaxPerPage {
		params.PerPage = s.MaxPerPage
	}
	return params
}

// List returns a filtered product page. The unfiltered first page is served
// from cache when available.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	key, cacheable := s.listCacheKey(params)
	if cacheable {
		var cached ListResult
		if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	items, total, err := s.Repo.List(ctx, ListFilter{
		Query:      params.Query,
		Collection: params.Collection,
		Type:       params.Type,
		Gender:     params.Gender,
		Status:     params.Status,
		Limit:      params.PerPage,
		Offset:     common.Offset(params.Page, params.PerPage),
	})
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Items: items, Total: total, Page: params.Page, Limit: params.PerPage}
	if cacheable {
		_ = s.Cache.SetJSON(ctx, key, result)
	}
	return result, nil
}

// Get returns a product with variants.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	key := detailCacheKey(id)
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	p, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Product{}, mapNotFound(err, "product")
	}
	_ = s.Cache.SetJSON(ctx, key, p)
	return p, nil
}

// Create validates input, derives SKUs, and persists a new product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	p, err := s.buildProduct(uuid.NewString(), in)
	if err != nil {
		return Product{}, err
	}
	created, err := s.Repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.invalidateList(ctx)
	return created, nil
}

// Update revalidates input, regenerates SKUs, and reconciles variants.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (Product, error) {
	p, err := s.buildProduct(id, in)
	if err != nil {
		return Product{}, err
	}
	updated, err := s.Repo.Update(ctx, p)
	if err != nil {
		return Product{}, mapNotFound(err, "product")
	}
	s.Cache.Invalidate(ctx, detailCacheKey(id))
	s.invalidateList(ctx)
	return updated, nil
}

// Delete removes a product and its variants.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return mapNotFound(err, "product")
	}
	s.Cache.Invalidate(ctx, detailCacheKey(id))
	s.invalidateList(ctx)
	return nil
}

// AdjustStock applies a signed stock delta to a variant.
func (s *Service) AdjustStock(ctx context.Context, productID, variantID string, delta int) (Variant, error) {
	v, err := s.Repo.AdjustStock(ctx, variantID, delta)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return Variant{}, common.NewAppError("INSUFFICIENT_STOCK", "stock cannot go negative", 422, err)
		}
		return Variant{}, mapNotFound(err, "variant")
	}
	s.Cache.Invalidate(ctx, detailCacheKey(productID))
	s.invalidateList(ctx)
	return v, nil
}

// Snapshots loads pricing snapshots for the given variant ids.
func (s *Service) Snapshots(ctx context.Context, variantIDs []string) (map[string]VariantSnapshot, error) {
	return s.Repo.Snapshots(ctx, variantIDs)
}

func (s *Service) buildProduct(id string, in ProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, common.Invalid("name is required")
	}
	collection := strings.ToUpper(strings.TrimSpace(in.Collection))
	if collection == "" {
		return Product{}, common.Invalid("collection is required")
	}
	productType := strings.ToUpper(strings.TrimSpace(in.Type))
	if productType == "" {
		return Product{}, common.Invalid("type is required")
	}
	gender := strings.ToUpper(strings.TrimSpace(in.Gender))
	switch gender {
	case GenderHombre, GenderMujer, GenderUnisex:
	default:
		return Product{}, common.Invalid("gender must be HOMBRE, MUJER, or UNISEX")
	}
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status == "" {
		status = StatusActive
	}
	if status != StatusActive && status != StatusDiscontinued {
		return Product{}, common.Invalid("status must be ACTIVO or DESCATALOGADO")
	}
	if len(in.Variants) == 0 {
		return Product{}, common.Invalid("at least one variant is required")
	}

	baseSKU := BaseSKU(collection, productType, gender, name)
	p := Product{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Collection:  collection,
		ProductType: productType,
		Gender:      gender,
		BaseSKU:     baseSKU,
		Status:      status,
		Variants:    make([]Variant, 0, len(in.Variants)),
	}
	for i, vin := range in.Variants {
		v, err := buildVariant(baseSKU, id, vin)
		if err != nil {
			return Product{}, common.Invalid(fmt.Sprintf("variant %d: %v", i, err))
		}
		p.Variants = append(p.Variants, v)
	}
	return p, nil
}

func buildVariant(baseSKU, productID string, in VariantInput) (Variant, error) {
	color := strings.TrimSpace(in.Color)
	if color == "" {
		return Variant{}, errors.New("color is required")
	}
	size := strings.TrimSpace(in.Size)
	if size == "" {
		return Variant{}, errors.New("size is required")
	}
	if in.Stock < 0 {
		return Variant{}, errors.New("stock cannot be negative")
	}
	priceProduction, err := parsePrice(in.PriceProduction)
	if err != nil {
		return Variant{}, fmt.Errorf("priceProduction: %w", err)
	}
	priceRetail, err := parsePrice(in.PriceRetail)
	if err != nil {
		return Variant{}, fmt.Errorf("priceRetail: %w", err)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Variant{
		ID:              id,
		ProductID:       productID,
		SKU:             VariantSKU(baseSKU, color, size),
		Color:           color,
		ColorCode:       strings.TrimSpace(in.ColorCode),
		Size:            size,
		Stock:           in.Stock,
		PriceProduction: priceProduction,
		PriceRetail:     priceRetail,
	}, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.New("must be a decimal number")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("cannot be negative")
	}
	return d, nil
}

func parsePositive(raw string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

const listCacheKeyDefault = "catalog:products:list:first"

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if s.Cache == nil {
		return "", false
	}
	if params.Page != 1 || params.PerPage != s.DefaultPerPage {
		return "", false
	}
	if params.Query != "" || params.Collection != "" || params.Type != "" || params.Gender != "" || params.Status != "" {
		return "", false
	}
	return listCacheKeyDefault, true
}

func (s *Service) invalidateList(ctx context.Context) {
	s.Cache.Invalidate(ctx, listCacheKeyDefault)
}

func detailCacheKey(id string) string {
	return "catalog:products:detail:" + id
}

func mapNotFound(err error, entity string) error {
	if errors.Is(err, ErrNotFound) {
		return common.NotFound(entity)
	}
	return err
}
