package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/scs-studio/backend-atelier/internal/catalog"
	"github.com/scs-studio/backend-atelier/internal/config"
	"github.com/scs-studio/backend-atelier/internal/db"
	"github.com/scs-studio/backend-atelier/internal/events"
	"github.com/scs-studio/backend-atelier/internal/obs"
	"github.com/scs-studio/backend-atelier/internal/promotion"
)

type districtSeed struct {
	name       string
	department string
	basePrice  string
	door       bool
}

var districtSeeds = []districtSeed{
	{"Lima Cercado", "LIMA", "8", true},
	{"Ancón", "LIMA", "15", false},
	{"Ate", "LIMA", "10", true},
	{"Barranco", "LIMA", "8", true},
	{"Breña", "LIMA", "8", true},
	{"Carabayllo", "LIMA", "12", false},
	{"Chaclacayo", "LIMA", "15", true},
	{"Chorrillos", "LIMA", "10", true},
	{"Cieneguilla", "LIMA", "15", true},
	{"Comas", "LIMA", "10", false},
	{"El Agustino", "LIMA", "8", false},
	{"Independencia", "LIMA", "10", false},
	{"Jesús María", "LIMA", "7", true},
	{"La Molina", "LIMA", "10", true},
	{"La Victoria", "LIMA", "8", false},
	{"Lince", "LIMA", "7", true},
	{"Los Olivos", "LIMA", "10", true},
	{"Lurigancho", "LIMA", "15", false},
	{"Lurín", "LIMA", "15", true},
	{"Magdalena del Mar", "LIMA", "7", true},
	{"Miraflores", "LIMA", "7", true},
	{"Pachacámac", "LIMA", "15", true},
	{"Pucusana", "LIMA", "20", false},
	{"Pueblo Libre", "LIMA", "7", true},
	{"Puente Piedra", "LIMA", "12", false},
	{"Punta Hermosa", "LIMA", "20", true},
	{"Punta Negra", "LIMA", "20", true},
	{"Rímac", "LIMA", "8", false},
	{"San Bartolo", "LIMA", "20", true},
	{"San Borja", "LIMA", "8", true},
	{"San Isidro", "LIMA", "7", true},
	{"San Juan de Lurigancho", "LIMA", "12", false},
	{"San Juan de Miraflores", "LIMA", "10", false},
	{"San Luis", "LIMA", "8", true},
	{"San Martín de Porres", "LIMA", "10", false},
	{"San Miguel", "LIMA", "7", true},
	{"Santa Anita", "LIMA", "10", true},
	{"Santa María del Mar", "LIMA", "20", true},
	{"Santa Rosa", "LIMA", "15", false},
	{"Santiago de Surco", "LIMA", "8", true},
	{"Surquillo", "LIMA", "8", true},
	{"Villa El Salvador", "LIMA", "12", false},
	{"Villa María del Triunfo", "LIMA", "12", false},
	{"Callao", "CALLAO", "10", false},
	{"Bellavista", "CALLAO", "9", true},
	{"Carmen de la Legua", "CALLAO", "9", false},
	{"La Perla", "CALLAO", "9", true},
	{"La Punta", "CALLAO", "10", true},
	{"Ventanilla", "CALLAO", "12", false},
	{"Mi Perú", "CALLAO", "12", false},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	seedDistricts(ctx, pool, logger)
	seedProducts(ctx, pool, logger)
	seedPromotions(ctx, pool, logger)

	logger.Info().Msg("seeding completed")
}

func seedDistricts(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) {
	for _, d := range districtSeeds {
		price, err := decimal.NewFromString(d.basePrice)
		if err != nil {
			logger.Fatal().Err(err).Str("district", d.name).Msg("parse base price")
		}
		_, err = pool.Exec(ctx, `
INSERT INTO shipping_districts (id, name, department, base_price, allow_door_delivery)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), d.name, d.department, price, d.door)
		if err != nil {
			logger.Fatal().Err(err).Str("district", d.name).Msg("seed district")
		}
	}
	logger.Info().Int("count", len(districtSeeds)).Msg("districts seeded")
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) {
	var existing int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&existing); err != nil {
		logger.Fatal().Err(err).Msg("count products")
	}
	if existing > 0 {
		logger.Info().Msg("products already present, skipping")
		return
	}

	svc := &catalog.Service{Repo: &catalog.Repo{Pool: pool}}
	samples := []catalog.ProductInput{
		{
			Name:       "Polo Básico Oversize",
			Collection: "VERANO",
			Type:       "POLO",
			Gender:     "UNISEX",
			Variants: []catalog.VariantInput{
				{Color: "Negro", Size: "M", Stock: 15, PriceProduction: "10", PriceRetail: "25"},
				{Color: "Blanco", Size: "L", Stock: 8, PriceProduction: "10", PriceRetail: "25"},
			},
		},
		{
			Name:       "Casaca Denim Vintage",
			Collection: "INVIERNO",
			Type:       "CASACA",
			Gender:     "HOMBRE",
			Variants: []catalog.VariantInput{
				{Color: "Azul", Size: "L", Stock: 5, PriceProduction: "45", PriceRetail: "120"},
			},
		},
	}
	for _, in := range samples {
		product, err := svc.Create(ctx, in)
		if err != nil {
			logger.Fatal().Err(err).Str("product", in.Name).Msg("seed product")
		}
		logger.Info().Str("sku", product.BaseSKU).Msg("product seeded")
	}
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) {
	var existing int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM promotion_rules`).Scan(&existing); err != nil {
		logger.Fatal().Err(err).Msg("count promotion rules")
	}
	if existing > 0 {
		logger.Info().Msg("promotion rules already present, skipping")
		return
	}

	svc := &promotion.Service{
		Repo: &promotion.Repo{Pool: pool},
		Bus:  &events.Bus{Store: &events.PGStore{Pool: pool}},
	}
	rules := []promotion.RuleInput{
		{Name: "Liquidación Verano", Kind: "PERCENTAGE", Value: decimal.NewFromInt(20), Scope: "COLLECTION", Target: "VERANO"},
		{Name: "Descuento Polos", Kind: "FIXED_AMOUNT", Value: decimal.NewFromInt(5), Scope: "PRODUCT_TYPE", Target: "POLO"},
	}
	for _, in := range rules {
		rule, err := svc.Create(ctx, in)
		if err != nil {
			logger.Fatal().Err(err).Str("rule", in.Name).Msg("seed promotion rule")
		}
		logger.Info().Str("rule", rule.Name).Msg("promotion rule seeded")
	}
}
