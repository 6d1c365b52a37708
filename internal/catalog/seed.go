package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SeedBackend is the slice of the billing backend the seeder needs.
type SeedBackend interface {
	// FindProductByTier returns the product ID tagged with the tier key,
	// or "" when none exists yet.
	FindProductByTier(ctx context.Context, tierKey string) (string, error)
	CreateProduct(ctx context.Context, tier PlanTier) (string, error)
	// FindActivePrice returns the product's active price ID, or "".
	FindActivePrice(ctx context.Context, productID string) (string, error)
	CreatePrice(ctx context.Context, productID string, tier PlanTier) (string, error)
}

// Seed ensures one product and one monthly per-screen price exist in the
// billing backend for every catalog tier, then persists the price mapping
// to configDir. Safe to re-run: existing products and prices are reused.
func Seed(ctx context.Context, backend SeedBackend, configDir string) (*PriceConfig, error) {
	cfg := &PriceConfig{
		PriceIDs:    make(map[string]string, len(Tiers)),
		PriceToPlan: make(map[string]string, len(Tiers)),
	}

	for _, tier := range Tiers {
		productID, err := backend.FindProductByTier(ctx, tier.Key)
		if err != nil {
			return nil, fmt.Errorf("look up product for tier %s: %w", tier.Key, err)
		}

		created := false
		if productID == "" {
			productID, err = backend.CreateProduct(ctx, tier)
			if err != nil {
				return nil, fmt.Errorf("create product for tier %s: %w", tier.Key, err)
			}
			created = true
		}

		priceID := ""
		if !created {
			priceID, err = backend.FindActivePrice(ctx, productID)
			if err != nil {
				return nil, fmt.Errorf("look up price for tier %s: %w", tier.Key, err)
			}
		}
		if priceID == "" {
			priceID, err = backend.CreatePrice(ctx, productID, tier)
			if err != nil {
				return nil, fmt.Errorf("create price for tier %s: %w", tier.Key, err)
			}
			created = true
		}

		log.Info().
			Str("tier", tier.Key).
			Str("product_id", productID).
			Str("price_id", priceID).
			Bool("created", created).
			Int64("price_cents", tier.PriceCents).
			Msg("Catalog tier seeded")

		cfg.PriceIDs[tier.Key] = priceID
		cfg.PriceToPlan[priceID] = tier.DisplayName
	}

	if err := cfg.Save(configDir); err != nil {
		return nil, err
	}
	return cfg, nil
}
