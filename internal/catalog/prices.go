package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PriceConfig maps catalog tiers to the Stripe price objects created by
// seeding. It is one of the three run artifacts consumed downstream.
type PriceConfig struct {
	// PriceIDs maps plan key -> Stripe price ID.
	PriceIDs map[string]string `json:"price_ids"`
	// PriceToPlan maps Stripe price ID -> plan display name.
	PriceToPlan map[string]string `json:"price_to_plan"`
}

const priceConfigFile = "stripe_prices.json"

// PriceConfigPath returns the price config location under configDir.
func PriceConfigPath(configDir string) string {
	return filepath.Join(configDir, priceConfigFile)
}

// LoadPriceConfig reads the price config written by seeding.
func LoadPriceConfig(configDir string) (*PriceConfig, error) {
	path := PriceConfigPath(configDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price config %s: %w", path, err)
	}
	var cfg PriceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse price config %s: %w", path, err)
	}
	if len(cfg.PriceIDs) == 0 {
		return nil, fmt.Errorf("price config %s has no price ids; run seed first", path)
	}
	return &cfg, nil
}

// Save writes the price config to configDir, creating the directory if needed.
func (c *PriceConfig) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal price config: %w", err)
	}
	path := PriceConfigPath(configDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write price config %s: %w", path, err)
	}
	return nil
}

// PlanForPrice resolves a Stripe price ID back to its plan key, or "".
func (c *PriceConfig) PlanForPrice(priceID string) string {
	for key, id := range c.PriceIDs {
		if id == priceID {
			return key
		}
	}
	return ""
}
