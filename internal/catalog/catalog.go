// Package catalog defines the five-tier per-screen pricing model for the
// digital signage product and the Stripe price mapping produced by seeding.
package catalog

import (
	"fmt"
	"math/rand"
)

// PlanTier is one immutable catalog entry. Prices are per screen per month.
type PlanTier struct {
	Key         string
	DisplayName string
	Description string
	PriceCents  int64
	MinScreens  int
	MaxScreens  int
}

// Tiers is the fixed catalog, ordered from cheapest to most expensive.
// Never mutated after init.
var Tiers = []PlanTier{
	{Key: "free", DisplayName: "Free", Description: "Get Started for Free", PriceCents: 0, MinScreens: 1, MaxScreens: 2},
	{Key: "standard", DisplayName: "Standard", Description: "Digital Signage Simplified", PriceCents: 1000, MinScreens: 1, MaxScreens: 5},
	{Key: "pro_plus", DisplayName: "Pro Plus", Description: "Maximize Your Potential", PriceCents: 1500, MinScreens: 3, MaxScreens: 10},
	{Key: "engage", DisplayName: "Engage", Description: "Interactive Digital Experiences", PriceCents: 3000, MinScreens: 5, MaxScreens: 25},
	{Key: "enterprise", DisplayName: "Enterprise", Description: "Scalable Enterprise Solutions", PriceCents: 4500, MinScreens: 10, MaxScreens: 60},
}

// ByKey returns the tier for key, or an error for unknown keys.
func ByKey(key string) (PlanTier, error) {
	for _, t := range Tiers {
		if t.Key == key {
			return t, nil
		}
	}
	return PlanTier{}, fmt.Errorf("unknown plan tier %q", key)
}

// Index returns the position of key in Tiers, or -1.
func Index(key string) int {
	for i, t := range Tiers {
		if t.Key == key {
			return i
		}
	}
	return -1
}

// RandomScreens draws a screen count uniformly from the tier's range.
// A degenerate range (min == max) yields the fixed count.
func (t PlanTier) RandomScreens(rng *rand.Rand) int {
	if t.MaxScreens <= t.MinScreens {
		return t.MinScreens
	}
	return t.MinScreens + rng.Intn(t.MaxScreens-t.MinScreens+1)
}

// ClampScreens pulls a screen count into the tier's valid range.
func (t PlanTier) ClampScreens(screens int) int {
	if screens < t.MinScreens {
		return t.MinScreens
	}
	if screens > t.MaxScreens {
		return t.MaxScreens
	}
	return screens
}
