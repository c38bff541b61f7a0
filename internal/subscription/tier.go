// Package subscription provides establishment subscription tiers and the
// Stripe integration that sells tier upgrades.
package subscription

import (
	"errors"
	"fmt"
)

// Tier identifies an establishment's paid visibility level.
type Tier string

// Supported subscription tiers, lowest to highest.
const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// ErrUnknownTier is returned when a tier value is not one of the supported tiers.
var ErrUnknownTier = errors.New("unknown subscription tier")

// Valid reports whether the tier is one of the supported values.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierStandard, TierPremium:
		return true
	}
	return false
}

// ParseTier converts a stored string into a Tier.
// Unknown values are rejected rather than defaulted: a silently substituted
// tier would corrupt ranking output downstream.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}
