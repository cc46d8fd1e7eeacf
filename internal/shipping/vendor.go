package shipping

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// RateRule is a vendor-configured shipping rate with its applicability constraints.
type RateRule struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Rate          cart.Money `json:"rate"`
	FreeAbove     cart.Money `json:"freeAbove"`
	EtdMinDays    int        `json:"etdMinDays"`
	EtdMaxDays    int        `json:"etdMaxDays"`
	Regions       []string   `json:"regions"`
	MaxWeightGram int        `json:"maxWeightGram"`
}

// AppliesTo reports whether the rule covers the destination and package weight.
func (r RateRule) AppliesTo(dest cart.Address, weightGram int) bool {
	if r.MaxWeightGram > 0 && weightGram > r.MaxWeightGram {
		return false
	}
	if len(r.Regions) == 0 {
		return true
	}
	for _, region := range r.Regions {
		if strings.EqualFold(strings.TrimSpace(region), dest.Country) {
			return true
		}
	}
	return false
}

// VendorInfo is a vendor's shipping configuration. It is referenced read-only
// during rate calculation and never mutated by the engine.
type VendorInfo struct {
	VendorID              uuid.UUID  `json:"vendorId"`
	FreeShippingEnabled   bool       `json:"freeShippingEnabled"`
	FreeShippingMin       cart.Money `json:"freeShippingMin"`
	LocalDeliveryEnabled  bool       `json:"localDeliveryEnabled"`
	LocalDeliveryFee      cart.Money `json:"localDeliveryFee"`
	LocalDeliveryRadiusKM float64    `json:"localDeliveryRadiusKm"`
	OriginCity            string     `json:"originCity"`
	ProcessingDays        int        `json:"processingDays"`
	Rules                 []RateRule `json:"rules"`
}

// Configured reports whether the vendor has any shipping configuration of its
// own. Unconfigured vendors fall back to the platform-wide methods.
func (v *VendorInfo) Configured() bool {
	if v == nil {
		return false
	}
	return v.FreeShippingEnabled || v.LocalDeliveryEnabled || len(v.Rules) > 0
}

// RadiusPredicate decides local-delivery eligibility for a destination.
// Production deployments inject a geocoding-backed implementation.
type RadiusPredicate interface {
	WithinRadius(originCity string, dest cart.Address, radiusKM float64) bool
}

// CityMatchPredicate approximates delivery radius by exact city match.
type CityMatchPredicate struct{}

// WithinRadius reports destination eligibility based on a case-insensitive city comparison.
func (CityMatchPredicate) WithinRadius(originCity string, dest cart.Address, _ float64) bool {
	origin := strings.TrimSpace(originCity)
	city := strings.TrimSpace(dest.City)
	if origin == "" || city == "" {
		return false
	}
	return strings.EqualFold(origin, city)
}
