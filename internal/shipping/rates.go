package shipping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Rate is a priced shipping offer for a single vendor. Rates are computed per
// request and never persisted.
type Rate struct {
	MethodID      string     `json:"methodId"`
	Name          string     `json:"name"`
	Provider      string     `json:"provider"`
	VendorID      uuid.UUID  `json:"vendorId"`
	Cost          cart.Money `json:"cost"`
	Currency      string     `json:"currency"`
	EtdMinDays    int        `json:"etdMinDays"`
	EtdMaxDays    int        `json:"etdMaxDays"`
	BaseRate      cart.Money `json:"baseRate"`
	FuelSurcharge cart.Money `json:"fuelSurcharge,omitempty"`
	DimSurcharge  cart.Money `json:"dimSurcharge,omitempty"`
	FreeShipping  bool       `json:"freeShipping,omitempty"`
}

// Method is a platform-wide shipping method used when a vendor has no
// configuration of its own.
type Method struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Countries            []string   `json:"countries"`
	BaseRate             cart.Money `json:"baseRate"`
	PerKgRate            cart.Money `json:"perKgRate"`
	FreeAbove            cart.Money `json:"freeAbove"`
	EtdMinDays           int        `json:"etdMinDays"`
	EtdMaxDays           int        `json:"etdMaxDays"`
	ResidentialSurcharge cart.Money `json:"residentialSurcharge"`
}

// AvailableIn reports whether the method ships to the destination country.
func (m Method) AvailableIn(country string) bool {
	if len(m.Countries) == 0 {
		return true
	}
	for _, c := range m.Countries {
		if strings.EqualFold(strings.TrimSpace(c), country) {
			return true
		}
	}
	return false
}

const defaultFuelSurchargeBps = 500

// Engine resolves shipping rates for one vendor and package.
type Engine struct {
	Radius           RadiusPredicate
	FuelSurchargeBps int

	// DefaultOriginCity is used for local-delivery checks when a vendor has
	// not recorded its own origin.
	DefaultOriginCity string
}

// VendorRates returns zero or more rate candidates for the vendor. An empty
// result means the vendor cannot ship to the destination; callers treat it as
// a checkout-blocking business condition, not an error.
func (e Engine) VendorRates(vendor *VendorInfo, itemsValue cart.Money, pkg Package, dest cart.Address, platform []Method, currency string) []Rate {
	if !vendor.Configured() {
		return e.platformRates(vendorIDOf(vendor), itemsValue, pkg, dest, platform, currency)
	}

	var rates []Rate
	if vendor.FreeShippingEnabled && vendor.FreeShippingMin > 0 && itemsValue >= vendor.FreeShippingMin {
		rates = append(rates, Rate{
			MethodID:     "free-shipping",
			Name:         "Free Shipping",
			Provider:     "vendor",
			VendorID:     vendor.VendorID,
			Cost:         0,
			Currency:     currency,
			EtdMinDays:   5,
			EtdMaxDays:   7,
			FreeShipping: true,
		})
	}
	if vendor.LocalDeliveryEnabled && e.radius().WithinRadius(e.originCity(vendor), dest, vendor.LocalDeliveryRadiusKM) {
		rates = append(rates, Rate{
			MethodID:   "local-delivery",
			Name:       "Local Delivery",
			Provider:   "vendor",
			VendorID:   vendor.VendorID,
			Cost:       vendor.LocalDeliveryFee,
			Currency:   currency,
			EtdMinDays: 1,
			EtdMaxDays: 2,
			BaseRate:   vendor.LocalDeliveryFee,
		})
	}
	for _, rule := range vendor.Rules {
		if !rule.AppliesTo(dest, pkg.WeightGram) {
			continue
		}
		rate := Rate{
			MethodID:   fmt.Sprintf("vendor-rate-%s", rule.ID),
			Name:       rule.Name,
			Provider:   "vendor",
			VendorID:   vendor.VendorID,
			Currency:   currency,
			EtdMinDays: rule.EtdMinDays,
			EtdMaxDays: rule.EtdMaxDays,
			BaseRate:   rule.Rate,
		}
		if rule.FreeAbove > 0 && itemsValue >= rule.FreeAbove {
			rate.Cost = 0
			rate.FreeShipping = true
		} else {
			rate.FuelSurcharge = rule.Rate * cart.Money(e.fuelBps()) / 10000
			rate.Cost = rule.Rate + rate.FuelSurcharge
		}
		rates = append(rates, rate)
	}
	return rates
}

func (e Engine) platformRates(vendorID uuid.UUID, itemsValue cart.Money, pkg Package, dest cart.Address, methods []Method, currency string) []Rate {
	var rates []Rate
	for _, m := range methods {
		if !m.AvailableIn(dest.Country) {
			continue
		}
		rate := Rate{
			MethodID:   m.ID,
			Name:       m.Name,
			Provider:   "platform",
			VendorID:   vendorID,
			Currency:   currency,
			EtdMinDays: m.EtdMinDays,
			EtdMaxDays: m.EtdMaxDays,
			BaseRate:   m.BaseRate,
		}
		if m.FreeAbove > 0 && itemsValue >= m.FreeAbove {
			rate.Cost = 0
			rate.FreeShipping = true
			rates = append(rates, rate)
			continue
		}
		cost := m.BaseRate + perKgCost(m.PerKgRate, pkg.WeightGram)
		if dim := pkg.DimensionalWeightGram(); dim > pkg.WeightGram {
			rate.DimSurcharge = perKgCost(m.PerKgRate, dim-pkg.WeightGram)
			cost += rate.DimSurcharge
		}
		if dest.Residential && m.ResidentialSurcharge > 0 {
			cost += m.ResidentialSurcharge
		}
		if cost < 0 {
			cost = 0
		}
		rate.Cost = cost
		rates = append(rates, rate)
	}
	return rates
}

func (e Engine) radius() RadiusPredicate {
	if e.Radius != nil {
		return e.Radius
	}
	return CityMatchPredicate{}
}

func (e Engine) originCity(v *VendorInfo) string {
	if strings.TrimSpace(v.OriginCity) != "" {
		return v.OriginCity
	}
	return e.DefaultOriginCity
}

func (e Engine) fuelBps() int {
	if e.FuelSurchargeBps > 0 {
		return e.FuelSurchargeBps
	}
	return defaultFuelSurchargeBps
}

func perKgCost(perKg cart.Money, weightGram int) cart.Money {
	if perKg <= 0 || weightGram <= 0 {
		return 0
	}
	return perKg * cart.Money(weightGram) / 1000
}

func vendorIDOf(v *VendorInfo) uuid.UUID {
	if v == nil {
		return uuid.Nil
	}
	return v.VendorID
}
