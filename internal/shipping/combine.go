package shipping

import (
	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Tier groups rates by delivery speed so multi-vendor carts can be offered
// one combined option per tier.
type Tier string

const (
	TierExpress  Tier = "express"
	TierStandard Tier = "standard"
	TierEconomy  Tier = "economy"
)

func tierOf(r Rate) Tier {
	switch {
	case r.EtdMaxDays <= 2:
		return TierExpress
	case r.EtdMaxDays <= 5:
		return TierStandard
	default:
		return TierEconomy
	}
}

// Option is a selectable shipping choice for the whole cart. For a single
// vendor it is the vendor's rate verbatim; for several vendors it is the sum
// of one rate per vendor within the same tier.
type Option struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Tier       Tier               `json:"tier"`
	Cost       cart.Money         `json:"cost"`
	Currency   string             `json:"currency"`
	EtdMinDays int                `json:"etdMinDays"`
	EtdMaxDays int                `json:"etdMaxDays"`
	PerVendor  map[uuid.UUID]Rate `json:"perVendor,omitempty"`
	VendorRate *Rate              `json:"vendorRate,omitempty"`
}

var tierNames = map[Tier]string{
	TierExpress:  "Express",
	TierStandard: "Standard",
	TierEconomy:  "Economy",
}

var tierOrder = []Tier{TierExpress, TierStandard, TierEconomy}

// Combine turns per-vendor rate candidates into cart-level options.
//
// With a single vendor every rate becomes its own option. With several
// vendors, only tiers supported by every vendor survive; within a surviving
// tier the cheapest rate of each vendor is chosen and the costs are summed.
// An empty result means no common tier exists.
func Combine(perVendor map[uuid.UUID][]Rate, vendorOrder []uuid.UUID, currency string) []Option {
	if len(perVendor) == 0 {
		return nil
	}
	if len(perVendor) == 1 {
		for _, rates := range perVendor {
			return singleVendorOptions(rates, currency)
		}
	}

	// cheapest rate per vendor per tier
	byTier := make(map[Tier]map[uuid.UUID]Rate)
	for vendorID, rates := range perVendor {
		for _, r := range rates {
			t := tierOf(r)
			if byTier[t] == nil {
				byTier[t] = make(map[uuid.UUID]Rate)
			}
			best, ok := byTier[t][vendorID]
			if !ok || r.Cost < best.Cost {
				byTier[t][vendorID] = r
			}
		}
	}

	var opts []Option
	for _, t := range tierOrder {
		picks := byTier[t]
		if len(picks) != len(perVendor) {
			continue
		}
		opt := Option{
			ID:        "combined-" + string(t),
			Name:      tierNames[t] + " Delivery",
			Tier:      t,
			Currency:  currency,
			PerVendor: picks,
		}
		// day range: min of mins, max of maxes
		for i, id := range vendorOrder {
			r := picks[id]
			opt.Cost += r.Cost
			if i == 0 || r.EtdMinDays < opt.EtdMinDays {
				opt.EtdMinDays = r.EtdMinDays
			}
			if r.EtdMaxDays > opt.EtdMaxDays {
				opt.EtdMaxDays = r.EtdMaxDays
			}
		}
		opts = append(opts, opt)
	}
	return opts
}

func singleVendorOptions(rates []Rate, currency string) []Option {
	opts := make([]Option, 0, len(rates))
	for _, r := range rates {
		r := r
		opts = append(opts, Option{
			ID:         r.MethodID,
			Name:       r.Name,
			Tier:       tierOf(r),
			Cost:       r.Cost,
			Currency:   currency,
			EtdMinDays: r.EtdMinDays,
			EtdMaxDays: r.EtdMaxDays,
			VendorRate: &r,
		})
	}
	return opts
}
