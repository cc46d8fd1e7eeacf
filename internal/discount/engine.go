package discount

import (
	"github.com/google/uuid"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Season identifies an active promotional season. Empty means none.
type Season string

const (
	SeasonHoliday Season = "HOLIDAY"
	SeasonSummer  Season = "SUMMER"
	SeasonSpring  Season = "SPRING"
	SeasonWinter  Season = "WINTER"
)

var seasonBps = map[Season]int64{
	SeasonHoliday: 2000,
	SeasonSummer:  1500,
	SeasonSpring:  1000,
	SeasonWinter:  500,
}

// GroupMode controls how bundle discounts group cart lines.
type GroupMode int

const (
	// GroupByProduct counts distinct product IDs across the whole cart.
	GroupByProduct GroupMode = iota
	// GroupByCategory counts distinct categories across the whole cart.
	GroupByCategory
)

// Bundle rewards in minor units for multi-item groups.
const (
	bundleLargeReward = 50_00
	bundleSmallReward = 25_00
)

// Profile carries the buyer attributes the loyalty tier is derived from.
type Profile struct {
	LifetimeSpend cart.Money `json:"lifetimeSpend"`
}

// Breakdown itemises every discount component applied to a cart.
type Breakdown struct {
	Coupon   cart.Money `json:"coupon"`
	Volume   cart.Money `json:"volume"`
	Loyalty  cart.Money `json:"loyalty"`
	Seasonal cart.Money `json:"seasonal"`
	Bundle   cart.Money `json:"bundle"`
	Total    cart.Money `json:"total"`
}

// Engine computes stacked discounts. Components are additive; the final order
// total is clamped downstream so stacking can never drive it negative.
type Engine struct {
	BundleMode GroupMode
}

// Apply evaluates all discount components for the cart.
func (e Engine) Apply(c cart.Cart, profile Profile, season Season) Breakdown {
	b := Breakdown{
		Coupon:   couponTotal(c.Coupons),
		Volume:   volumeDiscount(c.Items),
		Loyalty:  bpsOf(c.Subtotal(), loyaltyBps(profile.LifetimeSpend)),
		Seasonal: bpsOf(c.Subtotal(), seasonBps[season]),
		Bundle:   e.bundleDiscount(c.Items),
	}
	b.Total = b.Coupon + b.Volume + b.Loyalty + b.Seasonal + b.Bundle
	return b
}

func couponTotal(coupons []cart.Coupon) cart.Money {
	var total cart.Money
	for _, cp := range coupons {
		if cp.DiscountAmount > 0 {
			total += cp.DiscountAmount
		}
	}
	return total
}

// volumeDiscount applies per-line quantity tiers. The tier percentage comes
// off the unit price, not the line total: quantity earns the tier, the
// discount itself is per unit.
func volumeDiscount(items []cart.Item) cart.Money {
	var total cart.Money
	for _, it := range items {
		total += bpsOf(it.UnitPrice, volumeBps(it.Qty))
	}
	return total
}

func volumeBps(qty int) int64 {
	switch {
	case qty >= 10:
		return 1500
	case qty >= 5:
		return 1000
	case qty >= 3:
		return 500
	default:
		return 0
	}
}

func loyaltyBps(lifetimeSpend cart.Money) int64 {
	switch {
	case lifetimeSpend >= 5000_00:
		return 1000
	case lifetimeSpend >= 1000_00:
		return 500
	case lifetimeSpend >= 500_00:
		return 200
	default:
		return 0
	}
}

// bundleDiscount rewards carts spanning several distinct groupings with a
// single flat amount. The grouping key depends on the configured mode:
// distinct product IDs by default, distinct categories otherwise. Lines
// without a category are ignored in category mode.
func (e Engine) bundleDiscount(items []cart.Item) cart.Money {
	distinct := make(map[uuid.UUID]struct{})
	for _, it := range items {
		switch e.BundleMode {
		case GroupByCategory:
			if it.CategoryID == nil {
				continue
			}
			distinct[*it.CategoryID] = struct{}{}
		default:
			distinct[it.ProductID] = struct{}{}
		}
	}

	switch {
	case len(distinct) >= 3:
		return bundleLargeReward
	case len(distinct) >= 2:
		return bundleSmallReward
	}
	return 0
}

func bpsOf(amount cart.Money, bps int64) cart.Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}
