package cart

import (
	"github.com/google/uuid"
)

// Money is a monetary value in minor units of the cart currency.
type Money = int64

// ItemKind distinguishes taxable physical goods from digital and service lines.
type ItemKind string

const (
	KindPhysical ItemKind = "PHYSICAL"
	KindDigital  ItemKind = "DIGITAL"
	KindService  ItemKind = "SERVICE"
)

// Default physical attributes applied when a product carries no measurements.
const (
	DefaultWeightGram = 500
	DefaultLengthCM   = 20.0
	DefaultWidthCM    = 15.0
	DefaultHeightCM   = 10.0
)

// Dimensions describes a box in centimetres.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Volume returns the box volume in cubic centimetres.
func (d Dimensions) Volume() float64 {
	return d.Length * d.Width * d.Height
}

// Item is an immutable snapshot of a product line at the time of cart mutation.
type Item struct {
	ProductID    uuid.UUID   `json:"productId" validate:"required"`
	VariantID    *uuid.UUID  `json:"variantId,omitempty"`
	VendorID     uuid.UUID   `json:"vendorId" validate:"required"`
	CategoryID   *uuid.UUID  `json:"categoryId,omitempty"`
	Kind         ItemKind    `json:"kind" validate:"required,oneof=PHYSICAL DIGITAL SERVICE"`
	Qty          int         `json:"qty" validate:"required,gt=0"`
	UnitPrice    Money       `json:"unitPrice" validate:"gte=0"`
	ComparePrice Money       `json:"comparePrice,omitempty"`
	TotalPrice   Money       `json:"totalPrice" validate:"gte=0"`
	WeightGram   int         `json:"weightGram,omitempty"`
	Dimensions   *Dimensions `json:"dimensions,omitempty"`
}

// EffectiveWeightGram returns the item weight with the platform default applied.
func (it Item) EffectiveWeightGram() int {
	if it.WeightGram > 0 {
		return it.WeightGram
	}
	return DefaultWeightGram
}

// EffectiveVolume returns the item volume in cm³ with the default box applied.
func (it Item) EffectiveVolume() float64 {
	if it.Dimensions != nil && it.Dimensions.Volume() > 0 {
		return it.Dimensions.Volume()
	}
	return DefaultLengthCM * DefaultWidthCM * DefaultHeightCM
}

// Coupon is a discount already validated upstream and applied to the cart.
type Coupon struct {
	Code           string `json:"code" validate:"required"`
	DiscountAmount Money  `json:"discountAmount" validate:"gte=0"`
}

// Cart is the ordered snapshot the calculators operate on.
type Cart struct {
	ID             uuid.UUID `json:"id"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	Items          []Item    `json:"items" validate:"required,min=1,dive"`
	Coupons        []Coupon  `json:"coupons,omitempty" validate:"dive"`
	SelectedMethod string    `json:"selectedShippingMethodId,omitempty"`
}

// Subtotal sums the line totals.
func (c Cart) Subtotal() Money {
	var total Money
	for _, it := range c.Items {
		total += it.TotalPrice
	}
	return total
}

// ItemsByVendor groups line items per vendor preserving item order.
func (c Cart) ItemsByVendor() map[uuid.UUID][]Item {
	return ItemsByVendorOf(c.Items)
}

// VendorIDs returns the distinct vendors in first-appearance order.
func (c Cart) VendorIDs() []uuid.UUID {
	return VendorIDsOf(c.Items)
}

// ItemsByVendorOf groups line items per vendor preserving item order.
func ItemsByVendorOf(items []Item) map[uuid.UUID][]Item {
	grouped := make(map[uuid.UUID][]Item)
	for _, it := range items {
		grouped[it.VendorID] = append(grouped[it.VendorID], it)
	}
	return grouped
}

// VendorIDsOf returns the distinct vendors in first-appearance order.
func VendorIDsOf(items []Item) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.VendorID]; ok {
			continue
		}
		seen[it.VendorID] = struct{}{}
		ids = append(ids, it.VendorID)
	}
	return ids
}

// Address is a shipping destination.
type Address struct {
	Country     string `json:"country" validate:"required,len=2"`
	State       string `json:"state,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Residential bool   `json:"residential,omitempty"`
}
