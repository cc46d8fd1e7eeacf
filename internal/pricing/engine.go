package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/discount"
	"github.com/Caqil/oncart-backend/internal/shipping"
	"github.com/Caqil/oncart-backend/internal/tax"
)

// Quoter supplies shipping options. Totals always re-quotes; stale client-side
// shipping numbers never reach the order total.
type Quoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (*shipping.Quote, error)
}

const defaultPlatformFeeBps = 290

// Engine assembles the final order total from the cart snapshot, the shipping
// quote, the discount breakdown, and the tax assessment.
type Engine struct {
	Quoter         Quoter
	Tax            tax.Engine
	Discount       discount.Engine
	PlatformFeeBps int64
	CommissionBps  int64
	Now            func() time.Time
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TotalsRequest is the input to a full order-total computation.
type TotalsRequest struct {
	Cart        cart.Cart        `json:"cart" validate:"required"`
	Destination cart.Address     `json:"destination" validate:"required"`
	Profile     discount.Profile `json:"profile"`
	Season      discount.Season  `json:"season,omitempty"`
}

// VendorShare is the per-vendor settlement view of an order.
type VendorShare struct {
	VendorID   uuid.UUID  `json:"vendorId"`
	Subtotal   cart.Money `json:"subtotal"`
	Commission cart.Money `json:"commission"`
}

// Totals is the complete priced order.
type Totals struct {
	Currency          string             `json:"currency"`
	Subtotal          cart.Money         `json:"subtotal"`
	Shipping          cart.Money         `json:"shipping"`
	Discounts         discount.Breakdown `json:"discounts"`
	Tax               tax.Assessment     `json:"tax"`
	Total             cart.Money         `json:"total"`
	Savings           cart.Money         `json:"savings"`
	PlatformFee       cart.Money         `json:"platformFee"`
	VendorShares      []VendorShare      `json:"vendorShares"`
	ShippingOption    *shipping.Option   `json:"shippingOption"`
	EstimatedDelivery string             `json:"estimatedDelivery,omitempty"`
}

// Totals prices the order end to end. Only the coupon discount is charged
// against the total; the remaining discount components are reported in the
// breakdown for promotional layering. The total is clamped at zero so coupon
// stacking can never produce a negative charge.
func (e Engine) Totals(ctx context.Context, req TotalsRequest) (*Totals, error) {
	ctx, span := otel.Tracer("pricing.Engine").Start(ctx, "PricingEngine.Totals")
	defer span.End()

	c := req.Cart
	subtotal := c.Subtotal()
	span.SetAttributes(
		attribute.String("pricing.currency", c.Currency),
		attribute.Int("pricing.items", len(c.Items)),
	)

	quote, err := e.Quoter.Quote(ctx, shipping.QuoteRequest{
		Items:       c.Items,
		Destination: req.Destination,
		Currency:    c.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("shipping quote: %w", err)
	}
	option, err := selectOption(quote.Options, c.SelectedMethod)
	if err != nil {
		return nil, err
	}
	var shippingCost cart.Money
	if option != nil {
		shippingCost = option.Cost
	}

	discounts := e.Discount.Apply(c, req.Profile, req.Season)
	assessment := e.Tax.Assess(c.Items, req.Destination)

	total := subtotal + shippingCost + assessment.Tax - discounts.Coupon
	if total < 0 {
		total = 0
	}

	t := &Totals{
		Currency:       c.Currency,
		Subtotal:       subtotal,
		Shipping:       shippingCost,
		Discounts:      discounts,
		Tax:            assessment,
		Total:          total,
		Savings:        compareSavings(c.Items) + discounts.Coupon,
		PlatformFee:    bpsOf(subtotal, e.platformFeeBps()),
		VendorShares:   e.vendorShares(c),
		ShippingOption: option,
	}
	if option != nil {
		t.EstimatedDelivery = e.now().AddDate(0, 0, quote.MaxProcessingDays+option.EtdMaxDays).Format("2006-01-02")
	}
	return t, nil
}

func (e Engine) vendorShares(c cart.Cart) []VendorShare {
	byVendor := c.ItemsByVendor()
	shares := make([]VendorShare, 0, len(byVendor))
	for _, vendorID := range c.VendorIDs() {
		var sub cart.Money
		for _, it := range byVendor[vendorID] {
			sub += it.TotalPrice
		}
		shares = append(shares, VendorShare{
			VendorID:   vendorID,
			Subtotal:   sub,
			Commission: bpsOf(sub, e.CommissionBps),
		})
	}
	return shares
}

func (e Engine) platformFeeBps() int64 {
	if e.PlatformFeeBps > 0 {
		return e.PlatformFeeBps
	}
	return defaultPlatformFeeBps
}

// selectOption resolves the cart's chosen method against the quoted options.
// A nil result means no method is selected and no shipping is charged.
func selectOption(options []shipping.Option, methodID string) (*shipping.Option, error) {
	if methodID == "" {
		return nil, nil
	}
	for i := range options {
		if options[i].ID == methodID {
			return &options[i], nil
		}
	}
	return nil, common.NewAppError("SHIPPING_METHOD_NOT_FOUND",
		fmt.Sprintf("shipping method %s is not available for this cart", methodID), 422, nil)
}

// compareSavings sums the spread between compare-at and actual line prices.
func compareSavings(items []cart.Item) cart.Money {
	var savings cart.Money
	for _, it := range items {
		if it.ComparePrice > it.UnitPrice {
			savings += (it.ComparePrice - it.UnitPrice) * cart.Money(it.Qty)
		}
	}
	return savings
}

func bpsOf(amount cart.Money, bps int64) cart.Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}
