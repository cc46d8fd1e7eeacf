package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/discount"
	"github.com/Caqil/oncart-backend/internal/shipping"
	"github.com/Caqil/oncart-backend/internal/tax"
)

type stubQuoter struct {
	options        []shipping.Option
	processingDays int
	err            error
}

func (s stubQuoter) Quote(context.Context, shipping.QuoteRequest) (*shipping.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &shipping.Quote{Options: s.options, MaxProcessingDays: s.processingDays}, nil
}

func physLine(vendorID uuid.UUID, qty int, unit cart.Money) cart.Item {
	return cart.Item{
		ProductID:  uuid.New(),
		VendorID:   vendorID,
		Kind:       cart.KindPhysical,
		Qty:        qty,
		UnitPrice:  unit,
		TotalPrice: cart.Money(qty) * unit,
	}
}

func flatShipping(cost cart.Money) stubQuoter {
	return stubQuoter{options: []shipping.Option{{ID: "std", Name: "Standard", Cost: cost, EtdMinDays: 3, EtdMaxDays: 5}}}
}

func TestTotalsAssemblesComponents(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	quoter := flatShipping(7_00)
	quoter.processingDays = 2
	e := Engine{
		Quoter:   quoter,
		Tax:      tax.Engine{},
		Discount: discount.Engine{},
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}

	c := cart.Cart{
		Currency:       "USD",
		Items:          []cart.Item{physLine(vendorID, 1, 100_00)},
		Coupons:        []cart.Coupon{{Code: "TEN", DiscountAmount: 10_00}},
		SelectedMethod: "std",
	}
	totals, err := e.Totals(context.Background(), TotalsRequest{
		Cart:        c,
		Destination: cart.Address{Country: "US", State: "NY"},
	})
	require.NoError(t, err)

	require.EqualValues(t, 100_00, totals.Subtotal)
	require.EqualValues(t, 7_00, totals.Shipping)
	require.EqualValues(t, 10_00, totals.Discounts.Coupon)
	// tax on the full 100.00 physical base at NY 8%
	require.EqualValues(t, 8_00, totals.Tax.Tax)
	require.EqualValues(t, 100_00+7_00+8_00-10_00, totals.Total)
	// 2 processing days plus the 5-day shipping maximum
	require.Equal(t, "2026-03-08", totals.EstimatedDelivery)
}

func TestTotalsInvariantNeverNegative(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{Quoter: flatShipping(0), Tax: tax.Engine{}, Discount: discount.Engine{}}

	c := cart.Cart{
		Currency: "USD",
		Items:    []cart.Item{physLine(vendorID, 1, 10_00)},
		Coupons:  []cart.Coupon{{Code: "HUGE", DiscountAmount: 500_00}},
	}
	totals, err := e.Totals(context.Background(), TotalsRequest{
		Cart:        c,
		Destination: cart.Address{Country: "US", State: "NY"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, totals.Total)
}

func TestTotalsCouponOffsetsShippingAndTax(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{Quoter: flatShipping(3_00), Tax: tax.Engine{}, Discount: discount.Engine{}}

	c := cart.Cart{
		Currency:       "USD",
		Items:          []cart.Item{physLine(vendorID, 1, 5_00)},
		Coupons:        []cart.Coupon{{Code: "TEN", DiscountAmount: 10_00}},
		SelectedMethod: "std",
	}
	totals, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	require.NoError(t, err)
	// 5.00 + 3.00 shipping - 10.00 coupon clamps at zero
	require.EqualValues(t, 0, totals.Total)
}

func TestTotalsChargesOnlyCouponDiscount(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{Quoter: flatShipping(0), Tax: tax.Engine{}, Discount: discount.Engine{}}

	c := cart.Cart{
		Currency: "USD",
		Items:    []cart.Item{physLine(vendorID, 3, 10_00)},
	}
	totals, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	require.NoError(t, err)

	// the volume tier shows up in the breakdown but not in the charge
	require.EqualValues(t, 50, totals.Discounts.Volume)
	require.EqualValues(t, 30_00, totals.Total)
}

func TestTotalsUnselectedMethodChargesNoShipping(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{Quoter: flatShipping(7_00), Tax: tax.Engine{}, Discount: discount.Engine{}}

	c := cart.Cart{Currency: "USD", Items: []cart.Item{physLine(vendorID, 1, 50_00)}}
	totals, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	require.NoError(t, err)

	require.EqualValues(t, 0, totals.Shipping)
	require.Nil(t, totals.ShippingOption)
	require.Empty(t, totals.EstimatedDelivery)
	require.EqualValues(t, 50_00, totals.Total)
}

func TestTotalsSelectsRequestedShippingMethod(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	quoter := stubQuoter{options: []shipping.Option{
		{ID: "express", Cost: 15_00},
		{ID: "ground", Cost: 5_00},
	}}
	e := Engine{Quoter: quoter, Tax: tax.Engine{}, Discount: discount.Engine{}}

	c := cart.Cart{
		Currency:       "USD",
		Items:          []cart.Item{physLine(vendorID, 1, 50_00)},
		SelectedMethod: "ground",
	}
	totals, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	require.NoError(t, err)
	require.Equal(t, "ground", totals.ShippingOption.ID)
	require.EqualValues(t, 5_00, totals.Shipping)

	c.SelectedMethod = "overnight"
	_, err = e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "SHIPPING_METHOD_NOT_FOUND", appErr.Code)
}

func TestTotalsSavingsAndPlatformFee(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{Quoter: flatShipping(0), Tax: tax.Engine{}, Discount: discount.Engine{}, CommissionBps: 1000}

	it := physLine(vendorID, 2, 40_00)
	it.ComparePrice = 50_00
	c := cart.Cart{Currency: "USD", Items: []cart.Item{it}}

	totals, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "SG"}})
	require.NoError(t, err)

	require.EqualValues(t, 20_00, totals.Savings)
	// default 2.9% platform fee on the 80.00 subtotal
	require.EqualValues(t, 2_32, totals.PlatformFee)
	require.Len(t, totals.VendorShares, 1)
	require.EqualValues(t, 8_00, totals.VendorShares[0].Commission)
}

func TestTotalsPropagatesQuoteFailure(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	e := Engine{
		Quoter:   stubQuoter{err: common.NewAppError("SHIPPING_UNAVAILABLE", "no coverage", 422, nil)},
		Tax:      tax.Engine{},
		Discount: discount.Engine{},
	}
	c := cart.Cart{Currency: "USD", Items: []cart.Item{physLine(vendorID, 1, 10_00)}}

	_, err := e.Totals(context.Background(), TotalsRequest{Cart: c, Destination: cart.Address{Country: "US"}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "SHIPPING_UNAVAILABLE", appErr.Code)
}
