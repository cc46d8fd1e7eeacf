package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Caqil/oncart-backend/internal/cache"
	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/obs"
)

type stubVendorSource struct {
	vendors map[uuid.UUID]*VendorInfo
	calls   int
}

func (s *stubVendorSource) VendorShipping(_ context.Context, vendorID uuid.UUID) (*VendorInfo, error) {
	s.calls++
	if v, ok := s.vendors[vendorID]; ok {
		return v, nil
	}
	return &VendorInfo{VendorID: vendorID}, nil
}

type stubMethodSource struct {
	methods []Method
}

func (s *stubMethodSource) ActiveMethods(context.Context) ([]Method, error) {
	return s.methods, nil
}

func init() {
	obs.MustRegisterDomainMetrics("test", nil)
}

func newTestService(t *testing.T, vendors *stubVendorSource, methods *stubMethodSource, withCache bool) *Service {
	t.Helper()
	var c *cache.JSON
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		c = cache.NewJSON(client, time.Minute)
	}
	return NewService(vendors, methods, Engine{}, c, zerolog.Nop())
}

func vendorItem(vendorID uuid.UUID, kind cart.ItemKind, qty int, unit cart.Money) cart.Item {
	return cart.Item{
		ProductID:  uuid.New(),
		VendorID:   vendorID,
		Kind:       kind,
		Qty:        qty,
		UnitPrice:  unit,
		TotalPrice: cart.Money(qty) * unit,
	}
}

func TestQuoteDigitalOnlyCart(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubVendorSource{}, &stubMethodSource{}, false)
	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items:       []cart.Item{vendorItem(uuid.New(), cart.KindDigital, 1, 9_99)},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Len(t, quote.Options, 1)
	require.Equal(t, "no-shipping", quote.Options[0].ID)
	require.EqualValues(t, 0, quote.Options[0].Cost)
}

func TestQuoteUnserviceableVendor(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	vendors := &stubVendorSource{vendors: map[uuid.UUID]*VendorInfo{
		vendorID: {
			VendorID: vendorID,
			Rules:    []RateRule{{ID: "eu", Name: "EU Only", Rate: 4_00, Regions: []string{"DE", "FR"}}},
		},
	}}
	svc := newTestService(t, vendors, &stubMethodSource{}, false)

	_, err := svc.Quote(context.Background(), QuoteRequest{
		Items:       []cart.Item{vendorItem(vendorID, cart.KindPhysical, 1, 10_00)},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	})
	require.Error(t, err)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "SHIPPING_UNAVAILABLE", appErr.Code)
	require.Equal(t, 422, appErr.HTTPStatus)
}

func TestQuoteMixedCartIgnoresDigitalWeight(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	vendors := &stubVendorSource{vendors: map[uuid.UUID]*VendorInfo{
		vendorID: {
			VendorID: vendorID,
			Rules:    []RateRule{{ID: "g", Name: "Ground", Rate: 5_00, EtdMinDays: 3, EtdMaxDays: 5}},
		},
	}}
	svc := newTestService(t, vendors, &stubMethodSource{}, false)

	physical := vendorItem(vendorID, cart.KindPhysical, 1, 10_00)
	physical.WeightGram = 700
	digital := vendorItem(vendorID, cart.KindDigital, 4, 20_00)

	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items:       []cart.Item{physical, digital},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Equal(t, 700, quote.TotalWeightGram)
	require.NotEmpty(t, quote.Options)
}

func TestQuoteMultiVendorCombined(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	vendors := &stubVendorSource{vendors: map[uuid.UUID]*VendorInfo{
		a: {VendorID: a, Rules: []RateRule{{ID: "a", Name: "Ground", Rate: 5_00, EtdMinDays: 3, EtdMaxDays: 5}}},
		b: {VendorID: b, Rules: []RateRule{{ID: "b", Name: "Ground", Rate: 3_00, EtdMinDays: 2, EtdMaxDays: 4}}},
	}}
	svc := newTestService(t, vendors, &stubMethodSource{}, false)

	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items: []cart.Item{
			vendorItem(a, cart.KindPhysical, 1, 10_00),
			vendorItem(b, cart.KindPhysical, 1, 15_00),
		},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Len(t, quote.Options, 1)
	require.Equal(t, "combined-standard", quote.Options[0].ID)
	// each rate carries its 5% fuel surcharge before summing
	require.EqualValues(t, 5_25+3_15, quote.Options[0].Cost)
}

func TestQuoteReportsSlowestVendorProcessing(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	vendors := &stubVendorSource{vendors: map[uuid.UUID]*VendorInfo{
		a: {VendorID: a, ProcessingDays: 1, Rules: []RateRule{{ID: "a", Name: "Ground", Rate: 5_00, EtdMinDays: 3, EtdMaxDays: 5}}},
		b: {VendorID: b, ProcessingDays: 4, Rules: []RateRule{{ID: "b", Name: "Ground", Rate: 3_00, EtdMinDays: 2, EtdMaxDays: 4}}},
	}}
	svc := newTestService(t, vendors, &stubMethodSource{}, false)

	quote, err := svc.Quote(context.Background(), QuoteRequest{
		Items: []cart.Item{
			vendorItem(a, cart.KindPhysical, 1, 10_00),
			vendorItem(b, cart.KindPhysical, 1, 15_00),
		},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Equal(t, 4, quote.MaxProcessingDays)
}

func TestQuoteCachesResult(t *testing.T) {
	t.Parallel()

	vendorID := uuid.New()
	vendors := &stubVendorSource{vendors: map[uuid.UUID]*VendorInfo{
		vendorID: {
			VendorID: vendorID,
			Rules:    []RateRule{{ID: "g", Name: "Ground", Rate: 5_00, EtdMinDays: 3, EtdMaxDays: 5}},
		},
	}}
	svc := newTestService(t, vendors, &stubMethodSource{}, true)

	req := QuoteRequest{
		Items:       []cart.Item{vendorItem(vendorID, cart.KindPhysical, 1, 10_00)},
		Destination: cart.Address{Country: "US"},
		Currency:    "USD",
	}

	first, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	callsAfterFirst := vendors.calls

	second, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, callsAfterFirst, vendors.calls)
	require.Equal(t, first.Options[0].Cost, second.Options[0].Cost)
}
