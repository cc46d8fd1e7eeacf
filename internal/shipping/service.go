package shipping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Caqil/oncart-backend/internal/cache"
	"github.com/Caqil/oncart-backend/internal/cart"
	"github.com/Caqil/oncart-backend/internal/common"
	"github.com/Caqil/oncart-backend/internal/obs"
)

// VendorSource loads vendor shipping configuration.
type VendorSource interface {
	VendorShipping(ctx context.Context, vendorID uuid.UUID) (*VendorInfo, error)
}

// MethodSource loads platform-wide shipping methods.
type MethodSource interface {
	ActiveMethods(ctx context.Context) ([]Method, error)
}

// Quote is the full shipping answer for a cart and destination.
// MaxProcessingDays is the slowest vendor's fulfilment lead time; delivery
// date estimates add it on top of the chosen option's shipping days.
type Quote struct {
	Options           []Option        `json:"options"`
	TotalWeightGram   int             `json:"totalWeightGram"`
	Dimensions        cart.Dimensions `json:"dimensions"`
	EstimatedDelivery string          `json:"estimatedDelivery,omitempty"`
	MaxProcessingDays int             `json:"maxProcessingDays"`
	Currency          string          `json:"currency"`
}

// Service computes shipping quotes, with a short-lived redis cache in front of
// the vendor config lookups.
type Service struct {
	vendors VendorSource
	methods MethodSource
	engine  Engine
	cache   *cache.JSON
	log     zerolog.Logger
}

func NewService(vendors VendorSource, methods MethodSource, engine Engine, c *cache.JSON, log zerolog.Logger) *Service {
	return &Service{vendors: vendors, methods: methods, engine: engine, cache: c, log: log}
}

// QuoteRequest carries everything the quote needs. Items come from the cart
// snapshot the caller already holds, not from storage.
type QuoteRequest struct {
	Items       []cart.Item  `json:"items" validate:"required,min=1,dive"`
	Destination cart.Address `json:"destination" validate:"required"`
	Currency    string       `json:"currency" validate:"required,len=3"`
}

// Quote aggregates per-vendor packages, rates them, and combines the results.
// Digital and service items carry no weight; a cart of only those still gets a
// single zero-cost option so checkout can proceed.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if physical := physicalItems(req.Items); len(physical) == 0 {
		obs.ShippingQuoteTotal.WithLabelValues("digital_only").Inc()
		return &Quote{
			Options: []Option{{
				ID:       "no-shipping",
				Name:     "No Shipping Required",
				Tier:     TierStandard,
				Cost:     0,
				Currency: req.Currency,
			}},
			Currency: req.Currency,
		}, nil
	}

	if q, ok := s.cached(ctx, req); ok {
		obs.ShippingQuoteTotal.WithLabelValues("cache_hit").Inc()
		return q, nil
	}

	byVendor := cart.ItemsByVendorOf(req.Items)
	vendorOrder := cart.VendorIDsOf(req.Items)

	platform, err := s.methods.ActiveMethods(ctx)
	if err != nil {
		obs.ShippingQuoteTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load shipping methods: %w", err)
	}

	perVendor := make(map[uuid.UUID][]Rate, len(byVendor))
	total := Package{}
	maxProcessing := 0
	for _, vendorID := range vendorOrder {
		items := physicalItems(byVendor[vendorID])
		if len(items) == 0 {
			continue
		}
		pkg := BuildPackage(items)
		total.WeightGram += pkg.WeightGram

		vendor, err := s.vendors.VendorShipping(ctx, vendorID)
		if err != nil {
			obs.ShippingQuoteTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("load vendor shipping %s: %w", vendorID, err)
		}
		if vendor.ProcessingDays > maxProcessing {
			maxProcessing = vendor.ProcessingDays
		}
		rates := s.engine.VendorRates(vendor, itemsValue(items), pkg, req.Destination, platform, req.Currency)
		if len(rates) == 0 {
			obs.ShippingQuoteTotal.WithLabelValues("unserviceable").Inc()
			return nil, common.NewAppError("SHIPPING_UNAVAILABLE",
				fmt.Sprintf("vendor %s cannot ship to this destination", vendorID), 422, nil)
		}
		perVendor[vendorID] = rates
	}

	shippable := make([]uuid.UUID, 0, len(perVendor))
	for _, id := range vendorOrder {
		if _, ok := perVendor[id]; ok {
			shippable = append(shippable, id)
		}
	}

	options := Combine(perVendor, shippable, req.Currency)
	if len(options) == 0 {
		obs.ShippingQuoteTotal.WithLabelValues("no_common_tier").Inc()
		return nil, common.NewAppError("SHIPPING_UNAVAILABLE",
			"no shipping option covers all vendors in the cart", 422, nil)
	}

	q := &Quote{
		Options:           options,
		TotalWeightGram:   total.WeightGram,
		Dimensions:        BuildPackage(physicalItems(req.Items)).Dimensions,
		EstimatedDelivery: etdLabel(options[0]),
		MaxProcessingDays: maxProcessing,
		Currency:          req.Currency,
	}
	s.store(ctx, req, q)
	obs.ShippingQuoteTotal.WithLabelValues("ok").Inc()
	return q, nil
}

func (s *Service) cached(ctx context.Context, req QuoteRequest) (*Quote, bool) {
	if s.cache == nil {
		return nil, false
	}
	var q Quote
	ok, err := s.cache.Get(ctx, s.cacheKey(req), &q)
	if err != nil {
		s.log.Debug().Err(err).Msg("shipping quote cache read")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &q, true
}

func (s *Service) store(ctx context.Context, req QuoteRequest, q *Quote) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(req), q); err != nil {
		s.log.Debug().Err(err).Msg("shipping quote cache write")
	}
}

func (s *Service) cacheKey(req QuoteRequest) string {
	raw, _ := json.Marshal(req)
	return "shipq:" + common.Sha256HexBytes(raw)
}

func physicalItems(items []cart.Item) []cart.Item {
	out := make([]cart.Item, 0, len(items))
	for _, it := range items {
		if it.Kind == cart.KindPhysical {
			out = append(out, it)
		}
	}
	return out
}

func itemsValue(items []cart.Item) cart.Money {
	var v cart.Money
	for _, it := range items {
		v += it.TotalPrice
	}
	return v
}

func etdLabel(o Option) string {
	if o.EtdMaxDays <= 0 {
		return ""
	}
	if o.EtdMinDays == o.EtdMaxDays {
		return fmt.Sprintf("%d days", o.EtdMaxDays)
	}
	return fmt.Sprintf("%d-%d days", o.EtdMinDays, o.EtdMaxDays)
}
