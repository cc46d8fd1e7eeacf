package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// PGSource reads vendor shipping configuration and platform methods from
// Postgres. It satisfies both VendorSource and MethodSource.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// VendorShipping loads the vendor's shipping settings plus its custom rules.
// A vendor with no row at all is treated as unconfigured, which makes the
// engine fall back to platform methods.
func (s *PGSource) VendorShipping(ctx context.Context, vendorID uuid.UUID) (*VendorInfo, error) {
	info := &VendorInfo{VendorID: vendorID}
	err := s.pool.QueryRow(ctx, `
		SELECT free_shipping_enabled, free_shipping_min, local_delivery_enabled,
		       local_delivery_fee, local_delivery_radius_km, origin_city, processing_days
		FROM vendor_shipping
		WHERE vendor_id = $1`, vendorID).
		Scan(&info.FreeShippingEnabled, &info.FreeShippingMin, &info.LocalDeliveryEnabled,
			&info.LocalDeliveryFee, &info.LocalDeliveryRadiusKM, &info.OriginCity, &info.ProcessingDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return info, nil
		}
		return nil, fmt.Errorf("select vendor_shipping: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, rate, free_above, etd_min_days, etd_max_days, regions, max_weight_gram
		FROM vendor_shipping_rules
		WHERE vendor_id = $1 AND active
		ORDER BY rate`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("select vendor_shipping_rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r RateRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Rate, &r.FreeAbove,
			&r.EtdMinDays, &r.EtdMaxDays, &r.Regions, &r.MaxWeightGram); err != nil {
			return nil, fmt.Errorf("scan vendor_shipping_rules: %w", err)
		}
		info.Rules = append(info.Rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendor_shipping_rules: %w", err)
	}
	return info, nil
}

// ActiveMethods loads the platform shipping methods available for fallback.
func (s *PGSource) ActiveMethods(ctx context.Context) ([]Method, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, countries, base_rate, per_kg_rate, free_above,
		       etd_min_days, etd_max_days, residential_surcharge
		FROM shipping_methods
		WHERE active
		ORDER BY base_rate`)
	if err != nil {
		return nil, fmt.Errorf("select shipping_methods: %w", err)
	}
	defer rows.Close()

	var methods []Method
	for rows.Next() {
		var m Method
		var freeAbove, surcharge *cart.Money
		if err := rows.Scan(&m.ID, &m.Name, &m.Countries, &m.BaseRate, &m.PerKgRate,
			&freeAbove, &m.EtdMinDays, &m.EtdMaxDays, &surcharge); err != nil {
			return nil, fmt.Errorf("scan shipping_methods: %w", err)
		}
		if freeAbove != nil {
			m.FreeAbove = *freeAbove
		}
		if surcharge != nil {
			m.ResidentialSurcharge = *surcharge
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipping_methods: %w", err)
	}
	return methods, nil
}
