package tax

import (
	"strings"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Country-level tax rates in basis points. Destinations outside the table are
// untaxed; merchants operating elsewhere register their rates via overrides.
var countryBps = map[string]int64{
	"US": 800,
	"CA": 1300,
	"GB": 2000,
	"DE": 1900,
}

// US state overrides replace the country default when present.
var usStateBps = map[string]int64{
	"CA": 725,
	"NY": 800,
	"TX": 625,
	"FL": 600,
	"WA": 650,
	"OR": 0,
	"MT": 0,
	"NH": 0,
	"DE": 0,
}

// Engine computes destination-based tax. Overrides, when set, take precedence
// over the built-in tables and allow per-deployment rate configuration.
type Engine struct {
	CountryOverrides map[string]int64
	StateOverrides   map[string]map[string]int64
}

// RateBps resolves the applicable tax rate for a destination.
func (e Engine) RateBps(dest cart.Address) int64 {
	country := strings.ToUpper(strings.TrimSpace(dest.Country))
	state := strings.ToUpper(strings.TrimSpace(dest.State))

	if states, ok := e.StateOverrides[country]; ok {
		if bps, ok := states[state]; ok {
			return bps
		}
	}
	if bps, ok := e.CountryOverrides[country]; ok {
		return bps
	}
	if country == "US" {
		if bps, ok := usStateBps[state]; ok {
			return bps
		}
	}
	if bps, ok := countryBps[country]; ok {
		return bps
	}
	return 0
}

// Assessment breaks the tax result down for order snapshots.
type Assessment struct {
	RateBps int64      `json:"rateBps"`
	Taxable cart.Money `json:"taxable"`
	Tax     cart.Money `json:"tax"`
}

// Assess computes tax on the physical portion of the items. Digital and
// service lines are out of scope here; their tax treatment differs per
// jurisdiction and is settled at invoicing.
func (e Engine) Assess(items []cart.Item, dest cart.Address) Assessment {
	var taxable cart.Money
	for _, it := range items {
		if it.Kind == cart.KindPhysical {
			taxable += it.TotalPrice
		}
	}

	bps := e.RateBps(dest)
	return Assessment{
		RateBps: bps,
		Taxable: taxable,
		Tax:     roundHalfUpBps(taxable, bps),
	}
}

// roundHalfUpBps applies a basis-point rate with half-up rounding on minor units.
func roundHalfUpBps(amount cart.Money, bps int64) cart.Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}
