package shipping

import (
	"math"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Package is the estimated parcel for a set of cart items.
type Package struct {
	WeightGram int             `json:"weightGram"`
	Dimensions cart.Dimensions `json:"dimensions"`
}

// Minimum box dimensions in centimetres.
const (
	minLengthCM = 20.0
	minWidthCM  = 15.0
	minHeightCM = 10.0
)

// BuildPackage derives the estimated shipping weight and box from cart items.
// Missing product measurements fall back to the platform defaults. The box is
// back-derived from total volume via cube root with per-axis bias, which is an
// approximation rather than a bin-packing solution.
func BuildPackage(items []cart.Item) Package {
	var weight int
	var volume float64
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		weight += it.EffectiveWeightGram() * it.Qty
		volume += it.EffectiveVolume() * float64(it.Qty)
	}
	side := math.Cbrt(volume)
	return Package{
		WeightGram: weight,
		Dimensions: cart.Dimensions{
			Length: math.Max(minLengthCM, side*1.3),
			Width:  math.Max(minWidthCM, side*1.1),
			Height: math.Max(minHeightCM, side*0.8),
		},
	}
}

// DimensionalWeightGram returns the volumetric weight (L×W×H/5000 kg) in grams.
func (p Package) DimensionalWeightGram() int {
	return int(math.Round(p.Dimensions.Volume() / 5))
}
