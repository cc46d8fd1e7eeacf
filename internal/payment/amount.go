package payment

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Caqil/oncart-backend/internal/cart"
)

// Currencies without a minor unit. Amounts for these are sent to providers as
// whole units rather than hundredths.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "MGA": {}, "PYG": {}, "RWF": {},
	"UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// ZeroDecimal reports whether the currency has no minor unit.
func ZeroDecimal(currency string) bool {
	_, ok := zeroDecimal[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// FormatAmount renders a minor-unit amount as the decimal string providers
// with major-unit APIs expect, such as "12.34" or "500" for JPY.
func FormatAmount(amount cart.Money, currency string) string {
	if ZeroDecimal(currency) {
		return strconv.FormatInt(amount, 10)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// ParseAmount converts a provider decimal string back into minor units,
// rounding half away from zero on sub-minor precision.
func ParseAmount(value, currency string) (cart.Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if ZeroDecimal(currency) {
		return cart.Money(math.Round(f)), nil
	}
	return cart.Money(math.Round(f * 100)), nil
}
