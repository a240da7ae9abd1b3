package billing

import (
	"math"

	"github.com/shopspring/decimal"
)

// FallbackUnitPrice replaces computed unit prices that are not positive
// finite numbers. Checkout substitutes it instead of rejecting the cart.
const FallbackUnitPrice = 0.99

// EffectiveUnitPrice returns the sale price when one is set and lower than
// the list price, else the list price. A NaN sale price is treated as lower,
// so it reaches UnitAmount and is replaced by the fallback.
func EffectiveUnitPrice(item CartItem) float64 {
	if item.SalePrice != nil {
		sale := *item.SalePrice
		if math.IsNaN(sale) || sale < item.Price {
			return sale
		}
	}
	return item.Price
}

// UnitAmount converts a major-unit price to minor units (cents), substituting
// FallbackUnitPrice when the price is NaN, infinite or rounds to zero or less.
func UnitAmount(price float64) int64 {
	cents, _ := UnitAmountOrFallback(price)
	return cents
}

var maxUnitAmount = decimal.NewFromInt(math.MaxInt32)

// UnitAmountOrFallback is UnitAmount that also reports whether the fallback
// was substituted. The conversion is decimal, so 1.005 becomes 101 cents.
func UnitAmountOrFallback(price float64) (cents int64, substituted bool) {
	fallback := decimal.NewFromFloat(FallbackUnitPrice).Shift(2).IntPart()
	// NewFromFloat panics on NaN and infinities
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fallback, true
	}

	c := decimal.NewFromFloat(price).Shift(2).Round(0)
	if !c.IsPositive() || c.GreaterThan(maxUnitAmount) {
		return fallback, true
	}
	return c.IntPart(), false
}
