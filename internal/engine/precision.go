package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"levex/internal/gateway/venue"
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// TruncateToStep quantizes a quantity downward to the instrument step size.
// Quantities are never rounded up: over-requesting by a fraction of a step
// must not grow exposure.
func TruncateToStep(qty, step float64) float64 {
	if qty <= 0 {
		return 0
	}
	if step <= 0 {
		return qty
	}
	q := decFromFloat(qty)
	s := decFromFloat(step)
	return decToFloat(q.Div(s).Floor().Mul(s))
}

// RoundToTick quantizes a price to the instrument tick size, half away from
// zero.
func RoundToTick(price, tick float64) float64 {
	if price <= 0 {
		return 0
	}
	if tick <= 0 {
		return price
	}
	p := decFromFloat(price)
	t := decFromFloat(tick)
	return decToFloat(p.Div(t).Round(0).Mul(t))
}

// FormatQuantity applies the instrument's lot filter: step truncation plus
// the minimum-quantity floor (zero when the result would sit below it).
func FormatQuantity(qty float64, meta venue.InstrumentMeta) float64 {
	out := TruncateToStep(qty, meta.StepSize)
	if meta.MinQty > 0 && out < meta.MinQty {
		return 0
	}
	return out
}

// MeetsMinNotional reports whether qty at price clears the instrument's
// notional floor (true when the venue publishes none).
func MeetsMinNotional(qty, price float64, meta venue.InstrumentMeta) bool {
	if meta.MinNotional <= 0 {
		return true
	}
	return decFromFloat(qty).Mul(decFromFloat(price)).Cmp(decFromFloat(meta.MinNotional)) >= 0
}
