// Package fx normalizes monetary amounts between currencies. All rates are
// expressed relative to a single pivot currency, so any pair converts in two
// hops: source to pivot, pivot to target.
package fx

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rates is a rate table keyed by ISO 4217 code. Values[c] is the number of
// units of currency c equal to one unit of the pivot currency.
type Rates struct {
	Pivot  string
	Values map[string]decimal.Decimal
	AsOf   time.Time
}

// Rate returns the rate for the given code. The pivot itself always resolves
// to 1.
func (r Rates) Rate(code string) (decimal.Decimal, bool) {
	if code == r.Pivot {
		return decimal.NewFromInt(1), true
	}
	v, ok := r.Values[code]
	return v, ok
}

// RateSource supplies the latest rate table. Implementations are expected to
// be network-bound and may fail; the Converter treats failures as non-fatal.
type RateSource interface {
	LatestRates() (Rates, error)
}

// staticRates is the hardcoded fallback table used when no live source is
// available. Unlike live sources (USD pivot), it is expressed against an EUR
// pivot with approximate rates; good enough for degraded display, not for
// anything authoritative.
func staticRates() Rates {
	return Rates{
		Pivot: "EUR",
		Values: map[string]decimal.Decimal{
			"USD": decimal.NewFromFloat(1.08),
			"GBP": decimal.NewFromFloat(0.85),
			"CHF": decimal.NewFromFloat(0.94),
			"JPY": decimal.NewFromFloat(164.0),
			"CNY": decimal.NewFromFloat(7.80),
			"CAD": decimal.NewFromFloat(1.47),
			"AUD": decimal.NewFromFloat(1.64),
			"SEK": decimal.NewFromFloat(11.3),
			"NOK": decimal.NewFromFloat(11.6),
			"DKK": decimal.NewFromFloat(7.46),
			"PLN": decimal.NewFromFloat(4.30),
			"CZK": decimal.NewFromFloat(25.2),
			"HKD": decimal.NewFromFloat(8.45),
			"SGD": decimal.NewFromFloat(1.45),
			"INR": decimal.NewFromFloat(90.0),
			"KRW": decimal.NewFromFloat(1480.0),
			"BRL": decimal.NewFromFloat(5.95),
			"MXN": decimal.NewFromFloat(19.8),
		},
	}
}
