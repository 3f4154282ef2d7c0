package resolver

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// RateSource converts one unit of a currency to US dollars.
type RateSource interface {
	Rate(currency string) (float64, bool)
}

// StaticRates is a fixed currency→USD table. The rates are approximations
// with no refresh; swap in a live RateSource for anything precise.
type StaticRates map[string]float64

// DefaultRates returns the built-in approximation table.
func DefaultRates() StaticRates {
	return StaticRates{
		"JPY": 1 / 150.0,
		"TWD": 1 / 32.0,
		"KRW": 1 / 1350.0,
		"EUR": 1.08,
		"GBP": 1.26,
		"CAD": 0.74,
		"HKD": 0.128,
		"AUD": 0.65,
		"CHF": 1.13,
		"PLN": 0.25,
		"MXN": 0.058,
		"SAR": 0.27,
	}
}

// With returns a copy of r with extra added. Codes are upper-cased and
// non-positive rates are ignored.
func (r StaticRates) With(extra map[string]float64) StaticRates {
	out := make(StaticRates, len(r)+len(extra))
	for code, rate := range r {
		out[code] = rate
	}
	for code, rate := range extra {
		if rate > 0 {
			out[strings.ToUpper(strings.TrimSpace(code))] = rate
		}
	}
	return out
}

func (r StaticRates) Rate(currency string) (float64, bool) {
	rate, ok := r[strings.ToUpper(currency)]
	return rate, ok
}

// conversion describes how an amount was brought to USD.
type conversion struct {
	Rate    float64
	Known   bool
	ISOCode bool
}

// toUSD converts amount into dollars. Unknown currencies pass through at 1.0.
func toUSD(amount Amount, rates RateSource) (float64, conversion) {
	code := strings.ToUpper(amount.Currency)
	if code == "" || code == money.USD {
		return amount.Value, conversion{Rate: 1, Known: true, ISOCode: true}
	}

	c := conversion{Rate: 1, ISOCode: money.GetCurrency(code) != nil}
	if rate, ok := rates.Rate(code); ok && rate > 0 {
		c.Rate = rate
		c.Known = true
	}
	return amount.Value * c.Rate, c
}
