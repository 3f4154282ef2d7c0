package dataflows

import (
	"math"
	"strings"
	"time"

	"github.com/dyike/IndexGo/config"
	"github.com/shopspring/decimal"
)

// Config is an alias for the main application config
type Config = config.Config

// FastQuote is the lightweight quote a provider can answer cheaply.
// Every numeric field is optional.
type FastQuote struct {
	Symbol        string   `json:"symbol"`
	LastPrice     *float64 `json:"last_price,omitempty"`
	PreviousClose *float64 `json:"previous_close,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	TotalAssets   *float64 `json:"total_assets,omitempty"`
	Currency      string   `json:"currency,omitempty"`
}

// Detail is the full instrument record.
type Detail struct {
	Symbol            string   `json:"symbol"`
	QuoteType         string   `json:"quote_type,omitempty"`
	CurrentPrice      *float64 `json:"current_price,omitempty"`
	PreviousClose     *float64 `json:"previous_close,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	TotalAssets       *float64 `json:"total_assets,omitempty"`
	Currency          string   `json:"currency,omitempty"`
}

// IsFund reports whether the instrument is classified as an ETF or mutual fund.
func (d *Detail) IsFund() bool {
	if d == nil {
		return false
	}
	switch strings.ToUpper(d.QuoteType) {
	case "ETF", "MUTUALFUND", "FUND":
		return true
	}
	return false
}

// Bar is one daily OHLC bar.
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Positive returns the value behind p when it is a finite number greater than zero.
func Positive(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// Ptr returns a pointer to v, or nil when v is not positive. Providers use it
// to turn zero-valued payload fields into absent ones.
func Ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil
	}
	return &v
}

// Currency returns the upper-cased currency code, defaulting to USD.
func Currency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}
