package resolver

import (
	"context"
	"math"

	"github.com/dyike/IndexGo/pkg/dataflows"
)

// discrepancyThreshold is the relative gap between a reported valuation and
// price × shares above which the reported figure is considered stale.
const discrepancyThreshold = 0.10

// PriceStrategy is one tier of the price fallback chain.
type PriceStrategy struct {
	Name  string
	Fetch func(ctx context.Context, l *Lookup) (float64, bool)
}

// Amount is a valuation in its reported currency.
type Amount struct {
	Value    float64
	Currency string
}

// ValuationStrategy is one tier of the valuation fallback chain.
type ValuationStrategy struct {
	Name  string
	Fetch func(ctx context.Context, l *Lookup) (Amount, bool)
}

// DefaultPriceStrategies tries last trade, previous close and then the most
// recent close of the short history window.
func DefaultPriceStrategies() []PriceStrategy {
	return []PriceStrategy{
		{Name: "last_price", Fetch: lastPrice},
		{Name: "previous_close", Fetch: previousClose},
		{Name: "recent_close", Fetch: recentClose},
	}
}

// DefaultValuationStrategies tries the fast quote and then the detail record.
// Alternate listings are appended by the resolver from its override table.
func DefaultValuationStrategies() []ValuationStrategy {
	return []ValuationStrategy{
		{Name: "fast_quote", Fetch: fastValuation},
		{Name: "detail", Fetch: detailValuation},
	}
}

func lastPrice(ctx context.Context, l *Lookup) (float64, bool) {
	q, err := l.Quote(ctx)
	if err != nil || q == nil {
		return 0, false
	}
	return dataflows.Positive(q.LastPrice)
}

func previousClose(ctx context.Context, l *Lookup) (float64, bool) {
	q, err := l.Quote(ctx)
	if err != nil || q == nil {
		return 0, false
	}
	return dataflows.Positive(q.PreviousClose)
}

func recentClose(ctx context.Context, l *Lookup) (float64, bool) {
	bars, err := l.History(ctx)
	if err != nil {
		return 0, false
	}
	for i := len(bars) - 1; i >= 0; i-- {
		v := bars[i].Close.InexactFloat64()
		if v > 0 && !math.IsNaN(v) {
			return v, true
		}
	}
	return 0, false
}

func fastValuation(ctx context.Context, l *Lookup) (Amount, bool) {
	q, err := l.Quote(ctx)
	if err != nil || q == nil {
		return Amount{}, false
	}
	v, ok := dataflows.Positive(q.MarketCap)
	if !ok {
		v, ok = dataflows.Positive(q.TotalAssets)
	}
	if !ok {
		return Amount{}, false
	}
	return Amount{Value: v, Currency: dataflows.Currency(q.Currency)}, true
}

func detailValuation(ctx context.Context, l *Lookup) (Amount, bool) {
	d, err := l.Detail(ctx)
	if err != nil || d == nil {
		return Amount{}, false
	}

	var (
		v  float64
		ok bool
	)
	if d.IsFund() {
		v, ok = dataflows.Positive(d.TotalAssets)
		if !ok {
			v, ok = dataflows.Positive(d.MarketCap)
		}
	} else {
		price := d.CurrentPrice
		if _, has := dataflows.Positive(price); !has {
			price = d.PreviousClose
		}
		s := Stabilize(price, d.SharesOutstanding, d.MarketCap)
		v, ok = s.Value, s.OK
	}
	if !ok {
		return Amount{}, false
	}
	return Amount{Value: v, Currency: dataflows.Currency(d.Currency)}, true
}

// Stabilized is the outcome of reconciling a reported valuation with price × shares.
type Stabilized struct {
	Value       float64
	OK          bool
	Computed    bool
	Discrepancy float64
}

// Stale reports whether the reported figure disagreed with the computed one
// by more than the tolerated threshold.
func (s Stabilized) Stale() bool {
	return s.Computed && s.Discrepancy > discrepancyThreshold
}

// Stabilize derives a valuation from price and shares outstanding. When both
// are known the computed figure wins whether or not it agrees with the
// reported one, so the result always equals price × shares. Without price or
// shares the reported valuation is used as is.
func Stabilize(price, shares, reported *float64) Stabilized {
	raw, hasRaw := dataflows.Positive(reported)
	p, hasPrice := dataflows.Positive(price)
	n, hasShares := dataflows.Positive(shares)

	if hasPrice && hasShares {
		computed := p * n
		s := Stabilized{Value: computed, OK: true, Computed: true}
		if hasRaw {
			s.Discrepancy = math.Abs(raw-computed) / computed
		}
		return s
	}
	if hasRaw {
		return Stabilized{Value: raw, OK: true}
	}
	return Stabilized{}
}
