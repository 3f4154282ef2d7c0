package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/IndexGo/pkg/dataflows"
	"github.com/dyike/IndexGo/pkg/ticker"
)

func f(v float64) *float64 { return &v }

func newResolver(t *testing.T, p dataflows.Provider, opts ...Option) *Resolver {
	t.Helper()
	r, err := New(p, ticker.NewNormalizer(map[string]string{"Berkshire Hathaway": "BRK-B"}), opts...)
	require.NoError(t, err)
	return r
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestPricesFallbackChain(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "AAPL", LastPrice: f(190), PreviousClose: f(188)}).
		SetQuote(&dataflows.FastQuote{Symbol: "MSFT", PreviousClose: f(410)}).
		SetQuote(&dataflows.FastQuote{Symbol: "NVDA"}).
		SetHistory("NVDA", []dataflows.Bar{
			{Symbol: "NVDA", Close: decimal.NewFromFloat(120)},
			{Symbol: "NVDA", Close: decimal.NewFromFloat(125.5)},
		}).
		SetHistory("AMD", []dataflows.Bar{{Symbol: "AMD", Close: decimal.NewFromFloat(160)}})

	r := newResolver(t, sp)
	prices := r.Prices(context.Background(), []string{"AAPL", "MSFT", "NVDA", "AMD", "GONE"})

	assert.Equal(t, 190.0, prices["AAPL"])
	assert.Equal(t, 410.0, prices["MSFT"])
	assert.Equal(t, 125.5, prices["NVDA"])
	assert.Equal(t, 160.0, prices["AMD"])

	_, ok := prices["GONE"]
	assert.False(t, ok, "unresolvable identifiers must be omitted")
}

func TestPricesKeyedByDisplayForm(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "BRK-B", LastPrice: f(450)})

	r := newResolver(t, sp)
	prices := r.Prices(context.Background(), []string{"BRK.B", "Berkshire Hathaway", "brk-b"})

	assert.Equal(t, map[string]float64{
		"BRK.B":              450,
		"Berkshire Hathaway": 450,
		"brk-b":              450,
	}, prices)
}

func TestPricesDeduplicateLookups(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "BRK-B", LastPrice: f(450)})

	r := newResolver(t, sp)
	_ = r.Prices(context.Background(), []string{"BRK.B", "Berkshire Hathaway", "BRK.B"})

	assert.Equal(t, int64(1), sp.Calls(), "one canonical symbol should be fetched once")
}

func TestEmptyInputMakesNoCalls(t *testing.T) {
	sp := dataflows.NewStaticProvider()
	r := newResolver(t, sp)

	assert.Empty(t, r.Prices(context.Background(), nil))
	assert.Empty(t, r.Valuations(context.Background(), []string{}))
	assert.Empty(t, r.Records(context.Background(), nil))
	assert.Zero(t, sp.Calls())
}

func TestPricesFailureIsolated(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "AAPL", LastPrice: f(190)}).
		Fail("BAD", errors.New("connection reset"))

	r := newResolver(t, sp)
	prices := r.Prices(context.Background(), []string{"AAPL", "BAD"})

	assert.Equal(t, map[string]float64{"AAPL": 190}, prices)
}

func TestPricesDropNonPositive(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "ZERO", LastPrice: f(0), PreviousClose: f(-1)}).
		SetHistory("ZERO", []dataflows.Bar{{Symbol: "ZERO", Close: decimal.Zero}})

	r := newResolver(t, sp)
	assert.Empty(t, r.Prices(context.Background(), []string{"ZERO"}))
}

func TestValuationFastQuote(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "AAPL", MarketCap: f(3e12), Currency: "USD"}).
		SetQuote(&dataflows.FastQuote{Symbol: "VOO", TotalAssets: f(1.3e12)})

	r := newResolver(t, sp)
	vals := r.Valuations(context.Background(), []string{"AAPL", "VOO"})

	assert.Equal(t, 3e12, vals["AAPL"])
	assert.Equal(t, 1.3e12, vals["VOO"])
}

func TestValuationCurrencyConversion(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "7203.T", MarketCap: f(1e9), Currency: "JPY"}).
		SetQuote(&dataflows.FastQuote{Symbol: "XYZ", MarketCap: f(5e9), Currency: "ZZZ"})

	r := newResolver(t, sp)
	vals := r.Valuations(context.Background(), []string{"7203.T", "XYZ"})

	assert.InDelta(t, 6_666_667, vals["7203.T"], 1)
	assert.Equal(t, 5e9, vals["XYZ"], "unknown currencies pass through unconverted")
}

func TestValuationCustomRates(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "7203.T", MarketCap: f(1e9), Currency: "JPY"}).
		SetQuote(&dataflows.FastQuote{Symbol: "XYZ", MarketCap: f(5e9), Currency: "ZZZ"})

	rates := DefaultRates().With(map[string]float64{"jpy": 0.01, " zzz ": 2, "EUR": -1})
	assert.Equal(t, 1.08, rates["EUR"], "non-positive rates are ignored")
	assert.Equal(t, 1/150.0, DefaultRates()["JPY"], "the default table is not modified")

	r := newResolver(t, sp, WithRates(rates))
	vals := r.Valuations(context.Background(), []string{"7203.T", "XYZ"})
	assert.InDelta(t, 1e7, vals["7203.T"], 1e-6)
	assert.InDelta(t, 1e10, vals["XYZ"], 1e-3)
}

func TestValuationStabilizedFromDetail(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetDetail(&dataflows.Detail{
			Symbol:            "STALE",
			QuoteType:         "EQUITY",
			CurrentPrice:      f(100),
			SharesOutstanding: f(1e9),
			MarketCap:         f(70e9),
		}).
		SetDetail(&dataflows.Detail{
			Symbol:            "AGREE",
			QuoteType:         "EQUITY",
			CurrentPrice:      f(100),
			SharesOutstanding: f(1e9),
			MarketCap:         f(98e9),
		}).
		SetDetail(&dataflows.Detail{
			Symbol:        "NOSHARES",
			QuoteType:     "EQUITY",
			PreviousClose: f(10),
			MarketCap:     f(42e9),
		}).
		SetDetail(&dataflows.Detail{
			Symbol:            "PREV",
			QuoteType:         "EQUITY",
			PreviousClose:     f(50),
			SharesOutstanding: f(2e9),
		})

	r := newResolver(t, sp)
	vals := r.Valuations(context.Background(), []string{"STALE", "AGREE", "NOSHARES", "PREV"})

	assert.Equal(t, 100e9, vals["STALE"])
	assert.Equal(t, 100e9, vals["AGREE"])
	assert.Equal(t, 42e9, vals["NOSHARES"])
	assert.Equal(t, 100e9, vals["PREV"])
}

func TestValuationFundDetailPrefersTotalAssets(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetDetail(&dataflows.Detail{
			Symbol:      "SMH",
			QuoteType:   "ETF",
			TotalAssets: f(25e9),
			MarketCap:   f(1e9),
		}).
		SetDetail(&dataflows.Detail{
			Symbol:    "ROKT",
			QuoteType: "ETF",
			MarketCap: f(3e7),
		})

	r := newResolver(t, sp)
	vals := r.Valuations(context.Background(), []string{"SMH", "ROKT"})

	assert.Equal(t, 25e9, vals["SMH"])
	assert.Equal(t, 3e7, vals["ROKT"])
}

func TestValuationAlternateListing(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "ABB", LastPrice: f(50)}).
		SetQuote(&dataflows.FastQuote{Symbol: "ABBN.SW", MarketCap: f(100e9), Currency: "CHF"})

	r := newResolver(t, sp)
	vals := r.Valuations(context.Background(), []string{"ABB"})

	assert.InDelta(t, 113e9, vals["ABB"], 1)
}

func TestValuationCorrection(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "TSM", MarketCap: f(2e12)}).
		SetQuote(&dataflows.FastQuote{Symbol: "TSMSMALL", MarketCap: f(1e12)})

	o := DefaultOverrides()
	o.Merge(&Overrides{Corrections: []Correction{{Symbol: "TSMSMALL", Above: 1.5e12, Factor: 0.5}}})

	r := newResolver(t, sp, WithOverrides(o))
	vals := r.Valuations(context.Background(), []string{"TSM", "TSMSMALL"})

	assert.Equal(t, 1e12, vals["TSM"])
	assert.Equal(t, 1e12, vals["TSMSMALL"], "below threshold must be left alone")
}

func TestValuationsIdempotent(t *testing.T) {
	sp := dataflows.NewStaticProvider()
	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		sym := fmt.Sprintf("S%02d", i)
		ids = append(ids, sym)
		sp.SetQuote(&dataflows.FastQuote{Symbol: sym, MarketCap: f(float64(i+1) * 1e9), Currency: "EUR"})
	}

	r := newResolver(t, sp, WithWorkers(4))
	first := r.Valuations(context.Background(), ids)
	second := r.Valuations(context.Background(), ids)

	assert.Len(t, first, 50)
	assert.Equal(t, first, second)
}

func TestRecords(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "ASML", LastPrice: f(700), MarketCap: f(280e9), Currency: "EUR"}).
		SetQuote(&dataflows.FastQuote{Symbol: "PRICEONLY", LastPrice: f(5)})

	r := newResolver(t, sp, WithClock(func() time.Time { return at }))
	recs := r.Records(context.Background(), []string{"ASML", "PRICEONLY", "NONE"})

	require.Contains(t, recs, "ASML")
	asml := recs["ASML"]
	assert.Equal(t, 700.0, *asml.Price)
	assert.InDelta(t, 302.4e9, *asml.Value, 1)
	assert.Equal(t, "USD", asml.Currency)
	assert.Equal(t, "EUR", asml.ReportedCurrency)
	assert.Equal(t, at, asml.ResolvedAt)

	assert.Nil(t, recs["PRICEONLY"].Value)
	assert.NotContains(t, recs, "NONE")
}

// concurrencyProbe records the maximum number of simultaneous lookups.
type concurrencyProbe struct {
	dataflows.Provider
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (p *concurrencyProbe) FastQuote(ctx context.Context, symbol string) (*dataflows.FastQuote, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return &dataflows.FastQuote{Symbol: symbol, LastPrice: f(1)}, nil
}

func TestWorkerPoolIsBounded(t *testing.T) {
	probe := &concurrencyProbe{Provider: dataflows.NewStaticProvider()}
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("T%d", i)
	}

	r := newResolver(t, probe, WithWorkers(5))
	prices := r.Prices(context.Background(), ids)

	assert.Len(t, prices, 40)
	assert.LessOrEqual(t, probe.peak.Load(), int64(5))
}

func TestCancelledContextYieldsEmpty(t *testing.T) {
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "AAPL", LastPrice: f(190)})
	r := newResolver(t, sp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, r.Prices(ctx, []string{"AAPL"}))
}

func TestCustomPriceStrategies(t *testing.T) {
	sp := dataflows.NewStaticProvider()
	r := newResolver(t, sp, WithPriceStrategies(PriceStrategy{
		Name:  "fixed",
		Fetch: func(context.Context, *Lookup) (float64, bool) { return 42, true },
	}))

	assert.Equal(t, map[string]float64{"X": 42}, r.Prices(context.Background(), []string{"X"}))
}
