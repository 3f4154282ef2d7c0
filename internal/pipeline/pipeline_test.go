package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/IndexGo/internal/corpus"
	"github.com/dyike/IndexGo/pkg/consolidate"
	"github.com/dyike/IndexGo/pkg/dataflows"
	"github.com/dyike/IndexGo/pkg/planner"
	"github.com/dyike/IndexGo/pkg/resolver"
	"github.com/dyike/IndexGo/pkg/ticker"
)

func f(v float64) *float64 { return &v }

func testCorpus() *corpus.Corpus {
	c := corpus.New()
	c.AddFund("VOO", corpus.FundMeta{Name: "Vanguard S&P 500", FallbackAUM: 1300, Theme: "Core"},
		consolidate.NewHoldings(
			consolidate.Weighted{Ticker: "AAPL", Weight: 7},
			consolidate.Weighted{Ticker: "MSFT", Weight: 6},
			consolidate.Weighted{Ticker: "BRK.B", Weight: 2},
		))
	c.AddFund("SMH", corpus.FundMeta{Name: "VanEck Semiconductor", FallbackAUM: 25, Theme: "Semiconductor"},
		consolidate.NewHoldings(
			consolidate.Weighted{Ticker: "NVDA", Weight: 20},
			consolidate.Weighted{Ticker: "TSM", Weight: 12},
		))
	c.AddFund("ROKT", corpus.FundMeta{Name: "Final Frontiers", Theme: "Mobility"},
		consolidate.NewHoldings(consolidate.Weighted{Ticker: "RKLB", Weight: 9}))
	c.StockPool = []corpus.Stock{{Ticker: "NVDA", Sources: "Semiconductor, AI"}}
	return c
}

func testMarket(t *testing.T) (*resolver.Resolver, *dataflows.StaticProvider) {
	t.Helper()
	sp := dataflows.NewStaticProvider().
		SetQuote(&dataflows.FastQuote{Symbol: "VOO", TotalAssets: f(1000e9), LastPrice: f(500)}).
		SetQuote(&dataflows.FastQuote{Symbol: "AAPL", LastPrice: f(200), MarketCap: f(3e12)}).
		SetQuote(&dataflows.FastQuote{Symbol: "MSFT", LastPrice: f(400), MarketCap: f(3e12)}).
		SetQuote(&dataflows.FastQuote{Symbol: "BRK-B", LastPrice: f(450), MarketCap: f(1e12)}).
		SetQuote(&dataflows.FastQuote{Symbol: "NVDA", LastPrice: f(125), MarketCap: f(3e12)}).
		SetQuote(&dataflows.FastQuote{Symbol: "TSM", LastPrice: f(180)})
	r, err := resolver.New(sp, ticker.Default)
	require.NoError(t, err)
	return r, sp
}

func TestFundAssetsFallback(t *testing.T) {
	r, _ := testMarket(t)
	e, err := New(testCorpus(), r)
	require.NoError(t, err)

	fa := e.FundAssets(context.Background())
	assert.Equal(t, []string{"VOO", "SMH", "ROKT"}, fa.Funds)
	assert.Equal(t, 1000.0, fa.Assets["VOO"])
	assert.Equal(t, 25.0, fa.Assets["SMH"])
	assert.Zero(t, fa.Assets["ROKT"])
	assert.Equal(t, []string{"SMH", "ROKT"}, fa.Fallbacks)
	assert.Equal(t, 1025.0, fa.Total())

	split := fa.Split("VOO", "QQQ")
	assert.Equal(t, 1000.0, split.Core)
	assert.Equal(t, 25.0, split.Theme)
	assert.InDelta(t, 97.56, split.CorePct, 0.01)
	assert.Equal(t, []string{"SMH", "ROKT"}, split.ThemeFunds)
}

func TestComposition(t *testing.T) {
	r, _ := testMarket(t)
	e, err := New(testCorpus(), r)
	require.NoError(t, err)

	c := e.Composition(context.Background())
	require.Len(t, c.Holdings, 5)
	assert.Equal(t, "AAPL", c.Holdings[0].Ticker)
	assert.InDelta(t, 70.0, c.Holdings[0].Allocated, 1e-9)
	assert.InDelta(t, 100.0, sumHoldings(c.Holdings), 1e-6)

	var nvda Holding
	for _, h := range c.Holdings {
		if h.Ticker == "NVDA" {
			nvda = h
		}
	}
	assert.Equal(t, []string{"SMH"}, nvda.Sources)
	assert.Equal(t, "Semiconductor", nvda.Sector)
	assert.Equal(t, 3e12, nvda.MarketCap)

	// AAPL + MSFT + BRK.B + NVDA; TSM has no cap.
	assert.Equal(t, 10e12, c.TotalMarketCap)
	assert.InDelta(t, 10.0/65*100, c.Coverage, 1e-9)
	assert.InDelta(t, 158.0, c.TotalAllocated, 1e-9)
}

func sumHoldings(hs []Holding) float64 {
	var total float64
	for _, h := range hs {
		total += h.Weight
	}
	return total
}

func TestPlan(t *testing.T) {
	r, _ := testMarket(t)
	e, err := New(testCorpus(), r)
	require.NoError(t, err)

	run := e.Plan(context.Background(), 10000, false)
	require.NotEmpty(t, run.Plan.Buy)
	assert.Nil(t, run.Debug)
	assert.Equal(t, planner.StatusOK, run.Plan.Status())
	assert.Empty(t, run.Plan.Missing)
	assert.Contains(t, run.Prices, "BRK.B", "prices are keyed by display form")

	for _, l := range run.Plan.Buy {
		assert.NotEmpty(t, l.Sources, l.Ticker)
	}
	assert.GreaterOrEqual(t, run.Plan.Remaining, 0.0)
}

func TestPlanWithoutPricesHasDiagnostics(t *testing.T) {
	e, err := New(testCorpus(), mustResolver(t, dataflows.NewStaticProvider()))
	require.NoError(t, err)

	run := e.Plan(context.Background(), 10000, true)
	assert.Empty(t, run.Plan.Buy)
	assert.Equal(t, planner.StatusNoPrices, run.Plan.Status())
	require.NotNil(t, run.Debug)
	assert.Equal(t, 5, run.Debug.Targets)
	assert.Zero(t, run.Debug.PricesFetched)
	assert.Len(t, run.Debug.TopWeights, 5)
	assert.Equal(t, "AAPL", run.Debug.TopWeights[0].Ticker)
}

func TestEmptyCorpus(t *testing.T) {
	r, sp := testMarket(t)
	e, err := New(corpus.New(), r)
	require.NoError(t, err)

	c := e.Composition(context.Background())
	assert.Empty(t, c.Holdings)
	assert.Zero(t, sp.Calls())

	run := e.Plan(context.Background(), 1000, true)
	assert.Equal(t, planner.StatusNoWeights, run.Plan.Status())
}

func TestFundDetails(t *testing.T) {
	r, _ := testMarket(t)
	e, err := New(testCorpus(), r, WithSettings(Settings{IndexFunds: []string{"VOO"}, IndexLimit: 2, ThemeLimit: 1}))
	require.NoError(t, err)

	themes := e.FundDetails(context.Background())
	require.Len(t, themes, 3)
	assert.Equal(t, "Core", themes[0].Theme)
	require.Len(t, themes[0].Funds, 1)
	assert.Len(t, themes[0].Funds[0].Top, 2)
	assert.False(t, themes[0].Funds[0].Fallback)

	smh := themes[1].Funds[0]
	assert.Equal(t, "SMH", smh.Fund)
	assert.True(t, smh.Fallback)
	assert.Equal(t, []consolidate.Weighted{{Ticker: "NVDA", Weight: 20}}, smh.Top)
}

func TestNewRequiresInputs(t *testing.T) {
	r, _ := testMarket(t)
	_, err := New(nil, r)
	assert.Error(t, err)
	_, err = New(corpus.New(), nil)
	assert.Error(t, err)
}

func mustResolver(t *testing.T, p dataflows.Provider) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(p, nil)
	require.NoError(t, err)
	return r
}
