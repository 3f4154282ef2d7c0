package dataflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/IndexGo/config"
)

func f(v float64) *float64 { return &v }

func TestChainReturnsFirstSuccess(t *testing.T) {
	down := NewStaticProvider().Fail("AAPL", errors.New("timeout"))
	up := NewStaticProvider().SetQuote(&FastQuote{Symbol: "AAPL", LastPrice: f(190)})

	chain := Chain{down, up}
	q, err := chain.FastQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, *q.LastPrice)
	assert.Equal(t, "chain:static:static", chain.Name())
}

func TestChainJoinsErrors(t *testing.T) {
	chain := Chain{NewStaticProvider(), NewStaticProvider().Fail("X", errors.New("boom"))}

	_, err := chain.Detail(context.Background(), "X")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "boom")

	_, err = Chain{}.History(context.Background(), "X", 5)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestChainHonoursCancellation(t *testing.T) {
	sp := NewStaticProvider().SetQuote(&FastQuote{Symbol: "A", LastPrice: f(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Chain{sp}.FastQuote(ctx, "A")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sp.Calls())
}

func TestStaticProviderHistoryWindow(t *testing.T) {
	bars := make([]Bar, 10)
	for i := range bars {
		bars[i] = Bar{Symbol: "SPY", Close: decimal.NewFromInt(int64(400 + i))}
	}
	sp := NewStaticProvider().SetHistory("SPY", bars)

	got, err := sp.History(context.Background(), "SPY", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[2].Close.Equal(decimal.NewFromInt(409)))

	got[0].Symbol = "MUTATED"
	again, _ := sp.History(context.Background(), "SPY", 3)
	assert.Equal(t, "SPY", again[0].Symbol)
}

func TestLoadStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_snapshot.json")
	snap := Snapshot{
		Quotes:  []FastQuote{{Symbol: "AAPL", LastPrice: f(190), Currency: "USD"}},
		Details: []Detail{{Symbol: "VOO", QuoteType: "ETF", TotalAssets: f(1.3e12)}},
	}
	require.NoError(t, SaveDataToFile(snap, path))

	sp, err := LoadStaticProvider(path)
	require.NoError(t, err)

	q, err := sp.FastQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, *q.LastPrice)

	d, err := sp.Detail(context.Background(), "VOO")
	require.NoError(t, err)
	assert.True(t, d.IsFund())
}

func TestNewProviderFromConfig(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.Provider = "yahoo"
	cfg.FallbackProviders = []string{"finnhub", "longport"}
	cfg.FinnhubAPIKey = ""
	cfg.LongportAppKey = ""

	p, closers, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.Empty(t, closers)
	assert.Equal(t, "yahoo", p.Name(), "unconfigured fallbacks are skipped")

	cfg.FinnhubAPIKey = "key"
	p, _, err = NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "chain:yahoo:finnhub", p.Name())

	for _, primary := range []string{"longport", "Longport", " LONGPORT "} {
		cfg.Provider = primary
		_, _, err = NewProvider(cfg)
		assert.ErrorContains(t, err, "credentials not configured", "a primary provider without credentials is an error: %q", primary)
	}

	cfg.Provider = "Finnhub"
	cfg.FinnhubAPIKey = ""
	cfg.FallbackProviders = []string{"yahoo"}
	_, _, err = NewProvider(cfg)
	assert.ErrorContains(t, err, "finnhub API key")

	cfg.Provider = "bloomberg"
	_, _, err = NewProvider(cfg)
	assert.Error(t, err)
}

func TestValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("BRK-B"))
	assert.NoError(t, ValidateSymbol("ABBN.SW"))
	assert.Error(t, ValidateSymbol(""))
	assert.Error(t, ValidateSymbol("A B"))
	assert.Error(t, ValidateSymbol("../etc"))
	assert.Error(t, ValidateSymbol("ABCDEFGHIJKLMNOPQ"))
}

func TestLongportSymbol(t *testing.T) {
	tests := map[string]string{
		"AAPL":      "AAPL.US",
		"brk-b":     "BRK.B.US",
		"700.HK":    "700.HK",
		"TSLA.US":   "TSLA.US",
		"600519.SH": "600519.SH",
	}
	for in, want := range tests {
		assert.Equal(t, want, LongportSymbol(in), in)
	}
}

func TestHelpers(t *testing.T) {
	v, ok := Positive(f(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = Positive(f(0))
	assert.False(t, ok)
	_, ok = Positive(nil)
	assert.False(t, ok)

	assert.Nil(t, Ptr(-1))
	assert.Equal(t, "USD", Currency(""))
	assert.Equal(t, "JPY", Currency(" jpy "))
}

func newFinnhubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"c":190.5,"pc":188.25,"t":1700000000}`))
		default:
			_, _ = w.Write([]byte(`{"c":0,"pc":0,"t":0}`))
		}
	})
	mux.HandleFunc("/stock/profile2", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "AAPL" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"ticker":"AAPL","currency":"USD","marketCapitalization":3000000,"shareOutstanding":15500}`))
	})
	mux.HandleFunc("/stock/candle", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"ok","c":[187.1,188.2],"o":[186,187],"h":[188,189],"l":[185,186],"v":[1000,2000],"t":[1699900000,1699990000]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFinnhubClient(t *testing.T, key string) *FinnhubClient {
	srv := newFinnhubServer(t)
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.FinnhubBaseURL = srv.URL
	cfg.FinnhubAPIKey = key
	cfg.RequestTimeout = 5 * time.Second
	return NewFinnhubClient(cfg)
}

func TestFinnhubClient(t *testing.T) {
	fc := newFinnhubClient(t, "secret")
	ctx := context.Background()

	q, err := fc.FastQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.5, *q.LastPrice)
	assert.Equal(t, 188.25, *q.PreviousClose)

	_, err = fc.FastQuote(ctx, "NONE")
	assert.ErrorIs(t, err, ErrNoData)

	d, err := fc.Detail(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3e12, *d.MarketCap)
	assert.Equal(t, 15.5e9, *d.SharesOutstanding)
	assert.Equal(t, 190.5, *d.CurrentPrice)

	_, err = fc.Detail(ctx, "NONE")
	assert.ErrorIs(t, err, ErrNoData)

	bars, err := fc.History(ctx, "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(2000), bars[1].Volume)
}

func TestFinnhubClientRequiresKey(t *testing.T) {
	_, err := newFinnhubClient(t, "").FastQuote(context.Background(), "AAPL")
	assert.Error(t, err)

	_, err = newFinnhubClient(t, "wrong").FastQuote(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "401")
}

func TestYahooSummaryDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("modules"), "summaryDetail")
		switch r.URL.Path {
		case "/v10/finance/quoteSummary/VOO":
			_, _ = w.Write([]byte(`{"quoteSummary":{"result":[{
				"price":{"quoteType":"ETF","currency":"USD","regularMarketPrice":{"raw":510.2}},
				"summaryDetail":{"totalAssets":{"raw":1.3e12},"previousClose":{"raw":508.0}}
			}],"error":null}}`))
		case "/v10/finance/quoteSummary/2330.TW":
			_, _ = w.Write([]byte(`{"quoteSummary":{"result":[{
				"price":{"quoteType":"EQUITY","currency":"TWD","marketCap":{"raw":2.5e13}},
				"financialData":{"currentPrice":{"raw":960}},
				"defaultKeyStatistics":{"sharesOutstanding":{"raw":2.59e10}}
			}],"error":null}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found"}}}`))
		}
	}))
	defer srv.Close()

	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.YahooBaseURL = srv.URL
	yf := NewYahooFinanceClient(cfg)
	ctx := context.Background()

	voo, err := yf.quoteSummary(ctx, "VOO")
	require.NoError(t, err)
	assert.True(t, voo.IsFund())
	assert.Equal(t, 1.3e12, *voo.TotalAssets)
	assert.Equal(t, 508.0, *voo.PreviousClose)
	assert.Nil(t, voo.MarketCap)

	tsmc, err := yf.quoteSummary(ctx, "2330.TW")
	require.NoError(t, err)
	assert.False(t, tsmc.IsFund())
	assert.Equal(t, "TWD", tsmc.Currency)
	assert.Equal(t, 960.0, *tsmc.CurrentPrice)
	assert.Equal(t, 2.59e10, *tsmc.SharesOutstanding)

	_, err = yf.quoteSummary(ctx, "MISSING")
	assert.Error(t, err)
}

func TestMergeDetail(t *testing.T) {
	dst := &Detail{Symbol: "X", MarketCap: f(10)}
	mergeDetail(dst, &Detail{QuoteType: "EQUITY", MarketCap: f(99), SharesOutstanding: f(5)})

	assert.Equal(t, "EQUITY", dst.QuoteType)
	assert.Equal(t, 10.0, *dst.MarketCap)
	assert.Equal(t, 5.0, *dst.SharesOutstanding)
}
