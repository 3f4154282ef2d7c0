package pipeline

import (
	"context"

	"github.com/dyike/IndexGo/pkg/consolidate"
)

// Holding is one row of the composition view.
type Holding struct {
	Ticker    string   `json:"ticker"`
	Weight    float64  `json:"weight"`
	Allocated float64  `json:"allocated_billions"`
	MarketCap float64  `json:"market_cap"`
	Sources   []string `json:"sources"`
	Sector    string   `json:"sector,omitempty"`
}

// Composition is the consolidated portfolio with live market caps.
type Composition struct {
	Assets   FundAssets         `json:"-"`
	Result   consolidate.Result `json:"-"`
	Holdings []Holding          `json:"holdings"`

	// TotalMarketCap sums the holdings' market caps in USD.
	TotalMarketCap float64 `json:"total_market_cap"`
	// Coverage is TotalMarketCap as a percentage of the US market total.
	Coverage float64 `json:"coverage"`
	// TotalAllocated is the summed raw score, in USD billions.
	TotalAllocated float64 `json:"total_allocated"`
}

// Composition consolidates the funds and looks up the market cap of every
// resulting holding.
func (e *Engine) Composition(ctx context.Context) *Composition {
	assets, res := e.Consolidate(ctx)
	c := &Composition{Assets: assets, Result: res, TotalAllocated: res.TotalScore()}
	if res.Empty() {
		return c
	}

	caps := e.market.Valuations(ctx, sortedKeys(res.Weights))
	sectors := e.corpus.SectorMap()

	for _, w := range res.Ranked() {
		h := Holding{
			Ticker:    w.Ticker,
			Weight:    w.Weight,
			Allocated: res.Allocated(w.Ticker),
			MarketCap: lookup(caps, w.Ticker),
			Sources:   res.Sources(w.Ticker),
			Sector:    sectors[w.Ticker],
		}
		c.TotalMarketCap += h.MarketCap
		c.Holdings = append(c.Holdings, h)
	}
	if e.settings.USMarketTotal > 0 {
		c.Coverage = c.TotalMarketCap / e.settings.USMarketTotal * 100
	}
	return c
}

// FundDetail is a fund with its metadata and top holdings.
type FundDetail struct {
	Fund        string                 `json:"fund"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Assets      float64                `json:"assets_billions"`
	Fallback    bool                   `json:"fallback"`
	Top         []consolidate.Weighted `json:"top"`
}

// ThemeDetail groups funds under one theme.
type ThemeDetail struct {
	Theme string       `json:"theme"`
	Funds []FundDetail `json:"funds"`
}

// FundDetails lists every fund by theme with the holdings that count toward
// consolidation.
func (e *Engine) FundDetails(ctx context.Context) []ThemeDetail {
	assets := e.FundAssets(ctx)
	fallback := make(map[string]bool, len(assets.Fallbacks))
	for _, f := range assets.Fallbacks {
		fallback[f] = true
	}

	var out []ThemeDetail
	themes := e.corpus.Themes()
	for pair := themes.Oldest(); pair != nil; pair = pair.Next() {
		td := ThemeDetail{Theme: pair.Key}
		for _, fund := range pair.Value {
			meta, _ := e.corpus.Meta(fund)
			limit := e.settings.ThemeLimit
			if consolidate.IsIndexFund(fund, e.consolidateOptions()...) {
				limit = e.settings.IndexLimit
			}
			td.Funds = append(td.Funds, FundDetail{
				Fund:        fund,
				Name:        meta.Name,
				Description: meta.Description,
				Assets:      assets.Assets[fund],
				Fallback:    fallback[fund],
				Top:         consolidate.Top(e.corpus.Compositions[fund], limit),
			})
		}
		out = append(out, td)
	}
	return out
}
