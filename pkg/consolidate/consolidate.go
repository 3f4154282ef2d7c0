// Package consolidate merges per-fund holding weights into one portfolio,
// scaling each fund's contribution by its asset size.
package consolidate

import (
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	DefaultIndexLimit = 20
	DefaultThemeLimit = 10
)

// DefaultIndexFunds are the broad-market funds that get the larger inclusion limit.
var DefaultIndexFunds = []string{"VOO", "QQQ"}

// Holdings maps holding → weight in fund (percent), in the order the fund
// reports them.
type Holdings = *orderedmap.OrderedMap[string, float64]

// Compositions maps fund → holdings.
type Compositions map[string]Holdings

// NewHoldings builds holdings from pairs, keeping their order.
func NewHoldings(pairs ...Weighted) Holdings {
	h := orderedmap.New[string, float64]()
	for _, p := range pairs {
		h.Set(p.Ticker, p.Weight)
	}
	return h
}

// Weighted is a single holding and its weight.
type Weighted struct {
	Ticker string
	Weight float64
}

type options struct {
	indexFunds map[string]bool
	indexLimit int
	themeLimit int
}

type Option func(*options)

// WithIndexFunds replaces the designated index fund set.
func WithIndexFunds(funds ...string) Option {
	return func(o *options) {
		o.indexFunds = make(map[string]bool, len(funds))
		for _, f := range funds {
			o.indexFunds[strings.ToUpper(strings.TrimSpace(f))] = true
		}
	}
}

// WithLimits sets the per-fund inclusion limits for index and other funds.
func WithLimits(index, theme int) Option {
	return func(o *options) {
		if index > 0 {
			o.indexLimit = index
		}
		if theme > 0 {
			o.themeLimit = theme
		}
	}
}

func defaultOptions() *options {
	o := &options{indexLimit: DefaultIndexLimit, themeLimit: DefaultThemeLimit}
	WithIndexFunds(DefaultIndexFunds...)(o)
	return o
}

// Result is the consolidated portfolio together with the per-fund provenance
// of every holding. Both maps come from the same pass.
type Result struct {
	// Weights maps holding → consolidated weight (percent).
	Weights map[string]float64
	// Breakdown maps holding → fund → raw score (asset units × weight fraction).
	Breakdown map[string]map[string]float64

	total float64
}

// Consolidate computes the asset-weighted union of the funds' top holdings.
// Funds missing from either map are ignored. When no fund has a positive
// asset size the result is empty.
func Consolidate(assets map[string]float64, holdings Compositions, opts ...Option) Result {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	res := Result{
		Weights:   make(map[string]float64),
		Breakdown: make(map[string]map[string]float64),
	}

	funds := make([]string, 0, len(holdings))
	for fund := range holdings {
		if _, ok := assets[fund]; ok {
			funds = append(funds, fund)
		}
	}
	sort.Strings(funds)

	scores := make(map[string]float64)
	for _, fund := range funds {
		size := assets[fund]
		if size <= 0 {
			continue
		}
		for _, h := range Top(holdings[fund], o.limit(fund)) {
			raw := size * (h.Weight / 100)
			if raw <= 0 {
				continue
			}
			scores[h.Ticker] += raw
			contrib, ok := res.Breakdown[h.Ticker]
			if !ok {
				contrib = make(map[string]float64)
				res.Breakdown[h.Ticker] = contrib
			}
			contrib[fund] += raw
		}
	}

	// Sum in a fixed order so the total is reproducible.
	tickers := make([]string, 0, len(scores))
	for t := range scores {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		res.total += scores[t]
	}

	if res.total <= 0 {
		res.Breakdown = make(map[string]map[string]float64)
		return res
	}
	for _, t := range tickers {
		res.Weights[t] = scores[t] / res.total * 100
	}
	return res
}

func (o *options) limit(fund string) int {
	if o.indexFunds[strings.ToUpper(fund)] {
		return o.indexLimit
	}
	return o.themeLimit
}

// IsIndexFund reports whether fund gets the index inclusion limit.
func IsIndexFund(fund string, opts ...Option) bool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o.indexFunds[strings.ToUpper(fund)]
}

// Top returns up to limit holdings ranked by weight, descending. Equal
// weights keep their source order.
func Top(h Holdings, limit int) []Weighted {
	if h == nil || limit <= 0 {
		return nil
	}
	ranked := make([]Weighted, 0, h.Len())
	for pair := h.Oldest(); pair != nil; pair = pair.Next() {
		ranked = append(ranked, Weighted{Ticker: pair.Key, Weight: pair.Value})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// TotalScore is the sum of every raw score.
func (r Result) TotalScore() float64 {
	return r.total
}

// Allocated returns the total raw score behind holding.
func (r Result) Allocated(holding string) float64 {
	var sum float64
	for _, fund := range r.Sources(holding) {
		sum += r.Breakdown[holding][fund]
	}
	return sum
}

// Sources lists the funds contributing to holding, sorted.
func (r Result) Sources(holding string) []string {
	contrib := r.Breakdown[holding]
	funds := make([]string, 0, len(contrib))
	for fund := range contrib {
		funds = append(funds, fund)
	}
	sort.Strings(funds)
	return funds
}

// Ranked returns the consolidated weights sorted descending, ties by ticker.
func (r Result) Ranked() []Weighted {
	out := make([]Weighted, 0, len(r.Weights))
	for t, w := range r.Weights {
		out = append(out, Weighted{Ticker: t, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Empty reports whether consolidation produced no holdings.
func (r Result) Empty() bool {
	return len(r.Weights) == 0
}
