// Package planner turns consolidated portfolio weights into a buy list for a
// cash budget.
package planner

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// sharePrecision is the number of decimal places kept for fractional shares.
	sharePrecision = 6
	divPrecision   = 16
)

// Line is one purchase.
type Line struct {
	Ticker    string   `json:"ticker"`
	Shares    float64  `json:"shares"`
	Price     float64  `json:"price"`
	Cost      float64  `json:"cost"`
	Weight    float64  `json:"weight"`
	Allocated float64  `json:"allocated"`
	Sources   []string `json:"sources,omitempty"`
}

// Skip is a holding whose allocation could not buy a single unit.
type Skip struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Required  float64 `json:"required"`
	Allocated float64 `json:"allocated"`
	Weight    float64 `json:"weight"`
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusNoWeights  Status = "no weights"
	StatusNoPrices   Status = "no prices"
	StatusZeroBudget Status = "zero budget"
	// StatusUnaffordable means prices were found but every allocation was
	// below one unit.
	StatusUnaffordable Status = "unaffordable"
)

// Result is a complete purchase plan.
type Result struct {
	Buy        []Line   `json:"buy"`
	Skipped    []Skip   `json:"skipped"`
	Missing    []string `json:"missing"`
	Cash       float64  `json:"cash"`
	Fractional bool     `json:"fractional"`
	TotalCost  float64  `json:"total_cost"`
	Remaining  float64  `json:"remaining"`
	// Holdings is the number of weighted holdings the plan was built from.
	Holdings int `json:"holdings"`
}

type options struct {
	breakdown map[string]map[string]float64
}

type Option func(*options)

// WithBreakdown attaches the contributing funds of each holding to its line.
func WithBreakdown(breakdown map[string]map[string]float64) Option {
	return func(o *options) { o.breakdown = breakdown }
}

// Plan allocates cash across weights (percent) and buys whatever each
// allocation affords at prices. Holdings without a positive price are
// reported in Missing. In integer mode share counts are floored; in
// fractional mode they are truncated to six decimals, so no line ever costs
// more than its allocation.
func Plan(weights, prices map[string]float64, cash float64, fractional bool, opts ...Option) *Result {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	res := &Result{
		Buy:        []Line{},
		Skipped:    []Skip{},
		Missing:    []string{},
		Cash:       cash,
		Fractional: fractional,
		Holdings:   len(weights),
	}

	budget := decimal.NewFromFloat(cash)
	total := decimal.Zero
	for ticker, weight := range weights {
		price, ok := lookupPrice(prices, ticker)
		if !ok {
			res.Missing = append(res.Missing, ticker)
			continue
		}

		p := decimal.NewFromFloat(price)
		allocated := budget.Mul(decimal.NewFromFloat(weight)).Div(decimal.NewFromInt(100))
		shares := decimal.Zero
		if allocated.IsPositive() {
			shares = allocated.DivRound(p, divPrecision)
			if fractional {
				shares = shares.Truncate(sharePrecision)
			} else {
				shares = shares.Floor()
			}
		}

		if !shares.IsPositive() {
			res.Skipped = append(res.Skipped, Skip{
				Ticker:    ticker,
				Price:     price,
				Required:  price,
				Allocated: allocated.InexactFloat64(),
				Weight:    weight,
			})
			continue
		}

		cost := shares.Mul(p)
		total = total.Add(cost)
		res.Buy = append(res.Buy, Line{
			Ticker:    ticker,
			Shares:    shares.InexactFloat64(),
			Price:     price,
			Cost:      cost.InexactFloat64(),
			Weight:    weight,
			Allocated: allocated.InexactFloat64(),
			Sources:   sources(o.breakdown, ticker),
		})
	}

	res.TotalCost = total.InexactFloat64()
	res.Remaining = budget.Sub(total).InexactFloat64()
	res.sort()
	return res
}

// lookupPrice finds a positive price for ticker, falling back to its
// hyphenated share-class form.
func lookupPrice(prices map[string]float64, ticker string) (float64, bool) {
	if p, ok := prices[ticker]; ok && p > 0 {
		return p, true
	}
	if alt := strings.ReplaceAll(ticker, ".", "-"); alt != ticker {
		if p, ok := prices[alt]; ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}

func sources(breakdown map[string]map[string]float64, ticker string) []string {
	contrib := breakdown[ticker]
	if len(contrib) == 0 {
		return nil
	}
	funds := make([]string, 0, len(contrib))
	for fund := range contrib {
		funds = append(funds, fund)
	}
	sort.Strings(funds)
	return funds
}

func (r *Result) sort() {
	sort.Slice(r.Buy, func(i, j int) bool {
		if r.Buy[i].Cost != r.Buy[j].Cost {
			return r.Buy[i].Cost > r.Buy[j].Cost
		}
		return r.Buy[i].Ticker < r.Buy[j].Ticker
	})
	sort.Slice(r.Skipped, func(i, j int) bool {
		if r.Skipped[i].Allocated != r.Skipped[j].Allocated {
			return r.Skipped[i].Allocated > r.Skipped[j].Allocated
		}
		return r.Skipped[i].Ticker < r.Skipped[j].Ticker
	})
	sort.Strings(r.Missing)
}

// Status classifies an empty plan so callers can tell missing data apart
// from a zero budget.
func (r *Result) Status() Status {
	switch {
	case r.Holdings == 0:
		return StatusNoWeights
	case r.Cash <= 0:
		return StatusZeroBudget
	case len(r.Missing) == r.Holdings:
		return StatusNoPrices
	case len(r.Buy) == 0:
		return StatusUnaffordable
	}
	return StatusOK
}

// Coverage is the share of holdings that had a price, in [0, 1].
func (r *Result) Coverage() float64 {
	if r.Holdings == 0 {
		return 0
	}
	return float64(r.Holdings-len(r.Missing)) / float64(r.Holdings)
}
