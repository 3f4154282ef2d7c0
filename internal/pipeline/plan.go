package pipeline

import (
	"context"
	"strings"

	"github.com/dyike/IndexGo/pkg/consolidate"
	"github.com/dyike/IndexGo/pkg/planner"
)

// debugSample is how many weights and prices the diagnostics keep.
const debugSample = 5

// PlanRun is a purchase plan with the inputs it was built from.
type PlanRun struct {
	Assets FundAssets
	Result consolidate.Result
	Prices map[string]float64
	Plan   *planner.Result
	// Debug is only set when the buy list is empty.
	Debug *Diagnostics
}

// Diagnostics explains an empty buy list.
type Diagnostics struct {
	Targets          int                    `json:"targets"`
	PricesFetched    int                    `json:"prices_fetched"`
	TopWeights       []consolidate.Weighted `json:"top_weights"`
	SamplePrices     map[string]float64     `json:"sample_prices"`
	ShareClassPrices map[string]float64     `json:"share_class_prices"`
}

// Plan consolidates the portfolio, prices every holding and allocates cash.
func (e *Engine) Plan(ctx context.Context, cash float64, fractional bool) *PlanRun {
	assets, res := e.Consolidate(ctx)
	run := &PlanRun{Assets: assets, Result: res}

	run.Prices = e.market.Prices(ctx, sortedKeys(res.Weights))
	run.Plan = planner.Plan(res.Weights, run.Prices, cash, fractional, planner.WithBreakdown(res.Breakdown))

	e.logger.Info().Float64("cash", cash).Bool("fractional", fractional).
		Int("buy", len(run.Plan.Buy)).Int("skipped", len(run.Plan.Skipped)).
		Int("missing", len(run.Plan.Missing)).Str("status", string(run.Plan.Status())).
		Msg("purchase plan built")

	if len(run.Plan.Buy) == 0 {
		run.Debug = diagnose(res, run.Prices)
	}
	return run
}

func diagnose(res consolidate.Result, prices map[string]float64) *Diagnostics {
	d := &Diagnostics{
		Targets:          len(res.Weights),
		PricesFetched:    len(prices),
		SamplePrices:     make(map[string]float64),
		ShareClassPrices: make(map[string]float64),
	}

	ranked := res.Ranked()
	if len(ranked) > debugSample {
		ranked = ranked[:debugSample]
	}
	d.TopWeights = ranked

	for i, t := range sortedKeys(prices) {
		if i < debugSample {
			d.SamplePrices[t] = prices[t]
		}
		if strings.ContainsAny(t, ".-") {
			d.ShareClassPrices[t] = prices[t]
		}
	}
	return d
}
