package pipeline

import (
	"context"

	"github.com/dyike/IndexGo/pkg/consolidate"
)

// FundAssets are the fund asset sizes in USD billions.
type FundAssets struct {
	// Funds lists the funds in metadata order.
	Funds  []string
	Assets map[string]float64
	// Fallbacks lists the funds whose live size was unavailable and that use
	// the metadata figure instead.
	Fallbacks []string
}

// FundAssets resolves the live size of every fund in the metadata. Funds
// that do not resolve use their fallback_aum; a fund with neither counts as
// zero and drops out of consolidation.
func (e *Engine) FundAssets(ctx context.Context) FundAssets {
	funds := e.corpus.Funds()
	live := e.market.Valuations(ctx, funds)

	fa := FundAssets{Funds: funds, Assets: make(map[string]float64, len(funds))}
	for _, fund := range funds {
		v := live[fund] / 1e9
		if v <= 0 {
			meta, _ := e.corpus.Meta(fund)
			v = meta.FallbackAUM
			if v < 0 {
				v = 0
			}
			fa.Fallbacks = append(fa.Fallbacks, fund)
		}
		fa.Assets[fund] = v
	}

	if len(fa.Fallbacks) > 0 {
		e.logger.Warn().Strs("funds", fa.Fallbacks).Msg("using fallback fund sizes")
	}
	return fa
}

// Total is the summed asset size of every fund.
func (fa FundAssets) Total() float64 {
	var total float64
	for _, fund := range fa.Funds {
		total += fa.Assets[fund]
	}
	return total
}

// Split is the division of total assets between index and theme funds.
type Split struct {
	Core       float64
	Theme      float64
	CorePct    float64
	ThemePct   float64
	CoreFunds  []string
	ThemeFunds []string
}

// Split divides the assets into the index core and the thematic remainder.
func (fa FundAssets) Split(indexFunds ...string) Split {
	opts := []consolidate.Option{}
	if len(indexFunds) > 0 {
		opts = append(opts, consolidate.WithIndexFunds(indexFunds...))
	}

	var s Split
	for _, fund := range fa.Funds {
		if consolidate.IsIndexFund(fund, opts...) {
			s.Core += fa.Assets[fund]
			s.CoreFunds = append(s.CoreFunds, fund)
		} else {
			s.Theme += fa.Assets[fund]
			s.ThemeFunds = append(s.ThemeFunds, fund)
		}
	}
	if total := s.Core + s.Theme; total > 0 {
		s.CorePct = s.Core / total * 100
		s.ThemePct = s.Theme / total * 100
	}
	return s
}
