package resolver

import (
	"context"

	"github.com/dyike/IndexGo/pkg/dataflows"
)

// HistoryWindow is the number of calendar days requested for the last-close
// fallback. Five days covers weekends and single holidays.
const HistoryWindow = 5

// Lookup memoizes the provider calls made for one symbol while its strategies
// run, so the fast quote is fetched once even when two strategies read it.
// A Lookup belongs to a single worker and is not safe for concurrent use.
type Lookup struct {
	Symbol   string
	provider dataflows.Provider

	quote     *dataflows.FastQuote
	quoteErr  error
	quoteDone bool

	detail     *dataflows.Detail
	detailErr  error
	detailDone bool

	bars     []dataflows.Bar
	barsErr  error
	barsDone bool
}

// NewLookup starts a lookup of symbol against provider.
func NewLookup(provider dataflows.Provider, symbol string) *Lookup {
	return &Lookup{Symbol: symbol, provider: provider}
}

// Quote returns the provider's fast quote.
func (l *Lookup) Quote(ctx context.Context) (*dataflows.FastQuote, error) {
	if !l.quoteDone {
		l.quote, l.quoteErr = l.provider.FastQuote(ctx, l.Symbol)
		l.quoteDone = true
	}
	return l.quote, l.quoteErr
}

// Detail returns the provider's full instrument record.
func (l *Lookup) Detail(ctx context.Context) (*dataflows.Detail, error) {
	if !l.detailDone {
		l.detail, l.detailErr = l.provider.Detail(ctx, l.Symbol)
		l.detailDone = true
	}
	return l.detail, l.detailErr
}

// History returns the short daily history window.
func (l *Lookup) History(ctx context.Context) ([]dataflows.Bar, error) {
	if !l.barsDone {
		l.bars, l.barsErr = l.provider.History(ctx, l.Symbol, HistoryWindow)
		l.barsDone = true
	}
	return l.bars, l.barsErr
}

// Errors returns the provider errors seen so far, for diagnostics.
func (l *Lookup) Errors() []error {
	var errs []error
	for _, err := range []error{l.quoteErr, l.detailErr, l.barsErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
