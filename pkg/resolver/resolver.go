// Package resolver resolves prices and USD valuations for sets of identifiers
// through tiered fallback chains over a market data provider.
//
// Results are always keyed by the identifiers the caller passed in. Lookups
// are deduplicated by canonical symbol and run on a bounded worker pool; any
// per-symbol failure only removes that symbol from the result.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/IndexGo/internal/logging"
	"github.com/dyike/IndexGo/pkg/dataflows"
	"github.com/dyike/IndexGo/pkg/ticker"
)

// DefaultWorkers bounds the number of in-flight provider lookups.
const DefaultWorkers = 20

// Valuation is the resolved record for one identifier. Value is in USD.
type Valuation struct {
	Symbol           string    `json:"symbol"`
	Price            *float64  `json:"price,omitempty"`
	Value            *float64  `json:"value,omitempty"`
	Currency         string    `json:"currency"`
	ReportedCurrency string    `json:"reported_currency,omitempty"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

type Resolver struct {
	provider   dataflows.Provider
	normalizer *ticker.Normalizer
	workers    int
	prices     []PriceStrategy
	valuations []ValuationStrategy
	overrides  *Overrides
	rates      RateSource
	logger     *log.Logger
	now        func() time.Time
}

type Option func(*Resolver)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = logging.OrSilent(l) }
}

// WithRates replaces the static currency table.
func WithRates(rates RateSource) Option {
	return func(r *Resolver) {
		if rates != nil {
			r.rates = rates
		}
	}
}

// WithOverrides replaces the known-issue override table.
func WithOverrides(o *Overrides) Option {
	return func(r *Resolver) {
		if o != nil {
			r.overrides = o
		}
	}
}

func WithPriceStrategies(s ...PriceStrategy) Option {
	return func(r *Resolver) {
		if len(s) > 0 {
			r.prices = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a resolver over provider. A nil normalizer means ticker.Default.
func New(provider dataflows.Provider, normalizer *ticker.Normalizer, opts ...Option) (*Resolver, error) {
	if provider == nil {
		return nil, errors.New("resolver: provider is required")
	}
	if normalizer == nil {
		normalizer = ticker.Default
	}

	r := &Resolver{
		provider:   provider,
		normalizer: normalizer,
		workers:    DefaultWorkers,
		prices:     DefaultPriceStrategies(),
		valuations: DefaultValuationStrategies(),
		overrides:  DefaultOverrides(),
		rates:      DefaultRates(),
		logger:     logging.Silent(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Prices returns the latest positive price for each identifier that resolves.
func (r *Resolver) Prices(ctx context.Context, ids []string) map[string]float64 {
	return resolveAll(ctx, r, ids, r.resolvePrice)
}

// Valuations returns the USD market valuation (or fund total assets) for each
// identifier that resolves.
func (r *Resolver) Valuations(ctx context.Context, ids []string) map[string]float64 {
	return resolveAll(ctx, r, ids, func(ctx context.Context, symbol string) (float64, bool) {
		v, _, ok := r.resolveValuation(ctx, NewLookup(r.provider, symbol))
		return v, ok
	})
}

// Records resolves price and valuation together. Identifiers with neither are
// omitted.
func (r *Resolver) Records(ctx context.Context, ids []string) map[string]Valuation {
	return resolveAll(ctx, r, ids, func(ctx context.Context, symbol string) (Valuation, bool) {
		l := NewLookup(r.provider, symbol)
		rec := Valuation{Symbol: symbol, Currency: "USD", ResolvedAt: r.now()}

		if p, ok := r.priceFrom(ctx, l); ok {
			rec.Price = &p
		}
		if v, reported, ok := r.resolveValuation(ctx, l); ok {
			rec.Value = &v
			rec.ReportedCurrency = reported
		}
		return rec, rec.Price != nil || rec.Value != nil
	})
}

func (r *Resolver) resolvePrice(ctx context.Context, symbol string) (float64, bool) {
	return r.priceFrom(ctx, NewLookup(r.provider, symbol))
}

func (r *Resolver) priceFrom(ctx context.Context, l *Lookup) (float64, bool) {
	for _, s := range r.prices {
		if ctx.Err() != nil {
			return 0, false
		}
		if p, ok := s.Fetch(ctx, l); ok && p > 0 {
			r.logger.Debug().Str("symbol", l.Symbol).Str("tier", s.Name).Float64("price", p).Msg("price resolved")
			return p, true
		}
	}
	r.logPrice(l)
	return 0, false
}

func (r *Resolver) logPrice(l *Lookup) {
	e := r.logger.Debug().Str("symbol", l.Symbol)
	if errs := l.Errors(); len(errs) > 0 {
		e = e.Err(errors.Join(errs...))
	}
	e.Msg("price unavailable")
}

// resolveValuation runs the valuation chain for one symbol and returns the
// USD figure together with the currency it was reported in.
func (r *Resolver) resolveValuation(ctx context.Context, l *Lookup) (float64, string, bool) {
	amount, tier, ok := r.valuationFrom(ctx, l)
	if !ok {
		if alt, has := r.overrides.Alternate(l.Symbol); has && ctx.Err() == nil {
			altLookup := NewLookup(r.provider, alt)
			amount, ok = fastValuation(ctx, altLookup)
			tier = "alternate:" + alt
		}
	}
	if !ok {
		e := r.logger.Debug().Str("symbol", l.Symbol)
		if errs := l.Errors(); len(errs) > 0 {
			e = e.Err(errors.Join(errs...))
		}
		e.Msg("valuation unavailable")
		return 0, "", false
	}

	if corrected, applied := r.overrides.Correct(l.Symbol, amount.Value); applied {
		r.logger.Info().Str("symbol", l.Symbol).Float64("reported", amount.Value).
			Float64("corrected", corrected).Msg("valuation correction applied")
		amount.Value = corrected
	}

	usd, conv := toUSD(amount, r.rates)
	if !conv.Known {
		r.logger.Warn().Str("symbol", l.Symbol).Str("currency", amount.Currency).
			Bool("iso", conv.ISOCode).Msg("no conversion rate, using reported value")
	}
	if usd <= 0 {
		return 0, "", false
	}

	r.logger.Debug().Str("symbol", l.Symbol).Str("tier", tier).
		Str("currency", amount.Currency).Float64("usd", usd).Msg("valuation resolved")
	return usd, dataflows.Currency(amount.Currency), true
}

func (r *Resolver) valuationFrom(ctx context.Context, l *Lookup) (Amount, string, bool) {
	for _, s := range r.valuations {
		if ctx.Err() != nil {
			return Amount{}, "", false
		}
		if a, ok := s.Fetch(ctx, l); ok && a.Value > 0 {
			return a, s.Name, true
		}
	}
	return Amount{}, "", false
}

type outcome[T any] struct {
	symbol string
	value  T
	ok     bool
}

// resolveAll fans fn out over the distinct canonical symbols of ids and maps
// the results back onto every display identifier.
func resolveAll[T any](ctx context.Context, r *Resolver, ids []string, fn func(context.Context, string) (T, bool)) map[string]T {
	out := make(map[string]T)
	if len(ids) == 0 {
		return out
	}

	symbols, displays := ticker.Group(r.normalizer.Pairs(ids))
	if len(symbols) == 0 {
		return out
	}

	results := make(chan outcome[T])
	go func() {
		var g errgroup.Group
		g.SetLimit(r.workers)
		for _, symbol := range symbols {
			symbol := symbol
			g.Go(func() error {
				var o outcome[T]
				o.symbol = symbol
				if ctx.Err() == nil {
					o.value, o.ok = fn(ctx, symbol)
				}
				results <- o
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	// Single reducer: no worker touches the map.
	resolved := 0
	for o := range results {
		if !o.ok {
			continue
		}
		resolved++
		for _, display := range displays[o.symbol] {
			out[display] = o.value
		}
	}

	r.logger.Debug().Int("requested", len(symbols)).Int("resolved", resolved).Msg("batch resolved")
	return out
}
