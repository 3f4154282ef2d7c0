package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/IndexGo/internal/logging"
)

// Source is the part of the resolver that is worth caching.
type Source interface {
	Prices(ctx context.Context, ids []string) map[string]float64
	Valuations(ctx context.Context, ids []string) map[string]float64
}

// Resolver serves batch results from a Store and falls through to the
// wrapped Source on a miss. Entries are keyed by the full identifier set, so
// a hit always returns the exact batch that was stored.
type Resolver struct {
	src          Source
	store        Store
	priceTTL     time.Duration
	valuationTTL time.Duration
	logger       *log.Logger
	now          func() time.Time
}

type ResolverOption func(*Resolver)

func WithTTL(price, valuation time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.priceTTL = price
		r.valuationTTL = valuation
	}
}

func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logging.OrSilent(l) }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver wraps src. A nil store disables caching.
func NewResolver(src Source, store Store, opts ...ResolverOption) *Resolver {
	if store == nil {
		store = Noop{}
	}
	r := &Resolver{
		src:          src,
		store:        store,
		priceTTL:     5 * time.Minute,
		valuationTTL: 24 * time.Hour,
		logger:       logging.Silent(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Prices(ctx context.Context, ids []string) map[string]float64 {
	return r.cached(ctx, "prices", ids, r.priceTTL, r.src.Prices)
}

func (r *Resolver) Valuations(ctx context.Context, ids []string) map[string]float64 {
	return r.cached(ctx, "valuations", ids, r.valuationTTL, r.src.Valuations)
}

func (r *Resolver) cached(ctx context.Context, op string, ids []string, ttl time.Duration,
	fetch func(context.Context, []string) map[string]float64) map[string]float64 {
	if len(ids) == 0 || ttl <= 0 {
		return fetch(ctx, ids)
	}

	key := Key(op, ids, ttl, r.now())
	if data, ok, err := r.store.Get(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("cache read failed")
	} else if ok {
		var out map[string]float64
		if err := json.Unmarshal(data, &out); err == nil {
			r.logger.Debug().Str("op", op).Int("entries", len(out)).Msg("cache hit")
			return out
		}
	}

	out := fetch(ctx, ids)
	// Empty batches and batches cut short by ctx are never stored.
	if len(out) == 0 || ctx.Err() != nil {
		return out
	}
	data, err := json.Marshal(out)
	if err == nil {
		err = r.store.Set(ctx, key, data, ttl)
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("cache write failed")
	}
	return out
}
