package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/phuslu/log"

	"github.com/dyike/IndexGo/config"
	"github.com/dyike/IndexGo/internal/cache"
	"github.com/dyike/IndexGo/internal/corpus"
	"github.com/dyike/IndexGo/internal/export"
	"github.com/dyike/IndexGo/internal/logging"
	"github.com/dyike/IndexGo/internal/pipeline"
	"github.com/dyike/IndexGo/pkg/dataflows"
	"github.com/dyike/IndexGo/pkg/resolver"
	"github.com/dyike/IndexGo/pkg/ticker"
)

// app is everything one command needs, built from a config.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	corpus     *corpus.Corpus
	normalizer *ticker.Normalizer
	provider   dataflows.Provider
	resolver   *resolver.Resolver
	overrides  *resolver.Overrides
	market     *cache.Resolver
	engine     *pipeline.Engine
	exports    *export.Manager

	closers []io.Closer
}

// newApp loads the corpus and wires the provider chain, the resolver, the
// cache and the pipeline engine.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logging.New(cfg.LogLevel, logOut),
		exports: export.NewManager(cfg.ResultsDir),
	}
	if err := a.init(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	cfg := a.cfg

	var err error
	a.corpus, err = loadCorpus(cfg)
	if err != nil {
		return err
	}
	a.normalizer = newNormalizer(a.corpus)

	provider, closers, err := dataflows.NewProvider(cfg)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return fmt.Errorf("market data provider: %w", err)
	}
	a.provider = provider

	a.overrides, err = resolver.LoadOverrides(cfg.OverridesFile)
	if err != nil {
		return err
	}
	a.resolver, err = resolver.New(provider, a.normalizer,
		resolver.WithWorkers(cfg.MaxWorkers),
		resolver.WithOverrides(a.overrides),
		resolver.WithRates(resolver.DefaultRates().With(cfg.FXRates)),
		resolver.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	store, err := cache.Open(cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, store)
	a.market = cache.NewResolver(a.resolver, store,
		cache.WithTTL(cfg.PriceTTL, cfg.ValuationTTL),
		cache.WithLogger(a.logger),
	)

	a.engine, err = pipeline.New(a.corpus, a.market,
		pipeline.WithSettings(pipeline.SettingsFromConfig(cfg)),
		pipeline.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	a.logger.Debug().Str("provider", provider.Name()).Int("funds", len(a.corpus.Funds())).
		Int("names", a.normalizer.Len()).Str("cache", cfg.CacheBackend).Msg("engine ready")
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadCorpus(cfg *config.Config) (*corpus.Corpus, error) {
	c, err := corpus.Load(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return c, nil
}

func newNormalizer(c *corpus.Corpus) *ticker.Normalizer {
	return ticker.NewNormalizer(c.Mapping)
}
