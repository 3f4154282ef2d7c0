// Package pipeline wires the corpus, the market data resolver, the
// consolidation engine and the planner into the runs the CLI exposes.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/phuslu/log"

	"github.com/dyike/IndexGo/config"
	"github.com/dyike/IndexGo/internal/corpus"
	"github.com/dyike/IndexGo/internal/logging"
	"github.com/dyike/IndexGo/pkg/consolidate"
)

// MarketData is what the pipeline needs from a resolver.
type MarketData interface {
	Prices(ctx context.Context, ids []string) map[string]float64
	Valuations(ctx context.Context, ids []string) map[string]float64
}

// Settings are the portfolio construction parameters.
type Settings struct {
	IndexFunds    []string
	IndexLimit    int
	ThemeLimit    int
	USMarketTotal float64
}

// SettingsFromConfig copies the construction parameters out of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		IndexFunds:    cfg.IndexFunds,
		IndexLimit:    cfg.IndexLimit,
		ThemeLimit:    cfg.ThemeLimit,
		USMarketTotal: cfg.USMarketTotal,
	}
}

func DefaultSettings() Settings {
	return Settings{
		IndexFunds:    consolidate.DefaultIndexFunds,
		IndexLimit:    consolidate.DefaultIndexLimit,
		ThemeLimit:    consolidate.DefaultThemeLimit,
		USMarketTotal: 65e12,
	}
}

type Engine struct {
	corpus   *corpus.Corpus
	market   MarketData
	settings Settings
	logger   *log.Logger
}

type Option func(*Engine)

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrSilent(l) }
}

// New creates an engine over a loaded corpus and a market data source.
func New(c *corpus.Corpus, market MarketData, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, errors.New("pipeline: corpus is required")
	}
	if market == nil {
		return nil, errors.New("pipeline: market data source is required")
	}
	e := &Engine{
		corpus:   c,
		market:   market,
		settings: DefaultSettings(),
		logger:   logging.Silent(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Corpus() *corpus.Corpus { return e.corpus }

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) consolidateOptions() []consolidate.Option {
	opts := []consolidate.Option{consolidate.WithLimits(e.settings.IndexLimit, e.settings.ThemeLimit)}
	if len(e.settings.IndexFunds) > 0 {
		opts = append(opts, consolidate.WithIndexFunds(e.settings.IndexFunds...))
	}
	return opts
}

// Consolidate resolves fund assets and merges the compositions.
func (e *Engine) Consolidate(ctx context.Context) (FundAssets, consolidate.Result) {
	assets := e.FundAssets(ctx)
	res := consolidate.Consolidate(assets.Assets, e.corpus.Compositions, e.consolidateOptions()...)
	e.logger.Info().Int("funds", len(assets.Assets)).Int("holdings", len(res.Weights)).
		Float64("total_score", res.TotalScore()).Msg("portfolio consolidated")
	return assets, res
}

// lookup finds ticker in m, falling back to its hyphenated share-class form.
func lookup(m map[string]float64, ticker string) float64 {
	if v, ok := m[ticker]; ok && v > 0 {
		return v
	}
	if v, ok := m[strings.ReplaceAll(ticker, ".", "-")]; ok && v > 0 {
		return v
	}
	return 0
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
