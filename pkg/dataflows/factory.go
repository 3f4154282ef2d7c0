package dataflows

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Snapshot is the on-disk form of a StaticProvider.
type Snapshot struct {
	Quotes  []FastQuote      `json:"quotes"`
	Details []Detail         `json:"details"`
	History map[string][]Bar `json:"history,omitempty"`
}

// LoadStaticProvider reads a snapshot file into a StaticProvider.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	var snap Snapshot
	if err := LoadDataFromFile(path, &snap); err != nil {
		return nil, fmt.Errorf("load market snapshot %s: %w", path, err)
	}
	sp := NewStaticProvider()
	for i := range snap.Quotes {
		sp.SetQuote(&snap.Quotes[i])
	}
	for i := range snap.Details {
		sp.SetDetail(&snap.Details[i])
	}
	for symbol, bars := range snap.History {
		sp.SetHistory(symbol, bars)
	}
	return sp, nil
}

// NewProvider builds the configured provider followed by its fallbacks.
// The returned closers must be closed by the caller when done.
func NewProvider(config *Config) (Provider, []io.Closer, error) {
	names := append([]string{config.Provider}, config.FallbackProviders...)

	var (
		chain   Chain
		closers []io.Closer
	)
	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		// Only the primary provider must come up; fallbacks that cannot
		// are left out of the chain.
		primary := i == 0
		switch name {
		case "yahoo":
			chain = append(chain, NewYahooFinanceClient(config))
		case "finnhub":
			if config.FinnhubAPIKey == "" {
				if primary {
					return nil, closers, fmt.Errorf("finnhub API key not configured")
				}
				continue
			}
			chain = append(chain, NewFinnhubClient(config))
		case "longport":
			lp, err := NewLongportClient(LongportConfig{
				AppKey:      config.LongportAppKey,
				AppSecret:   config.LongportAppSecret,
				AccessToken: config.LongportAccessToken,
			})
			if err != nil {
				if primary {
					return nil, closers, err
				}
				continue
			}
			chain = append(chain, lp)
			closers = append(closers, lp)
		case "static":
			sp, err := LoadStaticProvider(filepath.Join(config.DataDir, "market_snapshot.json"))
			if err != nil {
				return nil, closers, err
			}
			chain = append(chain, sp)
		default:
			return nil, closers, fmt.Errorf("unknown provider %q", name)
		}
	}

	switch len(chain) {
	case 0:
		return nil, closers, fmt.Errorf("no market data provider configured")
	case 1:
		return chain[0], closers, nil
	}
	return chain, closers, nil
}
