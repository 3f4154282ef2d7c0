package dataflows

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// StaticProvider serves fixed records from memory. It backs offline runs and tests.
type StaticProvider struct {
	mu      sync.RWMutex
	quotes  map[string]*FastQuote
	details map[string]*Detail
	history map[string][]Bar
	failing map[string]error

	calls atomic.Int64
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		quotes:  make(map[string]*FastQuote),
		details: make(map[string]*Detail),
		history: make(map[string][]Bar),
		failing: make(map[string]error),
	}
}

func (s *StaticProvider) Name() string { return "static" }

// SetQuote registers the fast quote for a symbol.
func (s *StaticProvider) SetQuote(q *FastQuote) *StaticProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
	return s
}

// SetDetail registers the detail record for a symbol.
func (s *StaticProvider) SetDetail(d *Detail) *StaticProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[d.Symbol] = d
	return s
}

// SetHistory registers daily bars for a symbol.
func (s *StaticProvider) SetHistory(symbol string, bars []Bar) *StaticProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[symbol] = bars
	return s
}

// Fail makes every lookup of symbol return err.
func (s *StaticProvider) Fail(symbol string, err error) *StaticProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[symbol] = err
	return s
}

// Calls reports how many lookups have been served.
func (s *StaticProvider) Calls() int64 {
	return s.calls.Load()
}

func (s *StaticProvider) FastQuote(_ context.Context, symbol string) (*FastQuote, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failing[symbol]; err != nil {
		return nil, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", symbol, ErrNoData)
	}
	c := *q
	return &c, nil
}

func (s *StaticProvider) Detail(_ context.Context, symbol string) (*Detail, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failing[symbol]; err != nil {
		return nil, err
	}
	d, ok := s.details[symbol]
	if !ok {
		return nil, fmt.Errorf("detail %s: %w", symbol, ErrNoData)
	}
	c := *d
	return &c, nil
}

func (s *StaticProvider) History(_ context.Context, symbol string, days int) ([]Bar, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failing[symbol]; err != nil {
		return nil, err
	}
	bars, ok := s.history[symbol]
	if !ok || len(bars) == 0 {
		return nil, fmt.Errorf("history %s: %w", symbol, ErrNoData)
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}
