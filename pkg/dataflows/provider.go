package dataflows

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoData is returned when a provider answered but had nothing usable.
var ErrNoData = errors.New("no data")

// Provider is a market data source. Every method may fail independently and
// every field it returns may be absent.
type Provider interface {
	Name() string
	FastQuote(ctx context.Context, symbol string) (*FastQuote, error)
	Detail(ctx context.Context, symbol string) (*Detail, error)
	History(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// Chain asks each provider in turn and returns the first successful answer.
type Chain []Provider

func (c Chain) Name() string {
	name := "chain"
	for _, p := range c {
		name += ":" + p.Name()
	}
	return name
}

func (c Chain) FastQuote(ctx context.Context, symbol string) (*FastQuote, error) {
	return first(ctx, c, func(p Provider) (*FastQuote, error) {
		return p.FastQuote(ctx, symbol)
	})
}

func (c Chain) Detail(ctx context.Context, symbol string) (*Detail, error) {
	return first(ctx, c, func(p Provider) (*Detail, error) {
		return p.Detail(ctx, symbol)
	})
}

func (c Chain) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	bars, err := first(ctx, c, func(p Provider) (*[]Bar, error) {
		b, err := p.History(ctx, symbol, days)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, ErrNoData
		}
		return &b, nil
	})
	if err != nil {
		return nil, err
	}
	return *bars, nil
}

func first[T any](ctx context.Context, providers []Provider, call func(Provider) (*T, error)) (*T, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("empty provider chain: %w", ErrNoData)
	}
	var errs []error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := call(p)
		if err == nil && v != nil {
			return v, nil
		}
		if err == nil {
			err = ErrNoData
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, errors.Join(errs...)
}
