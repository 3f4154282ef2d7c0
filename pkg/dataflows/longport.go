package dataflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"
)

// LongportConfig holds the OpenAPI credentials.
type LongportConfig struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

// LongportClient answers lookups through the Longport quote context.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg LongportConfig) (*LongportClient, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.AccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.AppKey, cfg.AppSecret, cfg.AccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{
		quoteCtx: quoteContext,
	}, nil
}

func (lpc *LongportClient) Name() string { return "longport" }

// Close releases the underlying connection.
func (lpc *LongportClient) Close() error {
	if lpc.quoteCtx == nil {
		return nil
	}
	return lpc.quoteCtx.Close()
}

// LongportSymbol converts a Yahoo-style symbol to Longport's SYMBOL.MARKET form.
// Symbols without a market suffix are treated as US listings.
func LongportSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.LastIndex(s, "."); i > 0 {
		switch s[i+1:] {
		case "US", "HK", "SH", "SZ", "SG":
			return s
		}
	}
	return strings.ReplaceAll(s, "-", ".") + ".US"
}

func (lpc *LongportClient) securityQuote(ctx context.Context, symbol string) (*quote.SecurityQuote, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	quotes, err := lpc.quoteCtx.Quote(ctx, []string{LongportSymbol(symbol)})
	if err != nil {
		return nil, fmt.Errorf("longport quote %s: %w", symbol, err)
	}
	if len(quotes) == 0 || quotes[0] == nil {
		return nil, fmt.Errorf("longport quote %s: %w", symbol, ErrNoData)
	}
	return quotes[0], nil
}

func (lpc *LongportClient) staticInfo(ctx context.Context, symbol string) (*quote.StaticInfo, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	infos, err := lpc.quoteCtx.StaticInfo(ctx, []string{LongportSymbol(symbol)})
	if err != nil {
		return nil, fmt.Errorf("longport static info %s: %w", symbol, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("longport static info %s: %w", symbol, ErrNoData)
	}
	return infos[0], nil
}

func (lpc *LongportClient) FastQuote(ctx context.Context, symbol string) (*FastQuote, error) {
	q, err := lpc.securityQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	fq := &FastQuote{
		Symbol:        symbol,
		LastPrice:     decimalPtr(q.LastDone),
		PreviousClose: decimalPtr(q.PrevClose),
		Currency:      "USD",
	}
	if info, err := lpc.staticInfo(ctx, symbol); err == nil {
		fq.Currency = Currency(info.Currency)
	}
	return fq, nil
}

// Detail combines static info (shares, currency) with the live quote. Longport
// does not report a market valuation, so the resolver derives one.
func (lpc *LongportClient) Detail(ctx context.Context, symbol string) (*Detail, error) {
	info, err := lpc.staticInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	d := &Detail{
		Symbol:            symbol,
		QuoteType:         "EQUITY",
		SharesOutstanding: Ptr(float64(info.TotalShares)),
		Currency:          Currency(info.Currency),
	}
	if q, err := lpc.securityQuote(ctx, symbol); err == nil {
		d.CurrentPrice = decimalPtr(q.LastDone)
		d.PreviousClose = decimalPtr(q.PrevClose)
	}
	return d, nil
}

func (lpc *LongportClient) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, LongportSymbol(symbol), quote.PeriodDay, int32(days), quote.AdjustTypeNo)
	if err != nil {
		return nil, fmt.Errorf("longport candlesticks %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(sticks))
	for _, s := range sticks {
		if s == nil || s.Close == nil {
			continue
		}
		bars = append(bars, Bar{
			Symbol: symbol,
			Date:   time.Unix(s.Timestamp, 0),
			Open:   decimalValue(s.Open),
			High:   decimalValue(s.High),
			Low:    decimalValue(s.Low),
			Close:  *s.Close,
			Volume: s.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("longport candlesticks %s: %w", symbol, ErrNoData)
	}
	return bars, nil
}

func decimalPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	return Ptr(d.InexactFloat64())
}

func decimalValue(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
