package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(config *Config) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL(config.FinnhubBaseURL)
	client.SetTimeout(config.RequestTimeout)

	return &FinnhubClient{
		client: client,
		apiKey: config.FinnhubAPIKey,
	}
}

func (fc *FinnhubClient) Name() string { return "finnhub" }

// finnhubQuote is the /quote payload
type finnhubQuote struct {
	Current       float64 `json:"c"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// finnhubProfile is the /stock/profile2 payload. Capitalization and share
// counts are reported in millions.
type finnhubProfile struct {
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	Currency             string  `json:"currency"`
	Exchange             string  `json:"exchange"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
}

type finnhubCandles struct {
	Close  []float64 `json:"c"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
	Status string    `json:"s"`
}

func (fc *FinnhubClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	if fc.apiKey == "" {
		return fmt.Errorf("Finnhub API key not configured")
	}

	resp, err := fc.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", fc.apiKey).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

func (fc *FinnhubClient) FastQuote(ctx context.Context, symbol string) (*FastQuote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var q finnhubQuote
	if err := fc.get(ctx, "/quote", map[string]string{"symbol": symbol}, &q); err != nil {
		return nil, err
	}
	if q.Current <= 0 && q.PreviousClose <= 0 {
		return nil, fmt.Errorf("finnhub quote %s: %w", symbol, ErrNoData)
	}

	// Finnhub quotes are in the listing currency; US listings only.
	return &FastQuote{
		Symbol:        symbol,
		LastPrice:     Ptr(q.Current),
		PreviousClose: Ptr(q.PreviousClose),
		Currency:      "USD",
	}, nil
}

func (fc *FinnhubClient) Detail(ctx context.Context, symbol string) (*Detail, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var p finnhubProfile
	if err := fc.get(ctx, "/stock/profile2", map[string]string{"symbol": symbol}, &p); err != nil {
		return nil, err
	}
	if p.Ticker == "" {
		return nil, fmt.Errorf("finnhub profile %s: %w", symbol, ErrNoData)
	}

	d := &Detail{
		Symbol:            symbol,
		QuoteType:         "EQUITY",
		MarketCap:         Ptr(p.MarketCapitalization * 1e6),
		SharesOutstanding: Ptr(p.ShareOutstanding * 1e6),
		Currency:          Currency(p.Currency),
	}

	var q finnhubQuote
	if err := fc.get(ctx, "/quote", map[string]string{"symbol": symbol}, &q); err == nil {
		d.CurrentPrice = Ptr(q.Current)
		d.PreviousClose = Ptr(q.PreviousClose)
	}
	return d, nil
}

func (fc *FinnhubClient) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	var c finnhubCandles
	err := fc.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}, &c)
	if err != nil {
		return nil, err
	}
	if c.Status != "ok" || len(c.Close) == 0 || len(c.Close) != len(c.Time) {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, ErrNoData)
	}

	bars := make([]Bar, 0, len(c.Close))
	for i := range c.Close {
		bar := Bar{
			Symbol: symbol,
			Date:   time.Unix(c.Time[i], 0),
			Close:  decimal.NewFromFloat(c.Close[i]),
		}
		if i < len(c.Open) {
			bar.Open = decimal.NewFromFloat(c.Open[i])
		}
		if i < len(c.High) {
			bar.High = decimal.NewFromFloat(c.High[i])
		}
		if i < len(c.Low) {
			bar.Low = decimal.NewFromFloat(c.Low[i])
		}
		if i < len(c.Volume) {
			bar.Volume = int64(c.Volume[i])
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
