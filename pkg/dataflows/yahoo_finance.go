package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
)

const yahooSummaryModules = "price,summaryDetail,defaultKeyStatistics,financialData"

// YahooFinanceClient handles Yahoo Finance data operations
type YahooFinanceClient struct {
	client *resty.Client
}

// NewYahooFinanceClient creates a new Yahoo Finance client
func NewYahooFinanceClient(config *Config) *YahooFinanceClient {
	client := resty.New()
	client.SetBaseURL(config.YahooBaseURL)
	client.SetTimeout(config.RequestTimeout)
	client.SetHeader("User-Agent", config.UserAgent)

	return &YahooFinanceClient{
		client: client,
	}
}

func (yf *YahooFinanceClient) Name() string { return "yahoo" }

// FastQuote gets the regular-market quote for a symbol
func (yf *YahooFinanceClient) FastQuote(ctx context.Context, symbol string) (*FastQuote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := equity.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, ErrNoData)
	}

	return &FastQuote{
		Symbol:        symbol,
		LastPrice:     Ptr(q.RegularMarketPrice),
		PreviousClose: Ptr(q.RegularMarketPreviousClose),
		MarketCap:     Ptr(float64(q.MarketCap)),
		Currency:      Currency(q.CurrencyID),
	}, nil
}

// Detail gets the full instrument record. The quote endpoint supplies price,
// shares and classification; quoteSummary adds fund total assets.
func (yf *YahooFinanceClient) Detail(ctx context.Context, symbol string) (*Detail, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	detail, quoteErr := yf.detailFromQuote(ctx, symbol)
	summary, summaryErr := yf.quoteSummary(ctx, symbol)

	switch {
	case quoteErr != nil && summaryErr != nil:
		return nil, fmt.Errorf("failed to get detail for %s: %w; %w", symbol, quoteErr, summaryErr)
	case quoteErr != nil:
		return summary, nil
	case summaryErr != nil:
		return detail, nil
	}

	mergeDetail(detail, summary)
	return detail, nil
}

func (yf *YahooFinanceClient) detailFromQuote(ctx context.Context, symbol string) (*Detail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := equity.Get(symbol)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNoData
	}
	return &Detail{
		Symbol:            symbol,
		QuoteType:         string(q.QuoteType),
		CurrentPrice:      Ptr(q.RegularMarketPrice),
		PreviousClose:     Ptr(q.RegularMarketPreviousClose),
		SharesOutstanding: Ptr(float64(q.SharesOutstanding)),
		MarketCap:         Ptr(float64(q.MarketCap)),
		Currency:          Currency(q.CurrencyID),
	}, nil
}

// mergeDetail fills fields of dst that are absent from src.
func mergeDetail(dst, src *Detail) {
	if dst.QuoteType == "" {
		dst.QuoteType = src.QuoteType
	}
	if dst.CurrentPrice == nil {
		dst.CurrentPrice = src.CurrentPrice
	}
	if dst.PreviousClose == nil {
		dst.PreviousClose = src.PreviousClose
	}
	if dst.SharesOutstanding == nil {
		dst.SharesOutstanding = src.SharesOutstanding
	}
	if dst.MarketCap == nil {
		dst.MarketCap = src.MarketCap
	}
	if dst.TotalAssets == nil {
		dst.TotalAssets = src.TotalAssets
	}
}

type yahooRaw struct {
	Raw *float64 `json:"raw"`
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price *struct {
				QuoteType                  string   `json:"quoteType"`
				Currency                   string   `json:"currency"`
				RegularMarketPrice         yahooRaw `json:"regularMarketPrice"`
				RegularMarketPreviousClose yahooRaw `json:"regularMarketPreviousClose"`
				MarketCap                  yahooRaw `json:"marketCap"`
			} `json:"price"`
			SummaryDetail *struct {
				PreviousClose yahooRaw `json:"previousClose"`
				MarketCap     yahooRaw `json:"marketCap"`
				TotalAssets   yahooRaw `json:"totalAssets"`
				Currency      string   `json:"currency"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics *struct {
				SharesOutstanding yahooRaw `json:"sharesOutstanding"`
				TotalAssets       yahooRaw `json:"totalAssets"`
			} `json:"defaultKeyStatistics"`
			FinancialData *struct {
				CurrentPrice yahooRaw `json:"currentPrice"`
			} `json:"financialData"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (yf *YahooFinanceClient) quoteSummary(ctx context.Context, symbol string) (*Detail, error) {
	resp, err := yf.client.R().
		SetContext(ctx).
		SetQueryParam("modules", yahooSummaryModules).
		Get("/v10/finance/quoteSummary/" + url.PathEscape(symbol))
	if err != nil {
		return nil, fmt.Errorf("quoteSummary %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quoteSummary %s: API error %d", symbol, resp.StatusCode())
	}

	var payload yahooSummaryResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse quoteSummary response: %w", err)
	}
	return payload.detail(symbol)
}

func (p *yahooSummaryResponse) detail(symbol string) (*Detail, error) {
	if e := p.QuoteSummary.Error; e != nil {
		return nil, fmt.Errorf("quoteSummary %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(p.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("quoteSummary %s: %w", symbol, ErrNoData)
	}

	r := p.QuoteSummary.Result[0]
	d := &Detail{Symbol: symbol}
	if r.Price != nil {
		d.QuoteType = r.Price.QuoteType
		d.Currency = r.Price.Currency
		d.CurrentPrice = positivePtr(r.Price.RegularMarketPrice.Raw)
		d.PreviousClose = positivePtr(r.Price.RegularMarketPreviousClose.Raw)
		d.MarketCap = positivePtr(r.Price.MarketCap.Raw)
	}
	if r.FinancialData != nil && d.CurrentPrice == nil {
		d.CurrentPrice = positivePtr(r.FinancialData.CurrentPrice.Raw)
	}
	if r.SummaryDetail != nil {
		if d.PreviousClose == nil {
			d.PreviousClose = positivePtr(r.SummaryDetail.PreviousClose.Raw)
		}
		if d.MarketCap == nil {
			d.MarketCap = positivePtr(r.SummaryDetail.MarketCap.Raw)
		}
		d.TotalAssets = positivePtr(r.SummaryDetail.TotalAssets.Raw)
		if d.Currency == "" {
			d.Currency = r.SummaryDetail.Currency
		}
	}
	if r.DefaultKeyStatistics != nil {
		d.SharesOutstanding = positivePtr(r.DefaultKeyStatistics.SharesOutstanding.Raw)
		if d.TotalAssets == nil {
			d.TotalAssets = positivePtr(r.DefaultKeyStatistics.TotalAssets.Raw)
		}
	}
	d.Currency = Currency(d.Currency)
	return d, nil
}

func positivePtr(p *float64) *float64 {
	if v, ok := Positive(p); ok {
		return &v
	}
	return nil
}

// History gets daily bars for the trailing window of days
func (yf *YahooFinanceClient) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)

	result := make([]Bar, 0, days)
	for iter.Next() {
		bar := iter.Bar()
		result = append(result, Bar{
			Symbol: symbol,
			Date:   time.Unix(int64(bar.Timestamp), 0),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: int64(bar.Volume),
		})
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("history %s: %w", symbol, ErrNoData)
	}

	return result, nil
}
