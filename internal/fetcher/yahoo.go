package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

const (
	yahooChartPath   = "/v8/finance/chart/"
	defaultYahooBase = "https://query1.finance.yahoo.com"
	pricePlaces      = 6
)

// YahooOptions parameterise the Yahoo chart client.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches daily bars from the Yahoo Finance chart API.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs a Yahoo fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYahooBase
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchDaily retrieves daily bars for ticker over window, oldest first.
func (y *Yahoo) FetchDaily(ctx context.Context, ticker string, window Window) ([]Bar, error) {
	if _, err := ParseWindow(string(window)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("ticker required")
	}

	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("range", string(window))
	endpoint := y.baseURL + yahooChartPath + url.PathEscape(ticker) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "Mozilla/5.0")
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	// Unknown or delisted symbols come back as a 404 with code "Not Found".
	if decodeErr == nil && chart.Chart.Error != nil && chart.Chart.Error.Code == yahooNotFound {
		y.logger.Debug().Str("ticker", ticker).Str("reason", chart.Chart.Error.Description).Msg("no data for ticker")
		return []Bar{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && chart.Chart.Error != nil {
			return nil, fmt.Errorf("yahoo api error (%d): %s", resp.StatusCode, chart.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("yahoo decode: %w", decodeErr)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}

	if len(chart.Chart.Result) == 0 {
		return []Bar{}, nil
	}
	return y.toBars(ticker, chart.Chart.Result[0])
}

func (y *Yahoo) toBars(ticker string, result chartResult) ([]Bar, error) {
	if len(result.Timestamp) == 0 {
		return []Bar{}, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: quote block missing for %s", ticker)
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n || len(quote.Close) != n || len(quote.Volume) != n {
		return nil, fmt.Errorf("yahoo: series length mismatch for %s", ticker)
	}

	loc := time.FixedZone(result.Meta.ExchangeTimezoneName, result.Meta.GMTOffset)

	bars := make([]Bar, 0, n)
	for i, ts := range result.Timestamp {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			y.logger.Debug().Str("ticker", ticker).Int64("timestamp", ts).Msg("skipping null bar")
			continue
		}
		var volume int64
		if quote.Volume[i] != nil {
			volume = int64(*quote.Volume[i])
		}
		bars = append(bars, Bar{
			Date:   model.DateOf(time.Unix(ts, 0).In(loc)),
			Open:   toPrice(*quote.Open[i]),
			High:   toPrice(*quote.High[i]),
			Low:    toPrice(*quote.Low[i]),
			Close:  toPrice(*quote.Close[i]),
			Volume: volume,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func toPrice(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(pricePlaces)
}

const yahooNotFound = "Not Found"

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
		GMTOffset            int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

var _ DailyFetcher = (*Yahoo)(nil)
