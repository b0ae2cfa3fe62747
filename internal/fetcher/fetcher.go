package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

// ErrUnknownWindow is returned for a trailing window outside the supported set.
var ErrUnknownWindow = errors.New("fetcher: unknown window")

// Window is a trailing fetch window relative to the request time.
type Window string

const (
	Window1Day    Window = "1d"
	Window10Days  Window = "10d"
	Window2Months Window = "2mo"
)

// ParseWindow validates s as a Window.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case Window1Day, Window10Days, Window2Months:
		return w, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWindow, s)
	}
}

// Bar is one daily OHLCV row as returned by a data source, keyed by calendar date.
type Bar struct {
	Date   model.Date
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Record tags b with ticker.
func (b Bar) Record(ticker string) model.Record {
	return model.Record{
		Date:   b.Date,
		Ticker: ticker,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// DailyFetcher retrieves a trailing window of daily bars for one ticker. It
// returns an empty slice, not an error, when the source has nothing.
type DailyFetcher interface {
	FetchDaily(ctx context.Context, ticker string, window Window) ([]Bar, error)
}
