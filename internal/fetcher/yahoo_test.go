package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

// 2024-03-04 21:00 UTC is already 2024-03-05 in Istanbul (UTC+3).
const chartOK = `{"chart":{"result":[{"meta":{"symbol":"THYAO.IS","exchangeTimezoneName":"Europe/Istanbul","gmtoffset":10800},
"timestamp":[1709586000,1709535600,1709672400],
"indicators":{"quote":[{"open":[290.5,285,null],"high":[292,287.25,null],"low":[289,284,null],"close":[291.25,286.5,null],"volume":[1500,1200,null]}]}}],"error":null}}`

func TestYahooFetchDaily(t *testing.T) {
	var gotPath, gotRange, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartOK))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	bars, err := y.FetchDaily(context.Background(), "THYAO.IS", Window10Days)
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if gotPath != "/v8/finance/chart/THYAO.IS" || gotRange != "10d" || gotInterval != "1d" {
		t.Fatalf("unexpected request %s range=%s interval=%s", gotPath, gotRange, gotInterval)
	}
	if len(bars) != 2 {
		t.Fatalf("null bar should be skipped, got %d bars", len(bars))
	}
	if bars[0].Date != model.NewDate(2024, time.March, 4) || bars[1].Date != model.NewDate(2024, time.March, 5) {
		t.Fatalf("bars should be sorted and dated in exchange time: %s %s", bars[0].Date, bars[1].Date)
	}
	if !bars[1].Close.Equal(decimal.RequireFromString("291.25")) || bars[1].Volume != 1500 {
		t.Fatalf("unexpected bar %+v", bars[1])
	}
}

func TestYahooFetchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"MIATK.IS"},"indicators":{"quote":[{}]}}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL}, noopLogger())
	bars, err := y.FetchDaily(context.Background(), "MIATK.IS", Window1Day)
	if err != nil {
		t.Fatalf("empty result is not an error: %v", err)
	}
	if len(bars) != 0 {
		t.Fatalf("expected no bars, got %d", len(bars))
	}
}

func TestYahooFetchNotFoundIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL}, noopLogger())
	bars, err := y.FetchDaily(context.Background(), "NOPE.IS", Window10Days)
	if err != nil {
		t.Fatalf("unknown symbol must yield no bars, not an error: %v", err)
	}
	if bars == nil || len(bars) != 0 {
		t.Fatalf("expected an empty sequence, got %v", bars)
	}
}

func TestYahooFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input - interval=1d is not supported"}}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL}, noopLogger())
	_, err := y.FetchDaily(context.Background(), "X.IS", Window10Days)
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected api error with description, got %v", err)
	}
}

func TestYahooFetchMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"timestamp":[1,2],"indicators":{"quote":[{"open":[1],"high":[1],"low":[1],"close":[1],"volume":[1]}]}}]}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL}, noopLogger())
	if _, err := y.FetchDaily(context.Background(), "X.IS", Window10Days); err == nil {
		t.Fatal("length mismatch should be an error")
	}
}

func TestParseWindow(t *testing.T) {
	for _, ok := range []string{"1d", "10d", "2mo"} {
		if _, err := ParseWindow(ok); err != nil {
			t.Fatalf("%s should be valid: %v", ok, err)
		}
	}
	if _, err := ParseWindow("5y"); !errors.Is(err, ErrUnknownWindow) {
		t.Fatalf("expected ErrUnknownWindow, got %v", err)
	}

	y := NewYahoo(YahooOptions{}, noopLogger())
	if _, err := y.FetchDaily(context.Background(), "X", Window("max")); !errors.Is(err, ErrUnknownWindow) {
		t.Fatalf("fetch must validate window, got %v", err)
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
