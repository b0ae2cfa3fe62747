package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Key is the natural key of a Record. At most one record exists per key.
type Key struct {
	Date   Date
	Ticker string
}

func (k Key) String() string { return k.Date.String() + "/" + k.Ticker }

// Record is one daily OHLCV row for a ticker.
type Record struct {
	Date   Date
	Ticker string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Key returns the natural key of r.
func (r Record) Key() Key { return Key{Date: r.Date, Ticker: r.Ticker} }

// Up reports whether the day closed at or above its open.
func (r Record) Up() bool { return r.Close.GreaterThanOrEqual(r.Open) }

// Validate rejects rows that cannot be stored.
func (r Record) Validate() error {
	if r.Date.IsZero() {
		return errors.New("record: missing date")
	}
	if r.Ticker == "" {
		return errors.New("record: missing ticker")
	}
	for name, v := range map[string]decimal.Decimal{"open": r.Open, "high": r.High, "low": r.Low, "close": r.Close} {
		if v.IsNegative() {
			return fmt.Errorf("record %s: negative %s %s", r.Key(), name, v.String())
		}
	}
	if r.Volume < 0 {
		return fmt.Errorf("record %s: negative volume %d", r.Key(), r.Volume)
	}
	return nil
}

// KeySet is the set of keys already present in a store snapshot.
type KeySet map[Key]struct{}

// NewKeySet indexes records by key.
func NewKeySet(records []Record) KeySet {
	set := make(KeySet, len(records))
	for _, r := range records {
		set[r.Key()] = struct{}{}
	}
	return set
}

// Has reports whether k is present.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Add inserts k.
func (s KeySet) Add(k Key) { s[k] = struct{}{} }

// Tickers returns the distinct tickers of records in ascending lexical order.
func Tickers(records []Record) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Ticker]; ok {
			continue
		}
		seen[r.Ticker] = struct{}{}
		out = append(out, r.Ticker)
	}
	sort.Strings(out)
	return out
}

// ForTicker returns the records of ticker sorted ascending by date. Records
// sharing a date keep their store order.
func ForTicker(records []Record, ticker string) []Record {
	out := make([]Record, 0)
	for _, r := range records {
		if r.Ticker == ticker {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
