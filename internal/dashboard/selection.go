package dashboard

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownTicker is returned when a selection names a ticker absent from the store.
var ErrUnknownTicker = errors.New("dashboard: unknown ticker")

// Selection is the per-session ticker selection. The zero value is NoSelection.
type Selection struct {
	ticker      string
	selected    bool
	initialized bool
}

// Init sets the initial state from the tickers present in the store. It only
// has an effect until the first ticker becomes available; later calls keep
// the current state.
func (s *Selection) Init(tickers []string) {
	if s.initialized || len(tickers) == 0 {
		return
	}
	s.ticker = slices.Min(tickers)
	s.selected = true
	s.initialized = true
}

// Select moves the state to Selected(ticker). Selecting the current ticker
// again is a no-op. A ticker not present in tickers leaves the state unchanged.
func (s *Selection) Select(ticker string, tickers []string) error {
	if !slices.Contains(tickers, ticker) {
		return fmt.Errorf("%w: %q", ErrUnknownTicker, ticker)
	}
	s.ticker = ticker
	s.selected = true
	s.initialized = true
	return nil
}

// Ticker reports the selected ticker, if any.
func (s Selection) Ticker() (string, bool) {
	return s.ticker, s.selected
}

func (s Selection) String() string {
	if !s.selected {
		return "NoSelection"
	}
	return "Selected(" + s.ticker + ")"
}
