package dashboard

import (
	"strings"

	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

// Trend classifies the latest percent change.
type Trend string

const (
	TrendNone Trend = ""
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// PricePlaceholder is shown when a ticker has no price yet.
const PricePlaceholder = "---"

var hundred = decimal.NewFromInt(100)

// Summary is one row of the ticker list.
type Summary struct {
	Ticker    string
	Records   int
	LastPrice decimal.Decimal
	HasPrice  bool
	Change    decimal.Decimal
	HasChange bool
	Trend     Trend
}

// Summarize derives the list row for ticker from its records sorted ascending by date.
func Summarize(ticker string, records []model.Record) Summary {
	s := Summary{Ticker: ticker, Records: len(records)}
	if len(records) == 0 {
		return s
	}

	last := records[len(records)-1].Close
	s.LastPrice = last
	s.HasPrice = true
	if len(records) < 2 {
		return s
	}

	prev := records[len(records)-2].Close
	if prev.IsZero() {
		return s
	}
	s.Change = last.Sub(prev).Div(prev).Mul(hundred)
	s.HasChange = true
	switch s.Change.Sign() {
	case 1:
		s.Trend = TrendUp
	case -1:
		s.Trend = TrendDown
	default:
		s.Trend = TrendFlat
	}
	return s
}

// Summaries builds one row per distinct ticker in ascending order.
func Summaries(records []model.Record) []Summary {
	tickers := model.Tickers(records)
	out := make([]Summary, 0, len(tickers))
	for _, ticker := range tickers {
		out = append(out, Summarize(ticker, model.ForTicker(records, ticker)))
	}
	return out
}

// PriceText renders the last price with two decimals or the placeholder.
func (s Summary) PriceText() string {
	if !s.HasPrice {
		return PricePlaceholder
	}
	return s.LastPrice.StringFixed(2)
}

// ChangeText renders the percent change with an explicit sign, e.g. "+2.35%".
// It is empty when there is no previous close.
func (s Summary) ChangeText() string {
	if !s.HasChange {
		return ""
	}
	return FormatChange(s.Change)
}

// FormatChange renders pct rounded to two decimals with an explicit sign.
// The sign follows the unrounded value.
func FormatChange(pct decimal.Decimal) string {
	text := pct.StringFixed(2)
	if !strings.HasPrefix(text, "-") {
		if pct.IsNegative() {
			text = "-" + text
		} else {
			text = "+" + text
		}
	}
	return text + "%"
}
