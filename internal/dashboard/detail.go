package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"bist-tracker/internal/model"
)

// DefaultRecentWindow is the number of trailing records used for axis scaling.
const DefaultRecentWindow = 30

var (
	timePadding  = decimal.RequireFromString("0.05")
	pricePadding = decimal.RequireFromString("0.15")
)

// TooltipFields lists the record fields shown for each plotted point.
var TooltipFields = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// TimeDomain is the horizontal axis range. Min equals Max for a single record.
type TimeDomain struct {
	Min time.Time
	Max time.Time
}

// PriceDomain is the vertical axis range. Min equals Max for a flat window.
type PriceDomain struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Degenerate reports whether the domain has zero height.
func (d PriceDomain) Degenerate() bool { return d.Min.Equal(d.Max) }

// VolumeBar is one day of traded volume coloured by the day's direction.
type VolumeBar struct {
	Date   model.Date
	Volume int64
	Up     bool
}

// Detail is the chart and table model for one ticker.
type Detail struct {
	Ticker string
	// Records holds every record for the ticker, ascending by date. Charts plot all of them.
	Records []model.Record
	// Recent is the trailing window used only for scaling.
	Recent  []model.Record
	XDomain TimeDomain
	YDomain PriceDomain
	Volume  []VolumeBar
}

// NewDetail derives the detail view from records sorted ascending by date.
// A non-positive recentWindow falls back to DefaultRecentWindow.
func NewDetail(ticker string, records []model.Record, recentWindow int) Detail {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	d := Detail{Ticker: ticker, Records: records}
	if len(records) == 0 {
		return d
	}

	start := max(0, len(records)-recentWindow)
	d.Recent = records[start:]
	d.XDomain = timeDomain(d.Recent)
	d.YDomain = priceDomain(d.Recent)

	d.Volume = make([]VolumeBar, len(records))
	for i, r := range records {
		d.Volume[i] = VolumeBar{Date: r.Date, Volume: r.Volume, Up: r.Up()}
	}
	return d
}

// Empty reports whether the ticker has no records.
func (d Detail) Empty() bool { return len(d.Records) == 0 }

// Tail returns the most recent n records, or all of them when n is larger.
func (d Detail) Tail(n int) []model.Record {
	if n <= 0 {
		return nil
	}
	if n >= len(d.Records) {
		return d.Records
	}
	return d.Records[len(d.Records)-n:]
}

func timeDomain(window []model.Record) TimeDomain {
	lo, hi := window[0].Date, window[0].Date
	for _, r := range window[1:] {
		if r.Date.Before(lo) {
			lo = r.Date
		}
		if r.Date.After(hi) {
			hi = r.Date
		}
	}
	span := hi.Time().Sub(lo.Time())
	pad := time.Duration(decimal.NewFromInt(int64(span)).Mul(timePadding).IntPart())
	return TimeDomain{Min: lo.Time().Add(-pad), Max: hi.Time().Add(pad)}
}

func priceDomain(window []model.Record) PriceDomain {
	lo, hi := window[0].Close, window[0].Close
	for _, r := range window[1:] {
		lo = decimal.Min(lo, r.Close)
		hi = decimal.Max(hi, r.Close)
	}
	pad := hi.Sub(lo).Mul(pricePadding)
	return PriceDomain{
		Min: decimal.Max(decimal.Zero, lo.Sub(pad)),
		Max: hi.Add(pad),
	}
}
