package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"bist-tracker/internal/dashboard"
	"bist-tracker/internal/model"
)

// ErrNoRecords is returned when a chart is requested for an empty detail view.
var ErrNoRecords = errors.New("render: no records to chart")

var (
	priceColor = drawing.ColorFromHex("1f77b4")
	upColor    = drawing.ColorFromHex("2ca02c")
	downColor  = drawing.ColorFromHex("d62728")
)

// Size is a chart canvas size in pixels.
type Size struct {
	Width  int
	Height int
}

// DefaultSize is used when a dimension is not positive.
var DefaultSize = Size{Width: 1024, Height: 400}

func (s Size) orDefault() Size {
	if s.Width <= 0 {
		s.Width = DefaultSize.Width
	}
	if s.Height <= 0 {
		s.Height = DefaultSize.Height
	}
	return s
}

// PriceChart plots every close of the detail view as a line with point marks,
// scaled to the detail's domains. Points outside the domains are not drawn.
func PriceChart(d dashboard.Detail, size Size) (chart.Chart, error) {
	if d.Empty() {
		return chart.Chart{}, ErrNoRecords
	}
	size = size.orDefault()
	xMin, xMax := visibleTime(d.XDomain)
	yMin, yMax := visiblePrice(d.YDomain)

	xs := make([]time.Time, 0, len(d.Records))
	ys := make([]float64, 0, len(d.Records))
	for _, r := range d.Records {
		x := chart.TimeToFloat64(r.Date.Time())
		y := r.Close.InexactFloat64()
		if x < xMin || x > xMax || y < yMin || y > yMax {
			continue
		}
		xs = append(xs, r.Date.Time())
		ys = append(ys, y)
	}
	if len(xs) == 0 {
		return chart.Chart{}, ErrNoRecords
	}

	return chart.Chart{
		Title:  d.Ticker,
		Width:  size.Width,
		Height: size.Height,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: dateFormatter,
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
		},
		YAxis: chart.YAxis{
			Name:           "Close",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: yMin, Max: yMax},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    d.Ticker,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: priceColor,
					StrokeWidth: 2,
					DotColor:    priceColor,
					DotWidth:    3,
				},
			},
		},
	}, nil
}

// VolumeChart draws one bar per day on the same horizontal domain as
// PriceChart, green when the close is at or above the open and red otherwise.
func VolumeChart(d dashboard.Detail, size Size) (chart.Chart, error) {
	if d.Empty() {
		return chart.Chart{}, ErrNoRecords
	}
	size = size.orDefault()
	xMin, xMax := visibleTime(d.XDomain)

	bars := make([]dashboard.VolumeBar, 0, len(d.Volume))
	var top int64
	for _, b := range d.Volume {
		x := chart.TimeToFloat64(b.Date.Time())
		if x < xMin || x > xMax {
			continue
		}
		bars = append(bars, b)
		top = max(top, b.Volume)
	}
	yMax := float64(top) * 1.1
	if yMax <= 0 {
		yMax = 1
	}

	return chart.Chart{
		Width:  size.Width,
		Height: size.Height / 2,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: dateFormatter,
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
		},
		YAxis: chart.YAxis{
			Name:           "Volume",
			ValueFormatter: volumeFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: yMax},
		},
		Series: []chart.Series{volumeSeries{name: d.Ticker + " volume", bars: bars}},
	}, nil
}

// Write renders graph to w as SVG or PNG.
func Write(w io.Writer, graph chart.Chart, format Format) error {
	provider := chart.SVG
	if format == FormatPNG {
		provider = chart.PNG
	}
	if err := graph.Render(provider, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Format selects the chart output encoding.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

func svg(graph chart.Chart, err error) (string, error) {
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := Write(&buf, graph, FormatSVG); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// visibleTime widens a zero-width time domain by half a day on each side so
// the chart library gets a non-empty range.
func visibleTime(d dashboard.TimeDomain) (float64, float64) {
	lo, hi := d.Min, d.Max
	if !hi.After(lo) {
		lo = lo.Add(-model.Day / 2)
		hi = hi.Add(model.Day / 2)
	}
	return chart.TimeToFloat64(lo), chart.TimeToFloat64(hi)
}

// visiblePrice widens a zero-height price domain by 1% of its value, never
// below zero.
func visiblePrice(d dashboard.PriceDomain) (float64, float64) {
	lo, hi := d.Min, d.Max
	if d.Degenerate() {
		pad := lo.Abs().Mul(decimal.RequireFromString("0.01"))
		if pad.IsZero() {
			pad = decimal.NewFromInt(1)
		}
		lo = decimal.Max(decimal.Zero, lo.Sub(pad))
		hi = hi.Add(pad)
	}
	return lo.InexactFloat64(), hi.InexactFloat64()
}

func dateFormatter(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return chart.TimeFromFloat64(t).UTC().Format(model.DateFormat)
	case time.Time:
		return t.UTC().Format(model.DateFormat)
	default:
		return ""
	}
}

func priceFormatter(v interface{}) string {
	return chart.FloatValueFormatterWithFormat(v, "%.2f")
}

func volumeFormatter(v interface{}) string {
	return chart.FloatValueFormatterWithFormat(v, "%.0f")
}

// volumeSeries draws filled bars; go-chart's Chart has no bar series of its own.
type volumeSeries struct {
	name string
	bars []dashboard.VolumeBar
}

var _ chart.Series = volumeSeries{}

func (s volumeSeries) GetName() string { return s.name }
func (s volumeSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s volumeSeries) GetStyle() chart.Style { return chart.Style{} }
func (s volumeSeries) Validate() error { return nil }

func (s volumeSeries) Render(r chart.Renderer, canvas chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	if len(s.bars) == 0 {
		return
	}
	first := chart.TimeToFloat64(s.bars[0].Date.Time())
	dayWidth := xrange.Translate(first+float64(model.Day)) - xrange.Translate(first)
	half := max(1, dayWidth*4/10)

	for _, b := range s.bars {
		cx := canvas.Left + xrange.Translate(chart.TimeToFloat64(b.Date.Time()))
		top := canvas.Bottom - yrange.Translate(float64(b.Volume))
		colour := downColor
		if b.Up {
			colour = upColor
		}
		r.SetFillColor(colour)
		r.SetStrokeColor(colour)
		r.SetStrokeWidth(1)
		r.MoveTo(cx-half, top)
		r.LineTo(cx+half, top)
		r.LineTo(cx+half, canvas.Bottom)
		r.LineTo(cx-half, canvas.Bottom)
		r.LineTo(cx-half, top)
		r.Close()
		r.FillStroke()
	}
}
