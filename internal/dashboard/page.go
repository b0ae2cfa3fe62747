package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bist-tracker/internal/model"
	"bist-tracker/internal/storage"
)

// NoticeKind identifies a condition surfaced on the page.
type NoticeKind string

const (
	NoticeStoreMissing    NoticeKind = "store_missing"
	NoticeStoreUnreadable NoticeKind = "store_unreadable"
	NoticeStoreEmpty      NoticeKind = "store_empty"
	NoticeNoTickerData    NoticeKind = "no_ticker_data"
)

// Notice is a message shown instead of, or above, a view.
type Notice struct {
	Kind    NoticeKind
	Message string
	// Blocking notices replace the whole page body.
	Blocking bool
}

// Page is everything a rendering pass needs.
type Page struct {
	GeneratedAt time.Time
	Notices     []Notice
	Summaries   []Summary
	Selection   Selection
	Detail      *Detail
	TableRows   int
}

// Blocked reports whether a blocking notice suppresses the page body.
func (p Page) Blocked() bool {
	for _, n := range p.Notices {
		if n.Blocking {
			return true
		}
	}
	return false
}

// Table returns the trailing rows shown under the charts.
func (p Page) Table() []model.Record {
	if p.Detail == nil {
		return nil
	}
	return p.Detail.Tail(p.TableRows)
}

// IsSelected reports whether ticker is the current selection.
func (p Page) IsSelected(ticker string) bool {
	t, ok := p.Selection.Ticker()
	return ok && t == ticker
}

// Options configure a Presenter.
type Options struct {
	RecentWindow int
	TableRows    int
}

// Presenter derives dashboard pages from the persisted store. It reads the
// store once per call and keeps no state between calls.
type Presenter struct {
	store  storage.Reader
	opts   Options
	logger zerolog.Logger
}

// NewPresenter constructs a Presenter over store.
func NewPresenter(store storage.Reader, opts Options, logger zerolog.Logger) *Presenter {
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = DefaultRecentWindow
	}
	return &Presenter{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "dashboard").Logger(),
	}
}

// Build loads the store and derives the page for sel, initialising sel on the
// first load that finds tickers. tableRows overrides the configured table
// length when positive. Store conditions become notices; only context errors
// are returned.
func (p *Presenter) Build(ctx context.Context, sel *Selection, tableRows int) (Page, error) {
	page := Page{GeneratedAt: time.Now().UTC(), TableRows: p.opts.TableRows}
	if tableRows > 0 {
		page.TableRows = tableRows
	}

	records, notice, err := p.load(ctx)
	if err != nil {
		return page, err
	}
	if notice != nil {
		page.Notices = append(page.Notices, *notice)
		page.Selection = *sel
		return page, nil
	}

	tickers := model.Tickers(records)
	sel.Init(tickers)
	page.Selection = *sel
	page.Summaries = Summaries(records)

	ticker, ok := sel.Ticker()
	if !ok {
		return page, nil
	}
	rows := model.ForTicker(records, ticker)
	if len(rows) == 0 {
		page.Notices = append(page.Notices, Notice{
			Kind:    NoticeNoTickerData,
			Message: fmt.Sprintf("No data for %s.", ticker),
		})
		return page, nil
	}
	detail := NewDetail(ticker, rows, p.opts.RecentWindow)
	page.Detail = &detail
	return page, nil
}

// Select applies a selection event against the tickers currently in the store.
func (p *Presenter) Select(ctx context.Context, sel *Selection, ticker string) error {
	records, notice, err := p.load(ctx)
	if err != nil {
		return err
	}
	if notice != nil {
		return fmt.Errorf("%w: %q (%s)", ErrUnknownTicker, ticker, notice.Kind)
	}
	if err := sel.Select(ticker, model.Tickers(records)); err != nil {
		return err
	}
	p.logger.Debug().Str("ticker", ticker).Msg("ticker selected")
	return nil
}

// Detail derives the detail view for one ticker.
func (p *Presenter) Detail(ctx context.Context, ticker string) (Detail, error) {
	records, notice, err := p.load(ctx)
	if err != nil {
		return Detail{}, err
	}
	if notice != nil {
		return Detail{}, fmt.Errorf("%w: %q (%s)", ErrUnknownTicker, ticker, notice.Kind)
	}
	rows := model.ForTicker(records, ticker)
	if len(rows) == 0 {
		return Detail{}, fmt.Errorf("%w: %q", ErrUnknownTicker, ticker)
	}
	return NewDetail(ticker, rows, p.opts.RecentWindow), nil
}

func (p *Presenter) load(ctx context.Context) ([]model.Record, *Notice, error) {
	snap, err := p.store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrStoreMissing):
		p.logger.Warn().Msg("store not found")
		return nil, &Notice{
			Kind:     NoticeStoreMissing,
			Message:  "Data file not found. Run the updater first.",
			Blocking: true,
		}, nil
	case errors.Is(err, storage.ErrStoreUnreadable):
		p.logger.Error().Err(err).Msg("store unreadable")
		return nil, &Notice{
			Kind:     NoticeStoreUnreadable,
			Message:  "Data file could not be read.",
			Blocking: true,
		}, nil
	default:
		return nil, nil, fmt.Errorf("load store: %w", err)
	}

	if snap.Empty() {
		return nil, &Notice{
			Kind:    NoticeStoreEmpty,
			Message: "No data yet. Waiting for the first update.",
		}, nil
	}
	return snap.Records, nil, nil
}
