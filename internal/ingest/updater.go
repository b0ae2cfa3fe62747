package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bist-tracker/internal/alerting"
	"bist-tracker/internal/fetcher"
	"bist-tracker/internal/model"
	"bist-tracker/internal/storage"
)

// ErrWriteFailed marks a run whose final append did not complete.
var ErrWriteFailed = errors.New("ingest: write failed")

// Store is the persisted store as seen by the updater.
type Store interface {
	storage.Reader
	storage.Appender
}

// Options configure an Updater.
type Options struct {
	Tickers []string
	Window  fetcher.Window
	LockKey int64
	// NotifyOnEmpty sends a notification even when nothing was appended and nothing failed.
	NotifyOnEmpty bool
	// DryRun fetches and deduplicates without touching the store.
	DryRun bool
}

// Updater appends newly published daily bars to the store, never duplicating
// a (date, ticker) key.
type Updater struct {
	opts     Options
	store    Store
	source   fetcher.DailyFetcher
	mirror   storage.RecordMirror
	locker   storage.AdvisoryLocker
	notifier alerting.Notifier
	logger   zerolog.Logger
}

// New constructs an Updater. mirror and notifier may be nil.
func New(opts Options, store Store, source fetcher.DailyFetcher, mirror storage.RecordMirror, notifier alerting.Notifier, logger zerolog.Logger) *Updater {
	var locker storage.AdvisoryLocker
	if l, ok := mirror.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Updater{
		opts:     opts,
		store:    store,
		source:   source,
		mirror:   mirror,
		locker:   locker,
		notifier: notifier,
		logger:   logger.With().Str("component", "updater").Logger(),
	}
}

// Run performs one ingestion pass. Per-ticker failures are logged and do not
// abort the run; only a failed append returns an error wrapping ErrWriteFailed.
func (u *Updater) Run(ctx context.Context) (Report, error) {
	unlock, proceed, err := u.acquireLock(ctx)
	if err != nil {
		return Report{}, err
	}
	if !proceed {
		u.logger.Warn().Msg("skip run because another updater holds the lock")
		return Report{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	report, err := u.execute(ctx)
	u.notify(ctx, report, err)
	return report, err
}

func (u *Updater) execute(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}

	snap, err := u.store.Load(ctx)
	switch {
	case err == nil:
		u.logger.Debug().Int("records", len(snap.Records)).Msg("store loaded")
	case errors.Is(err, storage.ErrStoreMissing):
		u.logger.Info().Msg("store missing; it will be created with a header")
	case errors.Is(err, storage.ErrStoreUnreadable):
		u.logger.Error().Err(err).Msg("store unreadable; continuing with no existing keys")
		report.StoreUnreadable = true
		snap.Records = nil
	default:
		return report, fmt.Errorf("load store: %w", err)
	}

	keys := model.NewKeySet(snap.Records)

	batch := make([]model.Record, 0)
	for _, ticker := range u.opts.Tickers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, fresh := u.collect(ctx, ticker, keys)
		report.Outcomes = append(report.Outcomes, outcome)
		batch = append(batch, fresh...)
	}

	if len(batch) == 0 {
		u.logger.Info().Msg("no new rows; store left untouched")
		return report, nil
	}

	if u.opts.DryRun {
		report.Pending = len(batch)
		u.logger.Info().Int("rows", len(batch)).Msg("dry run; store left untouched")
		return report, nil
	}

	layout := snap.Layout()
	if report.StoreUnreadable {
		// Never insert a header below content that did not parse.
		layout.WriteHeader = false
	}
	header := layout.WriteHeader
	if err := u.store.Append(ctx, batch, layout); err != nil {
		u.logger.Error().Err(err).Int("rows", len(batch)).Msg("failed to append rows")
		return report, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	report.Appended = len(batch)
	report.HeaderWritten = header

	u.logger.Info().Int("rows", len(batch)).Bool("header", header).Msg("store updated")
	u.logTail(ctx)

	if u.mirror != nil {
		inserted, err := u.mirror.MirrorRecords(ctx, batch)
		if err != nil {
			u.logger.Error().Err(err).Msg("failed to mirror rows")
		} else {
			u.logger.Debug().Int64("inserted", inserted).Msg("rows mirrored")
		}
	}

	return report, nil
}

// collect fetches one ticker and returns the rows whose key is not yet known.
// Accepted keys are added to keys so a batch never repeats a key.
func (u *Updater) collect(ctx context.Context, ticker string, keys model.KeySet) (TickerOutcome, []model.Record) {
	outcome := TickerOutcome{Ticker: ticker}
	logger := u.logger.With().Str("ticker", ticker).Logger()

	bars, err := u.source.FetchDaily(ctx, ticker, u.opts.Window)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		logger.Error().Err(err).Msg("fetch failed; ticker skipped")
		return outcome, nil
	}
	if len(bars) == 0 {
		outcome.Status = StatusNoData
		logger.Info().Msg("no data returned")
		return outcome, nil
	}

	outcome.Status = StatusFetched
	outcome.Fetched = len(bars)

	fresh := make([]model.Record, 0, len(bars))
	for _, bar := range bars {
		rec := bar.Record(ticker)
		if err := rec.Validate(); err != nil {
			outcome.Rejected++
			logger.Warn().Err(err).Msg("row rejected")
			continue
		}
		if keys.Has(rec.Key()) {
			outcome.Duplicates++
			continue
		}
		keys.Add(rec.Key())
		fresh = append(fresh, rec)
	}
	outcome.New = len(fresh)

	logger.Info().
		Int("fetched", outcome.Fetched).
		Int("new", outcome.New).
		Int("duplicates", outcome.Duplicates).
		Msg("ticker processed")
	return outcome, fresh
}

// logTail reports the most recent rows of the store after a write.
func (u *Updater) logTail(ctx context.Context) {
	if u.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	snap, err := u.store.Load(ctx)
	if err != nil {
		u.logger.Debug().Err(err).Msg("reload after write failed")
		return
	}
	n := len(u.opts.Tickers) + 1
	tail := snap.Records
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	for _, r := range tail {
		u.logger.Debug().
			Str("date", r.Date.String()).
			Str("ticker", r.Ticker).
			Str("close", r.Close.String()).
			Int64("volume", r.Volume).
			Msg("stored row")
	}
}

func (u *Updater) notify(ctx context.Context, report Report, runErr error) {
	if u.notifier == nil || report.Skipped || u.opts.DryRun {
		return
	}
	failed := report.Failed()
	if runErr == nil && report.Appended == 0 && len(failed) == 0 && !u.opts.NotifyOnEmpty {
		return
	}

	note := alerting.Notification{
		RunAt:           report.StartedAt,
		Tickers:         u.opts.Tickers,
		Appended:        report.Appended,
		Failed:          failed,
		NoData:          report.NoData(),
		StoreUnreadable: report.StoreUnreadable,
	}
	if runErr != nil {
		note.Error = runErr.Error()
	}
	if err := u.notifier.Notify(ctx, note); err != nil {
		u.logger.Error().Err(err).Msg("failed to dispatch run report")
	}
}

func (u *Updater) acquireLock(ctx context.Context) (func(), bool, error) {
	if u.opts.LockKey == 0 || u.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := u.locker.TryAdvisoryLock(ctx, u.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
