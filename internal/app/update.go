package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"bist-tracker/internal/fetcher"
	"bist-tracker/internal/ingest"
	"bist-tracker/internal/scheduler"
	"bist-tracker/internal/storage"
)

// Update performs one updater run.
func (a *App) Update(ctx context.Context, opts UpdateOptions) (ingest.Report, error) {
	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return ingest.Report{}, err
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	updater, err := a.newUpdater(opts, mirror)
	if err != nil {
		return ingest.Report{}, err
	}

	report, err := updater.Run(ctx)
	a.logReport(report)
	return report, err
}

// Backfill fetches the longest window, then copies the whole store into the
// database mirror so rows appended before the mirror existed are present too.
func (a *App) Backfill(ctx context.Context, opts UpdateOptions) error {
	if opts.Window == "" {
		opts.Window = string(fetcher.Window2Months)
	}

	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	updater, err := a.newUpdater(opts, mirror)
	if err != nil {
		return err
	}
	report, err := updater.Run(ctx)
	a.logReport(report)
	if err != nil {
		return err
	}
	if mirror == nil || opts.DryRun {
		return nil
	}

	snap, err := a.newStore().Load(ctx)
	if errors.Is(err, storage.ErrStoreMissing) {
		a.Logger.Info().Msg("store missing; nothing to mirror")
		return nil
	}
	if err != nil {
		return err
	}
	inserted, err := mirror.MirrorRecords(ctx, snap.Records)
	if err != nil {
		return err
	}
	total, err := mirror.CountRecords(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("store_rows", len(snap.Records)).Int64("inserted", inserted).Int64("mirror_rows", total).Msg("mirror backfilled")
	return nil
}

// Schedule runs the updater on the configured cron schedule until SIGINT or SIGTERM.
func (a *App) Schedule(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc := time.UTC
	if tz := a.Config.Scheduler.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}

	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Scheduler.Cron,
		Location:   loc,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if mirror == nil {
		a.Logger.Warn().Msg("database.dsn not configured; overlapping updater processes are not locked out")
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	updater, err := a.newUpdater(UpdateOptions{}, mirror)
	if err != nil {
		return err
	}

	a.Logger.Info().Strs("tickers", a.Config.Ingest.Tickers).Msg("starting scheduled updater")
	err = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		report, err := updater.Run(ctx)
		a.logReport(report)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduler terminated with error")
		return err
	}

	a.Logger.Info().Msg("scheduled updater stopped")
	return nil
}

func (a *App) newUpdater(opts UpdateOptions, mirror *storage.Mirror) (*ingest.Updater, error) {
	raw := a.Config.Ingest.Window
	if opts.Window != "" {
		raw = opts.Window
	}
	window, err := fetcher.ParseWindow(raw)
	if err != nil {
		return nil, err
	}

	var recordMirror storage.RecordMirror
	if mirror != nil {
		recordMirror = mirror
	}

	return ingest.New(ingest.Options{
		Tickers:       a.Config.Ingest.Tickers,
		Window:        window,
		LockKey:       a.Config.Database.AdvisoryLockKey,
		NotifyOnEmpty: a.Config.Alerting.NotifyOnEmpty,
		DryRun:        opts.DryRun,
	}, a.newStore(), a.newSource(), recordMirror, a.newNotifier(), a.Logger), nil
}

func (a *App) logReport(report ingest.Report) {
	if report.Skipped {
		return
	}
	a.Logger.Info().
		Int("appended", report.Appended).
		Int("pending", report.Pending).
		Bool("header", report.HeaderWritten).
		Strs("failed", report.Failed()).
		Strs("no_data", report.NoData()).
		Bool("store_unreadable", report.StoreUnreadable).
		Msg("update finished")
}
