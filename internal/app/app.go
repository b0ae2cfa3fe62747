package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bist-tracker/internal/alerting"
	"bist-tracker/internal/config"
	"bist-tracker/internal/dashboard"
	"bist-tracker/internal/fetcher"
	"bist-tracker/internal/render"
	"bist-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.DailyFetcher {
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:   a.Config.Source.BaseURL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken: cfg.BotToken,
		ChatID:   cfg.ChatID,
		APIBase:  cfg.APIBase,
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
		Backoff:  time.Second,
	}, a.Logger)
}

func (a *App) newStore() *storage.CSVStore {
	return storage.NewCSVStore(a.Config.Store.Path)
}

func (a *App) newPresenter() *dashboard.Presenter {
	return dashboard.NewPresenter(a.newStore(), dashboard.Options{
		RecentWindow: a.Config.Dashboard.RecentWindow,
		TableRows:    a.Config.Dashboard.TableRows,
	}, a.Logger)
}

func (a *App) chartSize() render.Size {
	return render.Size{Width: a.Config.Dashboard.ChartWidth, Height: a.Config.Dashboard.ChartHeight}
}

// openMirror connects the optional database mirror. Both return values are
// nil when database.dsn is not configured.
func (a *App) openMirror(ctx context.Context) (*storage.Mirror, func(), error) {
	mirror, err := storage.OpenMirror(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if mirror == nil {
		a.Logger.Debug().Msg("database.dsn not configured; mirror disabled")
		return nil, nil, nil
	}
	return mirror, mirror.Close, nil
}

// UpdateOptions configure a single updater run.
type UpdateOptions struct {
	// Window overrides ingest.window when set.
	Window string
	DryRun bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Ticker string
	Rows   int
}

// ExportOptions configure chart export.
type ExportOptions struct {
	Ticker string
	Dir    string
}
