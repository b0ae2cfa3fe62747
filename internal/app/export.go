package app

import (
	"context"
	"errors"

	"bist-tracker/internal/render"
)

// Export writes the price and volume charts of one ticker as PNG files using
// the same domains as the dashboard.
func (a *App) Export(ctx context.Context, opts ExportOptions) ([]string, error) {
	if opts.Ticker == "" {
		return nil, errors.New("a ticker is required")
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}

	detail, err := a.newPresenter().Detail(ctx, opts.Ticker)
	if err != nil {
		return nil, err
	}

	paths, err := render.WritePNGs(opts.Dir, detail, a.chartSize())
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Str("ticker", opts.Ticker).Strs("files", paths).Int("records", len(detail.Records)).Msg("charts exported")
	return paths, nil
}
