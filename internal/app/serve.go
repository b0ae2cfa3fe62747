package app

import (
	"context"
	"os/signal"
	"syscall"

	"bist-tracker/internal/web"
)

// Serve runs the dashboard HTTP server until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context, addr string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if addr == "" {
		addr = a.Config.Dashboard.Addr
	}
	srv := web.NewServer(addr, a.newPresenter(), a.chartSize(), a.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down dashboard server")
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
