package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/api"
)

// RunServe loads the state and runs the API server until SIGINT or SIGTERM.
func RunServe(ctx context.Context, app *App, flags *ServeFlags) error {
	logger := app.Logger

	summary, err := app.Service.Load(ctx)
	if err != nil {
		return err
	}
	logger.Info("state loaded",
		"invoices", summary.Invoices,
		"bank_movements", summary.BankMovements,
		"links", summary.Links,
		"orphans", summary.Orphans,
		"duration", summary.Duration,
	)

	server := api.NewServer(APIConfig(app.Config, flags.Port), app.Service, app.Metrics, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		select {
		case <-quit:
			logger.Info("received shutdown signal")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
