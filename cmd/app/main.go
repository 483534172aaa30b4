package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"currency_go/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Storage.Close()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Rates: reuse the stored snapshot if fresh, otherwise fetch once
	if err := bootstrap.Rates.Start(ctx); err != nil {
		slog.Error("Failed to start rate service", slog.Any("error", err))
	}
	defer bootstrap.Rates.Stop()

	// 4. Background flag sync
	go bootstrap.SyncFlags(ctx)

	// 5. Web surface
	if err := bootstrap.Server.Start(ctx); err != nil {
		slog.Error("Failed to start web server", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "✨ Currency converter ready", slog.String("addr", bootstrap.Config.Server.Addr))

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bootstrap.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Web server shutdown failed", slog.Any("error", err))
	}
}
