package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"currency_go/internal/domain"
	"currency_go/internal/infra"
	"currency_go/internal/infra/storage"
	"currency_go/internal/service"
	"currency_go/internal/web"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Downloader *infra.FlagDownloader
	Rates      *service.RateService
	Server     *web.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config at configPath and wires every component
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping currency converter...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	b.Metrics = infra.NewMetrics()

	dataDir, err := infra.ResolveDataDir(cfg.App.DataDir)
	if err != nil {
		return err
	}

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(storage.DBPath(dataDir))
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Initialize Flag Downloader
	var flags domain.FlagProvider
	if cfg.Flags.Enabled {
		downloader, err := infra.NewFlagDownloader(
			cfg.FlagsURL(),
			filepath.Join(dataDir, "assets", "flags"),
			cfg.Flags.SizePx,
			cfg.Timeout(),
			b.Metrics,
		)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		flags = downloader
		slog.Info("✅ Flag downloader ready")
	}

	// 5. Rate service and web surface
	client := infra.NewRatesClient(cfg.RatesURL(), cfg.Timeout(), b.Metrics)
	b.Rates = service.NewRateService(client, store, b.Metrics, cfg.CheckInterval())

	b.Server = web.NewServer(cfg.Server.Addr, b.Rates, flags, service.PanelOptions{
		Locale:      cfg.UI.Locale,
		Catalog:     store,
		DefaultFrom: cfg.UI.DefaultFrom,
		DefaultTo:   cfg.UI.DefaultTo,
	}, b.Metrics)

	return nil
}

// SyncFlags records every currency of the installed snapshot and pre-fetches its flag.
// This runs in the background so the first panel renders without waiting.
func (b *Bootstrap) SyncFlags(ctx context.Context) {
	snap := b.Rates.Current()
	if snap == nil {
		return
	}
	slog.Info("🔄 Starting flag synchronization...", slog.Int("currencies", len(snap.Rates)))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for _, code := range snap.Codes() {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			existing, err := b.Storage.GetCurrency(ctx, code)
			if err != nil {
				slog.Error("Failed to read currency", slog.String("currency", code), slog.Any("error", err))
				return
			}
			if existing == nil {
				if err := b.Storage.UpsertCurrency(ctx, &domain.CurrencyInfo{Code: code}); err != nil {
					slog.Error("Failed to upsert currency", slog.String("currency", code), slog.Any("error", err))
				}
			}

			if b.Downloader == nil {
				return
			}
			path, err := b.Downloader.FetchFlag(ctx, code)
			if err != nil {
				slog.Warn("Failed to download flag", slog.String("currency", code), slog.Any("error", err))
				return
			}
			if err := b.Storage.RecordFlag(ctx, code, path); err != nil {
				slog.Warn("Failed to record flag", slog.String("currency", code), slog.Any("error", err))
			}
		}(code)
	}

	wg.Wait()
	slog.Info("✨ Flag synchronization completed")
}
