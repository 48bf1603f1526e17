package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/api"
	"marketplace/internal/assets"
	"marketplace/internal/client"
	"marketplace/internal/config"
	"marketplace/internal/journal"
	"marketplace/internal/ledger"
	"marketplace/internal/marketplace"
	"marketplace/internal/orchestrator"
	"marketplace/internal/pipeline"
	"marketplace/internal/retry"
	"marketplace/internal/storage"
)

func main() {
	fmt.Println("🛒 Starting Service Marketplace...")

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	programs := client.ProgramsFor(cfg.NetworkPassphrase, cfg.ProgramSeed)
	slog.Info("Configuration loaded",
		"network", cfg.NetworkPassphrase,
		"store", cfg.StoreDriver,
		"marketplace_program", programs.Marketplace,
		"asset_program", programs.Assets,
		"log_level", cfg.LogLevel,
	)

	// 3. Open the account store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, retry.NewStrategy(cfg.Retry))
	if err != nil {
		log.Fatalf("❌ Failed to open account store: %v", err)
	}
	defer store.Close()
	slog.Info("Account store ready", "driver", cfg.StoreDriver)

	// 4. Register programs
	orch, err := orchestrator.New(
		assets.New(programs.Assets),
		marketplace.New(programs.Marketplace, programs.Assets),
	)
	if err != nil {
		log.Fatalf("❌ Failed to register programs: %v", err)
	}

	// 5. Create processor
	processor := ledger.NewProcessor(store, orch, ledger.Options{
		MinReserve: cfg.MinReserveLamports,
		Rent:       ledger.Rent{LamportsPerByteYear: cfg.LamportsPerByteYear},
	})

	// 6. Create pipeline with the receipt journal as sink
	var sinks []pipeline.Sink
	var receipts *journal.Writer
	if cfg.JournalDir != "" {
		receipts = journal.NewWriter(cfg.JournalDir)
		sinks = append(sinks, receipts)
		slog.Info("Receipt journal enabled", "dir", cfg.JournalDir)
	}

	pipe := pipeline.NewPipeline(pipeline.Config{
		WorkerCount: cfg.PipelineWorkers,
		BufferSize:  cfg.PipelineBuffer,
	}, processor, sinks...)
	if err := pipe.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start pipeline: %v", err)
	}

	// 7. Start API server
	opts := api.Options{
		Port:          cfg.APIPort,
		MarketplaceID: programs.Marketplace,
	}
	if cfg.AirdropEnabled {
		opts.Faucet = processor
		slog.Warn("Airdrop endpoint enabled, do not expose this node publicly")
	}
	server := api.NewServer(opts, pipe, processor, store)
	if err := server.Start(); err != nil {
		log.Fatalf("❌ Failed to start API server: %v", err)
	}

	// 8. Wait for a shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}
	if err := pipe.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping pipeline", "error", err)
	}
	if receipts != nil {
		if err := receipts.Close(); err != nil {
			slog.Error("Error closing receipt journal", "error", err)
		}
	}

	slog.Info("Service Marketplace stopped")
}

// openStore connects the configured store, retrying while the database
// is still coming up
func openStore(ctx context.Context, cfg *config.Config, strategy retry.Strategy) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		slog.Warn("Using the in-memory store, state is lost on exit")
		return storage.NewMemoryStore(), nil
	case config.DriverSQLite:
		var store *storage.SQLiteStore
		err := strategy.Execute(ctx, func() error {
			var err error
			store, err = storage.OpenSQLite(cfg.SQLitePath)
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		var store *storage.PostgresStore
		err := strategy.Execute(ctx, func() error {
			var err error
			store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
