package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tiercore/benefit"
	"tiercore/catalog"
	"tiercore/config"
	"tiercore/fidelity"
	"tiercore/ledger"
	"tiercore/observability/logging"
	telemetry "tiercore/observability/otel"
	"tiercore/ownership"
	"tiercore/rpc"
	"tiercore/storage"
	"tiercore/tier"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tierd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "tierd.toml", "path to tierd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TIERD_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log := logging.Setup("tierd", env, logging.Options{
		FilePath:   cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "tierd",
		Environment: env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	reader, err := ledger.DialEVMReader(cfg.LedgerRPCURL, cfg.ContractAddress, cfg.CallTimeout())
	if err != nil {
		return fmt.Errorf("dial ledger: %w", err)
	}
	limited := ledger.NewRateLimitedReader(reader, cfg.LedgerReadsPerSecond, cfg.LedgerReadBurst)

	specialIDs := make([]tier.ID, 0, len(cfg.SpecialTierIDs))
	for _, id := range cfg.SpecialTierIDs {
		specialIDs = append(specialIDs, tier.ID(id))
	}

	catalogOpts := []catalog.Option{
		catalog.WithSpecialTierIDs(specialIDs),
		catalog.WithConcurrency(cfg.RefreshConcurrency),
		catalog.WithLogger(log),
	}

	if path := strings.TrimSpace(cfg.SnapshotPath); path != "" {
		store, err := storage.OpenSnapshotStore(path)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer func() { _ = store.Close() }()
		catalogOpts = append(catalogOpts, catalog.WithStore(store))
	}
	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		seed, err := catalog.LoadSeed(path)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		catalogOpts = append(catalogOpts, catalog.WithSeed(seed))
	}

	cat, err := catalog.New(limited, catalogOpts...)
	if err != nil {
		return err
	}
	if err := cat.Bootstrap(); err != nil {
		return err
	}

	resolver, err := ownership.NewResolver(limited,
		ownership.WithSpecialTierIDs(specialIDs),
		ownership.WithConcurrency(cfg.RefreshConcurrency),
		ownership.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var fidelityClient *fidelity.Client
	if endpoint := strings.TrimSpace(cfg.FidelityEndpoint); endpoint != "" {
		fidelityClient, err = fidelity.NewClient(nil, endpoint, cfg.FidelityAPIKey)
		if err != nil {
			return fmt.Errorf("build fidelity client: %w", err)
		}
	}

	server, err := rpc.NewServer(cat, resolver, benefit.NewEvaluator(log), fidelityClient, log)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial refresh is best effort; a degraded snapshot still serves.
	if snap, err := cat.RefreshAll(stopCtx); err != nil {
		log.Warn("initial catalog refresh incomplete", "status", string(snap.Status), "error", err)
	} else {
		log.Info("catalog refreshed", "tiers", len(snap.Tiers))
	}

	go refreshLoop(stopCtx, cat, cfg.RefreshInterval(), log)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Router(), "tierd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("tierd listening", "address", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func refreshLoop(ctx context.Context, cat *catalog.Catalog, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cat.RefreshAll(ctx); err != nil {
				log.Warn("catalog refresh incomplete", "error", err)
			}
		}
	}
}
