package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"maplemarket/config"
	"maplemarket/core/events"
	"maplemarket/core/genesis"
	"maplemarket/core/vm"
	nativecommon "maplemarket/native/common"
	"maplemarket/native/market"
	"maplemarket/observability/logging"
	"maplemarket/observability/metrics"
	"maplemarket/observability/otel"
	"maplemarket/rpc"
	"maplemarket/storage"
)

const serviceName = "maplemarketd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile and [genesis])")
	flag.Parse()

	logger := logging.Setup(serviceName, os.Getenv("MAPLE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if path := strings.TrimSpace(*genesisFlag); path != "" {
		cfg.GenesisFile = path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("maplemarketd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	otelCfg := cfg.OTel(serviceName)
	shutdownTelemetry, err := otel.Init(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	logger.Info("telemetry configured",
		slog.Bool("traces", otelCfg.Traces),
		slog.Bool("metrics", otelCfg.Metrics),
		logging.MaskField("endpoint", otelCfg.Endpoint),
		logging.MaskHeaders(otelCfg.Headers))

	n, err := openNode(ctx, cfg, metrics.Default(), logger)
	if err != nil {
		return err
	}
	defer n.db.Close()

	server := rpc.New(rpc.Config{
		Host:              n.host,
		Deployment:        n.deployment,
		ChainID:           cfg.ChainID,
		Feed:              n.feed,
		Metrics:           n.metrics,
		Logger:            logger,
		TxPerSecond:       cfg.RPC.TxPerSecond,
		TxBurst:           cfg.RPC.TxBurst,
		TrustedProxies:    cfg.RPC.TrustedProxies,
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeoutSeconds) * time.Second,
	})
	return server.Start(ctx, cfg.RPCAddress)
}

type node struct {
	db         storage.Database
	host       *vm.Host
	feed       *events.Feed
	metrics    *metrics.Ledger
	pauses     *nativecommon.Pauses
	deployment *genesis.Deployment
}

// openNode opens the state database, registers every contract kind and
// applies the genesis. Reopening an initialised database leaves it untouched.
func openNode(ctx context.Context, cfg *config.Config, ledger *metrics.Ledger, logger *slog.Logger) (*node, error) {
	spec, err := cfg.GenesisSpec()
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	feed := events.NewFeed()
	host := vm.NewHost(db,
		vm.WithEmitter(events.MultiEmitter{feed, ledger}),
		vm.WithObserver(ledger),
		vm.WithLogger(logger.With(slog.String("component", "vm"))))

	pauses := nativecommon.NewPauses()
	if cfg.Market.Paused {
		pauses.Set(market.Module, true)
		logger.Warn("market module paused by configuration")
	}
	if err := genesis.RegisterContracts(host, pauses); err != nil {
		db.Close()
		return nil, err
	}
	deployment, err := genesis.Build(ctx, host, spec, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("ledger ready",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("market", deployment.Market.Hex()),
		slog.String("factory", deployment.Factory.Hex()),
		slog.String("currency", deployment.Currency.Hex()))

	return &node{
		db:         db,
		host:       host,
		feed:       feed,
		metrics:    ledger,
		pauses:     pauses,
		deployment: deployment,
	}, nil
}
