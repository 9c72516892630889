package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakevault/cmd/internal/passphrase"
	"stakevault/config"
	"stakevault/core"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/observability"
	"stakevault/observability/logging"
	"stakevault/observability/otel"
	"stakevault/rpc"
	"stakevault/storage"
)

const (
	keystorePassEnv = "STAKEVAULT_KEYSTORE_PASS"
	rpcTokenEnv     = "STAKEVAULT_RPC_TOKEN"
)

// metricsEmitter mirrors every vault event into the Prometheus event counters.
type metricsEmitter struct{}

func (metricsEmitter) Emit(evt events.Event) {
	observability.Events().RecordEvent(evt.EventType())
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("STAKEVAULT_ENV"))
	logger := logging.Setup("stakevaultd", env, logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		otlpHeaders := otel.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
		shutdown, err := otel.Init(rootCtx, otel.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otlpHeaders,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("telemetry init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	passSource := passphrase.NewSource(keystorePassEnv)
	pass, err := passSource.Get()
	if err != nil {
		logger.Error("resolve keystore passphrase failed", slog.Any("error", err))
		os.Exit(1)
	}
	key, created, err := crypto.EnsureCustodianKey(cfg.CustodianKeystorePath, pass)
	if err != nil {
		logger.Error("unlock custodian keystore failed",
			slog.String("path", cfg.CustodianKeystorePath),
			slog.Any("error", err))
		os.Exit(1)
	}
	if created {
		logger.Info("custodian key generated",
			slog.String("path", cfg.CustodianKeystorePath),
			slog.String("address", key.PubKey().Address().String()))
	}

	node, err := core.NewNode(db, key, cfg.VaultPolicy())
	if err != nil {
		logger.Error("create node failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := node.EnsureRewardToken(cfg.Token.Symbol, cfg.Token.Name, cfg.Token.Decimals); err != nil {
		logger.Error("register reward token failed", slog.Any("error", err))
		os.Exit(1)
	}

	collection, err := cfg.CollectionID()
	if err != nil {
		logger.Error("parse collection id failed", slog.Any("error", err))
		os.Exit(1)
	}
	seeds, err := cfg.SeedItemSpecs()
	if err != nil {
		logger.Error("parse collection items failed", slog.Any("error", err))
		os.Exit(1)
	}
	if len(seeds) > 0 && collection == ([32]byte{}) {
		logger.Error("collection ID required when seeding items")
		os.Exit(1)
	}
	for _, item := range seeds {
		if err := node.SeedItem(item.ID, item.Owner, collection, item.Verified); err != nil {
			logger.Error("seed collection item failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	journal, err := events.OpenJournal(cfg.JournalPath)
	if err != nil {
		logger.Error("open event journal failed",
			slog.String("path", cfg.JournalPath),
			slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()
	node.SetJournal(journal)
	node.SetEmitter(events.Fanout{journal, metricsEmitter{}})

	if strings.TrimSpace(os.Getenv(rpcTokenEnv)) == "" {
		logger.Warn("mutating RPC methods disabled", slog.String("reason", rpcTokenEnv+" not set"))
	}

	rpcServer := rpc.NewServer(node)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- rpcServer.Start(cfg.RPCAddress)
	}()

	logger.Info("stakevault node running",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("custodian", node.Custodian().String()),
		slog.String("data_dir", cfg.DataDir))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("rpc server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
