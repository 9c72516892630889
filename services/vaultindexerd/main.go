package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stakevault/gateway/middleware"
	"stakevault/observability/logging"
	"stakevault/services/vaultindexerd/api"
	"stakevault/services/vaultindexerd/archive"
	"stakevault/services/vaultindexerd/audit"
	"stakevault/services/vaultindexerd/config"
	"stakevault/services/vaultindexerd/ingest"
	"stakevault/services/vaultindexerd/models"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to indexer config (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup("stakevault-indexer", cfg.Log.Env, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		logger.Error("database DSN is required")
		os.Exit(1)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Error("database connection failed",
			logging.MaskField("dsn", cfg.DatabaseDSN),
			"error", err)
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Error("auto migrate failed", "error", err)
		os.Exit(1)
	}

	auditStore, err := audit.Open(cfg.AuditPath)
	if err != nil {
		logger.Error("audit store open failed", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := ingest.NewClient(ingest.ClientConfig{URL: cfg.NodeURL})
	ingester, err := ingest.New(ingest.Config{
		DB:        db,
		Source:    client,
		Audit:     auditStore,
		Interval:  cfg.Poll.Interval.Duration,
		BatchSize: cfg.Poll.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("ingester init failed", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := ingester.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingester stopped", "error", err)
		}
	}()

	var archiver api.Archiver
	if cfg.Archive.Enabled {
		exporter, err := archive.NewExporter(archive.Config{
			DB:        db,
			OutputDir: cfg.Archive.OutputDir,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("archive init failed", "error", err)
			os.Exit(1)
		}
		archiver = exporter
		scheduler := archive.NewScheduler(archive.SchedulerConfig{
			Exporter:  exporter,
			Window:    cfg.Archive.Window.Duration,
			RunHour:   cfg.Archive.RunHour,
			RunMinute: cfg.Archive.RunMinute,
			Logger:    logger,
		})
		go scheduler.Start(rootCtx)
	}

	perRoute := middleware.RateLimit{RatePerSecond: cfg.API.RatePerSecond, Burst: cfg.API.Burst}
	srv := api.New(api.Config{
		DB:     db,
		Logger: logger,
		Auth: middleware.AuthConfig{
			Enabled:    cfg.API.AuthEnabled,
			HMACSecret: cfg.API.HMACSecret,
			Issuer:     cfg.API.Issuer,
			Audience:   cfg.API.Audience,
		},
		CORS: middleware.CORSConfig{AllowedOrigins: cfg.API.AllowedOrigins},
		RateLimits: map[string]middleware.RateLimit{
			"events":  perRoute,
			"stakes":  perRoute,
			"summary": perRoute,
			"archive": {RatePerSecond: 1, Burst: 2},
		},
		LogRequests: cfg.API.LogRequests,
		Archiver:    archiver,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("indexer listening", "address", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing shutdown", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
