// Storesync worker - job execution, periodic scans, and campaigns
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"log/slog"

	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/commerce"
	"github.com/mbd888/storesync/internal/config"
	"github.com/mbd888/storesync/internal/jobs"
	"github.com/mbd888/storesync/internal/logging"
	"github.com/mbd888/storesync/internal/messaging"
	"github.com/mbd888/storesync/internal/metrics"
	"github.com/mbd888/storesync/internal/queue"
	"github.com/mbd888/storesync/internal/scan"
	"github.com/mbd888/storesync/internal/secrets"
	"github.com/mbd888/storesync/internal/traces"
	"github.com/mbd888/storesync/internal/worker"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting storesync worker",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	codec, err := secrets.New(cfg.SealKey)
	if err != nil {
		logger.Error("failed to initialize credential codec", "error", err)
		os.Exit(1)
	}

	// Storage
	var (
		db            *sql.DB
		clients       client.Store
		commerceStore commerce.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		clients = client.NewPostgresStore(db)
		commerceStore = commerce.NewPostgresStore(db)
		logger.Info("using PostgreSQL storage")
	} else {
		clients = client.NewMemoryStore()
		commerceStore = commerce.NewMemoryStore()
		logger.Info("using in-memory storage (data will not persist)")
	}

	// Broker
	var broker queue.Broker
	if cfg.RedisURL != "" {
		rb, err := queue.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		broker = rb
		logger.Info("using Redis job broker")
	} else {
		broker = queue.NewMemoryBroker()
		logger.Info("using in-memory job broker")
	}

	// Fail fast if a configured backend is unreachable at startup.
	if err := probeBackends(ctx, db, broker); err != nil {
		logger.Error("startup probe failed", "error", err)
		os.Exit(1)
	}

	if db != nil {
		go metrics.StartDBStatsCollector(ctx, db, 15*time.Second)
	}

	// Job handlers
	registry := jobs.NewRegistry()
	jobs.NewHandlers(clients, commerceStore, codec, nil, logger).RegisterAll(registry)

	pool := worker.New(worker.Config{Concurrency: cfg.WorkerConcurrency}, broker, registry, logger)
	pool.Start(ctx)

	// Periodic schedules
	scanDriver := scan.NewDriver(clients, broker, logger, cfg.OrderScanExpiry, cfg.ProductScanExpiry)
	schedules := scanDriver.Entries(cfg.OrderScanSpec, cfg.ProductScanSpec)

	if cfg.WhatsAppAPIURL != "" {
		sender := messaging.NewWhatsAppSender(cfg.WhatsAppAPIURL, cfg.WhatsAppToken)
		campaign := messaging.NewCampaign(clients, commerceStore,
			messaging.NewDispatcher(sender, logger), logger,
			cfg.CampaignCutoff, cfg.CampaignLanguages)
		schedules = append(schedules, scan.Entry{
			Name: "winback-campaign", Spec: cfg.CampaignSpec, Run: campaign.Run,
		})
	} else {
		logger.Info("win-back campaign disabled (no WHATSAPP_API_URL set)")
	}

	runner := cron.New()
	for _, entry := range schedules {
		if err := addSchedule(runner, logger, entry); err != nil {
			logger.Error("invalid schedule", "name", entry.Name, "spec", entry.Spec, "error", err)
			os.Exit(1)
		}
		logger.Info("schedule registered", "name", entry.Name, "spec", entry.Spec)
	}
	runner.Start()

	<-ctx.Done()
	logger.Info("shutting down")

	cronCtx := runner.Stop()
	<-cronCtx.Done()
	pool.Stop()
	logger.Info("worker stopped")
}

func addSchedule(runner *cron.Cron, logger *slog.Logger, entry scan.Entry) error {
	_, err := runner.AddFunc(entry.Spec, func() {
		if err := entry.Run(context.Background()); err != nil {
			logger.Error("scheduled run failed", "name", entry.Name, "error", err)
		}
	})
	return err
}

// probeBackends verifies configured backends respond before work starts.
func probeBackends(ctx context.Context, db *sql.DB, broker queue.Broker) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if db != nil {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	}
	if p, ok := broker.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
