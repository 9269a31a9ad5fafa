// Package app wires repositories, the ledger, notifiers and billing
// components from configuration. Both the HTTP server and the billing CLI
// build on it.
package app

import (
	"context" // Startup pings
	"fmt"     // Error wrapping

	"vps_billing/internal/billing" // Billing runs
	"vps_billing/internal/config"  // Configuration
	"vps_billing/internal/db"      // Database and repositories
	"vps_billing/internal/ledger"  // Wallet ledger
	"vps_billing/internal/notify"  // Billing event delivery
	"vps_billing/internal/pricing" // Charge calculation
	"vps_billing/internal/utils"   // Cache invalidation

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/gorm"                 // GORM ORM library
)

// notifyQueue bounds events waiting for delivery
const notifyQueue = 256

// App holds the wired components
type App struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Users     *db.UserRepository
	Resources *db.ResourceRepository
	Entries   *db.TransactionRepository
	Ledger    *ledger.Ledger
	Notifier  *notify.Async
	Runner    *billing.Runner
	Runway    *billing.BalanceChecker
	Log       *logrus.Entry
}

// SetupLogger applies the configured formatter and level to the standard logger
func SetupLogger(cfg *config.Config) *logrus.Entry {
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine-readable logs in production
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel // Unknown level names fall back to info
	}
	logrus.SetLevel(level)
	return logrus.WithField("service", cfg.ServiceName)
}

// New connects to MySQL and Redis and builds every component
func New(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*App, error) {
	gdb, err := db.Open(cfg.DSN()) // Connect to the database
	if err != nil {
		return nil, fmt.Errorf("connect to DB: %w", err)
	}

	// Setup Redis client
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	return Wire(gdb, rdb, cfg, log), nil
}

// Wire builds the components on open connections
func Wire(gdb *gorm.DB, rdb *redis.Client, cfg *config.Config, log *logrus.Entry) *App {
	users := db.NewUserRepository(gdb)
	resources := db.NewResourceRepository(gdb)
	entries := db.NewTransactionRepository(gdb)
	l := ledger.New(db.NewTxManager(gdb), db.NewWalletRepository(gdb), entries,
		ledger.WithCache(utils.NewWalletCache(rdb, log)),
		ledger.WithCurrency(cfg.Currency),
		ledger.WithLogger(log),
	)

	sinks := notify.Multi{
		notify.NewLogNotifier(log),                      // Always log events
		notify.NewRedisNotifier(rdb, cfg.NotifyChannel), // Fan out to subscribers
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret)) // Operator webhook
	}
	notifier := notify.NewAsync(sinks, notifyQueue, log)

	calc := pricing.NewCalculator(pricing.DefaultPolicy())
	runner := billing.NewRunner(users, resources,
		billing.NewHourlyBiller(l, resources, calc, notifier, log),
		billing.NewRenewer(l, resources, calc, notifier, billing.UTC, log),
		log,
	)

	return &App{
		DB:        gdb,
		Redis:     rdb,
		Users:     users,
		Resources: resources,
		Entries:   entries,
		Ledger:    l,
		Notifier:  notifier,
		Runner:    runner,
		Runway:    billing.NewBalanceChecker(l, resources, calc),
		Log:       log,
	}
}

// Close drains pending notifications and closes connections
func (a *App) Close() {
	a.Notifier.Close()
	_ = a.Redis.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
