package main

import (
	"context"   // Shutdown deadlines
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Process signals
	"os/signal" // Signal notification
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"vps_billing/internal/api"       // Custom package for API handlers
	"vps_billing/internal/app"       // Component wiring
	"vps_billing/internal/billing"   // Scheduled billing jobs
	"vps_billing/internal/config"    // Custom package for configuration
	"vps_billing/internal/telemetry" // Traces and metrics

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig()  // Load configuration
	log := app.SetupLogger(cfg) // Setup logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logrus.Fatalf("failed to set up telemetry: %v", err)
	}

	a, err := app.New(ctx, cfg, log) // Connect to MySQL and Redis
	if err != nil {
		logrus.Fatalf("failed to start: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	serviceName := ""
	if cfg.OTLPEndpoint != "" {
		serviceName = cfg.ServiceName // Trace requests only when exporting
	}
	r := api.NewRouter(api.Deps{
		DB:           a.DB,
		Redis:        a.Redis,
		Ledger:       a.Ledger,
		Users:        a.Users,
		Transactions: a.Entries,
		Runner:       a.Runner,
		Runway:       a.Runway,
		JWTSecret:    cfg.JWTSecret,
		ServiceName:  serviceName,
	})
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// In-process scheduler, off unless an interval is configured
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if cfg.HourlyInterval <= 0 && cfg.RenewalInterval <= 0 {
			return
		}
		billing.NewScheduler(a.Runner, billing.NewRedisLocker(a.Redis, log), billing.Schedule{
			HourlyEvery:  cfg.HourlyInterval,
			RenewalEvery: cfg.RenewalInterval,
			Hours:        1,
		}, log).Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.AppPort).Info("Server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}
	<-schedulerDone // Let a running billing pass finish
	a.Close()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.WithError(err).Warn("Telemetry shutdown failed")
	}
}
