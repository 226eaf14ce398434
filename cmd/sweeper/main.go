// Command sweeper runs the expiry sweeper and the hold expiry worker without
// the HTTP API, for deployments that scale them separately.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/di"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/metrics"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name + "-sweeper",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Expiry Sweeper...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName + "-sweeper",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, continuing without export: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Idempotency keys only matter to the HTTP API
	cfg.Idempotency.Enabled = false

	container, err := di.Build(ctx, cfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}

	if err := container.ExpirySweeper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start expiry sweeper: %v", err))
	}
	if container.HoldExpiryWorker != nil {
		if err := container.HoldExpiryWorker.Start(); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start hold expiry worker: %v", err))
		}
	}

	<-ctx.Done()
	appLog.Info("Shutting down sweeper...")

	container.Close()
	if err := telemetry.Shutdown(context.Background()); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry shutdown failed: %v", err))
	}

	stats := container.ExpirySweeper.GetStats()
	appLog.Info(fmt.Sprintf("Sweeper exited after %d runs (expired=%d promoted=%d failed=%d)",
		stats.TotalRuns, stats.TotalExpired, stats.TotalPromoted, stats.TotalFailed))
}
