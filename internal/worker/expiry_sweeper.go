package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper expires lapsed holds
type Sweeper interface {
	SweepExpiredReservations(ctx context.Context) (*service.SweepResult, error)
}

// ExpirySweeperConfig contains configuration for the expiry sweeper
type ExpirySweeperConfig struct {
	// Schedule is a cron spec; "@every 1m" by default
	Schedule string
	// RunOnStart sweeps once immediately on Start
	RunOnStart bool
	// Timeout bounds a single sweep
	Timeout time.Duration
}

// DefaultExpirySweeperConfig returns default configuration
func DefaultExpirySweeperConfig() *ExpirySweeperConfig {
	return &ExpirySweeperConfig{
		Schedule:   "@every 1m",
		RunOnStart: true,
		Timeout:    50 * time.Second,
	}
}

// ExpirySweeper runs the hold expiry sweep on a cron schedule
type ExpirySweeper struct {
	sweeper Sweeper
	config  *ExpirySweeperConfig
	log     *logger.Logger
	cronLog cronLogger
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	baseCtx context.Context
	// startup sweeps run outside the cron and are waited on separately
	startup sync.WaitGroup

	// Stats
	totalRuns     int64
	totalExpired  int64
	totalPromoted int64
	totalFailed   int64
	lastRunTime   time.Time
	lastResult    *service.SweepResult
	lastError     string
}

// ExpirySweeperStats contains sweeper statistics
type ExpirySweeperStats struct {
	IsRunning     bool                 `json:"is_running"`
	Schedule      string               `json:"schedule"`
	TotalRuns     int64                `json:"total_runs"`
	TotalExpired  int64                `json:"total_expired"`
	TotalPromoted int64                `json:"total_promoted"`
	TotalFailed   int64                `json:"total_failed"`
	LastRunTime   time.Time            `json:"last_run_time"`
	LastResult    *service.SweepResult `json:"last_result,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(sweeper Sweeper, config *ExpirySweeperConfig) *ExpirySweeper {
	if config == nil {
		config = DefaultExpirySweeperConfig()
	}
	if config.Schedule == "" {
		config.Schedule = "@every 1m"
	}
	if config.Timeout <= 0 {
		config.Timeout = 50 * time.Second
	}

	log := logger.Get()
	return &ExpirySweeper{
		sweeper: sweeper,
		config:  config,
		log:     log,
		cronLog: cronLogger{log: log.Zap().Sugar()},
	}
}

// Start schedules the sweep. Every Start builds a fresh cron, so a sweeper
// can be restarted after Stop.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry sweeper already running")
	}

	// Scheduled and startup runs share one guard, so they never overlap
	job := cron.NewChain(cron.Recover(w.cronLog), cron.SkipIfStillRunning(w.cronLog)).Then(cron.FuncJob(w.tick))

	c := cron.New(cron.WithLogger(w.cronLog))
	if _, err := c.AddJob(w.config.Schedule, job); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("invalid sweeper schedule %q: %w", w.config.Schedule, err)
	}
	w.cron = c
	w.running = true
	w.baseCtx = ctx
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting expiry sweeper (%s)", w.config.Schedule))
	c.Start()

	if w.config.RunOnStart {
		w.startup.Add(1)
		go func() {
			defer w.startup.Done()
			job.Run()
		}()
	}
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	c := w.cron
	w.mu.Unlock()

	w.log.Info("Stopping expiry sweeper")
	<-c.Stop().Done()
	w.startup.Wait()
	w.log.Info("Expiry sweeper stopped")
}

func (w *ExpirySweeper) tick() {
	w.mu.Lock()
	ctx := w.baseCtx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	_, _ = w.RunOnce(ctx)
}

// RunOnce sweeps immediately. Used by the scheduler, the admin endpoint and the CLI.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (*service.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	result, err := w.sweeper.SweepExpiredReservations(ctx)

	w.mu.Lock()
	w.totalRuns++
	w.lastRunTime = time.Now()
	w.lastError = ""
	if err != nil {
		w.lastError = err.Error()
	}
	if result != nil {
		w.totalExpired += int64(result.Expired)
		w.totalPromoted += int64(result.Promoted)
		w.totalFailed += int64(result.Failed)
		w.lastResult = result
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error(fmt.Sprintf("Expiry sweep failed: %v", err))
		return result, err
	}
	if result.Expired > 0 || result.Failed > 0 {
		w.log.Info(fmt.Sprintf("Expiry sweep expired %d holds, promoted %d, failed %d",
			result.Expired, result.Promoted, result.Failed),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// GetStats returns sweeper statistics
func (w *ExpirySweeper) GetStats() *ExpirySweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpirySweeperStats{
		IsRunning:     w.running,
		Schedule:      w.config.Schedule,
		TotalRuns:     w.totalRuns,
		TotalExpired:  w.totalExpired,
		TotalPromoted: w.totalPromoted,
		TotalFailed:   w.totalFailed,
		LastRunTime:   w.lastRunTime,
		LastResult:    w.lastResult,
		LastError:     w.lastError,
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
