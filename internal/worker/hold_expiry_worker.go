package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
)

// HoldExpirer runs the expiry transition for one slot
type HoldExpirer interface {
	ExpireHold(ctx context.Context, slotID string) (bool, error)
}

// ClaimNotifier delivers one claim notification
type ClaimNotifier interface {
	Notify(ctx context.Context, n *domain.ClaimNotification) error
}

// HoldExpiryWorkerConfig contains configuration for the hold expiry worker
type HoldExpiryWorkerConfig struct {
	Concurrency int
	Queue       string
}

// HoldExpiryWorker consumes the tasks queued at each promotion: the delayed
// hold:expire task and the claim:notify delivery
type HoldExpiryWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	expirer  HoldExpirer
	notifier ClaimNotifier
	log      *logger.Logger
}

// NewHoldExpiryWorker creates a new hold expiry worker
func NewHoldExpiryWorker(redisOpt asynq.RedisConnOpt, expirer HoldExpirer, notifier ClaimNotifier, cfg *HoldExpiryWorkerConfig) *HoldExpiryWorker {
	concurrency := 5
	queue := "default"
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if cfg.Queue != "" {
			queue = cfg.Queue
		}
	}

	log := logger.Get()
	w := &HoldExpiryWorker{
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queue: 1},
			Logger:      log.Zap().Sugar(),
		}),
		mux:      asynq.NewServeMux(),
		expirer:  expirer,
		notifier: notifier,
		log:      log,
	}
	if w.notifier == nil {
		w.notifier = service.NoOpNotifier{}
	}
	w.mux.HandleFunc(service.TypeHoldExpire, w.HandleHoldExpire)
	w.mux.HandleFunc(service.TypeClaimNotify, w.HandleClaimNotify)
	return w
}

// Start starts processing tasks in the background
func (w *HoldExpiryWorker) Start() error {
	w.log.Info("Starting hold expiry worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start hold expiry worker: %w", err)
	}
	return nil
}

// Stop waits for in-flight tasks and stops the server
func (w *HoldExpiryWorker) Stop() {
	w.log.Info("Stopping hold expiry worker")
	w.server.Shutdown()
}

// HandleHoldExpire expires the hold named by the task. A hold that was
// already claimed, withdrawn or swept is a no-op.
func (w *HoldExpiryWorker) HandleHoldExpire(ctx context.Context, task *asynq.Task) error {
	var p service.HoldExpirePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("invalid hold expiry payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.SlotID == "" {
		return fmt.Errorf("hold expiry payload has no slot id: %w", asynq.SkipRetry)
	}

	expired, err := w.expirer.ExpireHold(ctx, p.SlotID)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire hold on slot %s: %v", p.SlotID, err))
		return err
	}
	if expired {
		w.log.Info(fmt.Sprintf("Expired hold on slot %s at deadline", p.SlotID))
	}
	return nil
}

// HandleClaimNotify delivers a queued claim notification. Failures are
// returned so asynq retries until the hold deadline.
func (w *HoldExpiryWorker) HandleClaimNotify(ctx context.Context, task *asynq.Task) error {
	var note domain.ClaimNotification
	if err := json.Unmarshal(task.Payload(), &note); err != nil {
		return fmt.Errorf("invalid claim notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if note.SlotID == "" || note.DinerID == "" {
		return fmt.Errorf("claim notification payload has no slot or diner: %w", asynq.SkipRetry)
	}

	if err := w.notifier.Notify(ctx, &note); err != nil {
		w.log.Error(fmt.Sprintf("Failed to deliver claim notification for slot %s: %v", note.SlotID, err))
		return err
	}
	return nil
}
