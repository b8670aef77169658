package service

import (
	"context"
	"encoding/json"
	"time"

	"tiergate/internal/model"
	"tiergate/internal/repository"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	"go.uber.org/zap"
)

const outboxMaxRetries = 5

// OutboxWorker drains pending outbox tasks into etcd. It is the backstop
// behind the services' fast-path publish: anything the fast path missed
// (crash, etcd blip) lands here and is retried with a cap.
type OutboxWorker struct {
	outboxRepo repository.OutboxInterface
	syncRepo   *repository.SyncRepository
	interval   time.Duration
}

func NewOutboxWorker(outboxRepo repository.OutboxInterface, syncRepo *repository.SyncRepository, interval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		syncRepo:   syncRepo,
		interval:   interval,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *OutboxWorker) processPending(ctx context.Context) {
	tasks, err := w.outboxRepo.FetchPending(ctx, 10)
	if err != nil {
		logger.Error("failed to fetch pending outbox tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		logger.Debug("processing outbox task", zap.Int64("id", task.ID), zap.String("key", task.Key))

		if err := w.sync(ctx, task); err != nil {
			logger.Warn("failed to sync task to etcd", zap.Int64("id", task.ID), zap.Error(err))
			newRetryCount := task.RetryCount + 1
			if newRetryCount >= outboxMaxRetries {
				logger.Error("task max retries reached", zap.Int64("id", task.ID))
				w.outboxRepo.UpdateStatus(ctx, uint64(task.ID), model.StatusFailed, newRetryCount)
			} else {
				w.outboxRepo.UpdateStatus(ctx, uint64(task.ID), model.StatusPending, newRetryCount)
			}
			continue
		}

		if err := w.outboxRepo.UpdateStatus(ctx, uint64(task.ID), model.StatusCompleted, task.RetryCount); err != nil {
			logger.Error("failed to mark task completed", zap.Int64("id", task.ID), zap.Error(err))
		}
	}
}

func (w *OutboxWorker) sync(ctx context.Context, task model.OutboxTask) error {
	// Empty payload is a tombstone.
	if task.Payload == "" {
		_, err := w.syncRepo.Delete(ctx, task.Key)
		return err
	}

	if task.Kind == constraints.KindFlag {
		var stored struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal([]byte(task.Payload), &stored); err != nil {
			return err
		}
		_, err := w.syncRepo.SaveIfNewer(ctx, task.Key, task.Payload, stored.Version)
		return err
	}

	// Overrides are last-write-wins; tasks are drained in ID order.
	_, err := w.syncRepo.Save(ctx, task.Key, task.Payload)
	return err
}
