package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mycarconcierge/marketplace/internal/observability"
	"go.uber.org/zap"
)

const holdWorkerName = "hold_reconciliation"

// HoldReconciler promotes created escrows whose holds the gateway already authorized.
type HoldReconciler interface {
	ReconcilePendingHolds(ctx context.Context, minAge time.Duration, limit int) (int, error)
}

// HoldWorker periodically reconciles pending holds, covering webhook
// deliveries that never arrived. Promotion goes through the same
// conditional transition as the webhook, so several instances may run.
type HoldWorker struct {
	reconciler   HoldReconciler
	pollInterval time.Duration
	minAge       time.Duration
	batchSize    int
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func NewHoldWorker(reconciler HoldReconciler) *HoldWorker {
	return &HoldWorker{
		reconciler:   reconciler,
		pollInterval: time.Minute,
		minAge:       5 * time.Minute,
		batchSize:    50,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *HoldWorker) WithPollInterval(interval time.Duration) *HoldWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithMinAge skips holds younger than age; the payer may still be confirming them.
func (w *HoldWorker) WithMinAge(age time.Duration) *HoldWorker {
	if age >= 0 {
		w.minAge = age
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *HoldWorker) WithBatchSize(size int) *HoldWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or the context is canceled.
func (w *HoldWorker) Start(ctx context.Context) {
	defer close(w.done)
	zap.L().Info("hold reconciliation worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Duration("min_age", w.minAge),
		zap.Int("batch", w.batchSize),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("hold reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("hold reconciliation worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("hold reconciliation run failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (w *HoldWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a function that stops it
// and waits for the current batch to finish.
func (w *HoldWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return func() {
		w.Stop()
		<-w.done
	}
}

// ProcessOnce reconciles a single batch immediately.
func (w *HoldWorker) ProcessOnce(ctx context.Context) (int, error) {
	promoted, err := w.reconciler.ReconcilePendingHolds(ctx, w.minAge, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun(holdWorkerName, "failed")
		return 0, err
	}
	observability.IncrementWorkerRun(holdWorkerName, "success")
	if promoted > 0 {
		zap.L().Info("pending holds promoted", zap.Int("count", promoted))
	}
	return promoted, nil
}

func (w *HoldWorker) String() string {
	return fmt.Sprintf("HoldWorker(interval=%v, min_age=%v, batch=%d)", w.pollInterval, w.minAge, w.batchSize)
}
