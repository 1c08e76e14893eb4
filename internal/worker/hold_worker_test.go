package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	mu     sync.Mutex
	calls  int
	minAge time.Duration
	limit  int
	err    error
}

func (f *fakeReconciler) ReconcilePendingHolds(_ context.Context, minAge time.Duration, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.minAge = minAge
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func (f *fakeReconciler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestProcessOncePassesOptions(t *testing.T) {
	rec := &fakeReconciler{}
	w := NewHoldWorker(rec).WithMinAge(3 * time.Minute).WithBatchSize(7)

	promoted, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, promoted)
	require.Equal(t, 3*time.Minute, rec.minAge)
	require.Equal(t, 7, rec.limit)
}

func TestProcessOnceReturnsErrors(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("db down")}

	_, err := NewHoldWorker(rec).ProcessOnce(context.Background())
	require.Error(t, err)
}

func TestRunTicksUntilStopped(t *testing.T) {
	rec := &fakeReconciler{}
	w := NewHoldWorker(rec).WithPollInterval(5 * time.Millisecond)

	stop := w.Run(context.Background())
	require.Eventually(t, func() bool { return rec.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	stop()

	after := rec.callCount()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, rec.callCount())
	w.Stop()
}
