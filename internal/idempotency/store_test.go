package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mycarconcierge/marketplace/internal/testutil/memstore"
	"github.com/stretchr/testify/require"
)

func TestStoreReserveFinalizeLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memstore.New(), time.Hour)

	_, err := s.Lookup(ctx, "k1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := s.Reserve(ctx, "k1", "hash-a", "POST", "/api/escrow/create")
	require.NoError(t, err)
	require.True(t, reserved)

	reserved, err = s.Reserve(ctx, "k1", "hash-a", "POST", "/api/escrow/create")
	require.NoError(t, err)
	require.False(t, reserved)

	_, err = s.Lookup(ctx, "k1", "hash-a")
	require.ErrorIs(t, err, ErrInProgress)

	_, err = s.Finalize(ctx, "k1", "hash-a", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)

	rec, err := s.Lookup(ctx, "k1", "hash-a")
	require.NoError(t, err)
	require.Equal(t, 201, rec.Status)
	require.JSONEq(t, `{"ok":true}`, string(rec.Body))
	require.Equal(t, "postgres", rec.ServedBy)

	_, err = s.Lookup(ctx, "k1", "hash-b")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestStoreReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, memstore.New(), time.Hour)

	reserved, err := s.Reserve(ctx, "k2", "h", "POST", "/api/escrow/release/x")
	require.NoError(t, err)
	require.True(t, reserved)
	require.NoError(t, s.Release(ctx, "k2", "h"))

	reserved, err = s.Reserve(ctx, "k2", "h", "POST", "/api/escrow/release/x")
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestWaitForCompletionReturnsFinalizedRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := NewStore(nil, memstore.New(), time.Hour)
	s.poll = 5 * time.Millisecond

	_, err := s.Reserve(ctx, "k3", "h", "POST", "/p")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.Finalize(context.Background(), "k3", "h", 200, []byte("done"), "text/plain")
	}()

	rec, err := s.WaitForCompletion(ctx, "k3", "h")
	require.NoError(t, err)
	require.Equal(t, "done", string(rec.Body))
}

func TestWaitForCompletionHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s := NewStore(nil, memstore.New(), time.Hour)

	_, err := s.Reserve(ctx, "k4", "h", "POST", "/p")
	require.NoError(t, err)

	_, err = s.WaitForCompletion(ctx, "k4", "h")
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
