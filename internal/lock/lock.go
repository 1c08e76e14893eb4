// Package lock serializes work per key, e.g. per package id.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive per-key critical sections.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call once.
	Lock(ctx context.Context, key string) (func(), error)
}
