// Package dblock serializes Postgres integration tests across test binaries.
// go test runs packages in parallel processes, so an in-process mutex is not
// enough; holding a loopback listener is.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process owns the lock and returns its release func.
// MCC_TEST_DBLOCK_ADDR overrides the port when 45432 is taken by something else.
func Acquire() func() {
	addr := os.Getenv("MCC_TEST_DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
