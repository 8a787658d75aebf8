// Package shutdown turns SIGINT/SIGTERM into an orderly stop: registered
// hooks run concurrently within a grace period, and CheckShutdown lets
// handlers refuse new work once shutdown has begun.
package shutdown

import (
	"sync"
)

var (
	isShutdown bool
	mu         sync.RWMutex
)

// CheckShutdown reports whether shutdown has started
func CheckShutdown() bool {
	mu.RLock()
	defer mu.RUnlock()
	return isShutdown
}

func setShutdown() {
	mu.Lock()
	isShutdown = true
	mu.Unlock()
}
