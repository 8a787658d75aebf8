package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rohanthewiz/logger"
)

const gracePeriod = 10 * time.Second

// HookFunc releases one resource; ctx expires at the end of the grace period
type HookFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   HookFunc
}

type shutdownHooks struct {
	hooks []hook
	lock  sync.Mutex
}

var (
	hooks   shutdownHooks
	trigger = make(chan string, 1)
)

// RegisterHook adds fn to the hooks fired on shutdown
func RegisterHook(name string, fn HookFunc) {
	hooks.lock.Lock()
	defer hooks.lock.Unlock()
	hooks.hooks = append(hooks.hooks, hook{name: name, fn: fn})
	logger.Debug("Registered shutdown hook", "name", name, "count", len(hooks.hooks))
}

// Trigger starts shutdown without a signal, e.g. when a server fails to start
func Trigger(reason string) {
	select {
	case trigger <- reason:
	default:
	}
}

// InitShutdownService waits for SIGINT/SIGTERM or Trigger, fires all hooks
// concurrently, and closes done once they finish or the grace period ends
func InitShutdownService(done chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(done)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig.String())
		case reason := <-trigger:
			logger.Info("Shutdown requested", "reason", reason)
		}
		setShutdown()

		runHooks(gracePeriod)
		logger.Info("Shutdown service done")
	}()
}

func runHooks(grace time.Duration) {
	hooks.lock.Lock()
	pending := append([]hook(nil), hooks.hooks...)
	hooks.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	logger.Info("Running shutdown hooks", "count", len(pending), "grace", grace.String())

	var wg sync.WaitGroup
	for _, h := range pending {
		wg.Add(1)
		go func(h hook) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				logger.LogErr(err, "shutdown hook failed", "hook", h.name)
				return
			}
			logger.Debug("Shutdown hook completed", "hook", h.name)
		}(h)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		logger.F("All shutdown hooks completed")
	case <-ctx.Done():
		logger.Warn("Shutdown hooks timed out", "grace", grace.String())
	}
}
