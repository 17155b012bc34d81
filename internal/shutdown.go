package internal

import (
	"context"
	"fmt"
	"time"
)

// shutdownTimeout bounds the final flush
const shutdownTimeout = 30 * time.Second

// Close releases every component. It is safe to call more than once and
// after Run returned.
func (a *Application) Close() error {
	return a.shutdown()
}

// shutdown performs graceful shutdown of all application components
func (a *Application) shutdown() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.running = false
	a.mu.Unlock()

	a.logger.Debug("Initiating graceful shutdown")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop components in reverse order of initialization
	shutdownSteps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"Config Watcher", a.stopConfigWatcher},
		{"File Watcher", a.stopFileWatcher},
		{"Scheduler", a.stopScheduler},
		{"Store", a.stopStore},
	}

	var errs []error
	for _, step := range shutdownSteps {
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			a.logger.Errorf("Failed to stop %s: %v", step.name, err)
		} else {
			a.logger.Debugf("%s stopped", step.name)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		a.logger.Warn("Shutdown timeout exceeded, active sessions may not be flushed")
	}

	// Aggregate errors
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// stopConfigWatcher stops config hot reload
func (a *Application) stopConfigWatcher(ctx context.Context) error {
	if a.configWatcher == nil {
		return nil
	}
	return a.configWatcher.Stop()
}

// stopFileWatcher stops the data file watcher
func (a *Application) stopFileWatcher(ctx context.Context) error {
	if a.fileWatcher == nil {
		return nil
	}
	return a.fileWatcher.Stop()
}

// stopScheduler waits for the running pass and flushes active sessions
func (a *Application) stopScheduler(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Stop(ctx)
}

// stopStore closes the store
func (a *Application) stopStore(ctx context.Context) error {
	return a.closeStore()
}

func (a *Application) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
