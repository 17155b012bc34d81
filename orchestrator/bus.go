package orchestrator

import (
	"sync"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// DataUpdateCallback receives data-updated signals
type DataUpdateCallback func(models.DataUpdate)

// Bus fans data-updated signals out to subscribers. The core does not know who listens.
type Bus struct {
	mu        sync.RWMutex
	callbacks []DataUpdateCallback
	logger    logging.LoggerInterface
}

// NewBus creates an empty bus
func NewBus(logger logging.LoggerInterface) *Bus {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a callback
func (b *Bus) Subscribe(callback DataUpdateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Publish delivers u to every subscriber in registration order. A panicking
// subscriber is logged and skipped.
func (b *Bus) Publish(u models.DataUpdate) {
	b.mu.RLock()
	callbacks := make([]DataUpdateCallback, len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Errorf("data update subscriber panicked type=%s: %v", u.Type, r)
				}
			}()
			callback(u)
		}()
	}
}
