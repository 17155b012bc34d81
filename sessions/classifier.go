package sessions

import (
	"sync"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Platform usage-event codes
const (
	EventNone                   models.EventType = 0
	EventActivityResumed        models.EventType = 1
	EventActivityPaused         models.EventType = 2
	EventConfigurationChange    models.EventType = 5
	EventUserInteraction        models.EventType = 7
	EventShortcutInvocation     models.EventType = 8
	EventStandbyBucketChanged   models.EventType = 11
	EventNotificationSeen       models.EventType = 12
	EventScreenInteractive      models.EventType = 15
	EventScreenNonInteractive   models.EventType = 16
	EventKeyguardShown          models.EventType = 17
	EventKeyguardHidden         models.EventType = 18
	EventForegroundServiceStart models.EventType = 19
	EventForegroundServiceStop  models.EventType = 20
	EventActivityStopped        models.EventType = 23
	EventDeviceShutdown         models.EventType = 26
	EventDeviceStartup          models.EventType = 27
)

// EventKind is what the tracker does with an event
type EventKind int

const (
	KindIgnored EventKind = iota
	KindForeground
	KindBackground
	KindUnknown
)

func (k EventKind) String() string {
	switch k {
	case KindForeground:
		return "foreground"
	case KindBackground:
		return "background"
	case KindUnknown:
		return "unknown"
	default:
		return "ignored"
	}
}

// Classifier maps event codes to foreground/background transitions
type Classifier struct {
	kinds  map[models.EventType]EventKind
	logger logging.LoggerInterface

	mu      sync.Mutex
	unknown map[models.EventType]int
}

// standardKinds lists the codes whose meaning is fixed by the platform
var standardKinds = map[models.EventType]EventKind{
	EventNone:                   KindIgnored,
	EventActivityResumed:        KindForeground,
	EventActivityPaused:         KindBackground,
	EventConfigurationChange:    KindIgnored,
	EventUserInteraction:        KindIgnored,
	EventShortcutInvocation:     KindIgnored,
	EventStandbyBucketChanged:   KindIgnored,
	EventNotificationSeen:       KindIgnored,
	EventScreenInteractive:      KindIgnored,
	EventScreenNonInteractive:   KindIgnored,
	EventKeyguardShown:          KindIgnored,
	EventKeyguardHidden:         KindIgnored,
	EventForegroundServiceStart: KindIgnored,
	EventForegroundServiceStop:  KindIgnored,
	EventActivityStopped:        KindBackground,
	EventDeviceShutdown:         KindIgnored,
	EventDeviceStartup:          KindIgnored,
}

// IsKnownEventCode reports whether code already has a standard meaning
func IsKnownEventCode(code int) bool {
	_, ok := standardKinds[models.EventType(code)]
	return ok
}

// NewClassifier builds a classifier with the standard codes plus device-specific extras
func NewClassifier(extraForeground, extraBackground []int, logger logging.LoggerInterface) *Classifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	kinds := make(map[models.EventType]EventKind, len(standardKinds)+len(extraForeground)+len(extraBackground))
	for t, k := range standardKinds {
		kinds[t] = k
	}
	for _, code := range extraForeground {
		kinds[models.EventType(code)] = KindForeground
	}
	for _, code := range extraBackground {
		kinds[models.EventType(code)] = KindBackground
	}

	return &Classifier{
		kinds:   kinds,
		logger:  logger,
		unknown: make(map[models.EventType]int),
	}
}

// Classify returns the kind of t. Unknown codes are logged the first time they are seen.
func (c *Classifier) Classify(t models.EventType) EventKind {
	if k, ok := c.kinds[t]; ok {
		return k
	}

	c.mu.Lock()
	c.unknown[t]++
	first := c.unknown[t] == 1
	c.mu.Unlock()

	if first {
		c.logger.Warnf("ignoring unknown usage event type=%d", t)
	}
	return KindUnknown
}

// UnknownCounts returns how often each unrecognized code was seen
func (c *Classifier) UnknownCounts() map[models.EventType]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[models.EventType]int, len(c.unknown))
	for k, v := range c.unknown {
		out[k] = v
	}
	return out
}
