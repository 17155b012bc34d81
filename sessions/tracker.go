package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Interval is a completed foreground span of one application
type Interval struct {
	Package string
	Start   int64
	End     int64
}

// TrackerConfig tunes session construction
type TrackerConfig struct {
	// Housekeeping packages stay in the active map on background events; their
	// start is advanced instead so continuous use is not fragmented.
	Housekeeping   []string
	ReentryGap     time.Duration
	ReentryBackoff time.Duration
}

// Tracker keeps the set of foreground applications and turns transitions into intervals.
// It is safe for concurrent use.
type Tracker struct {
	classifier *Classifier
	logger     logging.LoggerInterface

	mu             sync.Mutex
	active         map[string]int64
	housekeeping   map[string]struct{}
	reentryGap     int64
	reentryBackoff int64
}

// NewTracker creates an empty tracker
func NewTracker(cfg TrackerConfig, classifier *Classifier, logger logging.LoggerInterface) *Tracker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if classifier == nil {
		classifier = NewClassifier(nil, nil, logger)
	}
	if cfg.ReentryGap <= 0 {
		cfg.ReentryGap = models.DefaultReentryGap
	}
	if cfg.ReentryBackoff <= 0 {
		cfg.ReentryBackoff = models.DefaultReentryBackoff
	}
	t := &Tracker{
		classifier:     classifier,
		logger:         logger,
		active:         make(map[string]int64),
		reentryGap:     cfg.ReentryGap.Milliseconds(),
		reentryBackoff: cfg.ReentryBackoff.Milliseconds(),
	}
	t.SetHousekeeping(cfg.Housekeeping)
	return t
}

// SetHousekeeping replaces the housekeeping package list
func (t *Tracker) SetHousekeeping(pkgs []string) {
	hk := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		hk[p] = struct{}{}
	}
	t.mu.Lock()
	t.housekeeping = hk
	t.mu.Unlock()
}

// Apply feeds ordered events through the tracker and returns the intervals they complete
func (t *Tracker) Apply(events []models.Event) []Interval {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Interval
	for _, ev := range events {
		switch t.classifier.Classify(ev.Type) {
		case KindForeground:
			out = t.foreground(ev, out)
		case KindBackground:
			out = t.background(ev, out)
		}
	}
	return out
}

func (t *Tracker) foreground(ev models.Event, out []Interval) []Interval {
	start, ok := t.active[ev.Package]
	if !ok {
		t.active[ev.Package] = ev.Timestamp
		return out
	}
	if ev.Timestamp-start <= t.reentryGap {
		return out
	}

	// re-entry without a background event in between: estimate the lost session
	out = t.emit(out, ev.Package, start, ev.Timestamp-t.reentryBackoff)
	t.active[ev.Package] = ev.Timestamp
	return out
}

func (t *Tracker) background(ev models.Event, out []Interval) []Interval {
	start, ok := t.active[ev.Package]
	if !ok {
		t.logger.Debugf("background event for inactive package=%s ts=%d", ev.Package, ev.Timestamp)
		return out
	}

	out = t.emit(out, ev.Package, start, ev.Timestamp)
	if _, hk := t.housekeeping[ev.Package]; hk {
		if ev.Timestamp > start {
			t.active[ev.Package] = ev.Timestamp
		}
		return out
	}
	delete(t.active, ev.Package)
	return out
}

func (t *Tracker) emit(out []Interval, pkg string, start, end int64) []Interval {
	if end < start {
		t.logger.Warnf("dropping interval that ends before it starts package=%s start=%d end=%d", pkg, start, end)
		return out
	}
	if end == start {
		return out
	}
	return append(out, Interval{Package: pkg, Start: start, End: end})
}

// FlushAll closes every active application at now and empties the active map
func (t *Tracker) FlushAll(now int64) []Interval {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.snapshotLocked(now)
	t.active = make(map[string]int64)
	return out
}

// Snapshot returns provisional intervals [start, now) for active applications without closing them
func (t *Tracker) Snapshot(now int64) []Interval {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(now)
}

func (t *Tracker) snapshotLocked(now int64) []Interval {
	var out []Interval
	for pkg, start := range t.active {
		out = t.emit(out, pkg, start, now)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out
}

// Active returns a copy of the active map
func (t *Tracker) Active() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.active))
	for k, v := range t.active {
		out[k] = v
	}
	return out
}
