package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/store"
)

// EventSource is the platform usage-event query API
type EventSource interface {
	QueryEvents(ctx context.Context, beginMs, endMs int64) ([]models.Event, error)
}

// CategoryResolver maps a package to its category
type CategoryResolver interface {
	CategoryOf(pkg string) int64
}

// Repository is the persistence the collector needs
type Repository interface {
	UpsertSessionSmart(in store.SessionInput) (store.UpsertResult, error)
	Watermark() (int64, bool, error)
	SetWatermark(ms int64) error
}

// CollectorConfig tunes event pulls
type CollectorConfig struct {
	QueryTimeout time.Duration
	Location     *time.Location
}

// CollectResult summarizes one event pull
type CollectResult struct {
	Events    int
	Intervals int
	Failed    int
	Watermark int64
	Dates     []string
}

// Collector pulls events from the source, runs them through the tracker and
// persists the completed sessions.
type Collector struct {
	source     EventSource
	repo       Repository
	tracker    *Tracker
	categories CategoryResolver
	clock      quartz.Clock
	config     CollectorConfig
	logger     logging.LoggerInterface

	mu      sync.Mutex
	pending []store.SessionInput
}

// NewCollector wires a collector
func NewCollector(source EventSource, repo Repository, tracker *Tracker, categories CategoryResolver,
	clock quartz.Clock, config CollectorConfig, logger logging.LoggerInterface) *Collector {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = models.DefaultQueryTimeout
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Collector{
		source:     source,
		repo:       repo,
		tracker:    tracker,
		categories: categories,
		clock:      clock,
		config:     config,
		logger:     logger,
	}
}

// Tracker exposes the underlying tracker
func (c *Collector) Tracker() *Tracker {
	return c.tracker
}

// Collect pulls events from the watermark up to now. A failed query commits nothing.
func (c *Collector) Collect(ctx context.Context) (CollectResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dates := newDateSet()
	c.retryPendingLocked(dates)

	now := c.clock.Now()
	begin, found, err := c.repo.Watermark()
	if err != nil {
		return CollectResult{Dates: dates.list()}, errors.NewSourceReadError(err, "read watermark")
	}
	if !found {
		begin = models.StartOfDay(now.In(c.config.Location)).UnixMilli()
	}
	end := now.UnixMilli()
	result := CollectResult{Watermark: begin}
	if begin >= end {
		result.Dates = dates.list()
		return result, nil
	}

	qctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	events, err := c.source.QueryEvents(qctx, begin, end)
	cancel()
	if err != nil {
		result.Dates = dates.list()
		return result, errors.NewSourceReadError(err, "query events").
			With("begin", begin).
			With("end", end)
	}

	events = normalizeEvents(events, begin, end)
	result.Events = len(events)
	if len(events) == 0 {
		result.Dates = dates.list()
		return result, nil
	}

	intervals := c.tracker.Apply(events)
	result.Intervals = len(intervals)
	for _, iv := range intervals {
		if !c.persistLocked(c.input(iv), dates) {
			result.Failed++
		}
	}

	last := events[len(events)-1].Timestamp
	result.Dates = dates.list()
	if err := c.repo.SetWatermark(last); err != nil {
		return result, errors.NewStorageWriteError(err, "collect", "advance watermark").With("watermark", last)
	}
	result.Watermark = last

	c.logger.Debugf("collected events=%d intervals=%d failed=%d watermark=%d", result.Events, result.Intervals, result.Failed, last)
	return result, nil
}

// UpdateActive writes provisional sessions for still-active applications up to
// now. Later flushes of the same usage merge into these records.
func (c *Collector) UpdateActive(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dates := newDateSet()
	now := c.clock.Now().UnixMilli()
	for _, iv := range c.tracker.Snapshot(now) {
		if ctx.Err() != nil {
			return dates.list(), ctx.Err()
		}
		c.persistLocked(c.input(iv), dates)
	}
	return dates.list(), nil
}

// RecordOffline stores a manually entered offline activity
func (c *Collector) RecordOffline(name string, categoryID int64, start, end time.Time) (models.UsageSession, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := store.SessionInput{
		Package:    models.OfflinePackagePrefix + name,
		CategoryID: categoryID,
		Start:      start.UnixMilli(),
		End:        end.UnixMilli(),
		Offline:    true,
	}
	res, err := c.repo.UpsertSessionSmart(in)
	if err != nil {
		return models.UsageSession{}, nil, errors.NewStorageWriteError(err, "offline", "record offline activity").With("name", name)
	}
	return res.Session, models.DatesSpanned(res.Session.StartTime, res.Session.EndTime, c.config.Location), nil
}

// Shutdown flushes every active application at now, synchronously
func (c *Collector) Shutdown(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dates := newDateSet()
	c.retryPendingLocked(dates)

	now := c.clock.Now().UnixMilli()
	intervals := c.tracker.FlushAll(now)
	for _, iv := range intervals {
		if ctx.Err() != nil {
			return dates.list(), ctx.Err()
		}
		c.persistLocked(c.input(iv), dates)
	}
	c.logger.Infof("flushed active sessions count=%d pending=%d", len(intervals), len(c.pending))
	return dates.list(), nil
}

// Pending returns the number of writes waiting for retry
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Collector) input(iv Interval) store.SessionInput {
	var category int64
	if c.categories != nil {
		category = c.categories.CategoryOf(iv.Package)
	}
	return store.SessionInput{
		Package:    iv.Package,
		CategoryID: category,
		Start:      iv.Start,
		End:        iv.End,
	}
}

// persistLocked writes in, queueing it for retry on failure
func (c *Collector) persistLocked(in store.SessionInput, dates *dateSet) bool {
	res, err := c.repo.UpsertSessionSmart(in)
	if err != nil {
		c.logger.Errorf("session write failed, will retry package=%s start=%d end=%d: %v", in.Package, in.Start, in.End, err)
		c.pending = append(c.pending, in)
		return false
	}
	dates.addSpan(res.Session.StartTime, res.Session.EndTime, c.config.Location)
	return true
}

func (c *Collector) retryPendingLocked(dates *dateSet) {
	if len(c.pending) == 0 {
		return
	}
	retry := c.pending
	c.pending = nil
	for _, in := range retry {
		c.persistLocked(in, dates)
	}
}

// normalizeEvents keeps events inside [begin, end), orders them stably by
// timestamp and drops exact duplicates.
func normalizeEvents(events []models.Event, begin, end int64) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp < begin || ev.Timestamp >= end || ev.Package == "" {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	deduped := out[:0]
	seen := make(map[models.Event]struct{}, len(out))
	for _, ev := range out {
		if _, dup := seen[ev]; dup {
			continue
		}
		seen[ev] = struct{}{}
		deduped = append(deduped, ev)
	}
	return deduped
}

type dateSet struct {
	m map[string]struct{}
}

func newDateSet() *dateSet {
	return &dateSet{m: make(map[string]struct{})}
}

func (d *dateSet) addSpan(start, end int64, loc *time.Location) {
	for _, date := range models.DatesSpanned(start, end, loc) {
		d.m[date] = struct{}{}
	}
}

func (d *dateSet) list() []string {
	out := make([]string, 0, len(d.m))
	for date := range d.m {
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}
