package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/penwyp/ScreenCat/consistency"
	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/sessions"
)

// State is the scheduler's position in a pass
type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateBaseUpdate
	StateAggregating
	StateCleanupCheck
	StateNotifyDownstream
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateBaseUpdate:
		return "base_update"
	case StateAggregating:
		return "aggregating"
	case StateCleanupCheck:
		return "cleanup_check"
	case StateNotifyDownstream:
		return "notify_downstream"
	default:
		return "idle"
	}
}

// Collector pulls events and flushes active sessions
type Collector interface {
	Collect(ctx context.Context) (sessions.CollectResult, error)
	UpdateActive(ctx context.Context) ([]string, error)
	Shutdown(ctx context.Context) ([]string, error)
}

// Aggregator rebuilds derived data for dates
type Aggregator interface {
	RecomputeDate(date string) error
	RecomputePeriodsFor(dates []string, today string) error
}

// Cleaner runs the consistency checks
type Cleaner interface {
	Run(ctx context.Context) (consistency.Report, error)
}

// Publisher receives the data-updated signal after each pass
type Publisher interface {
	Publish(u models.DataUpdate)
}

// Config tunes the scheduler cadence
type Config struct {
	Interval          time.Duration
	ManualMinInterval time.Duration
	WatchdogInterval  time.Duration
	StallThreshold    time.Duration
	CleanupInterval   time.Duration
	Location          *time.Location
}

// PassResult describes one run of the state machine
type PassResult struct {
	Type     models.UpdateType
	Skipped  bool
	Cleaned  bool
	Dates    []string
	Errors   []error
	Duration time.Duration
}

// Scheduler drives Collecting, BaseUpdate, Aggregating, CleanupCheck and
// NotifyDownstream in that order. Periodic ticks, manual triggers, quick
// triggers and the watchdog all funnel into runPass, which admits one pass at
// a time.
type Scheduler struct {
	collector  Collector
	aggregator Aggregator
	cleaner    Cleaner
	publisher  Publisher
	clock      quartz.Clock
	config     Config
	logger     logging.LoggerInterface

	sem       chan struct{}
	state     atomic.Int32
	heartbeat atomic.Int64
	restarts  atomic.Int32

	mu          sync.Mutex
	running     bool
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
	watchdog    quartz.Waiter
	lastManual  time.Time
	lastCleanup time.Time
}

// NewScheduler wires a scheduler. cleaner and publisher may be nil.
func NewScheduler(collector Collector, aggregator Aggregator, cleaner Cleaner, publisher Publisher,
	clock quartz.Clock, config Config, logger logging.LoggerInterface) *Scheduler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if config.Interval <= 0 {
		config.Interval = models.DefaultTickInterval
	}
	if config.ManualMinInterval <= 0 {
		config.ManualMinInterval = models.DefaultManualMinInterval
	}
	if config.WatchdogInterval <= 0 {
		config.WatchdogInterval = models.DefaultWatchdogInterval
	}
	if config.StallThreshold <= 0 {
		config.StallThreshold = 3 * config.Interval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = models.DefaultCleanupInterval
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Scheduler{
		collector:  collector,
		aggregator: aggregator,
		cleaner:    cleaner,
		publisher:  publisher,
		clock:      clock,
		config:     config,
		logger:     logger,
		sem:        make(chan struct{}, 1),
	}
}

// State returns the current stage
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Restarts counts how often the watchdog revived the periodic loop
func (s *Scheduler) Restarts() int {
	return int(s.restarts.Load())
}

// Start arms the periodic loop and the watchdog. It does not run a pass.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	s.heartbeat.Store(s.clock.Now().UnixNano())
	s.startLoopLocked()
	s.watchdog = s.clock.TickerFunc(s.rootCtx, s.config.WatchdogInterval, func() error {
		s.Watchdog(s.rootCtx)
		return nil
	}, "scheduler", "watchdog")

	s.logger.Infof("scheduler started interval=%s watchdog=%s", s.config.Interval, s.config.WatchdogInterval)
	return nil
}

func (s *Scheduler) startLoopLocked() {
	loopCtx, cancel := context.WithCancel(s.rootCtx)
	done := make(chan struct{})
	w := s.clock.TickerFunc(loopCtx, s.config.Interval, func() error {
		s.heartbeat.Store(s.clock.Now().UnixNano())
		if _, err := s.run(loopCtx, models.UpdatePeriodic, false); err != nil && loopCtx.Err() == nil {
			s.logger.Debugf("periodic pass not run: %v", err)
		}
		return nil
	}, "scheduler", "tick")
	go func() {
		_ = w.Wait()
		close(done)
	}()
	s.loopCancel = cancel
	s.loopDone = done
}

// Watchdog revives the periodic loop when it has exited or stopped ticking,
// and runs a catch-up pass when it had stalled. It reports whether it restarted the loop.
func (s *Scheduler) Watchdog(ctx context.Context) bool {
	s.mu.Lock()
	if !s.running || s.rootCtx.Err() != nil {
		s.mu.Unlock()
		return false
	}

	dead := false
	select {
	case <-s.loopDone:
		dead = true
	default:
	}
	idle := s.State() == StateIdle
	stale := idle && s.clock.Since(time.Unix(0, s.heartbeat.Load())) > s.config.StallThreshold
	if !dead && !stale {
		s.mu.Unlock()
		return false
	}

	s.logger.Warnf("periodic loop unhealthy, restarting dead=%t stale=%t", dead, stale)
	s.loopCancel()
	s.startLoopLocked()
	s.heartbeat.Store(s.clock.Now().UnixNano())
	s.restarts.Add(1)
	s.mu.Unlock()

	if stale {
		if _, err := s.run(ctx, models.UpdatePeriodic, false); err != nil {
			s.logger.Debugf("watchdog catch-up pass not run: %v", err)
		}
	}
	return true
}

// Tick runs one periodic pass, waiting for any pass in progress
func (s *Scheduler) Tick(ctx context.Context) (PassResult, error) {
	return s.run(ctx, models.UpdatePeriodic, true)
}

// TriggerManual runs a full pass out of band. Calls closer together than the
// manual minimum interval are skipped.
func (s *Scheduler) TriggerManual(ctx context.Context) (PassResult, error) {
	s.mu.Lock()
	now := s.clock.Now()
	if !s.lastManual.IsZero() && now.Sub(s.lastManual) < s.config.ManualMinInterval {
		s.mu.Unlock()
		s.logger.Debugf("manual trigger rate limited")
		return PassResult{Type: models.UpdateManual, Skipped: true}, nil
	}
	s.lastManual = now
	s.mu.Unlock()

	return s.run(ctx, models.UpdateManual, true)
}

// TriggerQuick runs a pass without the cleanup stage, e.g. after the event log changed
func (s *Scheduler) TriggerQuick(ctx context.Context) (PassResult, error) {
	return s.run(ctx, models.UpdateQuick, true)
}

// Stop cancels the loops, waits for any running pass and flushes still-active
// sessions synchronously.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.rootCancel()
	done, watchdog := s.loopDone, s.watchdog
	s.mu.Unlock()

	<-done
	_ = watchdog.Wait()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer s.release()

	dates, err := s.collector.Shutdown(ctx)
	if err != nil {
		s.logger.Errorf("flush on stop failed: %v", err)
	}
	ec := errors.NewErrorCollector()
	ec.Collect(err)
	for _, date := range dates {
		ec.Collect(s.aggregator.RecomputeDate(date))
	}
	s.logger.Infof("scheduler stopped flushed_dates=%d", len(dates))
	return ec.Err()
}

func (s *Scheduler) acquire(ctx context.Context, wait bool) error {
	if !wait {
		select {
		case s.sem <- struct{}{}:
			return nil
		default:
			return errors.NewConcurrencyError("pass already running")
		}
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() {
	<-s.sem
}

func (s *Scheduler) run(ctx context.Context, kind models.UpdateType, wait bool) (PassResult, error) {
	if err := s.acquire(ctx, wait); err != nil {
		return PassResult{Type: kind, Skipped: true}, err
	}
	defer s.release()
	return s.runPass(ctx, kind), nil
}

// runPass executes every stage. A failing or panicking stage is logged and
// the following stages still run.
func (s *Scheduler) runPass(ctx context.Context, kind models.UpdateType) PassResult {
	started := s.clock.Now()
	today := started.In(s.config.Location).Format(models.DateLayout)
	result := PassResult{Type: kind}
	dates := map[string]struct{}{today: {}}
	addDates := func(ds []string) {
		for _, d := range ds {
			dates[d] = struct{}{}
		}
	}

	stage := func(state State, fn func() error) {
		s.state.Store(int32(state))
		if err := errors.SafeRun(state.String(), fn); err != nil {
			s.logger.Errorf("stage failed stage=%s type=%s: %v", state, kind, err)
			result.Errors = append(result.Errors, err)
		}
	}

	stage(StateCollecting, func() error {
		res, err := s.collector.Collect(ctx)
		addDates(res.Dates)
		return err
	})

	stage(StateBaseUpdate, func() error {
		active, err := s.collector.UpdateActive(ctx)
		addDates(active)
		ec := errors.NewErrorCollector()
		ec.Collect(err)
		for _, date := range sortedDates(dates) {
			ec.Collect(s.aggregator.RecomputeDate(date))
		}
		return ec.Err()
	})

	stage(StateAggregating, func() error {
		return s.aggregator.RecomputePeriodsFor(sortedDates(dates), today)
	})

	if s.shouldClean(kind, started) {
		stage(StateCleanupCheck, func() error {
			report, err := s.cleaner.Run(ctx)
			addDates(report.DuplicateDates)
			addDates(report.OverflowDates)
			addDates(report.Backfilled)
			result.Cleaned = true
			return err
		})
	}

	result.Dates = sortedDates(dates)
	if s.publisher != nil {
		stage(StateNotifyDownstream, func() error {
			s.publisher.Publish(models.DataUpdate{Type: kind, At: started, Dates: result.Dates})
			return nil
		})
	}

	s.state.Store(int32(StateIdle))
	s.heartbeat.Store(s.clock.Now().UnixNano())
	result.Duration = s.clock.Since(started)
	s.logger.Debugf("pass complete type=%s dates=%d errors=%d duration=%s", kind, len(result.Dates), len(result.Errors), result.Duration)
	return result
}

func (s *Scheduler) shouldClean(kind models.UpdateType, now time.Time) bool {
	if s.cleaner == nil || kind == models.UpdateQuick {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind != models.UpdateManual && !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < s.config.CleanupInterval {
		return false
	}
	s.lastCleanup = now
	return true
}

func sortedDates(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
