package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/consistency"
	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/sessions"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, s := range r.list() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

type fakeCollector struct {
	rec          *recorder
	collectDates []string
	activeDates  []string
	flushDates   []string
	collectErr   error
	hold         time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeCollector) Collect(context.Context) (sessions.CollectResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	f.rec.add("collect")
	return sessions.CollectResult{Dates: f.collectDates}, f.collectErr
}

func (f *fakeCollector) UpdateActive(context.Context) ([]string, error) {
	f.rec.add("active")
	return f.activeDates, nil
}

func (f *fakeCollector) Shutdown(context.Context) ([]string, error) {
	f.rec.add("shutdown")
	return f.flushDates, nil
}

type fakeAggregator struct {
	rec          *recorder
	panicPeriods bool
}

func (f *fakeAggregator) RecomputeDate(date string) error {
	f.rec.add("recompute:" + date)
	return nil
}

func (f *fakeAggregator) RecomputePeriodsFor(dates []string, today string) error {
	if f.panicPeriods {
		panic("period rollup exploded")
	}
	f.rec.add("periods:" + strings.Join(dates, ","))
	return nil
}

type fakeCleaner struct {
	rec    *recorder
	report consistency.Report
}

func (f *fakeCleaner) Run(context.Context) (consistency.Report, error) {
	f.rec.add("cleanup")
	return f.report, nil
}

type harness struct {
	rec       *recorder
	clock     *quartz.Mock
	collector *fakeCollector
	agg       *fakeAggregator
	cleaner   *fakeCleaner
	bus       *Bus
	updates   *[]models.DataUpdate
	sched     *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)).MustWait(context.Background())

	h := &harness{
		rec:       rec,
		clock:     clock,
		collector: &fakeCollector{rec: rec},
		agg:       &fakeAggregator{rec: rec},
		cleaner:   &fakeCleaner{rec: rec},
		bus:       NewBus(nil),
	}
	var mu sync.Mutex
	updates := []models.DataUpdate{}
	h.updates = &updates
	h.bus.Subscribe(func(u models.DataUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
		rec.add("publish:" + string(u.Type))
	})
	h.sched = NewScheduler(h.collector, h.agg, h.cleaner, h.bus, clock, Config{Location: time.UTC}, nil)
	return h
}

func TestPassRunsStagesInOrder(t *testing.T) {
	h := newHarness(t)
	h.collector.collectDates = []string{"2024-03-09"}
	h.collector.activeDates = []string{"2024-03-10"}

	result, err := h.sched.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"collect",
		"active",
		"recompute:2024-03-09",
		"recompute:2024-03-10",
		"periods:2024-03-09,2024-03-10",
		"cleanup",
		"publish:periodic",
	}, h.rec.list())
	assert.Equal(t, []string{"2024-03-09", "2024-03-10"}, result.Dates)
	assert.True(t, result.Cleaned)
	assert.Empty(t, result.Errors)
	assert.Equal(t, StateIdle, h.sched.State())
}

func TestStageFailureDoesNotAbortPass(t *testing.T) {
	h := newHarness(t)
	h.collector.collectErr = fmt.Errorf("usage source unavailable")
	h.agg.panicPeriods = true

	result, err := h.sched.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	var pe *errors.PanicError
	assert.True(t, stderrors.As(result.Errors[1], &pe))
	assert.Equal(t, StateAggregating.String(), pe.Stage)

	steps := h.rec.list()
	assert.Contains(t, steps, "recompute:2024-03-10")
	assert.Contains(t, steps, "cleanup")
	assert.Contains(t, steps, "publish:periodic")
	assert.Equal(t, StateIdle, h.sched.State())
}

func TestTriggerManualRateLimited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.sched.TriggerManual(ctx)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	h.clock.Advance(time.Second).MustWait(ctx)
	second, err := h.sched.TriggerManual(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	h.clock.Advance(time.Second).MustWait(ctx)
	third, err := h.sched.TriggerManual(ctx)
	require.NoError(t, err)
	assert.False(t, third.Skipped)

	assert.Equal(t, 2, h.rec.count("collect"))
	assert.Equal(t, 2, h.rec.count("cleanup"), "manual passes always clean up")
	assert.Equal(t, 2, h.rec.count("publish:manual"))
}

func TestCleanupGating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		advance time.Duration
		run     func() (PassResult, error)
		cleaned bool
	}{
		{"first periodic pass cleans", 0, func() (PassResult, error) { return h.sched.Tick(ctx) }, true},
		{"periodic within interval skips", time.Minute, func() (PassResult, error) { return h.sched.Tick(ctx) }, false},
		{"quick never cleans", 2 * time.Hour, func() (PassResult, error) { return h.sched.TriggerQuick(ctx) }, false},
		{"periodic after interval cleans", 0, func() (PassResult, error) { return h.sched.Tick(ctx) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.advance > 0 {
				h.clock.Advance(tt.advance).MustWait(ctx)
			}
			result, err := tt.run()
			require.NoError(t, err)
			assert.Equal(t, tt.cleaned, result.Cleaned)
		})
	}
	assert.Equal(t, 2, h.rec.count("cleanup"))
}

func TestCleanupDatesPropagateToUpdate(t *testing.T) {
	h := newHarness(t)
	h.cleaner.report = consistency.Report{Backfilled: []string{"2024-03-07"}, OverflowDates: []string{"2024-03-08"}}

	result, err := h.sched.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, *h.updates, 1)
	assert.Equal(t, []string{"2024-03-07", "2024-03-08", "2024-03-10"}, (*h.updates)[0].Dates)
	assert.Equal(t, result.Dates, (*h.updates)[0].Dates)
}

func TestStartDrivesPeriodicPassesAndStopFlushes(t *testing.T) {
	h := newHarness(t)
	h.collector.flushDates = []string{"2024-03-10"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.sched.Start(ctx))
	require.Error(t, h.sched.Start(ctx), "double start")
	assert.Empty(t, *h.updates, "start does not run a pass")

	h.clock.Advance(models.DefaultTickInterval).MustWait(ctx)
	h.clock.Advance(models.DefaultTickInterval).MustWait(ctx)
	assert.Equal(t, 2, h.rec.count("publish:periodic"))

	require.NoError(t, h.sched.Stop(ctx))
	assert.Equal(t, 1, h.rec.count("shutdown"))
	steps := h.rec.list()
	assert.Equal(t, "recompute:2024-03-10", steps[len(steps)-1], "flushed dates are recomputed")

	require.NoError(t, h.sched.Stop(ctx), "stop is idempotent")
	assert.Equal(t, 1, h.rec.count("shutdown"))
}

func TestWatchdogRestartsDeadLoop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Start(ctx))
	defer func() { _ = h.sched.Stop(ctx) }()

	assert.False(t, h.sched.Watchdog(ctx), "healthy loop is left alone")

	h.sched.mu.Lock()
	h.sched.loopCancel()
	done := h.sched.loopDone
	h.sched.mu.Unlock()
	<-done

	assert.True(t, h.sched.Watchdog(ctx))
	assert.Equal(t, 1, h.sched.Restarts())
	assert.Equal(t, 0, h.rec.count("collect"), "dead but fresh loop needs no catch-up pass")

	h.clock.Advance(models.DefaultTickInterval).MustWait(ctx)
	assert.Equal(t, 1, h.rec.count("publish:periodic"), "restarted loop ticks again")
}

func TestWatchdogRunsCatchUpWhenStale(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Start(ctx))
	defer func() { _ = h.sched.Stop(ctx) }()

	h.sched.heartbeat.Store(h.clock.Now().Add(-10 * time.Minute).UnixNano())

	assert.True(t, h.sched.Watchdog(ctx))
	assert.Equal(t, 1, h.rec.count("publish:periodic"))
	assert.False(t, h.sched.Watchdog(ctx), "heartbeat refreshed by the catch-up pass")
}

func TestPassesAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.collector.hold = 5 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sched.TriggerQuick(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.collector.maxInFlight.Load())
	assert.Equal(t, 6, h.rec.count("publish:quick"))
}

func TestBusRecoversPanickingSubscriber(t *testing.T) {
	bus := NewBus(nil)
	var got []models.UpdateType
	bus.Subscribe(func(models.DataUpdate) { panic("boom") })
	bus.Subscribe(func(u models.DataUpdate) { got = append(got, u.Type) })

	assert.NotPanics(t, func() {
		bus.Publish(models.DataUpdate{Type: models.UpdateQuick})
	})
	assert.Equal(t, []models.UpdateType{models.UpdateQuick}, got)
}
