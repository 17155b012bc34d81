package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/store"
)

type fakeSource struct {
	mu     sync.Mutex
	events []models.Event
	err    error
	calls  [][2]int64
}

func (f *fakeSource) QueryEvents(_ context.Context, begin, end int64) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]int64{begin, end})
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Event
	for _, ev := range f.events {
		if ev.Timestamp >= begin && ev.Timestamp < end {
			out = append(out, ev)
		}
	}
	return out, nil
}

type staticCategories map[string]int64

func (s staticCategories) CategoryOf(pkg string) int64 { return s[pkg] }

type flakyRepo struct {
	*store.Store
	fail bool
}

func (f *flakyRepo) UpsertSessionSmart(in store.SessionInput) (store.UpsertResult, error) {
	if f.fail {
		return store.UpsertResult{}, fmt.Errorf("disk unavailable")
	}
	return f.Store.UpsertSessionSmart(in)
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func newCollectorFixture(t *testing.T, src *fakeSource) (*Collector, *store.Store, *quartz.Mock) {
	t.Helper()
	st, err := store.OpenInMemory(time.UTC, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := quartz.NewMock(t)
	tr := NewTracker(TrackerConfig{}, nil, nil)
	c := NewCollector(src, st, tr, staticCategories{"app": 3}, clock, CollectorConfig{Location: time.UTC}, nil)
	return c, st, clock
}

func TestCollectorFirstRunStartsAtStartOfToday(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{events: []models.Event{
		fg("app", at(9, 0, 0).UnixMilli()),
		bg("app", at(9, 10, 0).UnixMilli()),
		fg("app", at(9, 10, 0).UnixMilli()), // duplicate tuples collapse
		fg("app", at(9, 10, 0).UnixMilli()),
	}}
	c, st, clock := newCollectorFixture(t, src)
	clock.Set(at(12, 0, 0)).MustWait(ctx)

	res, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Events)
	assert.Equal(t, 1, res.Intervals)
	assert.Equal(t, []string{"2024-03-01"}, res.Dates)
	assert.Equal(t, at(9, 10, 0).UnixMilli(), res.Watermark)
	assert.Equal(t, day.UnixMilli(), src.calls[0][0])

	sessions, err := st.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(3), sessions[0].CategoryID)
	assert.Equal(t, int64(600), sessions[0].DurationSeconds)

	wm, found, err := st.Watermark()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, at(9, 10, 0).UnixMilli(), wm)
}

func TestCollectorResumesFromWatermarkWithoutDoubleCounting(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{events: []models.Event{
		fg("app", at(9, 0, 0).UnixMilli()),
		bg("app", at(9, 10, 0).UnixMilli()),
	}}
	c, st, clock := newCollectorFixture(t, src)
	clock.Set(at(10, 0, 0)).MustWait(ctx)
	_, err := c.Collect(ctx)
	require.NoError(t, err)

	// boundary event is re-delivered because the query begins at the watermark
	src.events = append(src.events, fg("app", at(10, 30, 0).UnixMilli()), bg("app", at(10, 40, 0).UnixMilli()))
	clock.Set(at(11, 0, 0)).MustWait(ctx)
	res, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, at(9, 10, 0).UnixMilli(), src.calls[1][0])
	assert.Equal(t, 1, res.Intervals)

	sessions, err := st.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(600), sessions[0].DurationSeconds)
	assert.Equal(t, int64(600), sessions[1].DurationSeconds)
}

func TestCollectorSourceFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: fmt.Errorf("usage service unavailable")}
	c, st, clock := newCollectorFixture(t, src)
	clock.Set(at(10, 0, 0)).MustWait(ctx)

	_, err := c.Collect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceRead))

	_, found, err := st.Watermark()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCollectorRetriesFailedWrites(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenInMemory(time.UTC, nil)
	require.NoError(t, err)
	defer st.Close()

	repo := &flakyRepo{Store: st, fail: true}
	src := &fakeSource{events: []models.Event{
		fg("app", at(9, 0, 0).UnixMilli()),
		bg("app", at(9, 5, 0).UnixMilli()),
	}}
	clock := quartz.NewMock(t)
	clock.Set(at(10, 0, 0)).MustWait(ctx)
	c := NewCollector(src, repo, NewTracker(TrackerConfig{}, nil, nil), nil, clock, CollectorConfig{Location: time.UTC}, nil)

	res, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, c.Pending())

	repo.fail = false
	clock.Set(at(10, 1, 0)).MustWait(ctx)
	res, err = c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, []string{"2024-03-01"}, res.Dates)

	sessions, err := st.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestCollectorUpdateActiveAndShutdown(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{events: []models.Event{fg("app", at(23, 50, 0).UnixMilli())}}
	c, st, clock := newCollectorFixture(t, src)
	clock.Set(at(23, 55, 0)).MustWait(ctx)

	_, err := c.Collect(ctx)
	require.NoError(t, err)

	dates, err := c.UpdateActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01"}, dates)

	clock.Set(at(24, 10, 0)).MustWait(ctx)
	dates, err = c.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, dates)
	assert.Empty(t, c.Tracker().Active())

	sessions, err := st.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1, "provisional record is extended, not duplicated")
	assert.Equal(t, at(23, 50, 0).UnixMilli(), sessions[0].StartTime)
	assert.Equal(t, at(24, 10, 0).UnixMilli(), sessions[0].EndTime)
}

func TestCollectorRecordOffline(t *testing.T) {
	c, st, _ := newCollectorFixture(t, &fakeSource{})
	sess, dates, err := c.RecordOffline("reading", 7, at(20, 0, 0), at(21, 0, 0))
	require.NoError(t, err)
	assert.True(t, sess.Offline)
	assert.Equal(t, "offline:reading", sess.Package)
	assert.Equal(t, []string{"2024-03-01"}, dates)

	sessions, err := st.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(3600), sessions[0].DurationSeconds)
}
