package internal

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/config"
	"github.com/penwyp/ScreenCat/fileio"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *recordingSender) Send(title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func at(hour, minute int) int64 {
	return time.Date(2024, 3, 10, hour, minute, 0, 0, time.UTC).UnixMilli()
}

type harness struct {
	app    *Application
	clock  *quartz.Mock
	sender *recordingSender
	cfg    *config.Config
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.Data.Dir = t.TempDir()
	cfg.Data.Watch = false
	cfg.App.Timezone = "UTC"

	require.NoError(t, fileio.SaveCatalog(cfg.CatalogPath(), fileio.CatalogData{
		DefaultCategoryID: 3,
		Categories: []models.Category{
			{ID: 1, Name: "Work"},
			{ID: 2, Name: "Reading"},
			{ID: 3, Name: "Other"},
		},
		Apps: []fileio.AppAssignment{
			{Package: "com.ide", CategoryID: 1},
		},
		Goals: []models.Goal{
			{CategoryID: 1, ThresholdMinutes: 30, Condition: models.GoalAtMost},
		},
	}))

	clock := quartz.NewMock(t)
	clock.Set(testNow).MustWait(ctx)
	sender := &recordingSender{}

	all := append([]Option{
		WithClock(clock),
		WithLogger(logging.NewNopLogger()),
		WithSender(sender),
		WithInMemoryStore(),
	}, opts...)
	app, err := NewApplication(cfg, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return &harness{app: app, clock: clock, sender: sender, cfg: cfg}
}

func TestNewApplicationRejectsBadConfig(t *testing.T) {
	_, err := NewApplication(nil)
	require.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.App.Timezone = "Mars/Olympus"
	_, err = NewApplication(cfg, WithLogger(logging.NewNopLogger()), WithInMemoryStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestApplicationCollectBuildsAggregatesAndNotifies(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.EventLog().Append(
		models.Event{Package: "com.ide", Type: 1, Timestamp: at(9, 0)},
		models.Event{Package: "com.ide", Type: 2, Timestamp: at(10, 0)},
	))

	result, err := h.app.Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Contains(t, result.Dates, "2024-03-10")

	sessions, err := h.app.Store().SessionsForDate("2024-03-10")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "com.ide", sessions[0].Package)
	assert.Equal(t, int64(1), sessions[0].CategoryID)
	assert.Equal(t, int64(3600), sessions[0].DurationSeconds)

	daily, err := h.app.Store().DailySummariesForDate("2024-03-10")
	require.NoError(t, err)
	totals := make(map[int64]int64)
	for _, d := range daily {
		totals[d.CategoryID] = d.TotalSeconds
	}
	assert.Equal(t, int64(3600), totals[1])
	assert.Equal(t, int64(3600), totals[models.AggregateCategoryID])

	buckets, err := h.app.Store().HourBucketsForDate("2024-03-10")
	require.NoError(t, err)
	var hour9 int64
	for _, b := range buckets {
		if b.CategoryID == 1 && b.Hour == 9 {
			hour9 += b.DurationSeconds
		}
	}
	assert.Equal(t, int64(3600), hour9)

	assert.Equal(t, []string{"Work limit exceeded"}, h.sender.sent())

	// A second pass with no new events changes nothing and does not notify again
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.clock.Advance(time.Minute).MustWait(ctx)
	_, err = h.app.Collect(context.Background())
	require.NoError(t, err)
	sessions, err = h.app.Store().SessionsForDate("2024-03-10")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Len(t, h.sender.sent(), 1)
}

func TestApplicationRecordOffline(t *testing.T) {
	h := newHarness(t)

	start := time.Date(2024, 3, 9, 13, 0, 0, 0, time.UTC)
	session, err := h.app.RecordOffline("book", 2, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, session.Offline)
	assert.Equal(t, models.OfflinePackagePrefix+"book", session.Package)
	assert.Equal(t, "2024-03-09", session.Date)

	daily, err := h.app.Store().DailySummariesForDate("2024-03-09")
	require.NoError(t, err)
	var reading int64
	for _, d := range daily {
		if d.CategoryID == 2 {
			reading = d.TotalSeconds
		}
	}
	assert.Equal(t, int64(1800), reading)

	_, err = h.app.RecordOffline("", 2, start, start.Add(time.Minute))
	assert.Error(t, err)
	_, err = h.app.RecordOffline("book", 2, start, start)
	assert.Error(t, err)
}

func TestApplicationImportRewards(t *testing.T) {
	h := newHarness(t)

	dates, err := h.app.ImportRewards([]models.RewardPunishmentDaily{
		{Date: "2024-03-05", CategoryID: 1, GoalMet: true, RewardDone: true},
		{Date: "2024-03-04", CategoryID: 1, GoalMet: false, PunishDone: false},
		{Date: "2024-03-05", CategoryID: 2, GoalMet: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05"}, dates)

	key, _, _, err := models.PeriodBounds(models.PeriodWeekly, "2024-03-04", time.UTC)
	require.NoError(t, err)
	rows, err := h.app.Store().RewardPeriods(models.PeriodWeekly, key)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].CategoryID)
	assert.Equal(t, 1, int(rows[0].TotalRewardCount))
	assert.Equal(t, 1, int(rows[0].DoneRewardCount))
	assert.Equal(t, 1, int(rows[0].TotalPunishCount))
	assert.Equal(t, 0, int(rows[0].DonePunishCount))

	_, err = h.app.ImportRewards([]models.RewardPunishmentDaily{{Date: "03/05/2024", CategoryID: 1}})
	assert.Error(t, err)
}

func TestApplicationRepairPublishes(t *testing.T) {
	h := newHarness(t)

	var updates []models.DataUpdate
	h.app.Bus().Subscribe(func(u models.DataUpdate) { updates = append(updates, u) })

	_, err := h.app.Repair(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, models.UpdateManual, updates[0].Type)
}

func TestApplicationConfigChangeHotApplies(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("info", &buf)
	h := newHarness(t, WithLogger(logger))

	h.app.Logger().Debug("hidden before reload")
	assert.NotContains(t, buf.String(), "hidden before reload")

	updated := *h.cfg
	updated.App.LogLevel = "debug"
	updated.Tracking.HousekeepingPackages = []string{"com.launcher"}
	h.app.onConfigChange(h.cfg, &updated)

	h.app.Logger().Debug("visible after reload")
	assert.Contains(t, buf.String(), "visible after reload")
	assert.Contains(t, buf.String(), "housekeeping packages updated count=1")
}

func TestApplicationRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.EventLog().Append(
		models.Event{Package: "com.ide", Type: 1, Timestamp: at(11, 0)},
	))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	require.Eventually(t, func() bool {
		sessions, err := h.app.Store().SessionsForDate("2024-03-10")
		return err == nil && len(sessions) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, h.app.IsRunning())
	assert.ErrorIs(t, h.app.Run(context.Background()), ErrStopped)
}

func TestMergeDates(t *testing.T) {
	got := mergeDates([]string{"2024-03-02", "2024-03-01"}, []string{"2024-03-01", "2024-03-03"})
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, got)
	assert.Empty(t, mergeDates(nil, nil))
}

func TestApplicationWatchesDataFiles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Data.Dir = t.TempDir()
	cfg.App.Timezone = "UTC"
	cfg.Data.Debounce = 20 * time.Millisecond

	app, err := NewApplication(cfg, WithLogger(logging.NewNopLogger()), WithSender(&recordingSender{}))
	require.NoError(t, err)
	require.NotNil(t, app.fileWatcher)
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
}
