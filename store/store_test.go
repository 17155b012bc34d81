package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(time.UTC, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ms(hour, minute, second int) int64 {
	return time.Date(2024, 3, 1, hour, minute, second, 0, time.UTC).UnixMilli()
}

func TestUpsertSessionSmartMergesNearbyIntervals(t *testing.T) {
	s := newTestStore(t)

	first, err := s.UpsertSessionSmart(SessionInput{Package: "com.example", CategoryID: 1, Start: ms(10, 0, 0), End: ms(10, 5, 0)})
	require.NoError(t, err)
	assert.False(t, first.Merged)

	second, err := s.UpsertSessionSmart(SessionInput{Package: "com.example", CategoryID: 1, Start: ms(10, 4, 58), End: ms(10, 10, 0)})
	require.NoError(t, err)
	assert.True(t, second.Merged)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	sessions, err := s.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, ms(10, 0, 0), sessions[0].StartTime)
	assert.Equal(t, ms(10, 10, 0), sessions[0].EndTime)
	assert.Equal(t, int64(600), sessions[0].DurationSeconds)
}

func TestUpsertSessionSmartMergeCases(t *testing.T) {
	tests := []struct {
		name       string
		start, end int64
		wantMerged bool
		wantStart  int64
		wantEnd    int64
	}{
		{"contained", ms(10, 1, 0), ms(10, 2, 0), true, ms(10, 0, 0), ms(10, 5, 0)},
		{"contains", ms(9, 59, 0), ms(10, 6, 0), true, ms(9, 59, 0), ms(10, 6, 0)},
		{"overlaps start", ms(9, 58, 0), ms(10, 1, 0), true, ms(9, 58, 0), ms(10, 5, 0)},
		{"within gap after", ms(10, 5, 4), ms(10, 7, 0), true, ms(10, 0, 0), ms(10, 7, 0)},
		{"within gap before", ms(9, 50, 0), ms(9, 59, 56), true, ms(9, 50, 0), ms(10, 5, 0)},
		{"beyond gap", ms(10, 5, 6), ms(10, 7, 0), false, ms(10, 5, 6), ms(10, 7, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.UpsertSessionSmart(SessionInput{Package: "app", Start: ms(10, 0, 0), End: ms(10, 5, 0)})
			require.NoError(t, err)

			res, err := s.UpsertSessionSmart(SessionInput{Package: "app", Start: tt.start, End: tt.end})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMerged, res.Merged)
			assert.Equal(t, tt.wantStart, res.Session.StartTime)
			assert.Equal(t, tt.wantEnd, res.Session.EndTime)

			sessions, err := s.SessionsForDate("2024-03-01")
			require.NoError(t, err)
			if tt.wantMerged {
				assert.Len(t, sessions, 1)
			} else {
				assert.Len(t, sessions, 2)
			}
		})
	}
}

func TestUpsertSessionSmartBridgesTwoSessions(t *testing.T) {
	s := newTestStore(t)
	a, err := s.UpsertSessionSmart(SessionInput{Package: "app", Start: ms(10, 0, 0), End: ms(10, 5, 0)})
	require.NoError(t, err)
	_, err = s.UpsertSessionSmart(SessionInput{Package: "app", Start: ms(10, 20, 0), End: ms(10, 30, 0)})
	require.NoError(t, err)
	// lands within the gap of the second and extends it
	_, err = s.UpsertSessionSmart(SessionInput{Package: "app", Start: ms(10, 30, 3), End: ms(10, 40, 0)})
	require.NoError(t, err)

	res, err := s.UpsertSessionSmart(SessionInput{Package: "app", Start: ms(10, 4, 0), End: ms(10, 21, 0)})
	require.NoError(t, err)
	assert.Equal(t, a.Session.ID, res.Session.ID)
	assert.Len(t, res.Absorbed, 1)

	sessions, err := s.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, ms(10, 0, 0), sessions[0].StartTime)
	assert.Equal(t, ms(10, 40, 0), sessions[0].EndTime)
}

func TestUpsertSessionSmartKeepsPackagesAndOfflineApart(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertSessionSmart(SessionInput{Package: "a", Start: ms(10, 0, 0), End: ms(10, 5, 0)})
	require.NoError(t, err)
	_, err = s.UpsertSessionSmart(SessionInput{Package: "b", Start: ms(10, 0, 0), End: ms(10, 5, 0)})
	require.NoError(t, err)
	_, err = s.UpsertSessionSmart(SessionInput{Package: "a", Start: ms(10, 0, 0), End: ms(10, 5, 0), Offline: true})
	require.NoError(t, err)

	sessions, err := s.SessionsForDate("2024-03-01")
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	_, err = s.UpsertSessionSmart(SessionInput{Package: "a", Start: ms(10, 5, 0), End: ms(10, 0, 0)})
	assert.Error(t, err)
}

func TestReplaceHourBucketsIsWholesale(t *testing.T) {
	s := newTestStore(t)
	date := "2024-03-01"
	require.NoError(t, s.ReplaceHourBuckets(date, []models.HourBucket{
		{Date: date, CategoryID: 1, Hour: 9, DurationSeconds: 100},
		{Date: date, CategoryID: 1, Hour: 10, DurationSeconds: 200},
	}))
	require.NoError(t, s.ReplaceHourBuckets(date, []models.HourBucket{
		{Date: date, CategoryID: 1, Hour: 10, DurationSeconds: 50},
	}))

	buckets, err := s.HourBucketsForDate(date)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(50), buckets[0].DurationSeconds)

	assert.Error(t, s.ReplaceHourBuckets(date, []models.HourBucket{{Date: "2024-03-02", Hour: 1}}))
}

func TestOverflowBuckets(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutHourBucket(models.HourBucket{Date: "2024-03-01", CategoryID: 2, Hour: 4, DurationSeconds: 4000}))
	require.NoError(t, s.PutHourBucket(models.HourBucket{Date: "2024-03-02", CategoryID: 2, Hour: 4, DurationSeconds: 3600}))

	over, err := s.OverflowBuckets()
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, "2024-03-01", over[0].Date)
}

func TestSessionDatesAndRetention(t *testing.T) {
	s := newTestStore(t)
	for _, day := range []int{1, 3, 5} {
		start := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC).UnixMilli()
		_, err := s.UpsertSessionSmart(SessionInput{Package: "app", Start: start, End: start + 60_000})
		require.NoError(t, err)
	}

	dates, err := s.SessionDates("2024-03-02", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-03", "2024-03-05"}, dates)

	removed, err := s.DeleteDatesBefore("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-03"}, removed)

	dates, err = s.SessionDates("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-05"}, dates)
}

func TestDailyAndPeriodSummaries(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.HasDailySummary("2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReplaceDailySummaries("2024-03-01", []models.DailySummary{
		{Date: "2024-03-01", CategoryID: 1, TotalSeconds: 30},
		{Date: "2024-03-01", CategoryID: models.AggregateCategoryID, TotalSeconds: 30},
	}))
	ok, err = s.HasDailySummary("2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := s.DailySummariesForDate("2024-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AggregateCategoryID, rows[0].CategoryID)

	byDate, err := s.DailySummariesInRange("2024-02-26", "2024-03-03")
	require.NoError(t, err)
	assert.Len(t, byDate["2024-03-01"], 2)

	require.NoError(t, s.ReplacePeriodSummaries(models.PeriodWeekly, "2024-02-26", []models.PeriodSummary{
		{Kind: models.PeriodWeekly, PeriodKey: "2024-02-26", CategoryID: 1, TotalSeconds: 30, DayCount: 1, AverageDailySeconds: 30},
	}))
	periods, err := s.PeriodSummaries(models.PeriodWeekly, "2024-02-26")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, int64(30), periods[0].AverageDailySeconds)
}

func TestWatermarkAndNotified(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.Watermark()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetWatermark(12345))
	wm, found, err := s.Watermark()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(12345), wm)

	first, err := s.MarkNotified("2024-03-01", 1, "exceeded", 1)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = s.MarkNotified("2024-03-01", 1, "exceeded", 2)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory(time.UTC, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.SessionsForDate("2024-03-01")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBadgerLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &badgerLogger{level: badgerLevel("WARNING"), logger: logging.NewWriterLogger("debug", &buf)}

	l.Debugf("compaction detail")
	l.Infof("table opened")
	l.Warningf("value log slow")
	l.Errorf("write failed")

	out := buf.String()
	assert.NotContains(t, out, "compaction detail")
	assert.NotContains(t, out, "table opened")
	assert.Contains(t, out, "badger: value log slow")
	assert.Contains(t, out, "badger: write failed")
	assert.Equal(t, badgerLevel("WARNING"), badgerLevel("bogus"))
}
