package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationSecondsRounding(t *testing.T) {
	tests := []struct {
		name       string
		start, end int64
		want       int64
	}{
		{"exact", 0, 5000, 5},
		{"round down", 0, 5499, 5},
		{"round half up", 0, 5500, 6},
		{"zero", 1000, 1000, 0},
		{"negative clamps", 2000, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationSeconds(tt.start, tt.end))
		})
	}
}

func TestNewUsageSessionUsesLocalStartDate(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 2024-03-01 23:30 local
	start := time.Date(2024, 3, 1, 23, 30, 0, 0, loc).UnixMilli()
	s := NewUsageSession("com.example", 2, start, start+90_000, false, loc)

	assert.Equal(t, "2024-03-01", s.Date)
	assert.Equal(t, int64(90), s.DurationSeconds)
	require.NoError(t, s.Validate())

	s.EndTime = s.StartTime - 1
	assert.Error(t, s.Validate())
}

func TestWeekAndMonthStart(t *testing.T) {
	loc := time.UTC
	ws, err := WeekStart("2024-03-03", loc) // Sunday
	require.NoError(t, err)
	assert.Equal(t, "2024-02-26", ws)

	ws, err = WeekStart("2024-03-04", loc) // Monday
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", ws)

	ms, err := MonthStart("2024-02-29", loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", ms)
}

func TestPeriodBounds(t *testing.T) {
	key, first, last, err := PeriodBounds(PeriodMonthly, "2024-02-10", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-02", key)
	assert.Equal(t, "2024-02-01", first)
	assert.Equal(t, "2024-02-29", last)

	key, first, last, err = PeriodBounds(PeriodWeekly, "2024-02-10", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", key)
	assert.Equal(t, "2024-02-05", first)
	assert.Equal(t, "2024-02-11", last)

	_, _, _, err = PeriodBounds("yearly", "2024-02-10", time.UTC)
	assert.Error(t, err)
}

func TestDayBoundsAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	start, end, err := DayBounds("2024-03-10", loc)
	require.NoError(t, err)
	assert.Equal(t, int64(23*3600*1000), end-start)
}

func TestDateRange(t *testing.T) {
	dates, err := DateRange("2024-02-27", "2024-03-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}, dates)
}

func TestGoalMet(t *testing.T) {
	atMost := Goal{CategoryID: 1, ThresholdMinutes: 60, Condition: GoalAtMost}
	assert.True(t, atMost.Met(3600))
	assert.False(t, atMost.Met(3601))

	atLeast := Goal{CategoryID: 1, ThresholdMinutes: 30, Condition: GoalAtLeast}
	assert.False(t, atLeast.Met(1799))
	assert.True(t, atLeast.Met(1800))

	assert.Error(t, Goal{Condition: "sometimes"}.Validate())
}

func TestHourBucketValidate(t *testing.T) {
	assert.NoError(t, HourBucket{Hour: 23, DurationSeconds: 3600}.Validate())
	assert.Error(t, HourBucket{Hour: 24}.Validate())
	assert.Error(t, HourBucket{Hour: 3, DurationSeconds: 3601}.Validate())
}

func TestDatesSpanned(t *testing.T) {
	start := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2024, 3, 2, 0, 10, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, DatesSpanned(start, end, time.UTC))
	assert.Equal(t, []string{"2024-03-01"}, DatesSpanned(start, start, time.UTC))
}
