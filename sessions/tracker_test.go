package sessions

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

const sec = int64(1000)

func fg(pkg string, ts int64) models.Event {
	return models.Event{Package: pkg, Type: EventActivityResumed, Timestamp: ts}
}

func bg(pkg string, ts int64) models.Event {
	return models.Event{Package: pkg, Type: EventActivityPaused, Timestamp: ts}
}

func TestTrackerForegroundBackground(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, nil, nil)

	out := tr.Apply([]models.Event{
		fg("a", 10*sec),
		fg("b", 20*sec),
		bg("a", 25*sec),
		{Package: "b", Type: EventActivityStopped, Timestamp: 40 * sec},
	})

	assert.Equal(t, []Interval{
		{Package: "a", Start: 10 * sec, End: 25 * sec},
		{Package: "b", Start: 20 * sec, End: 40 * sec},
	}, out)
	assert.Empty(t, tr.Active())
}

func TestTrackerIgnoresBackgroundForInactive(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, nil, nil)
	assert.Empty(t, tr.Apply([]models.Event{bg("ghost", 5*sec)}))
}

func TestTrackerHousekeepingStaysActive(t *testing.T) {
	tr := NewTracker(TrackerConfig{Housekeeping: []string{"self"}}, nil, nil)

	out := tr.Apply([]models.Event{
		fg("self", 0),
		bg("self", 60*sec),
		bg("self", 90*sec),
	})

	assert.Equal(t, []Interval{
		{Package: "self", Start: 0, End: 60 * sec},
		{Package: "self", Start: 60 * sec, End: 90 * sec},
	}, out)
	assert.Equal(t, map[string]int64{"self": 90 * sec}, tr.Active())

	tr.SetHousekeeping(nil)
	out = tr.Apply([]models.Event{bg("self", 100*sec)})
	assert.Equal(t, []Interval{{Package: "self", Start: 90 * sec, End: 100 * sec}}, out)
	assert.Empty(t, tr.Active())
}

func TestTrackerReentry(t *testing.T) {
	tests := []struct {
		name       string
		second     int64
		want       []Interval
		wantActive int64
	}{
		{
			name:       "within gap keeps original start",
			second:     30 * sec,
			want:       nil,
			wantActive: 0,
		},
		{
			name:       "beyond gap flushes estimate",
			second:     100 * sec,
			want:       []Interval{{Package: "a", Start: 0, End: 95 * sec}},
			wantActive: 100 * sec,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(TrackerConfig{}, nil, nil)
			out := tr.Apply([]models.Event{fg("a", 0), fg("a", tt.second)})
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.wantActive, tr.Active()["a"])
		})
	}
}

func TestTrackerReentryBackoffBeforeStartIsDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("debug", &buf)
	tr := NewTracker(TrackerConfig{ReentryGap: time.Second, ReentryBackoff: 10 * time.Second}, nil, logger)

	out := tr.Apply([]models.Event{fg("a", 0), fg("a", 5*sec)})
	assert.Empty(t, out)
	assert.Contains(t, buf.String(), "ends before it starts")
	assert.Equal(t, 5*sec, tr.Active()["a"])
}

func TestTrackerUnknownCodesAreIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("warn", &buf)
	c := NewClassifier(nil, nil, logger)
	tr := NewTracker(TrackerConfig{}, c, logger)

	out := tr.Apply([]models.Event{
		fg("a", 0),
		{Package: "a", Type: 999, Timestamp: 1 * sec},
		{Package: "a", Type: 999, Timestamp: 2 * sec},
		{Package: "a", Type: EventScreenNonInteractive, Timestamp: 3 * sec},
		bg("a", 4*sec),
	})
	assert.Equal(t, []Interval{{Package: "a", Start: 0, End: 4 * sec}}, out)
	assert.Equal(t, 2, c.UnknownCounts()[999])
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("unknown usage event")))
}

func TestClassifierExtraCodes(t *testing.T) {
	c := NewClassifier([]int{101}, []int{102}, nil)
	assert.Equal(t, KindForeground, c.Classify(101))
	assert.Equal(t, KindBackground, c.Classify(102))
	assert.Equal(t, KindBackground, c.Classify(EventActivityStopped))
	assert.Equal(t, KindIgnored, c.Classify(EventKeyguardShown))
	assert.Equal(t, "unknown", c.Classify(555).String())
}

func TestTrackerFlushAllAndSnapshot(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, nil, nil)
	tr.Apply([]models.Event{fg("b", 10*sec), fg("a", 20*sec)})

	snap := tr.Snapshot(50 * sec)
	require.Len(t, snap, 2)
	assert.Len(t, tr.Active(), 2)

	out := tr.FlushAll(60 * sec)
	assert.Equal(t, []Interval{
		{Package: "a", Start: 20 * sec, End: 60 * sec},
		{Package: "b", Start: 10 * sec, End: 60 * sec},
	}, out)
	assert.Empty(t, tr.Active())
}
