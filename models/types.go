package models

import "time"

// EventType is a platform usage-event code
type EventType int

// Event is one foreground/background transition reported by the event source
type Event struct {
	Package   string    `json:"package"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // unix millis
}

// Time returns the event timestamp as a time.Time
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// UsageSession is a contiguous interval during which one application was in the foreground
type UsageSession struct {
	ID              uint64 `json:"id"`
	Package         string `json:"package"`
	CategoryID      int64  `json:"category_id"`
	StartTime       int64  `json:"start_time"` // unix millis
	EndTime         int64  `json:"end_time"`   // unix millis
	DurationSeconds int64  `json:"duration_seconds"`
	Date            string `json:"date"`
	Offline         bool   `json:"offline"`
}

// NewUsageSession builds a session whose date and duration are derived from its interval
func NewUsageSession(pkg string, categoryID int64, start, end int64, offline bool, loc *time.Location) UsageSession {
	return UsageSession{
		Package:         pkg,
		CategoryID:      categoryID,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: DurationSeconds(start, end),
		Date:            DateOf(start, loc),
		Offline:         offline,
	}
}

// SetInterval updates start/end and recomputes the duration
func (s *UsageSession) SetInterval(start, end int64) {
	s.StartTime = start
	s.EndTime = end
	s.DurationSeconds = DurationSeconds(start, end)
}

// SpanMillis is the raw interval length
func (s UsageSession) SpanMillis() int64 {
	return s.EndTime - s.StartTime
}

// DurationSeconds rounds a millisecond interval to whole seconds, half up
func DurationSeconds(start, end int64) int64 {
	d := end - start
	if d <= 0 {
		return 0
	}
	return (d + 500) / 1000
}

// HourBucket is the duration attributed to one clock hour of one date
type HourBucket struct {
	Date            string `json:"date"`
	CategoryID      int64  `json:"category_id"`
	Hour            int    `json:"hour"`
	Offline         bool   `json:"offline"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// DailySummary is the total usage of one category on one date
type DailySummary struct {
	Date         string `json:"date"`
	CategoryID   int64  `json:"category_id"`
	TotalSeconds int64  `json:"total_seconds"`
}

// PeriodKind distinguishes weekly and monthly rollups
type PeriodKind string

const (
	PeriodWeekly  PeriodKind = "weekly"
	PeriodMonthly PeriodKind = "monthly"
)

// PeriodSummary is the weekly or monthly average of daily totals
type PeriodSummary struct {
	Kind                PeriodKind `json:"kind"`
	PeriodKey           string     `json:"period_key"`
	CategoryID          int64      `json:"category_id"`
	TotalSeconds        int64      `json:"total_seconds"`
	DayCount            int        `json:"day_count"`
	AverageDailySeconds int64      `json:"average_daily_seconds"`
}

// RewardPunishmentDaily holds the goal flags computed upstream for one date
type RewardPunishmentDaily struct {
	Date                    string  `json:"date"`
	CategoryID              int64   `json:"category_id"`
	GoalMet                 bool    `json:"goal_met"`
	RewardDone              bool    `json:"reward_done"`
	PunishDone              bool    `json:"punish_done"`
	RewardCompletionPercent float64 `json:"reward_completion_percent"`
	PunishCompletionPercent float64 `json:"punish_completion_percent"`
}

// RewardPunishmentPeriod counts reward/punishment opportunities and fulfilment over a period
type RewardPunishmentPeriod struct {
	Kind             PeriodKind `json:"kind"`
	PeriodKey        string     `json:"period_key"`
	CategoryID       int64      `json:"category_id"`
	TotalRewardCount int        `json:"total_reward_count"`
	DoneRewardCount  int        `json:"done_reward_count"`
	TotalPunishCount int        `json:"total_punish_count"`
	DonePunishCount  int        `json:"done_punish_count"`
}

// Category groups applications for statistics
type Category struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ExcludeFromStats bool   `json:"exclude_from_stats"`
}

// GoalCondition says whether a goal is a ceiling or a floor
type GoalCondition string

const (
	GoalAtMost  GoalCondition = "at_most"
	GoalAtLeast GoalCondition = "at_least"
)

// Goal is a per-category daily usage target
type Goal struct {
	CategoryID       int64         `json:"category_id"`
	ThresholdMinutes int           `json:"threshold_minutes"`
	Condition        GoalCondition `json:"condition"`
}

// Met reports whether totalSeconds satisfies the goal
func (g Goal) Met(totalSeconds int64) bool {
	threshold := int64(g.ThresholdMinutes) * 60
	if g.Condition == GoalAtLeast {
		return totalSeconds >= threshold
	}
	return totalSeconds <= threshold
}

// UpdateType tags downstream data-updated signals
type UpdateType string

const (
	UpdatePeriodic UpdateType = "periodic"
	UpdateManual   UpdateType = "manual"
	UpdateQuick    UpdateType = "quick"
)

// DataUpdate is published after each scheduler pass
type DataUpdate struct {
	Type  UpdateType `json:"type"`
	At    time.Time  `json:"at"`
	Dates []string   `json:"dates"`
}
