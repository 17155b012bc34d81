// Package goals watches today's category totals and raises a desktop
// notification the first time a goal is crossed.
package goals

import (
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gen2brain/beeep"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

const (
	KindExceeded = "exceeded"
	KindReached  = "reached"
)

// Sender delivers a notification to the user
type Sender interface {
	Send(title, message string) error
}

// BeeepSender shows desktop notifications
type BeeepSender struct {
	alert bool
}

// NewBeeepSender creates a desktop sender. With alert set it also plays the system sound.
func NewBeeepSender(appName string, alert bool) *BeeepSender {
	if appName != "" {
		beeep.AppName = appName
	}
	return &BeeepSender{alert: alert}
}

func (s *BeeepSender) Send(title, message string) error {
	if s.alert {
		return beeep.Alert(title, message, "")
	}
	return beeep.Notify(title, message, "")
}

// GoalSource provides goals and category display names
type GoalSource interface {
	Goals() []models.Goal
	CategoryName(id int64) string
}

// Repository is the slice of the store the monitor needs
type Repository interface {
	DailySummariesForDate(date string) ([]models.DailySummary, error)
	MarkNotified(date string, categoryID int64, kind string, at int64) (bool, error)
}

// Notification is one goal crossing that was reported
type Notification struct {
	Date       string
	CategoryID int64
	Kind       string
	Title      string
	Message    string
}

// Monitor evaluates goals after every data update
type Monitor struct {
	goals  GoalSource
	repo   Repository
	sender Sender
	clock  quartz.Clock
	loc    *time.Location
	logger logging.LoggerInterface
	mu     sync.Mutex
}

// NewMonitor creates a goal monitor
func NewMonitor(goals GoalSource, repo Repository, sender Sender, clock quartz.Clock, loc *time.Location, logger logging.LoggerInterface) *Monitor {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{goals: goals, repo: repo, sender: sender, clock: clock, loc: loc, logger: logger}
}

// OnUpdate is a bus subscriber. Only today's totals are checked.
func (m *Monitor) OnUpdate(u models.DataUpdate) {
	today := m.clock.Now().In(m.loc).Format(models.DateLayout)
	for _, date := range u.Dates {
		if date != today {
			continue
		}
		if _, err := m.Check(date); err != nil {
			m.logger.Errorf("goal check failed date=%s: %v", date, err)
		}
		return
	}
}

// Check compares the date's daily totals against every goal. Each
// (date, category, kind) is reported at most once; the mark is stored before
// sending, so a failed send is not retried.
func (m *Monitor) Check(date string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	goals := m.goals.Goals()
	if len(goals) == 0 {
		return nil, nil
	}
	rows, err := m.repo.DailySummariesForDate(date)
	if err != nil {
		return nil, err
	}
	totals := make(map[int64]int64, len(rows))
	for _, r := range rows {
		totals[r.CategoryID] = r.TotalSeconds
	}

	var sent []Notification
	for _, goal := range goals {
		total := totals[goal.CategoryID]
		kind := crossing(goal, total)
		if kind == "" {
			continue
		}

		first, err := m.repo.MarkNotified(date, goal.CategoryID, kind, m.clock.Now().UnixMilli())
		if err != nil {
			return sent, err
		}
		if !first {
			continue
		}

		n := m.describe(date, goal, kind, total)
		if m.sender != nil {
			if err := m.sender.Send(n.Title, n.Message); err != nil {
				m.logger.Warnf("goal notification failed category=%d kind=%s: %v", goal.CategoryID, kind, err)
				continue
			}
		}
		m.logger.Infof("goal %s date=%s category=%d total=%ds", kind, date, goal.CategoryID, total)
		sent = append(sent, n)
	}
	return sent, nil
}

func crossing(goal models.Goal, totalSeconds int64) string {
	threshold := int64(goal.ThresholdMinutes) * 60
	switch goal.Condition {
	case models.GoalAtMost:
		if totalSeconds > threshold {
			return KindExceeded
		}
	case models.GoalAtLeast:
		if totalSeconds >= threshold {
			return KindReached
		}
	}
	return ""
}

func (m *Monitor) describe(date string, goal models.Goal, kind string, total int64) Notification {
	name := m.goals.CategoryName(goal.CategoryID)
	n := Notification{Date: date, CategoryID: goal.CategoryID, Kind: kind}
	minutes := total / 60
	if kind == KindExceeded {
		n.Title = fmt.Sprintf("%s limit exceeded", name)
		n.Message = fmt.Sprintf("%d min used today, limit is %d min", minutes, goal.ThresholdMinutes)
	} else {
		n.Title = fmt.Sprintf("%s goal reached", name)
		n.Message = fmt.Sprintf("%d min today, goal was %d min", minutes, goal.ThresholdMinutes)
	}
	return n
}
