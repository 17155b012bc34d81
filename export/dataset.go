// Package export projects stored usage data into CSV, JSON and SQLite files.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/penwyp/ScreenCat/models"
)

// Repository is the read side of the store used for exports
type Repository interface {
	SessionsForDate(date string) ([]models.UsageSession, error)
	DailySummariesInRange(first, last string) (map[string][]models.DailySummary, error)
	PeriodSummaries(kind models.PeriodKind, key string) ([]models.PeriodSummary, error)
	RewardPeriods(kind models.PeriodKind, key string) ([]models.RewardPunishmentPeriod, error)
}

// Dataset is everything exported for a date range
type Dataset struct {
	From     string                          `json:"from"`
	To       string                          `json:"to"`
	Sessions []models.UsageSession           `json:"sessions"`
	Daily    []models.DailySummary           `json:"daily"`
	Periods  []models.PeriodSummary          `json:"periods"`
	Rewards  []models.RewardPunishmentPeriod `json:"rewards"`
}

// LoadDataset reads sessions, daily summaries and the weekly and monthly
// rollups of every period touching [from, to]
func LoadDataset(repo Repository, from, to string, loc *time.Location) (*Dataset, error) {
	dates, err := models.DateRange(from, to, loc)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{From: from, To: to}

	for _, date := range dates {
		sessions, err := repo.SessionsForDate(date)
		if err != nil {
			return nil, fmt.Errorf("failed to load sessions for %s: %w", date, err)
		}
		ds.Sessions = append(ds.Sessions, sessions...)
	}

	daily, err := repo.DailySummariesInRange(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily summaries: %w", err)
	}
	for _, date := range dates {
		ds.Daily = append(ds.Daily, daily[date]...)
	}
	sort.SliceStable(ds.Daily, func(i, j int) bool {
		if ds.Daily[i].Date != ds.Daily[j].Date {
			return ds.Daily[i].Date < ds.Daily[j].Date
		}
		return ds.Daily[i].CategoryID < ds.Daily[j].CategoryID
	})

	for _, kind := range []models.PeriodKind{models.PeriodWeekly, models.PeriodMonthly} {
		seen := map[string]bool{}
		for _, date := range dates {
			key, _, _, err := models.PeriodBounds(kind, date, loc)
			if err != nil {
				return nil, err
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			periods, err := repo.PeriodSummaries(kind, key)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s summary %s: %w", kind, key, err)
			}
			ds.Periods = append(ds.Periods, periods...)

			rewards, err := repo.RewardPeriods(kind, key)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s rewards %s: %w", kind, key, err)
			}
			ds.Rewards = append(ds.Rewards, rewards...)
		}
	}
	return ds, nil
}
