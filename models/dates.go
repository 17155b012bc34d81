package models

import (
	"fmt"
	"time"
)

// DateOf returns the local calendar date of a unix-millis timestamp
func DateOf(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date at local midnight
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// StartOfDay truncates t to local midnight
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBounds returns [start, end) of a date in unix millis. The end is the next
// local midnight, so DST days are 23 or 25 hours long.
func DayBounds(date string, loc *time.Location) (int64, int64, error) {
	start, err := ParseDate(date, loc)
	if err != nil {
		return 0, 0, err
	}
	return start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli(), nil
}

// AddDays shifts a date by n calendar days
func AddDays(date string, n int, loc *time.Location) (string, error) {
	t, err := ParseDate(date, loc)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// WeekStart returns the Monday of the ISO week containing date
func WeekStart(date string, loc *time.Location) (string, error) {
	t, err := ParseDate(date, loc)
	if err != nil {
		return "", err
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(DateLayout), nil
}

// MonthStart returns the first day of the month containing date
func MonthStart(date string, loc *time.Location) (string, error) {
	t, err := ParseDate(date, loc)
	if err != nil {
		return "", err
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).Format(DateLayout), nil
}

// PeriodBounds returns the period key and the first and last dates of the
// week or month containing date.
func PeriodBounds(kind PeriodKind, date string, loc *time.Location) (key, first, last string, err error) {
	switch kind {
	case PeriodWeekly:
		first, err = WeekStart(date, loc)
		if err != nil {
			return "", "", "", err
		}
		last, err = AddDays(first, 6, loc)
		return first, first, last, err
	case PeriodMonthly:
		first, err = MonthStart(date, loc)
		if err != nil {
			return "", "", "", err
		}
		t, _ := ParseDate(first, loc)
		last = t.AddDate(0, 1, -1).Format(DateLayout)
		return t.Format(MonthLayout), first, last, nil
	default:
		return "", "", "", fmt.Errorf("unknown period kind %q", kind)
	}
}

// DateRange lists every date from first through last inclusive
func DateRange(first, last string, loc *time.Location) ([]string, error) {
	from, err := ParseDate(first, loc)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(last, loc)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// DatesSpanned lists every local date touched by the interval [start, end]
func DatesSpanned(start, end int64, loc *time.Location) []string {
	if end < start {
		end = start
	}
	first := StartOfDay(time.UnixMilli(start).In(loc))
	last := time.UnixMilli(end).In(loc)
	var dates []string
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}
