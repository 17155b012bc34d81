// Package consistency detects and repairs damage in persisted usage data:
// duplicate sessions, overflowing hour buckets and missing daily summaries.
package consistency

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Repository is the persistence the validator inspects and repairs
type Repository interface {
	SessionDates(first, last string) ([]string, error)
	SessionsForDate(date string) ([]models.UsageSession, error)
	DeleteSessions(sessions ...models.UsageSession) error
	OverflowBuckets() ([]models.HourBucket, error)
	DeleteHourBuckets(buckets ...models.HourBucket) error
	HasDailySummary(date string) (bool, error)
	DeleteDatesBefore(cutoff string) ([]string, error)
}

// Recomputer rebuilds aggregates for dates
type Recomputer interface {
	RecomputeDate(date string) error
	RecomputePeriodsFor(dates []string, today string) error
}

// Config tunes the checks
type Config struct {
	BackfillDays       int
	DuplicateTolerance time.Duration
	RetentionDays      int
	Location           *time.Location
}

// Report summarizes a validator run
type Report struct {
	Duplicates      int
	DuplicateDates  []string
	Overflows       int
	OverflowDates   []string
	Backfilled      []string
	BackfillSkipped bool
	Purged          []string
}

// Validator runs the idempotent consistency checks
type Validator struct {
	repo   Repository
	engine Recomputer
	clock  quartz.Clock
	config Config
	logger logging.LoggerInterface

	backfilling atomic.Bool
}

// NewValidator creates a validator
func NewValidator(repo Repository, engine Recomputer, clock quartz.Clock, config Config, logger logging.LoggerInterface) *Validator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if config.BackfillDays <= 0 {
		config.BackfillDays = models.DefaultBackfillDays
	}
	if config.DuplicateTolerance <= 0 {
		config.DuplicateTolerance = models.DefaultDuplicateOverlapTolerance
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Validator{repo: repo, engine: engine, clock: clock, config: config, logger: logger}
}

func (v *Validator) today() string {
	return v.clock.Now().In(v.config.Location).Format(models.DateLayout)
}

// Run executes every check. A failing check is logged and does not stop the others.
func (v *Validator) Run(ctx context.Context) (Report, error) {
	var report Report
	ec := errors.NewErrorCollector()
	today := v.today()

	first, err := models.AddDays(today, -v.config.BackfillDays, v.config.Location)
	if err != nil {
		return report, err
	}
	dates, err := v.repo.SessionDates(first, today)
	if err != nil {
		ec.Collect(err)
	} else {
		report.Duplicates, report.DuplicateDates, err = v.DedupeSessions(dates)
		ec.Collect(err)
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	report.Overflows, report.OverflowDates, err = v.RepairOverflow()
	ec.Collect(err)
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	report.Backfilled, report.BackfillSkipped, err = v.Backfill(ctx)
	ec.Collect(err)

	report.Purged, err = v.Purge()
	ec.Collect(err)

	for _, e := range ec.GetErrors() {
		v.logger.Errorf("consistency check failed: %v", e)
	}
	return report, ec.Err()
}

// DedupeSessions collapses sessions of the same package and offline flag on a
// date that are identical or overlap by more than the tolerance, keeping the
// longer record. Affected dates are re-aggregated.
func (v *Validator) DedupeSessions(dates []string) (int, []string, error) {
	tolerance := v.config.DuplicateTolerance.Milliseconds()
	removed := 0
	var touched []string
	seen := make(map[string]bool)
	for _, date := range dates {
		sessions, err := v.repo.SessionsForDate(date)
		if err != nil {
			return removed, touched, err
		}
		dups := findDuplicates(sessions, tolerance)
		if len(dups) == 0 {
			continue
		}
		if err := v.repo.DeleteSessions(dups...); err != nil {
			return removed, touched, errors.NewStorageWriteError(err, "dedupe", "delete duplicate sessions").With("date", date)
		}
		v.logger.Warnf("removed duplicate sessions date=%s count=%d", date, len(dups))
		removed += len(dups)
		// A session crossing midnight also fed the following day's buckets
		for _, dup := range dups {
			for _, d := range models.DatesSpanned(dup.StartTime, dup.EndTime, v.config.Location) {
				if !seen[d] {
					seen[d] = true
					touched = append(touched, d)
				}
			}
		}
	}
	sort.Strings(touched)
	return removed, touched, v.recompute(touched)
}

type groupKey struct {
	pkg     string
	offline bool
}

func findDuplicates(sessions []models.UsageSession, tolerance int64) []models.UsageSession {
	groups := make(map[groupKey][]models.UsageSession)
	for _, s := range sessions {
		k := groupKey{s.Package, s.Offline}
		groups[k] = append(groups[k], s)
	}

	var dups []models.UsageSession
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if group[i].DurationSeconds != group[j].DurationSeconds {
				return group[i].DurationSeconds > group[j].DurationSeconds
			}
			return group[i].ID < group[j].ID
		})
		var kept []models.UsageSession
		for _, s := range group {
			if duplicatesAny(s, kept, tolerance) {
				dups = append(dups, s)
				continue
			}
			kept = append(kept, s)
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].ID < dups[j].ID })
	return dups
}

func duplicatesAny(s models.UsageSession, kept []models.UsageSession, tolerance int64) bool {
	for _, k := range kept {
		if s.StartTime == k.StartTime && s.EndTime == k.EndTime {
			return true
		}
		overlap := min(s.EndTime, k.EndTime) - max(s.StartTime, k.StartTime)
		if overlap > tolerance {
			return true
		}
	}
	return false
}

// RepairOverflow deletes every bucket above one hour and re-aggregates its date
func (v *Validator) RepairOverflow() (int, []string, error) {
	buckets, err := v.repo.OverflowBuckets()
	if err != nil || len(buckets) == 0 {
		return 0, nil, err
	}
	if err := v.repo.DeleteHourBuckets(buckets...); err != nil {
		return 0, nil, errors.NewStorageWriteError(err, "overflow", "delete overflowing buckets")
	}

	var dates []string
	seen := make(map[string]bool)
	for _, b := range buckets {
		v.logger.Warnf("removed overflowing hour bucket date=%s category=%d hour=%d seconds=%d", b.Date, b.CategoryID, b.Hour, b.DurationSeconds)
		if !seen[b.Date] {
			seen[b.Date] = true
			dates = append(dates, b.Date)
		}
	}
	sort.Strings(dates)
	return len(buckets), dates, v.recompute(dates)
}

// Backfill rebuilds dates in the look-back window that have sessions but no
// daily summary, newest first, then the periods they belong to. Only one
// backfill runs at a time; a concurrent caller returns immediately with
// skipped set.
func (v *Validator) Backfill(ctx context.Context) (dates []string, skipped bool, err error) {
	if !v.backfilling.CompareAndSwap(false, true) {
		v.logger.Debugf("backfill already running, skipping")
		return nil, true, nil
	}
	defer v.backfilling.Store(false)

	today := v.today()
	first, err := models.AddDays(today, -v.config.BackfillDays, v.config.Location)
	if err != nil {
		return nil, false, err
	}
	yesterday, err := models.AddDays(today, -1, v.config.Location)
	if err != nil {
		return nil, false, err
	}
	candidates, err := v.repo.SessionDates(first, yesterday)
	if err != nil {
		return nil, false, err
	}

	var missing []string
	for _, date := range candidates {
		ok, err := v.repo.HasDailySummary(date)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			missing = append(missing, date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(missing)))

	ec := errors.NewErrorCollector()
	for _, date := range missing {
		if ctx.Err() != nil {
			return dates, false, ctx.Err()
		}
		if err := v.engine.RecomputeDate(date); err != nil {
			ec.Collect(err)
			continue
		}
		v.logger.Infof("backfilled missing daily summary date=%s", date)
		dates = append(dates, date)
	}

	if len(dates) > 0 {
		ec.Collect(v.engine.RecomputePeriodsFor(append(dates, today), today))
	}
	return dates, false, ec.Err()
}

// Purge deletes data older than the retention window
func (v *Validator) Purge() ([]string, error) {
	if v.config.RetentionDays <= 0 {
		return nil, nil
	}
	cutoff, err := models.AddDays(v.today(), -v.config.RetentionDays, v.config.Location)
	if err != nil {
		return nil, err
	}
	removed, err := v.repo.DeleteDatesBefore(cutoff)
	if len(removed) > 0 {
		v.logger.Infof("purged dates before %s count=%d", cutoff, len(removed))
	}
	return removed, err
}

func (v *Validator) recompute(dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	ec := errors.NewErrorCollector()
	for _, date := range dates {
		ec.Collect(v.engine.RecomputeDate(date))
	}
	ec.Collect(v.engine.RecomputePeriodsFor(dates, v.today()))
	return ec.Err()
}
