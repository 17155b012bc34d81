package calculations

import (
	"fmt"
	"sort"
	"time"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// bucketKey 小时桶的自然键（日期之外）
type bucketKey struct {
	category int64
	hour     int
	offline  bool
}

// HourDistributor 将会话按整点切分到小时桶
type HourDistributor struct {
	repo    Repository
	catalog Catalog
	loc     *time.Location
	logger  logging.LoggerInterface
}

// NewHourDistributor creates a distributor
func NewHourDistributor(repo Repository, catalog Catalog, loc *time.Location, logger logging.LoggerInterface) *HourDistributor {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HourDistributor{repo: repo, catalog: catalog, loc: loc, logger: logger}
}

// Distribute rebuilds every hour bucket of date from raw sessions. Existing
// buckets for the date are replaced wholesale, so re-running is idempotent.
func (d *HourDistributor) Distribute(date string) ([]models.HourBucket, error) {
	dayStart, dayEnd, err := models.DayBounds(date, d.loc)
	if err != nil {
		return nil, err
	}
	prev, err := models.AddDays(date, -1, d.loc)
	if err != nil {
		return nil, err
	}

	var sessions []models.UsageSession
	for _, day := range []string{prev, date} {
		ss, err := d.repo.SessionsForDate(day)
		if err != nil {
			return nil, fmt.Errorf("load sessions for %s: %w", day, err)
		}
		sessions = append(sessions, ss...)
	}

	totals := make(map[bucketKey]int64)
	for _, s := range sessions {
		if s.EndTime <= dayStart || s.StartTime >= dayEnd {
			continue
		}
		if d.catalog != nil && d.catalog.IsExcludedPackage(s.Package) {
			continue
		}
		category := s.CategoryID
		if !s.Offline && d.catalog != nil {
			category = d.catalog.CategoryOf(s.Package)
		}
		d.distributeSession(date, s, category, dayStart, dayEnd, totals)
	}

	buckets := d.withAggregate(date, totals)
	if err := d.repo.ReplaceHourBuckets(date, buckets); err != nil {
		return nil, fmt.Errorf("replace hour buckets for %s: %w", date, err)
	}
	return buckets, nil
}

// distributeSession adds the share of s falling inside [dayStart, dayEnd) to totals
func (d *HourDistributor) distributeSession(date string, s models.UsageSession, category int64, dayStart, dayEnd int64, totals map[bucketKey]int64) {
	span := s.SpanMillis()
	if span <= 0 || s.DurationSeconds <= 0 {
		return
	}

	startT := time.UnixMilli(s.StartTime).In(d.loc)
	endT := time.UnixMilli(s.EndTime).In(d.loc)
	if sameLocalHour(startT, endT) || sameLocalHour(startT, endT.Add(-time.Millisecond)) {
		d.add(date, bucketKey{category, startT.Hour(), s.Offline}, s.DurationSeconds, s.Package, totals)
		return
	}

	from := max(s.StartTime, dayStart)
	to := min(s.EndTime, dayEnd)
	cursor := time.UnixMilli(from).In(d.loc)
	hourStart := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), cursor.Hour(), 0, 0, 0, d.loc)
	for hourStart.UnixMilli() < to {
		hourEnd := hourStart.Add(time.Hour)
		overlap := min(to, hourEnd.UnixMilli()) - max(from, hourStart.UnixMilli())
		if overlap > 0 {
			share := roundDiv(overlap*s.DurationSeconds, span)
			d.add(date, bucketKey{category, hourStart.Hour(), s.Offline}, share, s.Package, totals)
		}
		hourStart = hourEnd
	}
}

// add accumulates seconds into a bucket, dropping anything past one hour
func (d *HourDistributor) add(date string, key bucketKey, seconds int64, pkg string, totals map[bucketKey]int64) {
	if seconds <= 0 {
		return
	}
	next := totals[key] + seconds
	if next > models.MaxBucketSeconds {
		d.logger.Warnf("hour bucket overflow, dropping excess date=%s category=%d hour=%d offline=%t package=%s dropped=%d",
			date, key.category, key.hour, key.offline, pkg, next-models.MaxBucketSeconds)
		next = models.MaxBucketSeconds
	}
	totals[key] = next
}

// withAggregate emits the real buckets plus one synthetic aggregate bucket per
// (hour, offline) summing every non-excluded category.
func (d *HourDistributor) withAggregate(date string, totals map[bucketKey]int64) []models.HourBucket {
	aggregate := make(map[bucketKey]int64)
	buckets := make([]models.HourBucket, 0, len(totals)*2)
	for k, v := range totals {
		buckets = append(buckets, models.HourBucket{Date: date, CategoryID: k.category, Hour: k.hour, Offline: k.offline, DurationSeconds: v})
		if k.category == models.AggregateCategoryID {
			continue
		}
		if d.catalog != nil && d.catalog.IsExcludedCategory(k.category) {
			continue
		}
		aggregate[bucketKey{models.AggregateCategoryID, k.hour, k.offline}] += v
	}
	for k, v := range aggregate {
		if v > models.MaxBucketSeconds {
			d.logger.Warnf("aggregate hour bucket overflow, clamping date=%s hour=%d offline=%t total=%d", date, k.hour, k.offline, v)
			v = models.MaxBucketSeconds
		}
		buckets = append(buckets, models.HourBucket{Date: date, CategoryID: k.category, Hour: k.hour, Offline: k.offline, DurationSeconds: v})
	}

	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return !a.Offline && b.Offline
	})
	return buckets
}

func sameLocalHour(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}

// roundDiv divides non-negative integers rounding half up
func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}
