package calculations

import (
	"fmt"
	"sort"
	"time"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// RollupEngine 日/周/月汇总
type RollupEngine struct {
	repo    Repository
	catalog Catalog
	loc     *time.Location
	logger  logging.LoggerInterface
}

// NewRollupEngine creates a rollup engine
func NewRollupEngine(repo Repository, catalog Catalog, loc *time.Location, logger logging.LoggerInterface) *RollupEngine {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RollupEngine{repo: repo, catalog: catalog, loc: loc, logger: logger}
}

// RollupDaily sums the hour buckets of date per category, online and offline
// alike. The aggregate row is the sum of every non-excluded category and is
// always written, even when zero.
func (r *RollupEngine) RollupDaily(date string) ([]models.DailySummary, error) {
	buckets, err := r.repo.HourBucketsForDate(date)
	if err != nil {
		return nil, fmt.Errorf("load hour buckets for %s: %w", date, err)
	}

	totals := make(map[int64]int64)
	for _, b := range buckets {
		if b.CategoryID == models.AggregateCategoryID {
			continue
		}
		totals[b.CategoryID] += b.DurationSeconds
	}

	rows := make([]models.DailySummary, 0, len(totals)+1)
	for cat, total := range totals {
		rows = append(rows, models.DailySummary{Date: date, CategoryID: cat, TotalSeconds: total})
	}
	rows = append(rows, models.DailySummary{Date: date, CategoryID: models.AggregateCategoryID, TotalSeconds: r.aggregateOf(totals)})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CategoryID < rows[j].CategoryID })

	if err := r.repo.ReplaceDailySummaries(date, rows); err != nil {
		return nil, fmt.Errorf("replace daily summaries for %s: %w", date, err)
	}
	return rows, nil
}

// RollupPeriod averages daily totals from the start of the week or month
// containing evalDate through evalDate. The divisor is the number of days with
// recorded usage in some category, not the calendar length. Aggregate totals are rebuilt per day
// from real categories rather than from stored aggregate rows.
func (r *RollupEngine) RollupPeriod(kind models.PeriodKind, evalDate string) ([]models.PeriodSummary, error) {
	key, first, last, err := models.PeriodBounds(kind, evalDate, r.loc)
	if err != nil {
		return nil, err
	}
	last = min(last, evalDate)

	byDate, err := r.repo.DailySummariesInRange(first, last)
	if err != nil {
		return nil, fmt.Errorf("load daily summaries %s..%s: %w", first, last, err)
	}

	totals := make(map[int64]int64)
	var aggregate int64
	days := 0
	for _, rows := range byDate {
		dayTotals := make(map[int64]int64, len(rows))
		var used int64
		for _, row := range rows {
			if row.CategoryID == models.AggregateCategoryID {
				continue
			}
			dayTotals[row.CategoryID] += row.TotalSeconds
			used += row.TotalSeconds
		}
		// An empty aggregate row only means the date was rolled up
		if used <= 0 {
			continue
		}
		days++
		for cat, total := range dayTotals {
			totals[cat] += total
		}
		aggregate += r.aggregateOf(dayTotals)
	}

	var out []models.PeriodSummary
	if days > 0 {
		for cat, total := range totals {
			out = append(out, periodRow(kind, key, cat, total, days))
		}
		out = append(out, periodRow(kind, key, models.AggregateCategoryID, aggregate, days))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })

	if err := r.repo.ReplacePeriodSummaries(kind, key, out); err != nil {
		return nil, fmt.Errorf("replace %s summaries for %s: %w", kind, key, err)
	}
	return out, nil
}

func (r *RollupEngine) aggregateOf(totals map[int64]int64) int64 {
	var sum int64
	for cat, total := range totals {
		if r.catalog != nil && r.catalog.IsExcludedCategory(cat) {
			continue
		}
		sum += total
	}
	return sum
}

func periodRow(kind models.PeriodKind, key string, cat, total int64, days int) models.PeriodSummary {
	return models.PeriodSummary{
		Kind:                kind,
		PeriodKey:           key,
		CategoryID:          cat,
		TotalSeconds:        total,
		DayCount:            days,
		AverageDailySeconds: roundDiv(total, int64(days)),
	}
}
