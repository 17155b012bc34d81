package calculations

import (
	"sort"
	"time"

	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Engine runs the downward aggregation chain: hour buckets, daily totals,
// weekly/monthly averages and reward counts.
type Engine struct {
	Distributor *HourDistributor
	Rollups     *RollupEngine
	Rewards     *RewardRollup

	loc    *time.Location
	logger logging.LoggerInterface
}

// NewEngine wires the aggregation chain over one repository
func NewEngine(repo Repository, catalog Catalog, loc *time.Location, logger logging.LoggerInterface) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		Distributor: NewHourDistributor(repo, catalog, loc, logger),
		Rollups:     NewRollupEngine(repo, catalog, loc, logger),
		Rewards:     NewRewardRollup(repo, loc),
		loc:         loc,
		logger:      logger,
	}
}

// Location is the timezone dates are evaluated in
func (e *Engine) Location() *time.Location {
	return e.loc
}

// RecomputeDate rebuilds the hour buckets and daily totals of one date
func (e *Engine) RecomputeDate(date string) error {
	if _, err := e.Distributor.Distribute(date); err != nil {
		return errors.NewStorageWriteError(err, "distribute", "rebuild hour buckets").With("date", date)
	}
	if _, err := e.Rollups.RollupDaily(date); err != nil {
		return errors.NewStorageWriteError(err, "daily", "rebuild daily totals").With("date", date)
	}
	return nil
}

// RecomputePeriods rebuilds the week and month containing date, evaluated
// through the end of the period or today, whichever comes first.
func (e *Engine) RecomputePeriods(date, today string) error {
	ec := errors.NewErrorCollector()
	for _, kind := range []models.PeriodKind{models.PeriodWeekly, models.PeriodMonthly} {
		key, _, last, err := models.PeriodBounds(kind, date, e.loc)
		if err != nil {
			ec.Collect(err)
			continue
		}
		evalDate := min(last, today)
		if evalDate < date {
			evalDate = date
		}
		if _, err := e.Rollups.RollupPeriod(kind, evalDate); err != nil {
			ec.Collect(errors.NewStorageWriteError(err, string(kind), "rebuild period averages").With("period", key))
		}
		if _, err := e.Rewards.Rollup(kind, evalDate); err != nil {
			ec.Collect(errors.NewStorageWriteError(err, "rewards", "rebuild reward counts").With("period", key).With("kind", kind))
		}
	}
	return ec.Err()
}

// RecomputeDates rebuilds every date, then each distinct week and month they
// fall in. A failing date is logged and does not stop the others.
func (e *Engine) RecomputeDates(dates []string, today string) error {
	ec := errors.NewErrorCollector()
	for _, date := range dates {
		if err := e.RecomputeDate(date); err != nil {
			e.logger.Errorf("recompute date failed: %v", err)
			ec.Collect(err)
		}
	}
	if err := e.RecomputePeriodsFor(dates, today); err != nil {
		ec.Collect(err)
	}
	return ec.Err()
}

// RecomputePeriodsFor rebuilds each distinct week and month touched by dates
func (e *Engine) RecomputePeriodsFor(dates []string, today string) error {
	ec := errors.NewErrorCollector()
	for _, date := range periodRepresentatives(dates, e.loc) {
		if err := e.RecomputePeriods(date, today); err != nil {
			e.logger.Errorf("recompute periods failed date=%s: %v", date, err)
			ec.Collect(err)
		}
	}
	return ec.Err()
}

// periodRepresentatives keeps the latest date of each distinct week and month
func periodRepresentatives(dates []string, loc *time.Location) []string {
	latest := make(map[string]string)
	for _, date := range dates {
		for _, kind := range []models.PeriodKind{models.PeriodWeekly, models.PeriodMonthly} {
			key, _, _, err := models.PeriodBounds(kind, date, loc)
			if err != nil {
				continue
			}
			k := string(kind) + "/" + key
			if date > latest[k] {
				latest[k] = date
			}
		}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, date := range latest {
		if _, ok := seen[date]; ok {
			continue
		}
		seen[date] = struct{}{}
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}
