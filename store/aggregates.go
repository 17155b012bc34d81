package store

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/penwyp/ScreenCat/models"
)

// ReplaceHourBuckets deletes every bucket of date and writes buckets in one transaction
func (s *Store) ReplaceHourBuckets(date string, buckets []models.HourBucket) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := deletePrefix(txn, hourDatePrefix(date)); err != nil {
			return err
		}
		for _, b := range buckets {
			if b.Date != date {
				return fmt.Errorf("bucket for %s written under %s", b.Date, date)
			}
			if err := s.put(txn, hourKey(b), b); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutHourBucket upserts a single bucket without validation
func (s *Store) PutHourBucket(b models.HourBucket) error {
	return s.update(func(txn *badger.Txn) error {
		return s.put(txn, hourKey(b), b)
	})
}

// HourBucketsForDate returns the buckets of date ordered by category, hour, offline
func (s *Store) HourBucketsForDate(date string) ([]models.HourBucket, error) {
	var buckets []models.HourBucket
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, hourDatePrefix(date), func(_ []byte, v models.HourBucket) error {
			buckets = append(buckets, v)
			return nil
		})
	})
	sortBuckets(buckets)
	return buckets, err
}

// OverflowBuckets returns every bucket holding more than an hour
func (s *Store) OverflowBuckets() ([]models.HourBucket, error) {
	var buckets []models.HourBucket
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, prefixHour, func(_ []byte, v models.HourBucket) error {
			if v.DurationSeconds > models.MaxBucketSeconds {
				buckets = append(buckets, v)
			}
			return nil
		})
	})
	sortBuckets(buckets)
	return buckets, err
}

// DeleteHourBuckets removes specific buckets
func (s *Store) DeleteHourBuckets(buckets ...models.HourBucket) error {
	return s.update(func(txn *badger.Txn) error {
		for _, b := range buckets {
			if err := txn.Delete(hourKey(b)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceDailySummaries deletes every summary of date and writes rows
func (s *Store) ReplaceDailySummaries(date string, rows []models.DailySummary) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := deletePrefix(txn, dailyDatePrefix(date)); err != nil {
			return err
		}
		for _, r := range rows {
			if err := s.put(txn, dailyKey(date, r.CategoryID), r); err != nil {
				return err
			}
		}
		return nil
	})
}

// DailySummariesForDate returns every category row of date
func (s *Store) DailySummariesForDate(date string) ([]models.DailySummary, error) {
	var rows []models.DailySummary
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, dailyDatePrefix(date), func(_ []byte, v models.DailySummary) error {
			rows = append(rows, v)
			return nil
		})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CategoryID < rows[j].CategoryID })
	return rows, err
}

// DailySummariesInRange returns rows for dates in [first, last] grouped by date
func (s *Store) DailySummariesInRange(first, last string) (map[string][]models.DailySummary, error) {
	out := make(map[string][]models.DailySummary)
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, prefixDaily, func(_ []byte, v models.DailySummary) error {
			if dateBetween(v.Date, first, last) {
				out[v.Date] = append(out[v.Date], v)
			}
			return nil
		})
	})
	return out, err
}

// HasDailySummary reports whether any summary exists for date
func (s *Store) HasDailySummary(date string) (bool, error) {
	found := false
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(dailyDatePrefix(date))
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		found = it.Valid()
		return nil
	})
	return found, err
}

// ReplacePeriodSummaries rewrites all rows of one week or month
func (s *Store) ReplacePeriodSummaries(kind models.PeriodKind, key string, rows []models.PeriodSummary) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := deletePrefix(txn, periodPrefix(kind, key)); err != nil {
			return err
		}
		for _, r := range rows {
			if err := s.put(txn, periodKey(kind, key, r.CategoryID), r); err != nil {
				return err
			}
		}
		return nil
	})
}

// PeriodSummaries returns the rows of one week or month
func (s *Store) PeriodSummaries(kind models.PeriodKind, key string) ([]models.PeriodSummary, error) {
	var rows []models.PeriodSummary
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, periodPrefix(kind, key), func(_ []byte, v models.PeriodSummary) error {
			rows = append(rows, v)
			return nil
		})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CategoryID < rows[j].CategoryID })
	return rows, err
}

// PutRewardDailies upserts reward/punishment flags produced by the evaluator
func (s *Store) PutRewardDailies(rows ...models.RewardPunishmentDaily) error {
	return s.update(func(txn *badger.Txn) error {
		for _, r := range rows {
			if err := s.put(txn, rpDailyKey(r.Date, r.CategoryID), r); err != nil {
				return err
			}
		}
		return nil
	})
}

// RewardDailiesInRange returns flags for dates in [first, last]
func (s *Store) RewardDailiesInRange(first, last string) ([]models.RewardPunishmentDaily, error) {
	var rows []models.RewardPunishmentDaily
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, prefixRPDaily, func(_ []byte, v models.RewardPunishmentDaily) error {
			if dateBetween(v.Date, first, last) {
				rows = append(rows, v)
			}
			return nil
		})
	})
	return rows, err
}

// ReplaceRewardPeriods rewrites the reward counts of one week or month
func (s *Store) ReplaceRewardPeriods(kind models.PeriodKind, key string, rows []models.RewardPunishmentPeriod) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := deletePrefix(txn, rpPeriodPrefix(kind, key)); err != nil {
			return err
		}
		for _, r := range rows {
			if err := s.put(txn, rpPeriodKey(kind, key, r.CategoryID), r); err != nil {
				return err
			}
		}
		return nil
	})
}

// RewardPeriods returns the reward counts of one week or month
func (s *Store) RewardPeriods(kind models.PeriodKind, key string) ([]models.RewardPunishmentPeriod, error) {
	var rows []models.RewardPunishmentPeriod
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, rpPeriodPrefix(kind, key), func(_ []byte, v models.RewardPunishmentPeriod) error {
			rows = append(rows, v)
			return nil
		})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CategoryID < rows[j].CategoryID })
	return rows, err
}

func sortBuckets(buckets []models.HourBucket) {
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return !a.Offline && b.Offline
	})
}
