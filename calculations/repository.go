package calculations

import (
	"github.com/penwyp/ScreenCat/models"
)

// Catalog resolves categories and exclusion flags
type Catalog interface {
	CategoryOf(pkg string) int64
	IsExcludedPackage(pkg string) bool
	IsExcludedCategory(id int64) bool
}

// Repository is the persistence the aggregation engine reads and rewrites
type Repository interface {
	SessionsForDate(date string) ([]models.UsageSession, error)
	ReplaceHourBuckets(date string, buckets []models.HourBucket) error
	HourBucketsForDate(date string) ([]models.HourBucket, error)
	ReplaceDailySummaries(date string, rows []models.DailySummary) error
	DailySummariesInRange(first, last string) (map[string][]models.DailySummary, error)
	ReplacePeriodSummaries(kind models.PeriodKind, key string, rows []models.PeriodSummary) error
	RewardDailiesInRange(first, last string) ([]models.RewardPunishmentDaily, error)
	ReplaceRewardPeriods(kind models.PeriodKind, key string, rows []models.RewardPunishmentPeriod) error
}
