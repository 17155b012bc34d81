package models

import "time"

// AggregateCategoryID is the synthetic "all categories" category
const AggregateCategoryID int64 = -1

// Bucket limits
const (
	MaxBucketSeconds = 3600
	HoursPerDay      = 24
)

// Session construction defaults
const (
	DefaultMergeGap       = 5 * time.Second
	DefaultReentryGap     = 30 * time.Second
	DefaultReentryBackoff = 5 * time.Second
	DefaultQueryTimeout   = 10 * time.Second
)

// Scheduler defaults
const (
	DefaultTickInterval      = 30 * time.Second
	DefaultManualMinInterval = 2 * time.Second
	DefaultWatchdogInterval  = 5 * time.Minute
	DefaultStallThreshold    = 3 * DefaultTickInterval
	DefaultCleanupInterval   = time.Hour
)

// Validation defaults
const (
	DefaultBackfillDays              = 7
	DefaultDuplicateOverlapTolerance = time.Second
)

// OfflinePackagePrefix marks manually recorded offline activity sessions
const OfflinePackagePrefix = "offline:"

// File names
const (
	DefaultEventLogName = "events.jsonl"
	DefaultCatalogName  = "catalog.json"
	ConfigFileName      = ".screencat.yaml"
)

// Time formats
const (
	DateLayout        = "2006-01-02"
	MonthLayout       = "2006-01"
	DisplayTimeFormat = "2006-01-02 15:04:05"
)
