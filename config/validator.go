package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/penwyp/ScreenCat/sessions"
)

// StandardValidator collects every violation rather than stopping at the first
type StandardValidator struct{}

// NewStandardValidator creates a new standard validator
func NewStandardValidator() *StandardValidator {
	return &StandardValidator{}
}

// Validate validates the entire configuration
func (v *StandardValidator) Validate(cfg *Config) error {
	var errors []string

	sections := []struct {
		name string
		errs []string
	}{
		{"app", v.validateApp(&cfg.App)},
		{"data", v.validateData(&cfg.Data)},
		{"tracking", v.validateTracking(&cfg.Tracking)},
		{"scheduler", v.validateScheduler(&cfg.Scheduler)},
		{"validation", v.validateValidation(&cfg.Validation)},
		{"storage", v.validateStorage(&cfg.Storage)},
	}
	for _, s := range sections {
		for _, e := range s.errs {
			errors = append(errors, fmt.Sprintf("%s.%s", s.name, e))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (v *StandardValidator) validateApp(app *AppConfig) []string {
	var errors []string

	if err := ValidateLogLevel(app.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("log_level: %v", err))
	}

	if app.LogFile != "" {
		dir := filepath.Dir(os.ExpandEnv(app.LogFile))
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("log_file: directory does not exist: %s", dir))
			}
		}
	}

	if app.Timezone != "" && app.Timezone != "Local" {
		if _, err := time.LoadLocation(app.Timezone); err != nil {
			errors = append(errors, fmt.Sprintf("timezone: invalid timezone: %s", app.Timezone))
		}
	}
	return errors
}

func (v *StandardValidator) validateData(data *DataConfig) []string {
	var errors []string
	if data.Dir == "" {
		errors = append(errors, "dir: must not be empty")
	}
	if data.EventLog == "" {
		errors = append(errors, "event_log: must not be empty")
	}
	if data.Debounce < 0 {
		errors = append(errors, "debounce: must not be negative")
	}
	return errors
}

func (v *StandardValidator) validateTracking(t *TrackingConfig) []string {
	var errors []string
	if t.MergeGap < 0 {
		errors = append(errors, "merge_gap: must not be negative")
	}
	if t.ReentryGap <= 0 {
		errors = append(errors, "reentry_gap: must be positive")
	}
	if t.ReentryBackoff < 0 || t.ReentryBackoff >= t.ReentryGap {
		errors = append(errors, "reentry_backoff: must be non-negative and below reentry_gap")
	}
	if t.QueryTimeout <= 0 {
		errors = append(errors, "query_timeout: must be positive")
	}
	for i, pkg := range t.HousekeepingPackages {
		if strings.TrimSpace(pkg) == "" {
			errors = append(errors, fmt.Sprintf("housekeeping_packages[%d]: empty package", i))
		}
	}
	for _, code := range append(append([]int(nil), t.ExtraForegroundCodes...), t.ExtraBackgroundCodes...) {
		if sessions.IsKnownEventCode(code) {
			errors = append(errors, fmt.Sprintf("extra codes: %d is already a known event code", code))
		}
	}
	return errors
}

func (v *StandardValidator) validateScheduler(s *SchedulerConfig) []string {
	var errors []string
	if s.Interval < time.Second {
		errors = append(errors, "interval: must be at least 1s")
	}
	if s.ManualMinInterval < 0 {
		errors = append(errors, "manual_min_interval: must not be negative")
	}
	if s.WatchdogInterval <= 0 {
		errors = append(errors, "watchdog_interval: must be positive")
	}
	if s.StallThreshold < s.Interval {
		errors = append(errors, "stall_threshold: must not be shorter than interval")
	}
	if s.CleanupInterval <= 0 {
		errors = append(errors, "cleanup_interval: must be positive")
	}
	return errors
}

func (v *StandardValidator) validateValidation(val *ValidationConfig) []string {
	var errors []string
	if val.BackfillDays < 0 || val.BackfillDays > 366 {
		errors = append(errors, "backfill_days: must be between 0 and 366")
	}
	if val.DuplicateTolerance < 0 {
		errors = append(errors, "duplicate_tolerance: must not be negative")
	}
	if val.RetentionDays < 0 {
		errors = append(errors, "retention_days: must not be negative")
	}
	if val.RetentionDays > 0 && val.RetentionDays <= val.BackfillDays {
		errors = append(errors, "retention_days: must exceed backfill_days")
	}
	return errors
}

func (v *StandardValidator) validateStorage(s *StorageConfig) []string {
	var errors []string
	if s.GCDiscardRatio <= 0 || s.GCDiscardRatio >= 1 {
		errors = append(errors, "gc_discard_ratio: must be between 0 and 1 exclusive")
	}
	if s.GCInterval < 0 {
		errors = append(errors, "gc_interval: must not be negative")
	}
	return errors
}

// ValidateLogLevel validates log level
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}
	return nil
}
