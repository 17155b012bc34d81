package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/penwyp/ScreenCat/models"
)

// Config represents the complete application configuration
type Config struct {
	// Application
	App AppConfig `yaml:"app" json:"app" mapstructure:"app"`

	// Data locations
	Data DataConfig `yaml:"data" json:"data" mapstructure:"data"`

	// Session construction
	Tracking TrackingConfig `yaml:"tracking" json:"tracking" mapstructure:"tracking"`

	// Scheduler cadence
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler" mapstructure:"scheduler"`

	// Consistency checks
	Validation ValidationConfig `yaml:"validation" json:"validation" mapstructure:"validation"`

	// Store tuning
	Storage StorageConfig `yaml:"storage" json:"storage" mapstructure:"storage"`

	// Goal notifications
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications" mapstructure:"notifications"`

	// Debug
	Debug DebugConfig `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// AppConfig contains general application settings
type AppConfig struct {
	Name     string `yaml:"name" json:"name" mapstructure:"name"`
	Version  string `yaml:"version" json:"version" mapstructure:"version"`
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file" mapstructure:"log_file"`
	Timezone string `yaml:"timezone" json:"timezone" mapstructure:"timezone"`
}

// DataConfig says where data lives. Relative event log and catalog paths
// are resolved against Dir.
type DataConfig struct {
	Dir      string        `yaml:"dir" json:"dir" mapstructure:"dir"`
	EventLog string        `yaml:"event_log" json:"event_log" mapstructure:"event_log"`
	Catalog  string        `yaml:"catalog" json:"catalog" mapstructure:"catalog"`
	Watch    bool          `yaml:"watch" json:"watch" mapstructure:"watch"`
	Debounce time.Duration `yaml:"debounce" json:"debounce" mapstructure:"debounce"`
}

// TrackingConfig tunes how events become sessions
type TrackingConfig struct {
	HousekeepingPackages []string      `yaml:"housekeeping_packages" json:"housekeeping_packages" mapstructure:"housekeeping_packages"`
	MergeGap             time.Duration `yaml:"merge_gap" json:"merge_gap" mapstructure:"merge_gap"`
	ReentryGap           time.Duration `yaml:"reentry_gap" json:"reentry_gap" mapstructure:"reentry_gap"`
	ReentryBackoff       time.Duration `yaml:"reentry_backoff" json:"reentry_backoff" mapstructure:"reentry_backoff"`
	ExtraForegroundCodes []int         `yaml:"extra_foreground_codes" json:"extra_foreground_codes" mapstructure:"extra_foreground_codes"`
	ExtraBackgroundCodes []int         `yaml:"extra_background_codes" json:"extra_background_codes" mapstructure:"extra_background_codes"`
	QueryTimeout         time.Duration `yaml:"query_timeout" json:"query_timeout" mapstructure:"query_timeout"`
}

// SchedulerConfig contains the pass cadence
type SchedulerConfig struct {
	Interval          time.Duration `yaml:"interval" json:"interval" mapstructure:"interval"`
	ManualMinInterval time.Duration `yaml:"manual_min_interval" json:"manual_min_interval" mapstructure:"manual_min_interval"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval" json:"watchdog_interval" mapstructure:"watchdog_interval"`
	StallThreshold    time.Duration `yaml:"stall_threshold" json:"stall_threshold" mapstructure:"stall_threshold"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// ValidationConfig contains consistency check settings
type ValidationConfig struct {
	BackfillDays       int           `yaml:"backfill_days" json:"backfill_days" mapstructure:"backfill_days"`
	DuplicateTolerance time.Duration `yaml:"duplicate_tolerance" json:"duplicate_tolerance" mapstructure:"duplicate_tolerance"`
	RetentionDays      int           `yaml:"retention_days" json:"retention_days" mapstructure:"retention_days"`
}

// StorageConfig contains badger tuning
type StorageConfig struct {
	GCInterval     time.Duration `yaml:"gc_interval" json:"gc_interval" mapstructure:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" json:"gc_discard_ratio" mapstructure:"gc_discard_ratio"`
	SyncWrites     bool          `yaml:"sync_writes" json:"sync_writes" mapstructure:"sync_writes"`
}

// NotificationsConfig contains desktop notification settings
type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	AppName string `yaml:"app_name" json:"app_name" mapstructure:"app_name"`
	Sound   bool   `yaml:"sound" json:"sound" mapstructure:"sound"`
}

// DebugConfig contains debugging settings
type DebugConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// ConfigPaths returns the default configuration file paths in order of precedence
func ConfigPaths() []string {
	return []string{
		"./" + models.ConfigFileName,
		"$HOME/" + models.ConfigFileName,
		"$HOME/.config/screencat/config.yaml",
	}
}

// FindConfigFile returns the first existing default configuration file, or ""
func FindConfigFile() string {
	for _, p := range ConfigPaths() {
		expanded := os.ExpandEnv(p)
		if _, err := os.Stat(expanded); err == nil {
			return expanded
		}
	}
	return ""
}

// Version will be set at build time
var Version = "dev"

// DefaultDataDir returns ~/.screencat, or .screencat when the home directory is unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".screencat"
	}
	return filepath.Join(home, ".screencat")
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "ScreenCat",
			Version:  Version,
			LogLevel: "info",
			Timezone: "Local",
		},
		Data: DataConfig{
			Dir:      DefaultDataDir(),
			EventLog: models.DefaultEventLogName,
			Catalog:  models.DefaultCatalogName,
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Tracking: TrackingConfig{
			MergeGap:       models.DefaultMergeGap,
			ReentryGap:     models.DefaultReentryGap,
			ReentryBackoff: models.DefaultReentryBackoff,
			QueryTimeout:   models.DefaultQueryTimeout,
		},
		Scheduler: SchedulerConfig{
			Interval:          models.DefaultTickInterval,
			ManualMinInterval: models.DefaultManualMinInterval,
			WatchdogInterval:  models.DefaultWatchdogInterval,
			StallThreshold:    models.DefaultStallThreshold,
			CleanupInterval:   models.DefaultCleanupInterval,
		},
		Validation: ValidationConfig{
			BackfillDays:       models.DefaultBackfillDays,
			DuplicateTolerance: models.DefaultDuplicateOverlapTolerance,
		},
		Storage: StorageConfig{
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			AppName: "ScreenCat",
		},
	}
}

// Location resolves App.Timezone
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// StoreDir is the badger directory
func (c *Config) StoreDir() string {
	return filepath.Join(c.Data.Dir, "store")
}

// EventLogPath returns the event log path resolved against the data directory
func (c *Config) EventLogPath() string {
	return c.resolve(c.Data.EventLog)
}

// CatalogPath returns the catalog path resolved against the data directory
func (c *Config) CatalogPath() string {
	return c.resolve(c.Data.Catalog)
}

func (c *Config) resolve(p string) string {
	p = os.ExpandEnv(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Data.Dir, p)
}
