package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCREENCAT_SCHEDULER_INTERVAL
const EnvPrefix = "SCREENCAT"

// Validator validates configuration
type Validator interface {
	Validate(cfg *Config) error
}

// FlagBindings maps command-line flag names to configuration keys
var FlagBindings = map[string]string{
	"log-level": "app.log_level",
	"log-file":  "app.log_file",
	"timezone":  "app.timezone",
	"data-dir":  "data.dir",
	"debug":     "debug.enabled",
}

// Loader layers configuration sources. Later layers win: defaults, then the
// file, then environment variables, then flags that were set explicitly.
type Loader struct {
	file       string
	envPrefix  string
	flags      *pflag.FlagSet
	validators []Validator
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix}
}

// WithFile reads the given file. A missing file is an error.
func (l *Loader) WithFile(path string) *Loader {
	l.file = path
	return l
}

// WithEnvPrefix overrides the environment prefix; "" disables env overrides
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithFlags binds the flags listed in FlagBindings
func (l *Loader) WithFlags(flags *pflag.FlagSet) *Loader {
	l.flags = flags
	return l
}

// AddValidator adds a configuration validator
func (l *Loader) AddValidator(validator Validator) *Loader {
	l.validators = append(l.validators, validator)
	return l
}

// Load builds and validates the configuration
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if l.file != "" {
		expanded := os.ExpandEnv(l.file)
		if _, err := os.Stat(expanded); err != nil {
			return nil, fmt.Errorf("configuration file not found: %s", expanded)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", expanded, err)
		}
	}

	if l.envPrefix != "" {
		v.SetEnvPrefix(l.envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}

	if l.flags != nil {
		for name, key := range FlagBindings {
			flag := l.flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	for _, validator := range l.validators {
		if err := validator.Validate(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Load is a convenience wrapper: file (if non-empty), env, flags, standard validation
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	return NewLoader().
		WithFile(file).
		WithFlags(flags).
		AddValidator(NewStandardValidator()).
		Load()
}

// setDefaults registers every key so environment overrides are seen by Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	// App config
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.version", d.App.Version)
	v.SetDefault("app.log_level", d.App.LogLevel)
	v.SetDefault("app.log_file", d.App.LogFile)
	v.SetDefault("app.timezone", d.App.Timezone)

	// Data config
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.event_log", d.Data.EventLog)
	v.SetDefault("data.catalog", d.Data.Catalog)
	v.SetDefault("data.watch", d.Data.Watch)
	v.SetDefault("data.debounce", d.Data.Debounce)

	// Tracking config
	v.SetDefault("tracking.housekeeping_packages", d.Tracking.HousekeepingPackages)
	v.SetDefault("tracking.merge_gap", d.Tracking.MergeGap)
	v.SetDefault("tracking.reentry_gap", d.Tracking.ReentryGap)
	v.SetDefault("tracking.reentry_backoff", d.Tracking.ReentryBackoff)
	v.SetDefault("tracking.extra_foreground_codes", d.Tracking.ExtraForegroundCodes)
	v.SetDefault("tracking.extra_background_codes", d.Tracking.ExtraBackgroundCodes)
	v.SetDefault("tracking.query_timeout", d.Tracking.QueryTimeout)

	// Scheduler config
	v.SetDefault("scheduler.interval", d.Scheduler.Interval)
	v.SetDefault("scheduler.manual_min_interval", d.Scheduler.ManualMinInterval)
	v.SetDefault("scheduler.watchdog_interval", d.Scheduler.WatchdogInterval)
	v.SetDefault("scheduler.stall_threshold", d.Scheduler.StallThreshold)
	v.SetDefault("scheduler.cleanup_interval", d.Scheduler.CleanupInterval)

	// Validation config
	v.SetDefault("validation.backfill_days", d.Validation.BackfillDays)
	v.SetDefault("validation.duplicate_tolerance", d.Validation.DuplicateTolerance)
	v.SetDefault("validation.retention_days", d.Validation.RetentionDays)

	// Storage config
	v.SetDefault("storage.gc_interval", d.Storage.GCInterval)
	v.SetDefault("storage.gc_discard_ratio", d.Storage.GCDiscardRatio)
	v.SetDefault("storage.sync_writes", d.Storage.SyncWrites)

	// Notifications config
	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.app_name", d.Notifications.AppName)
	v.SetDefault("notifications.sound", d.Notifications.Sound)

	// Debug config
	v.SetDefault("debug.enabled", d.Debug.Enabled)
}
