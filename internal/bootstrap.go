package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/penwyp/ScreenCat/calculations"
	"github.com/penwyp/ScreenCat/config"
	"github.com/penwyp/ScreenCat/consistency"
	"github.com/penwyp/ScreenCat/fileio"
	"github.com/penwyp/ScreenCat/goals"
	"github.com/penwyp/ScreenCat/orchestrator"
	"github.com/penwyp/ScreenCat/sessions"
	"github.com/penwyp/ScreenCat/store"
)

// bootstrap initializes all application components
func (a *Application) bootstrap() error {
	a.logger.Debug("Bootstrapping application")

	// 1. Validate configuration
	if err := a.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 2. Open the store
	if err := a.openStore(); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	// 3. Event source and catalog
	if err := a.setupSources(); err != nil {
		return fmt.Errorf("failed to setup sources: %w", err)
	}

	// 4. Session tracking
	a.setupTracking()

	// 5. Aggregation and consistency checks
	a.setupAggregation()

	// 6. Scheduler, bus and goal monitor
	a.setupScheduler()

	// 7. File and config watchers
	if err := a.setupWatchers(); err != nil {
		return fmt.Errorf("failed to setup watchers: %w", err)
	}

	a.logger.Debug("Bootstrap completed successfully")
	return nil
}

// validateConfig resolves the timezone and prepares the data directory
func (a *Application) validateConfig() error {
	loc, err := a.config.Location()
	if err != nil {
		return err
	}
	a.loc = loc

	if a.inMemory {
		return nil
	}
	if a.config.Data.Dir == "" {
		return fmt.Errorf("data directory is empty")
	}
	if err := os.MkdirAll(a.config.Data.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", a.config.Data.Dir, err)
	}
	return nil
}

// openStore opens badger on disk, or in memory when requested
func (a *Application) openStore() error {
	if a.inMemory {
		s, err := store.OpenInMemory(a.loc, a.logger)
		if err != nil {
			return err
		}
		a.store = s
		return nil
	}

	badgerLevel := "WARNING"
	if a.config.Debug.Enabled {
		badgerLevel = "INFO"
	}
	s, err := store.Open(store.Config{
		Dir:            a.config.StoreDir(),
		SyncWrites:     a.config.Storage.SyncWrites,
		GCDiscardRatio: a.config.Storage.GCDiscardRatio,
		GCInterval:     a.config.Storage.GCInterval,
		MergeGap:       a.config.Tracking.MergeGap,
		Location:       a.loc,
		LogLevel:       badgerLevel,
	}, a.logger)
	if err != nil {
		return err
	}
	a.store = s
	a.logger.Infof("store opened dir=%s", a.config.StoreDir())
	return nil
}

// setupSources opens the event log and loads the category catalog
func (a *Application) setupSources() error {
	a.events = fileio.NewEventLog(a.config.EventLogPath(), a.logger)

	catalog, err := fileio.LoadCatalog(a.config.CatalogPath(), a.logger)
	if err != nil {
		return err
	}
	a.catalog = catalog
	a.logger.Infof("catalog loaded categories=%d goals=%d", len(catalog.Categories()), len(catalog.Goals()))
	return nil
}

// setupTracking builds the classifier, tracker and collector
func (a *Application) setupTracking() {
	t := a.config.Tracking
	a.classifier = sessions.NewClassifier(t.ExtraForegroundCodes, t.ExtraBackgroundCodes, a.logger)
	a.tracker = sessions.NewTracker(sessions.TrackerConfig{
		Housekeeping:   t.HousekeepingPackages,
		ReentryGap:     t.ReentryGap,
		ReentryBackoff: t.ReentryBackoff,
	}, a.classifier, a.logger)
	a.collector = sessions.NewCollector(a.events, a.store, a.tracker, a.catalog, a.clock, sessions.CollectorConfig{
		QueryTimeout: t.QueryTimeout,
		Location:     a.loc,
	}, a.logger)
}

// setupAggregation builds the rollup engine and the validator
func (a *Application) setupAggregation() {
	a.engine = calculations.NewEngine(a.store, a.catalog, a.loc, a.logger)
	v := a.config.Validation
	a.validator = consistency.NewValidator(a.store, a.engine, a.clock, consistency.Config{
		BackfillDays:       v.BackfillDays,
		DuplicateTolerance: v.DuplicateTolerance,
		RetentionDays:      v.RetentionDays,
		Location:           a.loc,
	}, a.logger)
}

// setupScheduler wires the pass scheduler and its downstream subscribers
func (a *Application) setupScheduler() {
	a.bus = orchestrator.NewBus(a.logger)

	sc := a.config.Scheduler
	a.scheduler = orchestrator.NewScheduler(a.collector, a.engine, a.validator, a.bus, a.clock, orchestrator.Config{
		Interval:          sc.Interval,
		ManualMinInterval: sc.ManualMinInterval,
		WatchdogInterval:  sc.WatchdogInterval,
		StallThreshold:    sc.StallThreshold,
		CleanupInterval:   sc.CleanupInterval,
		Location:          a.loc,
	}, a.logger)

	sender := a.sender
	if sender == nil && a.config.Notifications.Enabled {
		sender = goals.NewBeeepSender(a.config.Notifications.AppName, a.config.Notifications.Sound)
	}
	if sender == nil {
		a.logger.Info("Goal notifications disabled")
		return
	}
	a.monitor = goals.NewMonitor(a.catalog, a.store, sender, a.clock, a.loc, a.logger)
	a.bus.Subscribe(a.monitor.OnUpdate)
}

// setupWatchers creates the data file watcher and the config watcher
func (a *Application) setupWatchers() error {
	if a.config.Data.Watch && !a.inMemory {
		w, err := fileio.NewWatcher(fileio.WatcherConfig{
			BufferSize:   fileio.DefaultWatcherConfig.BufferSize,
			DebounceTime: a.config.Data.Debounce,
		}, a.logger)
		if err != nil {
			return err
		}
		// Parent directories must exist before they can be watched
		for _, p := range []string{a.config.EventLogPath(), a.config.CatalogPath()} {
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				a.logger.Warnf("failed to create directory for %s: %v", p, err)
			}
		}
		a.fileWatcher = w
	} else {
		a.logger.Info("File watching disabled in configuration")
	}

	if a.configFile != "" && a.reload != nil {
		w, err := config.NewWatcher(a.configFile, a.config, a.reload, a.onConfigChange, a.logger)
		if err != nil {
			return err
		}
		a.configWatcher = w
	}
	return nil
}
