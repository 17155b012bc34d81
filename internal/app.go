package internal

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/penwyp/ScreenCat/calculations"
	"github.com/penwyp/ScreenCat/config"
	"github.com/penwyp/ScreenCat/consistency"
	"github.com/penwyp/ScreenCat/errors"
	"github.com/penwyp/ScreenCat/fileio"
	"github.com/penwyp/ScreenCat/goals"
	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
	"github.com/penwyp/ScreenCat/orchestrator"
	"github.com/penwyp/ScreenCat/sessions"
	"github.com/penwyp/ScreenCat/store"
)

// Option customizes an Application
type Option func(*Application)

// WithClock replaces the real clock, used by tests
func WithClock(clock quartz.Clock) Option {
	return func(a *Application) { a.clock = clock }
}

// WithLogger replaces the logger built from the configuration
func WithLogger(logger logging.LoggerInterface) Option {
	return func(a *Application) { a.logger = logger }
}

// WithSender replaces the desktop notification sender
func WithSender(sender goals.Sender) Option {
	return func(a *Application) { a.sender = sender }
}

// WithInMemoryStore keeps all data in memory
func WithInMemoryStore() Option {
	return func(a *Application) { a.inMemory = true }
}

// WithConfigReload enables hot reload of the configuration file at path.
// load rebuilds the configuration the same way it was built at startup.
func WithConfigReload(path string, load func() (*config.Config, error)) Option {
	return func(a *Application) {
		a.configFile = path
		a.reload = load
	}
}

// ErrStopped is returned by Run once the application has been shut down
var ErrStopped = stderrors.New("application already stopped")

// levelSetter is implemented by loggers that can change level at runtime
type levelSetter interface {
	SetLevel(level string)
}

// Application wires the collector, the aggregation chain and the scheduler
// over one store, plus the watchers that feed them.
type Application struct {
	config     *config.Config
	configFile string
	reload     func() (*config.Config, error)
	loc        *time.Location
	clock      quartz.Clock
	logger     logging.LoggerInterface
	sender     goals.Sender
	inMemory   bool

	store      *store.Store
	events     *fileio.EventLog
	catalog    *fileio.Catalog
	classifier *sessions.Classifier
	tracker    *sessions.Tracker
	collector  *sessions.Collector
	engine     *calculations.Engine
	validator  *consistency.Validator
	bus        *orchestrator.Bus
	scheduler  *orchestrator.Scheduler
	monitor    *goals.Monitor

	fileWatcher   *fileio.Watcher
	configWatcher *config.Watcher

	running bool
	closed  bool
	mu      sync.RWMutex
}

// NewApplication creates a new application instance. Close must be called
// when the application is not run.
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	app := &Application{config: cfg}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		logger, err := logging.NewLogger(cfg.App.LogLevel, cfg.App.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		app.logger = logger
	}
	if app.clock == nil {
		app.clock = quartz.NewReal()
	}

	if err := app.bootstrap(); err != nil {
		app.closeStore()
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	return app, nil
}

// Run starts the scheduler and the watchers and blocks until ctx is done,
// then shuts everything down and flushes active sessions.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrStopped
	}
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info("Starting ScreenCat daemon")

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Catch up on everything since the last watermark before the first tick
		if _, err := a.scheduler.Tick(gctx); err != nil && gctx.Err() == nil {
			a.logger.Warnf("initial pass failed: %v", err)
		}
		return nil
	})
	if a.fileWatcher != nil {
		g.Go(func() error {
			a.drainWatcherErrors(gctx, a.fileWatcher.Errors())
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err := g.Wait()

	if shutdownErr := a.shutdown(); shutdownErr != nil {
		a.logger.Errorf("Shutdown error: %v", shutdownErr)
		if err == nil {
			err = shutdownErr
		}
	}

	a.logger.Info("ScreenCat daemon stopped")
	return err
}

// start arms the scheduler and the watchers
func (a *Application) start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	if a.fileWatcher != nil {
		if err := a.fileWatcher.Watch(a.events.Path(), func(ev fileio.FileEvent) {
			a.onEventLogChange(ctx, ev)
		}); err != nil {
			a.logger.Warnf("not watching event log: %v", err)
		}
		if err := a.fileWatcher.Watch(a.config.CatalogPath(), func(ev fileio.FileEvent) {
			a.onCatalogChange(ctx, ev)
		}); err != nil {
			a.logger.Warnf("not watching catalog: %v", err)
		}
		if err := a.fileWatcher.Start(); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	if a.configWatcher != nil {
		if err := a.configWatcher.Start(); err != nil {
			a.logger.Warnf("config hot reload disabled: %v", err)
			_ = a.configWatcher.Stop()
			a.configWatcher = nil
		}
	}
	return nil
}

func (a *Application) onEventLogChange(ctx context.Context, ev fileio.FileEvent) {
	if ev.Type == fileio.EventDelete {
		a.logger.Warnf("event log removed path=%s", ev.Path)
		return
	}
	if _, err := a.scheduler.TriggerQuick(ctx); err != nil && ctx.Err() == nil {
		a.logger.Warnf("quick pass after event log change failed: %v", err)
	}
}

func (a *Application) onCatalogChange(ctx context.Context, ev fileio.FileEvent) {
	if err := a.catalog.Reload(); err != nil {
		a.logger.Errorf("catalog reload failed, keeping previous catalog: %v", err)
		return
	}
	a.logger.Infof("catalog reloaded path=%s event=%s", ev.Path, ev.Type)
	if _, err := a.scheduler.TriggerQuick(ctx); err != nil && ctx.Err() == nil {
		a.logger.Warnf("quick pass after catalog change failed: %v", err)
	}
}

// onConfigChange applies the settings that can change while running
func (a *Application) onConfigChange(old, updated *config.Config) {
	if old.App.LogLevel != updated.App.LogLevel {
		if setter, ok := a.logger.(levelSetter); ok {
			setter.SetLevel(updated.App.LogLevel)
			a.logger.Infof("log level changed to %s", updated.App.LogLevel)
		}
	}
	if !slices.Equal(old.Tracking.HousekeepingPackages, updated.Tracking.HousekeepingPackages) {
		a.tracker.SetHousekeeping(updated.Tracking.HousekeepingPackages)
		a.logger.Infof("housekeeping packages updated count=%d", len(updated.Tracking.HousekeepingPackages))
	}
}

func (a *Application) drainWatcherErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			a.logger.Errorf("file watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// Collect runs one full pass and flushes still-active applications. Used
// for one-shot collection outside the daemon.
func (a *Application) Collect(ctx context.Context) (orchestrator.PassResult, error) {
	result, err := a.scheduler.TriggerManual(ctx)
	if err != nil {
		return result, err
	}
	dates, err := a.flush(ctx)
	result.Dates = mergeDates(result.Dates, dates)
	return result, err
}

// flush ends every active session now and rebuilds the dates it touched
func (a *Application) flush(ctx context.Context) ([]string, error) {
	dates, err := a.collector.Shutdown(ctx)
	ec := errors.NewErrorCollector()
	ec.Collect(err)
	ec.Collect(a.recompute(dates))
	return dates, ec.Err()
}

// Repair runs every consistency check once
func (a *Application) Repair(ctx context.Context) (consistency.Report, error) {
	report, err := a.validator.Run(ctx)
	if err == nil {
		a.bus.Publish(models.DataUpdate{Type: models.UpdateManual, At: a.clock.Now(), Dates: reportDates(report)})
	}
	return report, err
}

// Backfill rebuilds missing daily summaries in the look-back window
func (a *Application) Backfill(ctx context.Context) ([]string, bool, error) {
	return a.validator.Backfill(ctx)
}

// RecordOffline stores a manual offline activity and rebuilds its dates
func (a *Application) RecordOffline(name string, categoryID int64, start, end time.Time) (models.UsageSession, error) {
	if name == "" {
		return models.UsageSession{}, fmt.Errorf("activity name is required")
	}
	if !end.After(start) {
		return models.UsageSession{}, fmt.Errorf("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	session, dates, err := a.collector.RecordOffline(name, categoryID, start, end)
	if err != nil {
		return session, err
	}
	return session, a.recompute(dates)
}

// ImportRewards stores externally evaluated reward/punishment flags and
// reruns the period rollups they feed.
func (a *Application) ImportRewards(rows []models.RewardPunishmentDaily) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid reward row date=%s category=%d: %w", r.Date, r.CategoryID, err)
		}
		set[r.Date] = struct{}{}
	}
	if err := a.store.PutRewardDailies(rows...); err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	dates = mergeDates(nil, dates)
	if err := a.engine.RecomputePeriodsFor(dates, a.today()); err != nil {
		return dates, err
	}
	return dates, nil
}

func (a *Application) recompute(dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	dates = mergeDates(nil, dates)
	ec := errors.NewErrorCollector()
	for _, date := range dates {
		ec.Collect(a.engine.RecomputeDate(date))
	}
	ec.Collect(a.engine.RecomputePeriodsFor(dates, a.today()))
	return ec.Err()
}

func (a *Application) today() string {
	return a.clock.Now().In(a.loc).Format(models.DateLayout)
}

// Config returns the configuration in effect
func (a *Application) Config() *config.Config {
	if a.configWatcher != nil {
		return a.configWatcher.Current()
	}
	return a.config
}

// Store returns the underlying store
func (a *Application) Store() *store.Store {
	return a.store
}

// Catalog returns the category catalog
func (a *Application) Catalog() *fileio.Catalog {
	return a.catalog
}

// EventLog returns the event source
func (a *Application) EventLog() *fileio.EventLog {
	return a.events
}

// Engine returns the aggregation engine
func (a *Application) Engine() *calculations.Engine {
	return a.engine
}

// Scheduler returns the pass scheduler
func (a *Application) Scheduler() *orchestrator.Scheduler {
	return a.scheduler
}

// Bus returns the data update bus
func (a *Application) Bus() *orchestrator.Bus {
	return a.bus
}

// Location is the timezone dates are evaluated in
func (a *Application) Location() *time.Location {
	return a.loc
}

// Logger returns the application logger
func (a *Application) Logger() logging.LoggerInterface {
	return a.logger
}

// IsRunning returns whether the daemon loop is active
func (a *Application) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func reportDates(r consistency.Report) []string {
	var all []string
	all = append(all, r.DuplicateDates...)
	all = append(all, r.OverflowDates...)
	all = append(all, r.Backfilled...)
	return mergeDates(nil, all)
}

// mergeDates returns the sorted union of a and b
func mergeDates(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		set[d] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}
