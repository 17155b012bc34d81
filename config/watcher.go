package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/ScreenCat/logging"
)

// Watcher watches the configuration file and reloads it on change. Only
// settings that can change at runtime are acted on by subscribers; the
// rest take effect on the next start.
type Watcher struct {
	path      string
	config    *Config
	load      func() (*Config, error)
	onChange  func(old, new *Config)
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.RWMutex
	debouncer *debouncer
	logger    logging.LoggerInterface
}

// NewWatcher creates a watcher for path. load rebuilds the full configuration
// and initial is the configuration currently in effect.
func NewWatcher(path string, initial *Config, load func() (*Config, error), onChange func(old, new *Config), logger logging.LoggerInterface) (*Watcher, error) {
	expandedPath, err := filepath.Abs(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:      expandedPath,
		config:    initial,
		load:      load,
		onChange:  onChange,
		watcher:   fsWatcher,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		debouncer: newDebouncer(500 * time.Millisecond),
		logger:    logger,
	}, nil
}

// Start starts watching the configuration file
func (w *Watcher) Start() error {
	// Watch the directory so atomic replacements are seen
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	go w.processEvents()
	return nil
}

// Stop stops watching the configuration file
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
	}
	close(w.stopCh)
	w.debouncer.stop()
	err := w.watcher.Close()
	return err
}

// Current returns the current configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debouncer.debounce(w.Reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher error: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// Reload re-reads the configuration. Invalid files are logged and the
// previous configuration stays in effect.
func (w *Watcher) Reload() {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		w.logger.Warnf("config file deleted: %s", w.path)
		return
	}

	cfg, err := w.load()
	if err != nil {
		w.logger.Errorf("failed to reload configuration: %v", err)
		return
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = cfg
	w.mu.Unlock()

	if oldConfig != nil && reflect.DeepEqual(oldConfig, cfg) {
		return
	}
	w.logger.Infof("configuration reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(oldConfig, cfg)
	}
}

// debouncer helps debounce rapid successive events
type debouncer struct {
	delay    time.Duration
	timer    *time.Timer
	callback func()
	mu       sync.Mutex
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay: delay,
	}
}

func (d *debouncer) debounce(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.callback = callback
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
