package fileio

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/ScreenCat/logging"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a change to a watched file
type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

// Handler is invoked once per debounced change of a watched file
type Handler func(FileEvent)

// WatcherConfig holds configuration for the file watcher
type WatcherConfig struct {
	BufferSize   int           // Error buffer size
	DebounceTime time.Duration // Debounce duration for file events
}

// DefaultWatcherConfig returns default configuration
var DefaultWatcherConfig = WatcherConfig{
	BufferSize:   16,
	DebounceTime: 500 * time.Millisecond,
}

// Watcher follows individual files. It watches their parent directories so
// editors and writers that replace the file atomically are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   WatcherConfig
	logger   logging.LoggerInterface
	errors   chan error
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
	targets  map[string]Handler
	dirs     map[string]int
	timers   map[string]*time.Timer
	lastType map[string]EventType
}

// NewWatcher creates a file watcher
func NewWatcher(config WatcherConfig, logger logging.LoggerInterface) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultWatcherConfig.BufferSize
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Watcher{
		watcher:  fsWatcher,
		config:   config,
		logger:   logger,
		errors:   make(chan error, config.BufferSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		targets:  make(map[string]Handler),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		lastType: make(map[string]EventType),
	}, nil
}

// Watch registers handler for changes to path
func (w *Watcher) Watch(path string, handler Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.targets[abs]; exists {
		w.targets[abs] = handler
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.targets[abs] = handler
	return nil
}

// WatchedPaths returns the files currently being followed
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.targets))
	for p := range w.targets {
		paths = append(paths, p)
	}
	return paths
}

// Start begins delivering events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	go w.processEvents()
	return nil
}

// Stop stops the watcher and cancels pending debounced events
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.stopCh)
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.doneCh
	return err
}

// Errors returns the channel for watcher errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns whether the watcher is currently running
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("file watcher error: %v", err)
			select {
			case w.errors <- err:
			default:
				// Drop error if channel is full
			}

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create, event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventModify
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventDelete
	default:
		return
	}

	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	handler, ok := w.targets[path]
	if !ok || !w.running {
		return
	}
	w.lastType[path] = eventType

	if w.config.DebounceTime <= 0 {
		go w.deliver(path, handler)
		return
	}
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.config.DebounceTime, func() {
		w.mu.Lock()
		delete(w.timers, path)
		running := w.running
		w.mu.Unlock()
		if running {
			w.deliver(path, handler)
		}
	})
}

func (w *Watcher) deliver(path string, handler Handler) {
	w.mu.Lock()
	eventType := w.lastType[path]
	w.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorf("file watch handler panicked path=%s: %v", path, r)
		}
	}()
	handler(FileEvent{Path: path, Type: eventType, Timestamp: time.Now()})
}
