package store

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// Config configures the badger-backed store
type Config struct {
	Dir            string         `json:"dir"`
	InMemory       bool           `json:"in_memory"`
	SyncWrites     bool           `json:"sync_writes"`
	GCDiscardRatio float64        `json:"gc_discard_ratio"`
	GCInterval     time.Duration  `json:"gc_interval"`
	MergeGap       time.Duration  `json:"merge_gap"`
	Location       *time.Location `json:"-"`
	LogLevel       string         `json:"log_level"` // badger's own log level: DEBUG, INFO, WARNING, ERROR
}

// Store persists sessions and every aggregate derived from them
type Store struct {
	db         *badger.DB
	seq        *badger.Sequence
	config     Config
	serializer Serializer
	logger     logging.LoggerInterface

	// writeMu serializes read-modify-write operations (smart merge, dedupe)
	writeMu sync.Mutex

	stopGC chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// ErrClosed is returned by operations on a closed store
var ErrClosed = stderrors.New("store is closed")

// Open opens or creates the store
func Open(config Config, logger logging.LoggerInterface) (*Store, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if !config.InMemory && config.Dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		config.Dir = filepath.Join(homeDir, ".local", "share", "screencat", "badger")
	}
	if config.GCDiscardRatio <= 0 {
		config.GCDiscardRatio = 0.5
	}
	if config.GCInterval <= 0 {
		config.GCInterval = 5 * time.Minute
	}
	if config.MergeGap <= 0 {
		config.MergeGap = models.DefaultMergeGap
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.LogLevel == "" {
		config.LogLevel = "WARNING"
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		opts = badger.DefaultOptions(config.Dir).
			WithSyncWrites(config.SyncWrites).
			WithValueLogFileSize(64 << 20).
			WithNumMemtables(3)
	}
	opts = opts.WithLogger(&badgerLogger{level: badgerLevel(config.LogLevel), logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySessionSeq), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open session sequence: %w", err)
	}

	s := &Store{
		db:         db,
		seq:        seq,
		config:     config,
		serializer: NewSonicSerializer(),
		logger:     logger,
		stopGC:     make(chan struct{}),
	}

	if !config.InMemory {
		s.startGC()
	}
	return s, nil
}

// OpenInMemory opens a throwaway store, mostly for tests and dry runs
func OpenInMemory(loc *time.Location, logger logging.LoggerInterface) (*Store, error) {
	return Open(Config{InMemory: true, Location: loc}, logger)
}

// Location is the timezone session dates are computed in
func (s *Store) Location() *time.Location {
	return s.config.Location
}

// Close stops GC and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopGC)
	s.wg.Wait()

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// RunGC runs value-log garbage collection once
func (s *Store) RunGC() error {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.db.RunValueLogGC(s.config.GCDiscardRatio)
}

func (s *Store) startGC() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				err := s.RunGC()
				if err != nil && !stderrors.Is(err, badger.ErrNoRewrite) && !stderrors.Is(err, ErrClosed) {
					s.logger.Warnf("badger GC error: %v", err)
				}
			}
		}
	}()
}

// guard takes the read lock; callers must RUnlock when it returns nil
func (s *Store) guard() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.db.Update(fn)
}

func (s *Store) put(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := s.serializer.Serialize(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// get decodes key into v and reports whether it existed
func (s *Store) get(txn *badger.Txn, key []byte, v interface{}) (bool, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return s.serializer.Deserialize(val, v)
	})
}

// scanPrefix decodes every value under prefix. Undecodable values are logged and skipped.
func scanPrefix[T any](s *Store, txn *badger.Txn, prefix string, fn func(key []byte, v T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)

		var value T
		err := item.Value(func(val []byte) error {
			return s.serializer.Deserialize(val, &value)
		})
		if err != nil {
			s.logger.Warnf("failed to decode value key=%s: %v", key, err)
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every key under prefix inside txn
func deletePrefix(txn *badger.Txn, prefix string) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// badgerLevel maps a level name to badger's ordering. badger does not export
// its level type, so levels are kept as ints.
func badgerLevel(level string) int {
	switch level {
	case "DEBUG":
		return int(badger.DEBUG)
	case "INFO":
		return int(badger.INFO)
	case "ERROR":
		return int(badger.ERROR)
	default:
		return int(badger.WARNING)
	}
}

// badgerLogger implements badger.Logger on top of the application logger
type badgerLogger struct {
	level  int
	logger logging.LoggerInterface
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	if l.level <= int(badger.ERROR) {
		l.logger.Errorf("badger: "+format, args...)
	}
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	if l.level <= int(badger.WARNING) {
		l.logger.Warnf("badger: "+format, args...)
	}
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	if l.level <= int(badger.INFO) {
		l.logger.Infof("badger: "+format, args...)
	}
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	if l.level <= int(badger.DEBUG) {
		l.logger.Debugf("badger: "+format, args...)
	}
}
