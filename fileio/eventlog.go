package fileio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// EventLog is a JSONL usage-event source. Each line holds one
// {"package","type","timestamp"} record.
type EventLog struct {
	path   string
	mu     sync.Mutex
	logger logging.LoggerInterface
}

// NewEventLog creates an event log over path. The file need not exist yet.
func NewEventLog(path string, logger logging.LoggerInterface) *EventLog {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventLog{path: path, logger: logger}
}

// Path returns the file backing the log
func (l *EventLog) Path() string {
	return l.path
}

// QueryEvents returns events with beginMs <= timestamp < endMs, stably sorted
// by timestamp. Malformed lines are skipped.
func (l *EventLog) QueryEvents(ctx context.Context, beginMs, endMs int64) ([]models.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log %s: %w", l.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []models.Event
	lineNum, malformed := 0, 0
	for scanner.Scan() {
		lineNum++
		if lineNum%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event models.Event
		if err := sonic.Unmarshal(line, &event); err != nil {
			malformed++
			l.logger.Debugf("skipping malformed event line=%d: %v", lineNum, err)
			continue
		}
		if err := event.Validate(); err != nil {
			malformed++
			l.logger.Debugf("skipping invalid event line=%d: %v", lineNum, err)
			continue
		}
		if event.Timestamp < beginMs || event.Timestamp >= endMs {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log %s: %w", l.path, err)
	}
	if malformed > 0 {
		l.logger.Warnf("event log contained malformed lines path=%s count=%d", l.path, malformed)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}

// Append writes events to the end of the log, creating it if needed
func (l *EventLog) Append(events ...models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log %s: %w", l.path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, event := range events {
		data, err := sonic.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return w.Flush()
}
