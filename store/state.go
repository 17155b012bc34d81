package store

import (
	"github.com/dgraph-io/badger/v3"
)

type watermark struct {
	Timestamp int64 `json:"timestamp"`
}

// Watermark returns the last processed event timestamp, if one was recorded
func (s *Store) Watermark() (int64, bool, error) {
	var w watermark
	var found bool
	err := s.view(func(txn *badger.Txn) error {
		var err error
		found, err = s.get(txn, []byte(keyWatermark), &w)
		return err
	})
	return w.Timestamp, found, err
}

// SetWatermark records the last processed event timestamp
func (s *Store) SetWatermark(ms int64) error {
	return s.update(func(txn *badger.Txn) error {
		return s.put(txn, []byte(keyWatermark), watermark{Timestamp: ms})
	})
}

type notifiedMark struct {
	At int64 `json:"at"`
}

// MarkNotified records that a notification of kind was sent for (date, category).
// It returns false when the mark already existed.
func (s *Store) MarkNotified(date string, categoryID int64, kind string, at int64) (bool, error) {
	first := false
	err := s.update(func(txn *badger.Txn) error {
		key := notifiedKey(date, categoryID, kind)
		var existing notifiedMark
		found, err := s.get(txn, key, &existing)
		if err != nil || found {
			return err
		}
		first = true
		return s.put(txn, key, notifiedMark{At: at})
	})
	return first, err
}
