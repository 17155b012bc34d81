package store

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/penwyp/ScreenCat/models"
)

// SessionInput is a completed interval to persist
type SessionInput struct {
	Package    string
	CategoryID int64
	Start      int64
	End        int64
	Offline    bool
}

// UpsertResult describes what a smart upsert did
type UpsertResult struct {
	Session models.UsageSession
	Merged  bool
	// Absorbed lists sessions folded into Session and deleted
	Absorbed []models.UsageSession
}

// UpsertSessionSmart persists in, merging it into any session of the same
// package, date and offline flag that overlaps, contains, is contained by, or
// lies within the merge gap of the interval. Merging is repeated until no
// further session touches the grown interval; the survivor keeps the lowest id.
func (s *Store) UpsertSessionSmart(in SessionInput) (UpsertResult, error) {
	if in.End < in.Start {
		return UpsertResult{}, fmt.Errorf("session %s ends before it starts: %d < %d", in.Package, in.End, in.Start)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	date := models.DateOf(in.Start, s.config.Location)
	gap := s.config.MergeGap.Milliseconds()

	var result UpsertResult
	err := s.update(func(txn *badger.Txn) error {
		var candidates []models.UsageSession
		err := scanPrefix(s, txn, sessionDatePrefix(date), func(_ []byte, v models.UsageSession) error {
			if v.Package == in.Package && v.Offline == in.Offline {
				candidates = append(candidates, v)
			}
			return nil
		})
		if err != nil {
			return err
		}

		start, end := in.Start, in.End
		var matched []models.UsageSession
		taken := make([]bool, len(candidates))
		for grew := true; grew; {
			grew = false
			for i, c := range candidates {
				if taken[i] || !touches(c, start, end, gap) {
					continue
				}
				taken[i] = true
				grew = true
				matched = append(matched, c)
				start = min(start, c.StartTime)
				end = max(end, c.EndTime)
			}
		}

		if len(matched) == 0 {
			id, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("allocate session id: %w", err)
			}
			sess := models.NewUsageSession(in.Package, in.CategoryID, in.Start, in.End, in.Offline, s.config.Location)
			sess.ID = id + 1
			result = UpsertResult{Session: sess}
			return s.put(txn, sessionKey(date, sess.ID), sess)
		}

		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
		keep := matched[0]
		keep.SetInterval(start, end)
		keep.CategoryID = in.CategoryID
		for _, m := range matched[1:] {
			if err := txn.Delete(sessionKey(m.Date, m.ID)); err != nil {
				return err
			}
		}
		result = UpsertResult{Session: keep, Merged: true, Absorbed: matched[1:]}
		return s.put(txn, sessionKey(date, keep.ID), keep)
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert session %s on %s: %w", in.Package, date, err)
	}
	return result, nil
}

// touches reports whether c overlaps [start, end] or lies within gap of it
func touches(c models.UsageSession, start, end, gap int64) bool {
	return c.StartTime <= end+gap && start <= c.EndTime+gap
}

// SessionsForDate returns the sessions starting on date ordered by start time
func (s *Store) SessionsForDate(date string) ([]models.UsageSession, error) {
	var sessions []models.UsageSession
	err := s.view(func(txn *badger.Txn) error {
		return scanPrefix(s, txn, sessionDatePrefix(date), func(_ []byte, v models.UsageSession) error {
			sessions = append(sessions, v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortSessions(sessions)
	return sessions, nil
}

// SessionDates lists the distinct dates in [first, last] that have sessions
func (s *Store) SessionDates(first, last string) ([]string, error) {
	var dates []string
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixSession)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(sessionDatePrefix(first))); it.Valid(); it.Next() {
			date := sessionKeyDate(it.Item().Key())
			if date > last {
				break
			}
			if len(dates) == 0 || dates[len(dates)-1] != date {
				dates = append(dates, date)
			}
		}
		return nil
	})
	return dates, err
}

// SaveSession overwrites a session in place
func (s *Store) SaveSession(sess models.UsageSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return s.put(txn, sessionKey(sess.Date, sess.ID), sess)
	})
}

// DeleteSessions removes the given sessions
func (s *Store) DeleteSessions(sessions ...models.UsageSession) error {
	if len(sessions) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.update(func(txn *badger.Txn) error {
		for _, sess := range sessions {
			if err := txn.Delete(sessionKey(sess.Date, sess.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDatesBefore removes sessions, hour buckets and daily summaries for
// every date strictly before cutoff. It returns the dates removed.
func (s *Store) DeleteDatesBefore(cutoff string) ([]string, error) {
	dates, err := s.SessionDates("0000-00-00", cutoff)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, date := range dates {
		if date >= cutoff {
			continue
		}
		err := s.update(func(txn *badger.Txn) error {
			for _, prefix := range []string{sessionDatePrefix(date), hourDatePrefix(date), dailyDatePrefix(date)} {
				if _, err := deletePrefix(txn, prefix); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("delete date %s: %w", date, err)
		}
		removed = append(removed, date)
	}
	return removed, nil
}

func sortSessions(sessions []models.UsageSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartTime != sessions[j].StartTime {
			return sessions[i].StartTime < sessions[j].StartTime
		}
		return sessions[i].ID < sessions[j].ID
	})
}
