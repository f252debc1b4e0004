package extraction

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	entriesBucketName  = "entries"
	outcomesBucketName = "outcomes"
)

// Journal defines the interface for recording extraction outcomes
type Journal interface {
	// Append records one finished extraction
	Append(entry *JournalEntry) error

	// Recent returns up to n entries, newest first
	Recent(n int) ([]*JournalEntry, error)

	// Stats returns outcome counts over every recorded extraction
	Stats() (*Stats, error)

	// Close closes the journal
	Close() error
}

// DefaultJournalRetention is how many entries a journal keeps unless told otherwise
const DefaultJournalRetention = 10000

// BoltJournal implements the Journal interface using BoltDB. The entries
// bucket keeps at most retention entries, dropping the oldest first; outcome
// counters cover every extraction ever appended. The entries bucket sequence
// holds its live key count.
type BoltJournal struct {
	db        *bbolt.DB
	retention int
}

// NewBoltJournal opens or creates a journal file. A retention of zero or
// less keeps every entry.
func NewBoltJournal(path string, retention int) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		entries, err := tx.CreateBucketIfNotExists([]byte(entriesBucketName))
		if err != nil {
			return err
		}
		if entries.Sequence() == 0 {
			if err := entries.SetSequence(uint64(entries.Stats().KeyN)); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(outcomesBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltJournal{db: db, retention: retention}, nil
}

// entryKey orders entries by time; the id breaks ties
func entryKey(entry *JournalEntry) []byte {
	return []byte(entry.Time.UTC().Format("20060102T150405.000000000Z") + "/" + entry.ID)
}

// Append records an entry and bumps its outcome counter in one transaction
func (b *BoltJournal) Append(entry *JournalEntry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		entries := tx.Bucket([]byte(entriesBucketName))
		key := entryKey(entry)
		count := entries.Sequence()
		if entries.Get(key) == nil {
			count++
		}
		if err := entries.Put(key, data); err != nil {
			return err
		}
		if count, err = b.trim(entries, count); err != nil {
			return err
		}
		if err := entries.SetSequence(count); err != nil {
			return err
		}

		outcomes := tx.Bucket([]byte(outcomesBucketName))
		var tally int
		if raw := outcomes.Get([]byte(entry.Outcome)); raw != nil {
			if err := json.Unmarshal(raw, &tally); err != nil {
				return fmt.Errorf("unmarshaling outcome count: %w", err)
			}
		}
		raw, err := json.Marshal(tally + 1)
		if err != nil {
			return fmt.Errorf("marshaling outcome count: %w", err)
		}
		return outcomes.Put([]byte(entry.Outcome), raw)
	})
}

// trim deletes the oldest entries until count fits the retention and returns
// the new count
func (b *BoltJournal) trim(entries *bbolt.Bucket, count uint64) (uint64, error) {
	if b.retention <= 0 {
		return count, nil
	}
	for count > uint64(b.retention) {
		k, _ := entries.Cursor().First()
		if k == nil {
			return 0, nil
		}
		if err := entries.Delete(k); err != nil {
			return count, fmt.Errorf("trimming journal: %w", err)
		}
		count--
	}
	return count, nil
}

// Recent returns up to n entries, newest first
func (b *BoltJournal) Recent(n int) ([]*JournalEntry, error) {
	entries := make([]*JournalEntry, 0, n)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(entriesBucketName)).Cursor()
		for k, v := c.Last(); k != nil && len(entries) < n; k, v = c.Prev() {
			var entry JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats returns outcome counts over every recorded extraction
func (b *BoltJournal) Stats() (*Stats, error) {
	stats := &Stats{ByOutcome: make(map[string]int)}
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(outcomesBucketName)).ForEach(func(k, v []byte) error {
			var count int
			if err := json.Unmarshal(v, &count); err != nil {
				return fmt.Errorf("unmarshaling outcome count: %w", err)
			}
			stats.ByOutcome[string(k)] = count
			stats.Total += count
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database connection
func (b *BoltJournal) Close() error {
	return b.db.Close()
}
