package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrNotFound means no record exists for the given identifier.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a record with the same identifier already exists.
	ErrConflict = errors.New("record already exists")
)

// Record is the durable metadata row for one stored object.
type Record struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	OriginalName   string    `json:"original_name"`
	SizeBytes      int64     `json:"size_bytes"`
	MimeType       string    `json:"mime_type"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
}

// Ledger wraps BadgerDB for object metadata operations.
type Ledger struct {
	db *badger.DB
}

// OpenLedger opens (or creates) a BadgerDB at the given path.
func OpenLedger(dbPath string) (*Ledger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the BadgerDB.
func (l *Ledger) Close() error {
	return l.db.Close()
}

const recordPrefix = "file:"

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

// Insert stores a new record, failing with ErrConflict if the identifier is
// already taken. The existence check and the write share one transaction, so
// two concurrent inserts for the same identifier cannot both succeed.
func (l *Ledger) Insert(rec Record) error {
	key := recordKey(rec.ID)
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrConflict
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, val)
	})
	if errors.Is(err, badger.ErrConflict) {
		// A racing transaction touched the same key; treat as taken.
		return ErrConflict
	}
	return err
}

// Get retrieves a record by identifier.
func (l *Ledger) Get(id string) (Record, error) {
	var rec Record
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// RecordAccess atomically increments the access count and stamps the access
// time. Badger detects write conflicts at commit, so a lost race retries.
func (l *Ledger) RecordAccess(id string) error {
	key := recordKey(id)
	for {
		err := l.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return ErrNotFound
				}
				return err
			}
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			rec.AccessCount++
			rec.LastAccessedAt = time.Now().UTC()
			val, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			return txn.Set(key, val)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// Delete removes a record, reporting whether it existed.
func (l *Ledger) Delete(id string) (bool, error) {
	key := recordKey(id)
	existed := false
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// ForEachOlderThan streams the identifiers of records created before cutoff
// to fn, stopping on the first error fn returns. Values are decoded lazily
// from a single read transaction; the scan can simply be re-run to restart.
func (l *Ledger) ForEachOlderThan(cutoff time.Time, fn func(id string) error) error {
	prefix := []byte(recordPrefix)
	return l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if !rec.CreatedAt.Before(cutoff) {
				continue
			}
			if err := fn(rec.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Aggregate reports the number of records and the sum of their sizes.
func (l *Ledger) Aggregate() (count int64, totalBytes int64, err error) {
	prefix := []byte(recordPrefix)
	err = l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			count++
			totalBytes += rec.SizeBytes
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return count, totalBytes, nil
}
