// Package history persists one record per finished conversion request
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record describes a finished conversion request
type Record struct {
	RequestID      string    `json:"request_id"`
	ConversionType string    `json:"conversion_type"`
	Status         Status    `json:"status"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	SourceName     string    `json:"source_name,omitempty"`
	OutputName     string    `json:"output_name,omitempty"`
	OutputBytes    int64     `json:"output_bytes,omitempty"`
	RemoteJobID    string    `json:"remote_job_id,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Delivered      []string  `json:"delivered,omitempty"`
	DurationMillis int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the history store
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the history store
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSuccess stores a successful conversion
func (s *Store) RecordSuccess(rec Record) error {
	rec.Status = StatusSuccess
	rec.Error = ""
	rec.ErrorKind = ""
	return s.put(rec)
}

// RecordFailure stores a failed conversion along with its error
func (s *Store) RecordFailure(rec Record, kind string, err error) error {
	rec.Status = StatusFailed
	rec.ErrorKind = kind
	if err != nil {
		rec.Error = err.Error()
	}
	return s.put(rec)
}

func (s *Store) put(rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	if rec.RequestID == "" {
		return fmt.Errorf("history record without request id")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	return s.db.Set([]byte(rec.RequestID), data, pebble.Sync)
}

// Get retrieves a record by request ID. A missing record returns nil, nil.
func (s *Store) Get(requestID string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}

	data, closer, err := s.db.Get([]byte(requestID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history record: %w", err)
	}
	return &rec, nil
}

// Delete removes a record
func (s *Store) Delete(requestID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history store not initialized")
	}
	return s.db.Delete([]byte(requestID), pebble.Sync)
}

// List returns records with the given status, newest first. An empty
// status lists everything.
func (s *Store) List(status Status) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	records := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // Skip invalid records
		}
		if status != "" && rec.Status != status {
			continue
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// CleanupOldRecords removes records older than maxAge and returns how many
// were removed.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("history store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range keysToDelete {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old history record: %w", err)
		}
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the history database
func (s *Store) CheckHealth() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history database not initialized")
	}

	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
