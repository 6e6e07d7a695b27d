// Package vectorstore keeps project embeddings in memory and mirrors them to a flat file, one
// record per line:
//
//	<key>|<name>|<searchText>|<JSON array of floats>
//
// The file is rewritten in full on every change.
package vectorstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/golovatskygroup/jira-lens/internal/logging"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrClosed            = errors.New("vector store closed")
)

// Record is one embedded search text of a project.
type Record struct {
	Key        string
	Name       string
	SearchText string
	Vector     []float32
	UpdatedAt  time.Time
}

// Match is the best record of one project for a query.
type Match struct {
	Key        string
	Name       string
	SearchText string
	Distance   float64
	Score      float64
}

// Store is safe for concurrent use. Writers are serialized by an in-process mutex and, when
// backed by a file, by an exclusive lock on <path>.lock.
type Store struct {
	mu   sync.RWMutex
	path string
	dims int
	// wantDims is the configured size; dims falls back to it whenever the store empties.
	wantDims int
	records  map[string][]Record
	lock     *flock.Flock
	logger   *slog.Logger
	now      func() time.Time
	closed   bool
}

// Open loads the store at path. An empty path keeps everything in memory. dims is the expected
// vector size; 0 adopts whatever the file holds. A file written with another size is discarded.
func Open(path string, dims int, logger *slog.Logger) (*Store, error) {
	if dims < 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dims)
	}
	s := &Store{
		path:     path,
		dims:     dims,
		wantDims: dims,
		records:  map[string][]Record{},
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create vector store directory: %w", err)
	}
	s.lock = flock.New(path + ".lock")
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Dims returns the vector size, or 0 while the store is empty and no size was configured.
func (s *Store) Dims() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rs := range s.records {
		n += len(rs)
	}
	return n
}

// Keys returns the stored project keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Records returns a copy of the records owned by key.
func (s *Store) Records(key string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records[key]...)
}

// Upsert adds records, replacing any with the same key and search text, then rewrites the file.
// Nothing changes in memory if the write fails.
func (s *Store) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.Replace(nil, records)
	return err
}

// Replace drops every record of deleteKeys and adds records in one file write. On any error
// the store keeps its previous contents. Once the deletions leave the store empty, records may
// carry a new vector size unless one was configured. It returns the number of deleted projects.
func (s *Store) Replace(deleteKeys []string, records []Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	next := cloneRecords(s.records)
	removed := 0
	for _, k := range deleteKeys {
		if _, ok := next[k]; ok {
			delete(next, k)
			removed++
		}
	}
	if removed == 0 && len(records) == 0 {
		return 0, nil
	}

	dims := s.dims
	if len(next) == 0 {
		dims = s.wantDims
	}
	for _, r := range records {
		if r.Key == "" || len(r.Vector) == 0 {
			return 0, fmt.Errorf("record for %q has no key or vector", r.Key)
		}
		if dims == 0 {
			dims = len(r.Vector)
		}
		if len(r.Vector) != dims {
			return 0, fmt.Errorf("%w: record %q has %d, store has %d", ErrDimensionMismatch, r.Key, len(r.Vector), dims)
		}
	}

	now := s.now()
	for _, r := range records {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		r.Vector = append([]float32(nil), r.Vector...)
		existing := next[r.Key]
		replaced := false
		for i := range existing {
			if existing[i].SearchText == r.SearchText {
				existing[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, r)
		}
		next[r.Key] = existing
	}

	if err := s.persist(next); err != nil {
		return 0, err
	}
	s.records = next
	s.dims = dims
	return removed, nil
}

// DeleteByKeys drops every record of the given projects. The file is rewritten only when
// something was removed. It returns the number of projects removed.
func (s *Store) DeleteByKeys(keys []string) (int, error) {
	return s.Replace(keys, nil)
}

// Clear removes every record and the backing file, and forgets a vector size adopted from them.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.path != "" {
		if err := s.withFileLock(func() error {
			if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove vector store: %w", err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	s.records = map[string][]Record{}
	s.dims = s.wantDims
	return nil
}

// Close releases the lock file handle. The store rejects writes afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lock != nil {
		return s.lock.Close()
	}
	return nil
}

func (s *Store) withFileLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock vector store: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("vector store unlock failed", "error", err)
		}
	}()
	return fn()
}

func cloneRecords(in map[string][]Record) map[string][]Record {
	out := make(map[string][]Record, len(in))
	for k, rs := range in {
		out[k] = append([]Record(nil), rs...)
	}
	return out
}
