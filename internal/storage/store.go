// Package storage persists which members have been whitelisted, and under
// which in-game name.
package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ernie/minebridge/internal/domain"
)

// Backend is the persisted representation of the mapping
type Backend interface {
	// Load returns the full persisted mapping. A backend with nothing
	// persisted yet returns an empty mapping and no error.
	Load(ctx context.Context) (domain.Mappings, error)
	// Save persists the full mapping
	Save(ctx context.Context, m domain.Mappings) error
	Close() error
}

// Store holds the mapping in memory, synchronized with a Backend
type Store struct {
	backend Backend
	log     *slog.Logger
	now     func() time.Time

	writeMu sync.Mutex // serializes read-modify-write against the backend

	mu       sync.RWMutex
	snapshot domain.Mappings
}

// Open loads the mapping from backend. A missing or unreadable store is
// treated as "nobody verified yet": it is logged, never returned.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		log:     logger.With("component", "mapping-store"),
		now:     time.Now,
	}

	m, err := backend.Load(ctx)
	if err != nil {
		s.log.Warn("could not load whitelist mapping store, starting empty", "error", err)
		m = domain.Mappings{}
	}
	if m == nil {
		m = domain.Mappings{}
	}
	s.snapshot = m
	s.log.Info("mapping store loaded", "records", len(m))
	return s
}

// OpenPath picks a backend from the path extension and opens the store.
// .db, .sqlite and .sqlite3 select SQLite; anything else a JSON file.
func OpenPath(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	var backend Backend
	switch {
	case hasAnySuffix(path, ".db", ".sqlite", ".sqlite3"):
		b, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		b, err := NewJSONFileBackend(path, logger)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	return Open(ctx, backend, logger), nil
}

func hasAnySuffix(s string, suffixes ...string) bool {
	s = strings.ToLower(s)
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// IsVerified reports whether memberID has a record in the in-memory snapshot
func (s *Store) IsVerified(memberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshot[memberID]
	return ok
}

// Lookup returns the record for memberID
func (s *Store) Lookup(memberID string) (domain.MappingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshot[memberID]
	return rec, ok
}

// Len returns the number of verified members
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot)
}

// RecordVerification inserts or overwrites memberID's record. The
// persisted mapping is re-read first so concurrent external edits survive.
// The in-memory snapshot only changes after the write succeeds; a failed
// write returns *domain.PersistenceError.
func (s *Store) RecordVerification(ctx context.Context, memberID, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.backend.Load(ctx)
	if err != nil {
		// Writing back a blank mapping would drop every record, so fall
		// back to what this process already knows.
		s.log.Warn("re-reading mapping store failed, using in-memory copy", "error", err)
		s.mu.RLock()
		data = s.snapshot.Clone()
		s.mu.RUnlock()
	}
	if data == nil {
		data = domain.Mappings{}
	}

	data[memberID] = domain.NewMappingRecord(memberID, name, s.now())
	if err := s.backend.Save(ctx, data); err != nil {
		s.log.Error("failed to write whitelist mapping store", "member", memberID, "error", err)
		return &domain.PersistenceError{Op: "write", Err: err}
	}

	s.mu.Lock()
	s.snapshot = data
	s.mu.Unlock()
	s.log.Info("stored whitelist mapping", "member", memberID, "name", name)
	return nil
}
