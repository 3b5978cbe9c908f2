/*
Package cache provides the progress store for bulk operations.

A progress record is written once by the trigger endpoint, merged after every batch by the
job runner and read by the poll endpoint. Both an in-memory store (single process) and a
Redis-backed store (web and worker processes sharing state) are provided. Records expire
through the store's TTL; nothing in the bulk flow deletes them explicitly except the
rollback of a failed trigger.
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned for unknown or expired progress keys
	ErrNotFound = errors.New("progress record not found")
	// ErrKeyExists is returned by Create when the key is already taken
	ErrKeyExists = errors.New("progress key already exists")
	// ErrTerminal is returned when merging into a completed or failed record
	ErrTerminal = errors.New("progress record is terminal")
	// ErrInvalidDelta is returned when a merge would break a record invariant
	ErrInvalidDelta = errors.New("invalid progress delta")
	// ErrBatchApplied is returned when a batch delta was already merged by another delivery
	ErrBatchApplied = errors.New("progress batch already merged")
)

// ProgressStore defines the operations shared by the trigger endpoint, the job runner
// and the poll endpoint.
type ProgressStore interface {
	Create(ctx context.Context, rec *types.ProgressRecord) error
	Get(ctx context.Context, key types.ProgressKey) (*types.ProgressRecord, error)
	// Merge applies delta as one atomic read-modify-write and returns the merged record.
	Merge(ctx context.Context, key types.ProgressKey, delta types.ProgressDelta) (*types.ProgressRecord, error)
	Delete(ctx context.Context, key types.ProgressKey) error
	Health(ctx context.Context) error
}

// CacheItem represents a stored record with expiration
type CacheItem struct {
	Record    *types.ProgressRecord
	ExpiresAt time.Time
}

// IsExpired checks if the cache item has expired
func (c *CacheItem) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// InMemoryStore implements ProgressStore with a mutex-guarded map and TTL support
type InMemoryStore struct {
	items    map[types.ProgressKey]*CacheItem
	mutex    sync.RWMutex
	ttl      time.Duration
	errorCap int
	now      func() time.Time
	logger   *logrus.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewInMemoryStore creates a new in-memory progress store and starts its cleanup loop
func NewInMemoryStore(ttl time.Duration, errorCap int, logger *logrus.Logger) *InMemoryStore {
	if logger == nil {
		logger = logrus.New()
	}
	store := &InMemoryStore{
		items:    make(map[types.ProgressKey]*CacheItem),
		ttl:      ttl,
		errorCap: errorCap,
		now:      time.Now,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	go store.startCleanup(5 * time.Minute)

	return store
}

// Create stores a new record; the key must not exist yet
func (s *InMemoryStore) Create(_ context.Context, rec *types.ProgressRecord) error {
	start := time.Now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if item, exists := s.items[rec.Key]; exists && !item.IsExpired(s.now()) {
		monitoring.RecordStoreOperation("create", "conflict", time.Since(start).Seconds())
		return fmt.Errorf("%w: %s", ErrKeyExists, rec.Key)
	}

	cp := *rec
	cp.Errors = append([]types.ProgressError{}, rec.Errors...)
	s.items[rec.Key] = &CacheItem{Record: &cp, ExpiresAt: s.now().Add(s.ttl)}

	monitoring.RecordStoreOperation("create", "success", time.Since(start).Seconds())
	return nil
}

// Get returns a copy of the record stored under key
func (s *InMemoryStore) Get(_ context.Context, key types.ProgressKey) (*types.ProgressRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, exists := s.items[key]
	if !exists || item.IsExpired(s.now()) {
		return nil, ErrNotFound
	}

	cp := *item.Record
	cp.Errors = append([]types.ProgressError{}, item.Record.Errors...)
	return &cp, nil
}

// Merge applies delta under the write lock so readers never see a partial update
func (s *InMemoryStore) Merge(_ context.Context, key types.ProgressKey, delta types.ProgressDelta) (*types.ProgressRecord, error) {
	start := time.Now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, exists := s.items[key]
	if !exists || item.IsExpired(s.now()) {
		monitoring.RecordStoreOperation("merge", "not_found", time.Since(start).Seconds())
		return nil, ErrNotFound
	}

	merged, err := ApplyDelta(item.Record, delta, s.errorCap, s.now())
	if err != nil {
		monitoring.RecordStoreOperation("merge", "rejected", time.Since(start).Seconds())
		return nil, err
	}
	item.Record = merged

	monitoring.RecordStoreOperation("merge", "success", time.Since(start).Seconds())
	cp := *merged
	cp.Errors = append([]types.ProgressError{}, merged.Errors...)
	return &cp, nil
}

// Delete removes a record
func (s *InMemoryStore) Delete(_ context.Context, key types.ProgressKey) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.items, key)
	return nil
}

// Health always succeeds for the in-memory store
func (s *InMemoryStore) Health(context.Context) error {
	return nil
}

// Len returns the number of stored records, expired or not
func (s *InMemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}

// Close stops the cleanup loop
func (s *InMemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// startCleanup periodically removes expired records
func (s *InMemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.cleanup(); removed > 0 {
				s.logger.WithField("removed_count", removed).Debug("Expired progress records removed")
			}
		}
	}
}

// cleanup removes expired records and returns how many were dropped
func (s *InMemoryStore) cleanup() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, item := range s.items {
		if item.IsExpired(now) {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}
