package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// MemoryRepository keeps titles in process memory
type MemoryRepository struct {
	mu     sync.RWMutex
	titles map[types.EntityType]map[int64]*Title
	nextID int64
	now    func() time.Time
}

// NewMemoryRepository creates an empty in-memory catalog
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		titles: map[types.EntityType]map[int64]*Title{
			types.EntityMovie:  {},
			types.EntitySeries: {},
		},
		now: time.Now,
	}
}

// ResolveIDs returns matching ids in ascending order
func (r *MemoryRepository) ResolveIDs(_ context.Context, et types.EntityType, filter Filter) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := []int64{}
	for id, t := range r.titles[et] {
		if filter.Status == "" || t.Status == filter.Status {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}
	return ids, nil
}

// Get loads a title by id
func (r *MemoryRepository) Get(_ context.Context, et types.EntityType, id int64) (*Title, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.titles[et][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// FindByTMDBID looks a title up by its TMDB id
func (r *MemoryRepository) FindByTMDBID(_ context.Context, et types.EntityType, tmdbID int64) (*Title, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.titles[et] {
		if t.TMDBID == tmdbID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Save inserts or replaces a title
func (r *MemoryRepository) Save(_ context.Context, et types.EntityType, t *Title) (*Title, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.titles[et]
	if !ok {
		bucket = map[int64]*Title{}
		r.titles[et] = bucket
	}

	out := *t
	if out.ID == 0 {
		r.nextID++
		out.ID = r.nextID
	} else if _, exists := bucket[out.ID]; !exists {
		return nil, ErrNotFound
	}
	out.UpdatedAt = r.now().UTC()

	stored := out
	bucket[out.ID] = &stored
	return &out, nil
}

// Seed stores titles with their given ids, bypassing Save's id allocation
func (r *MemoryRepository) Seed(et types.EntityType, titles ...Title) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range titles {
		t := t
		r.titles[et][t.ID] = &t
		if t.ID > r.nextID {
			r.nextID = t.ID
		}
	}
}

// Health always succeeds
func (r *MemoryRepository) Health(context.Context) error {
	return nil
}
