package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// DatastoreReaderInterface defines read operations for datastore
type DatastoreReaderInterface interface {
	Get(ctx context.Context, key *datastore.Key, dst interface{}) error
	GetAll(ctx context.Context, q *datastore.Query, dst interface{}) ([]*datastore.Key, error)
}

// DatastoreWriterInterface defines write operations for datastore
type DatastoreWriterInterface interface {
	PutMulti(ctx context.Context, keys []*datastore.Key, src interface{}) ([]*datastore.Key, error)
}

// DatastoreClientInterface combines read and write operations. *datastore.Client
// satisfies it.
type DatastoreClientInterface interface {
	DatastoreReaderInterface
	DatastoreWriterInterface
}

// DatastoreRepository stores titles as Movie and Series entities keyed by numeric id
type DatastoreRepository struct {
	client DatastoreClientInterface
	now    func() time.Time
}

// NewDatastoreRepository creates a repository on top of a datastore client
func NewDatastoreRepository(client DatastoreClientInterface) *DatastoreRepository {
	return &DatastoreRepository{client: client, now: time.Now}
}

func datastoreKind(et types.EntityType) (string, error) {
	switch et {
	case types.EntityMovie:
		return "Movie", nil
	case types.EntitySeries:
		return "Series", nil
	default:
		return "", fmt.Errorf("unsupported entity type %q", et)
	}
}

// ResolveIDs runs one keys-only query for the filter
func (r *DatastoreRepository) ResolveIDs(ctx context.Context, et types.EntityType, filter Filter) (ids []int64, err error) {
	defer func(start time.Time) { observe("datastore", "resolve_ids", start, err) }(time.Now())

	kind, err := datastoreKind(et)
	if err != nil {
		return nil, err
	}

	q := datastore.NewQuery(kind).KeysOnly()
	if filter.Status != "" {
		q = q.FilterField("status", "=", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	keys, err := r.client.GetAll(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s keys: %w", kind, err)
	}

	ids = make([]int64, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID)
	}
	return ids, nil
}

// Get loads a title by id
func (r *DatastoreRepository) Get(ctx context.Context, et types.EntityType, id int64) (t *Title, err error) {
	defer func(start time.Time) { observe("datastore", "get", start, err) }(time.Now())

	kind, err := datastoreKind(et)
	if err != nil {
		return nil, err
	}

	var out Title
	if err := r.client.Get(ctx, datastore.IDKey(kind, id, nil), &out); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	out.ID = id
	return &out, nil
}

// FindByTMDBID looks a title up by its TMDB id
func (r *DatastoreRepository) FindByTMDBID(ctx context.Context, et types.EntityType, tmdbID int64) (t *Title, err error) {
	defer func(start time.Time) { observe("datastore", "find_by_tmdb_id", start, err) }(time.Now())

	kind, err := datastoreKind(et)
	if err != nil {
		return nil, err
	}

	var found []*Title
	q := datastore.NewQuery(kind).FilterField("tmdb_id", "=", tmdbID).Limit(1)
	keys, err := r.client.GetAll(ctx, q, &found)
	if err != nil {
		return nil, fmt.Errorf("query %s by tmdb id: %w", kind, err)
	}
	if len(keys) == 0 || len(found) == 0 {
		return nil, ErrNotFound
	}
	found[0].ID = keys[0].ID
	return found[0], nil
}

// Save writes the title; a zero ID lets datastore allocate one
func (r *DatastoreRepository) Save(ctx context.Context, et types.EntityType, t *Title) (saved *Title, err error) {
	defer func(start time.Time) { observe("datastore", "save", start, err) }(time.Now())

	kind, err := datastoreKind(et)
	if err != nil {
		return nil, err
	}

	key := datastore.IncompleteKey(kind, nil)
	if t.ID != 0 {
		key = datastore.IDKey(kind, t.ID, nil)
	}

	out := *t
	out.UpdatedAt = r.now().UTC()

	keys, err := r.client.PutMulti(ctx, []*datastore.Key{key}, []*Title{&out})
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", kind, err)
	}
	if len(keys) == 1 && keys[0] != nil {
		out.ID = keys[0].ID
	}
	return &out, nil
}

// Health performs a minimal keys-only query
func (r *DatastoreRepository) Health(ctx context.Context) error {
	q := datastore.NewQuery("__namespace__").KeysOnly().Limit(1)
	if _, err := r.client.GetAll(ctx, q, nil); err != nil {
		return fmt.Errorf("datastore health check: %w", err)
	}
	return nil
}
