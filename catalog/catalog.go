/*
Package catalog provides access to the movie and series records that bulk operations
work on.

Three Repository implementations exist: Google Cloud Datastore (the default deployment),
PostgreSQL through pgx, and an in-memory map for local runs and tests.
*/
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// ErrNotFound is returned when a title does not exist
var ErrNotFound = errors.New("title not found")

// Title is a catalog record for a movie or a series
type Title struct {
	ID          int64     `json:"id" datastore:"-" db:"id"`
	TMDBID      int64     `json:"tmdb_id" datastore:"tmdb_id" db:"tmdb_id"`
	Title       string    `json:"title" datastore:"title" db:"title"`
	Overview    string    `json:"overview" datastore:"overview,noindex" db:"overview"`
	ReleaseDate string    `json:"release_date" datastore:"release_date" db:"release_date"`
	PosterPath  string    `json:"poster_path" datastore:"poster_path,noindex" db:"poster_path"`
	Rating      float64   `json:"rating" datastore:"rating" db:"rating"`
	Status      string    `json:"status" datastore:"status" db:"status"`
	UpdatedAt   time.Time `json:"updated_at" datastore:"updated_at" db:"updated_at"`
}

// Filter selects titles when a trigger does not name explicit ids
type Filter struct {
	Status string
	Limit  int
}

// Repository is the catalog port used by the trigger endpoint and the item processors
type Repository interface {
	// ResolveIDs materializes the ids matching filter in a single read
	ResolveIDs(ctx context.Context, et types.EntityType, filter Filter) ([]int64, error)
	Get(ctx context.Context, et types.EntityType, id int64) (*Title, error)
	FindByTMDBID(ctx context.Context, et types.EntityType, tmdbID int64) (*Title, error)
	// Save inserts the title when ID is zero, updates it otherwise, and returns it with
	// its ID set.
	Save(ctx context.Context, et types.EntityType, t *Title) (*Title, error)
	Health(ctx context.Context) error
}

func observe(backend, operation string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "failed"
	}
	monitoring.RecordCatalogOperation(backend, operation, status, time.Since(start).Seconds())
}
