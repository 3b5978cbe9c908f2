/*
Package handlers provides HTTP handlers with dependency injection support.

The Handler struct carries every dependency of the bulk endpoints so that the trigger
and poll handlers can be exercised in tests with in-memory or mocked collaborators.
*/
package handlers

import (
	"context"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/jobs"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/sirupsen/logrus"
)

// DefaultMaxItems bounds the size of a single bulk target set
const DefaultMaxItems = 1000

// ProgressStoreInterface is the part of the progress store used by the HTTP surface
type ProgressStoreInterface interface {
	Create(ctx context.Context, rec *types.ProgressRecord) error
	Get(ctx context.Context, key types.ProgressKey) (*types.ProgressRecord, error)
	Delete(ctx context.Context, key types.ProgressKey) error
}

// JobQueueInterface accepts typed bulk jobs
type JobQueueInterface interface {
	Enqueue(ctx context.Context, job *types.BulkJob) error
}

// CatalogResolverInterface resolves a filter against the catalog
type CatalogResolverInterface interface {
	ResolveIDs(ctx context.Context, et types.EntityType, filter catalog.Filter) ([]int64, error)
}

// FeedResolverInterface resolves the TMDB ids listed in a feed
type FeedResolverInterface interface {
	ResolveTMDBIDs(ctx context.Context, feedURL string, et types.EntityType, limit int) ([]int64, error)
}

// Options tunes the bulk endpoints
type Options struct {
	// BatchSize must match the runner so total_batches is computed consistently
	BatchSize  int
	MaxItems   int
	StaleAfter time.Duration
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Store   ProgressStoreInterface
	Queue   JobQueueInterface
	Catalog CatalogResolverInterface
	Feeds   FeedResolverInterface
	Logger  *logrus.Logger
	Options Options

	now func() time.Time
}

// NewHandler creates a new handler instance with injected dependencies
func NewHandler(store ProgressStoreInterface, queue JobQueueInterface, catalog CatalogResolverInterface, feeds FeedResolverInterface, logger *logrus.Logger, opts Options) *Handler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = jobs.DefaultBatchSize
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		Store:   store,
		Queue:   queue,
		Catalog: catalog,
		Feeds:   feeds,
		Logger:  logger,
		Options: opts,
		now:     time.Now,
	}
}
