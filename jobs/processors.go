package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/tmdb"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
)

// DetailsFetcher loads fresh metadata for a TMDB id
type DetailsFetcher interface {
	Fetch(ctx context.Context, et types.EntityType, tmdbID int64) (*tmdb.Details, error)
}

func applyDetails(t *catalog.Title, d *tmdb.Details) {
	t.TMDBID = d.TMDBID
	t.Title = d.Title
	t.Overview = d.Overview
	t.ReleaseDate = d.ReleaseDate
	t.PosterPath = d.PosterPath
	t.Rating = d.Rating
}

// RefreshProcessor re-fetches TMDB metadata for an existing catalog record
type RefreshProcessor struct {
	Catalog catalog.Repository
	TMDB    DetailsFetcher
}

// Process refreshes catalog record id
func (p *RefreshProcessor) Process(ctx context.Context, job *types.BulkJob, id int64) (string, error) {
	title, err := p.Catalog.Get(ctx, job.EntityType, id)
	if err != nil {
		return "", fmt.Errorf("load %s %d: %w", job.EntityType, id, err)
	}
	if title.TMDBID == 0 {
		return title.Title, errors.New("record has no tmdb id")
	}

	details, err := p.TMDB.Fetch(ctx, job.EntityType, title.TMDBID)
	if err != nil {
		return title.Title, err
	}
	applyDetails(title, details)

	if _, err := p.Catalog.Save(ctx, job.EntityType, title); err != nil {
		return title.Title, fmt.Errorf("save: %w", err)
	}
	return title.Title, nil
}

// ImportProcessor creates or updates catalog records from TMDB ids
type ImportProcessor struct {
	Catalog catalog.Repository
	TMDB    DetailsFetcher
}

// Process imports TMDB id tmdbID. New records get the job's status param, or draft.
func (p *ImportProcessor) Process(ctx context.Context, job *types.BulkJob, tmdbID int64) (string, error) {
	details, err := p.TMDB.Fetch(ctx, job.EntityType, tmdbID)
	if err != nil {
		return "", err
	}

	title, err := p.Catalog.FindByTMDBID(ctx, job.EntityType, tmdbID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status := job.Params.Status
		if status == "" {
			status = types.TitleStatusDraft
		}
		title = &catalog.Title{Status: status}
	case err != nil:
		return details.Title, fmt.Errorf("lookup existing record: %w", err)
	}
	applyDetails(title, details)

	if _, err := p.Catalog.Save(ctx, job.EntityType, title); err != nil {
		return details.Title, fmt.Errorf("save: %w", err)
	}
	return details.Title, nil
}

// StatusProcessor sets the publication status of catalog records
type StatusProcessor struct {
	Catalog catalog.Repository
}

// Process sets record id to the job's status param
func (p *StatusProcessor) Process(ctx context.Context, job *types.BulkJob, id int64) (string, error) {
	if !types.ValidTitleStatus(job.Params.Status) {
		return "", fmt.Errorf("invalid status %q", job.Params.Status)
	}

	title, err := p.Catalog.Get(ctx, job.EntityType, id)
	if err != nil {
		return "", fmt.Errorf("load %s %d: %w", job.EntityType, id, err)
	}
	if title.Status == job.Params.Status {
		return title.Title, nil
	}

	title.Status = job.Params.Status
	if _, err := p.Catalog.Save(ctx, job.EntityType, title); err != nil {
		return title.Title, fmt.Errorf("save: %w", err)
	}
	return title.Title, nil
}

// DefaultProcessors wires the processors for every operation
func DefaultProcessors(repo catalog.Repository, fetcher DetailsFetcher) map[types.Operation]ItemProcessor {
	return map[types.Operation]ItemProcessor{
		types.OperationRefresh: &RefreshProcessor{Catalog: repo, TMDB: fetcher},
		types.OperationImport:  &ImportProcessor{Catalog: repo, TMDB: fetcher},
		types.OperationStatus:  &StatusProcessor{Catalog: repo},
	}
}
