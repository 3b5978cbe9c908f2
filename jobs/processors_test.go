package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/tmdb"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a mock implementation of DetailsFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, et types.EntityType, tmdbID int64) (*tmdb.Details, error) {
	args := m.Called(ctx, et, tmdbID)
	d, _ := args.Get(0).(*tmdb.Details)
	return d, args.Error(1)
}

func fightClub() *tmdb.Details {
	return &tmdb.Details{TMDBID: 550, Title: "Fight Club", Overview: "An insomniac...", ReleaseDate: "1999-10-15", Rating: 8.4}
}

func TestRefreshProcessorUpdatesRecord(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	repo.Seed(types.EntityMovie, catalog.Title{ID: 1, TMDBID: 550, Title: "Fight Clb", Status: "published"})
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, types.EntityMovie, int64(550)).Return(fightClub(), nil)

	p := &RefreshProcessor{Catalog: repo, TMDB: fetcher}
	job := &types.BulkJob{Operation: types.OperationRefresh, EntityType: types.EntityMovie}

	title, err := p.Process(context.Background(), job, 1)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", title)

	got, err := repo.Get(context.Background(), types.EntityMovie, 1)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", got.Title)
	assert.Equal(t, "published", got.Status)
	assert.InDelta(t, 8.4, got.Rating, 0.001)
}

func TestRefreshProcessorFailures(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	repo.Seed(types.EntityMovie,
		catalog.Title{ID: 1, Title: "No TMDB"},
		catalog.Title{ID: 2, TMDBID: 9999, Title: "Gone"},
	)
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, types.EntityMovie, int64(9999)).Return(nil, tmdb.ErrNotFound)

	p := &RefreshProcessor{Catalog: repo, TMDB: fetcher}
	job := &types.BulkJob{Operation: types.OperationRefresh, EntityType: types.EntityMovie}

	title, err := p.Process(context.Background(), job, 1)
	assert.Error(t, err)
	assert.Equal(t, "No TMDB", title)

	title, err = p.Process(context.Background(), job, 2)
	assert.ErrorIs(t, err, tmdb.ErrNotFound)
	assert.Equal(t, "Gone", title)

	_, err = p.Process(context.Background(), job, 3)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestImportProcessorCreatesThenUpdates(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, types.EntityMovie, int64(550)).Return(fightClub(), nil)

	p := &ImportProcessor{Catalog: repo, TMDB: fetcher}
	job := &types.BulkJob{Operation: types.OperationImport, EntityType: types.EntityMovie}

	_, err := p.Process(context.Background(), job, 550)
	require.NoError(t, err)

	created, err := repo.FindByTMDBID(context.Background(), types.EntityMovie, 550)
	require.NoError(t, err)
	assert.Equal(t, types.TitleStatusDraft, created.Status)

	// rerunning the same item keeps a single record
	_, err = p.Process(context.Background(), job, 550)
	require.NoError(t, err)
	ids, err := repo.ResolveIDs(context.Background(), types.EntityMovie, catalog.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, ids)
}

func TestImportProcessorUsesStatusParam(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, types.EntityMovie, int64(550)).Return(fightClub(), nil)

	p := &ImportProcessor{Catalog: repo, TMDB: fetcher}
	job := &types.BulkJob{Operation: types.OperationImport, EntityType: types.EntityMovie, Params: types.JobParams{Status: types.TitleStatusPublished}}

	_, err := p.Process(context.Background(), job, 550)
	require.NoError(t, err)

	created, err := repo.FindByTMDBID(context.Background(), types.EntityMovie, 550)
	require.NoError(t, err)
	assert.Equal(t, types.TitleStatusPublished, created.Status)
}

func TestImportProcessorFetchError(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, types.EntitySeries, int64(1)).Return(nil, errors.New("tmdb: /tv/1 returned 500"))

	p := &ImportProcessor{Catalog: catalog.NewMemoryRepository(), TMDB: fetcher}
	_, err := p.Process(context.Background(), &types.BulkJob{EntityType: types.EntitySeries}, 1)
	assert.Error(t, err)
}

func TestStatusProcessor(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	repo.Seed(types.EntitySeries, catalog.Title{ID: 4, Title: "Dark", Status: types.TitleStatusDraft})

	p := &StatusProcessor{Catalog: repo}
	job := &types.BulkJob{Operation: types.OperationStatus, EntityType: types.EntitySeries, Params: types.JobParams{Status: types.TitleStatusPublished}}

	title, err := p.Process(context.Background(), job, 4)
	require.NoError(t, err)
	assert.Equal(t, "Dark", title)

	got, err := repo.Get(context.Background(), types.EntitySeries, 4)
	require.NoError(t, err)
	assert.Equal(t, types.TitleStatusPublished, got.Status)

	// idempotent on rerun
	_, err = p.Process(context.Background(), job, 4)
	assert.NoError(t, err)

	job.Params.Status = "archived"
	_, err = p.Process(context.Background(), job, 4)
	assert.Error(t, err)
}
