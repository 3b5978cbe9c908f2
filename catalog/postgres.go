package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the catalog tables used by PostgresRepository
const Schema = `
CREATE TABLE IF NOT EXISTS movies (
	id           BIGSERIAL PRIMARY KEY,
	tmdb_id      BIGINT NOT NULL UNIQUE,
	title        TEXT NOT NULL DEFAULT '',
	overview     TEXT NOT NULL DEFAULT '',
	release_date TEXT NOT NULL DEFAULT '',
	poster_path  TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'draft',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS series (LIKE movies INCLUDING ALL);
`

const titleColumns = `id, tmdb_id, title, overview, release_date, poster_path, rating, status, updated_at`

// PostgresRepository stores titles in the movies and series tables
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository connects a pool to databaseURL
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &PostgresRepository{pool: pool, now: time.Now}, nil
}

// EnsureSchema creates the tables when missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

// Close releases the pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// table maps an entity type to a fixed table name; never built from request input
func table(et types.EntityType) (string, error) {
	switch et {
	case types.EntityMovie:
		return "movies", nil
	case types.EntitySeries:
		return "series", nil
	default:
		return "", fmt.Errorf("unsupported entity type %q", et)
	}
}

// ResolveIDs selects matching ids in id order
func (r *PostgresRepository) ResolveIDs(ctx context.Context, et types.EntityType, filter Filter) (ids []int64, err error) {
	defer func(start time.Time) { observe("postgres", "resolve_ids", start, err) }(time.Now())

	tbl, err := table(et)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE ($1 = '' OR status = $1) ORDER BY id LIMIT NULLIF($2, -1)`, tbl)

	rows, err := r.pool.Query(ctx, query, filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", tbl, err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", tbl, err)
	}
	return ids, nil
}

// Get loads a title by id
func (r *PostgresRepository) Get(ctx context.Context, et types.EntityType, id int64) (t *Title, err error) {
	defer func(start time.Time) { observe("postgres", "get", start, err) }(time.Now())

	tbl, err := table(et)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, titleColumns, tbl), id)
}

// FindByTMDBID looks a title up by its TMDB id
func (r *PostgresRepository) FindByTMDBID(ctx context.Context, et types.EntityType, tmdbID int64) (t *Title, err error) {
	defer func(start time.Time) { observe("postgres", "find_by_tmdb_id", start, err) }(time.Now())

	tbl, err := table(et)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE tmdb_id = $1`, titleColumns, tbl), tmdbID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg int64) (*Title, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Title])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// Save upserts on tmdb_id for new titles and updates by id otherwise
func (r *PostgresRepository) Save(ctx context.Context, et types.EntityType, t *Title) (saved *Title, err error) {
	defer func(start time.Time) { observe("postgres", "save", start, err) }(time.Now())

	tbl, err := table(et)
	if err != nil {
		return nil, err
	}

	out := *t
	out.UpdatedAt = r.now().UTC()

	var query string
	args := []any{out.TMDBID, out.Title, out.Overview, out.ReleaseDate, out.PosterPath, out.Rating, out.Status, out.UpdatedAt}
	if out.ID == 0 {
		query = fmt.Sprintf(`
			INSERT INTO %s (tmdb_id, title, overview, release_date, poster_path, rating, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tmdb_id) DO UPDATE SET
				title = EXCLUDED.title, overview = EXCLUDED.overview, release_date = EXCLUDED.release_date,
				poster_path = EXCLUDED.poster_path, rating = EXCLUDED.rating, status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at
			RETURNING id`, tbl)
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET tmdb_id = $1, title = $2, overview = $3, release_date = $4, poster_path = $5,
				rating = $6, status = $7, updated_at = $8
			WHERE id = $9
			RETURNING id`, tbl)
		args = append(args, out.ID)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&out.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("save %s: %w", tbl, err)
	}
	return &out, nil
}

// Health pings the pool
func (r *PostgresRepository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
