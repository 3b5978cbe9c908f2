// Package tmdb is a small client for the TMDB v3 details endpoints used by bulk refresh
// and import.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public TMDB v3 API
const DefaultBaseURL = "https://api.themoviedb.org/3"

var (
	// ErrNotFound is returned when TMDB has no title with the requested id
	ErrNotFound = errors.New("tmdb: title not found")
	// ErrNotConfigured is returned when no credentials were provided
	ErrNotConfigured = errors.New("tmdb: api key not configured")
)

// Details is the subset of TMDB movie and tv details the catalog keeps
type Details struct {
	TMDBID      int64
	Title       string
	Overview    string
	ReleaseDate string
	PosterPath  string
	Rating      float64
}

// Config configures the client
type Config struct {
	// APIKey is sent as the api_key query parameter. A key containing dots is
	// treated as a v4 read access token and sent as a Bearer header instead.
	APIKey     string
	BaseURL    string
	Language   string
	Rate       float64
	Burst      int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client fetches title details, throttled by a token bucket shared by all workers
type Client struct {
	apiKey   string
	baseURL  string
	language string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a TMDB client
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  baseURL,
		language: cfg.Language,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		http:     httpClient,
	}
}

// IsConfigured reports whether credentials are present
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type detailsResponse struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// Fetch returns the details of a movie (/movie/{id}) or series (/tv/{id})
func (c *Client) Fetch(ctx context.Context, et types.EntityType, tmdbID int64) (*Details, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var path string
	switch et {
	case types.EntityMovie:
		path = "/movie/"
	case types.EntitySeries:
		path = "/tv/"
	default:
		return nil, fmt.Errorf("tmdb: unsupported entity type %q", et)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb: rate limiter: %w", err)
	}

	start := time.Now()
	details, status, err := c.get(ctx, path+strconv.FormatInt(tmdbID, 10))
	monitoring.RecordTMDBRequest(string(et), status, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	out := &Details{
		TMDBID:      details.ID,
		Title:       details.Title,
		Overview:    details.Overview,
		ReleaseDate: details.ReleaseDate,
		PosterPath:  details.PosterPath,
		Rating:      details.VoteAverage,
	}
	if et == types.EntitySeries {
		out.Title = details.Name
		out.ReleaseDate = details.FirstAirDate
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) (*detailsResponse, string, error) {
	q := url.Values{}
	if c.language != "" {
		q.Set("language", c.language)
	}
	bearer := strings.Contains(c.apiKey, ".")
	if !bearer {
		q.Set("api_key", c.apiKey)
	}

	endpoint := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("tmdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "error", fmt.Errorf("tmdb: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "not_found", fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, strconv.Itoa(resp.StatusCode), fmt.Errorf("tmdb: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "decode_error", fmt.Errorf("tmdb: decode %s: %w", path, err)
	}
	return &out, "success", nil
}
