package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/config"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/feeds"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/handlers"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/handlers/health"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/jobs"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/poller"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type testServer struct {
	*httptest.Server
	catalog *catalog.MemoryRepository
}

// newTestServer runs the full router with in-memory services and a started runner
func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	logger := middleware.Logger
	store := cache.NewInMemoryStore(time.Hour, cache.DefaultErrorCap, logger)
	q := queue.NewChannelQueue(10, queue.BackpressureConfig{}, logger)
	repo := catalog.NewMemoryRepository()

	runner := jobs.NewRunner(store, q, jobs.DefaultProcessors(repo, nil), jobs.RunnerOptions{
		BatchSize:   jobs.DefaultBatchSize,
		Workers:     1,
		ItemTimeout: time.Second,
	}, logger)
	runner.Start(context.Background())

	handler := handlers.NewHandler(store, q, repo, feeds.NewFetcher(time.Second), logger, handlers.Options{
		MaxItems:   100,
		StaleAfter: time.Minute,
	})
	healthHandler := health.NewHandler(logger,
		health.Check{Name: "progress_store", Pinger: store},
		health.Check{Name: "catalog", Pinger: repo},
	)

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: secret, RequiredRole: "admin"},
	}
	limiter := middleware.NewRateLimiter(60000, 1000)

	server := httptest.NewServer(newRouter(cfg, handler, healthHandler, limiter))
	t.Cleanup(func() {
		server.Close()
		runner.Stop()
		q.Close()
		store.Close()
	})
	return &testServer{Server: server, catalog: repo}
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestBulkStatusEndToEnd(t *testing.T) {
	srv := newTestServer(t, testSecret)
	for id := int64(1); id <= 7; id++ {
		srv.catalog.Seed(types.EntitySeries, catalog.Title{ID: id, Title: "Series", Status: "draft"})
	}
	srv.catalog.Seed(types.EntitySeries, catalog.Title{ID: 8, Title: "Live", Status: "published"})

	client := poller.NewClient(poller.ClientConfig{BaseURL: srv.URL, Token: adminToken(t, "admin")})
	result, err := client.Trigger(context.Background(), types.OperationStatus, poller.TriggerRequest{
		EntityType: types.EntitySeries,
		Filter:     &poller.Filter{Status: "draft"},
		Params:     types.JobParams{Status: "published"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result.TotalItems)

	p := poller.New(client, poller.NopRenderer{}, poller.Options{
		Interval:    10 * time.Millisecond,
		MaxDuration: 5 * time.Second,
	}, middleware.Logger)

	snap, err := p.Run(context.Background(), result.ProgressKey)
	require.NoError(t, err)
	assert.Equal(t, poller.StateCompleted, p.State())
	assert.Equal(t, types.StatusCompleted, snap.Status)
	assert.Equal(t, 7, snap.Processed)
	assert.Equal(t, 7, snap.Success)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, 2, snap.TotalBatches)

	ids, err := srv.catalog.ResolveIDs(context.Background(), types.EntitySeries, catalog.Filter{Status: "draft"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBulkRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t, testSecret)

	body := []byte(`{"entity_type":"movie","ids":[1]}`)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"trigger without token", "POST", "/bulk/refresh", "", http.StatusUnauthorized},
		{"trigger with garbage token", "POST", "/bulk/refresh", "not-a-jwt", http.StatusUnauthorized},
		{"trigger without admin role", "POST", "/bulk/refresh", adminToken(t, "editor"), http.StatusForbidden},
		{"progress without token", "GET", "/bulk/progress?key=refresh_movie_1700000000_1a2b3c4d", "", http.StatusUnauthorized},
		{"progress with admin token", "GET", "/bulk/progress?key=refresh_movie_1700000000_1a2b3c4d", adminToken(t, "admin"), http.StatusNotFound},
		{"unknown operation", "POST", "/bulk/purge", adminToken(t, "admin"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, bytes.NewReader(body))
			require.NoError(t, err)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestHealthRoutesArePublic(t *testing.T) {
	srv := newTestServer(t, testSecret)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "healthy", payload["status"])
}

func TestBulkRoutesOpenWithoutSecret(t *testing.T) {
	srv := newTestServer(t, "")
	srv.catalog.Seed(types.EntityMovie, catalog.Title{ID: 1, Title: "Heat", Status: "draft"})

	client := poller.NewClient(poller.ClientConfig{BaseURL: srv.URL})
	result, err := client.Trigger(context.Background(), types.OperationStatus, poller.TriggerRequest{
		EntityType: types.EntityMovie,
		IDs:        []int64{1},
		Params:     types.JobParams{Status: "published"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems)
}
