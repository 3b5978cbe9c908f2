/*
Package config provides configuration management for the catalog bulk backend.

This package separates configuration concerns from business logic and provides
a centralized way to manage application configuration including the progress store,
the job queue, the catalog backend and other service dependencies.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/container"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/feeds"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/handlers"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/jobs"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/middleware"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/tmdb"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Drivers
const (
	DriverMemory    = "memory"
	DriverRedis     = "redis"
	DriverDatastore = "datastore"
	DriverPostgres  = "postgres"
)

// Service modes
const (
	ServiceHTTP   = "http"
	ServiceWorker = "worker"
)

// Config holds all application configuration
type Config struct {
	LogLevel    string
	ServerPort  string
	ServiceName string
	// Services lists the roles this process runs: http, worker or both
	Services []string
	// Rate limiting configuration
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	// Enhanced CORS configuration
	CORSConfig CORSConfig
	// Cleanup intervals
	ClientCleanupInterval time.Duration
	ShutdownTimeout       time.Duration

	Bulk    BulkConfig
	Store   StoreConfig
	Catalog CatalogConfig
	TMDB    TMDBConfig
	Auth    AuthConfig
	Tracing TracingConfig
}

// BulkConfig holds batching, retention and worker settings for bulk jobs
type BulkConfig struct {
	BatchSize   int           `json:"batch_size"`
	MaxItems    int           `json:"max_items"`
	ErrorCap    int           `json:"error_cap"`
	ProgressTTL time.Duration `json:"progress_ttl"`
	StaleAfter  time.Duration `json:"stale_after"`
	ItemTimeout time.Duration `json:"item_timeout"`
	// Worker pool and queue settings
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	Backpressure    bool          `json:"backpressure"`
	RejectThreshold float64       `json:"reject_threshold"`
	WaitTimeout     time.Duration `json:"wait_timeout"`
}

// StoreConfig selects where progress records and queued jobs live
type StoreConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	QueueKey      string
}

// CatalogConfig selects the catalog backend
type CatalogConfig struct {
	Driver      string
	ProjectID   string
	DatabaseURL string
	// AutoMigrate creates the postgres tables on startup
	AutoMigrate bool
}

// TMDBConfig configures the TMDB client
type TMDBConfig struct {
	APIKey   string
	BaseURL  string
	Language string
	Rate     float64
	Burst    int
	Timeout  time.Duration
	// FeedTimeout bounds feed downloads for imports
	FeedTimeout time.Duration
}

// AuthConfig configures admin authentication on the bulk endpoints
type AuthConfig struct {
	JWTSecret    string
	RequiredRole string
	Issuer       string
}

// TracingConfig configures the trace exporter
type TracingConfig struct {
	JaegerEndpoint string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	// Environment-specific settings
	Environment string
	// Allowed origins based on environment
	DevelopmentOrigins []string
	StagingOrigins     []string
	ProductionOrigins  []string
	// Additional CORS settings
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	// Dynamic origin validation
	AllowSubdomains bool
	AllowedDomains  []string
}

// Services holds all service dependencies
type Services struct {
	Container *container.Container
	Logger    *logrus.Logger
}

// AppConfig holds both configuration and services
type AppConfig struct {
	Config   *Config
	Services *Services
}

// NewConfig creates a new configuration instance
func NewConfig() *Config {
	environment := getEnv("ENVIRONMENT", "development")

	return &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "catalog-bulk-backend"),
		Services:    getEnvSlice("SERVICES", []string{ServiceHTTP, ServiceWorker}),
		// Rate limiting defaults (60 requests per minute, burst of 10); pollers hit
		// the progress endpoint every 2 seconds
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 60.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 10),
		// Enhanced CORS configuration
		CORSConfig: CORSConfig{
			Environment: environment,
			DevelopmentOrigins: getEnvSlice("DEV_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:3001",
				"http://localhost:8080",
			}),
			StagingOrigins: getEnvSlice("STAGING_CORS_ORIGINS", []string{
				"https://staging.yourdomain.com",
				"https://staging-admin.yourdomain.com",
			}),
			ProductionOrigins: getEnvSlice("PROD_CORS_ORIGINS", []string{
				"https://yourdomain.com",
				"https://admin.yourdomain.com",
			}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{
				"GET", "POST", "OPTIONS",
			}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{
				"Content-Type", "Authorization", "X-Requested-With",
				"X-Request-ID", "Accept", "Origin", "Cache-Control",
			}),
			ExposedHeaders: getEnvSlice("CORS_EXPOSED_HEADERS", []string{
				"X-Request-ID",
			}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400), // 24 hours
			AllowSubdomains:  getEnvBool("CORS_ALLOW_SUBDOMAINS", false),
			AllowedDomains:   getEnvSlice("CORS_ALLOWED_DOMAINS", []string{}),
		},
		ClientCleanupInterval: getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		Bulk: BulkConfig{
			BatchSize:   getEnvInt("BULK_BATCH_SIZE", jobs.DefaultBatchSize),
			MaxItems:    getEnvInt("BULK_MAX_ITEMS", handlers.DefaultMaxItems),
			ErrorCap:    getEnvInt("BULK_ERROR_CAP", cache.DefaultErrorCap),
			ProgressTTL: getEnvDuration("BULK_PROGRESS_TTL", 24*time.Hour),
			StaleAfter:  getEnvDuration("BULK_STALE_AFTER", 2*time.Minute),
			ItemTimeout: getEnvDuration("BULK_ITEM_TIMEOUT", 30*time.Second),
			// Worker pool settings
			Workers:         getEnvInt("BULK_WORKERS", 2),
			QueueSize:       getEnvInt("BULK_QUEUE_SIZE", 50),
			Backpressure:    getEnvBool("BULK_BACKPRESSURE", true),
			RejectThreshold: getEnvFloat("BULK_REJECT_THRESHOLD", 0.8), // Reject at 80% capacity
			WaitTimeout:     getEnvDuration("BULK_WAIT_TIMEOUT", 5*time.Second),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "bulk:progress:"),
			QueueKey:      getEnv("REDIS_QUEUE_KEY", "bulk:jobs"),
		},
		Catalog: CatalogConfig{
			Driver:      strings.ToLower(getEnv("CATALOG_DRIVER", DriverDatastore)),
			ProjectID:   getEnv("PROJECT_ID", ""),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvBool("DATABASE_AUTO_MIGRATE", true),
		},
		TMDB: TMDBConfig{
			APIKey:      getEnv("TMDB_API_KEY", ""),
			BaseURL:     getEnv("TMDB_BASE_URL", tmdb.DefaultBaseURL),
			Language:    getEnv("TMDB_LANGUAGE", "en-US"),
			Rate:        getEnvFloat("TMDB_RATE", 20),
			Burst:       getEnvInt("TMDB_BURST", 5),
			Timeout:     getEnvDuration("TMDB_TIMEOUT", 10*time.Second),
			FeedTimeout: getEnvDuration("FEED_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
			RequiredRole: getEnv("ADMIN_REQUIRED_ROLE", "admin"),
			Issuer:       getEnv("ADMIN_JWT_ISSUER", ""),
		},
		Tracing: TracingConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
	}
}

// RunsService reports whether this process runs the given role
func (c *Config) RunsService(name string) bool {
	for _, s := range c.Services {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// IsDevelopment reports whether ENVIRONMENT names a local development setup
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.CORSConfig.Environment)) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.RunsService(ServiceHTTP) && !c.RunsService(ServiceWorker) {
		return fmt.Errorf("SERVICES must include %q and/or %q", ServiceHTTP, ServiceWorker)
	}

	switch c.Store.Driver {
	case DriverMemory:
		// the channel queue and in-memory records only exist inside one process
		if !c.RunsService(ServiceHTTP) || !c.RunsService(ServiceWorker) {
			return fmt.Errorf("STORE_DRIVER=memory requires SERVICES to include both http and worker")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR environment variable is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (valid options: memory, redis)", c.Store.Driver)
	}

	switch c.Catalog.Driver {
	case DriverDatastore:
		if c.Catalog.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable is required")
		}
	case DriverPostgres:
		if c.Catalog.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the postgres catalog")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown CATALOG_DRIVER %q (valid options: datastore, postgres, memory)", c.Catalog.Driver)
	}

	// open bulk routes are only acceptable on a developer machine
	if c.RunsService(ServiceHTTP) && c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("ADMIN_JWT_SECRET environment variable is required when ENVIRONMENT=%s", c.CORSConfig.Environment)
	}

	if c.Bulk.BatchSize <= 0 {
		return fmt.Errorf("BULK_BATCH_SIZE must be positive")
	}
	if c.Bulk.MaxItems <= 0 {
		return fmt.Errorf("BULK_MAX_ITEMS must be positive")
	}
	if c.Bulk.Workers <= 0 || c.Bulk.QueueSize <= 0 {
		return fmt.Errorf("BULK_WORKERS and BULK_QUEUE_SIZE must be positive")
	}
	if c.Bulk.RejectThreshold <= 0 || c.Bulk.RejectThreshold > 1 {
		return fmt.Errorf("BULK_REJECT_THRESHOLD must be in (0, 1]")
	}
	return nil
}

// MiddlewareAuth returns the admin auth settings for the /bulk routes
func (c *Config) MiddlewareAuth() middleware.AuthConfig {
	return middleware.AuthConfig{
		Secret:       c.Auth.JWTSecret,
		RequiredRole: c.Auth.RequiredRole,
		Issuer:       c.Auth.Issuer,
	}
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(ctx context.Context, config *Config) (services *Services, err error) {
	logger := middleware.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	diContainer := container.NewContainer()
	defer func() {
		// release whatever was opened before the failure
		if err != nil {
			diContainer.Close()
		}
	}()

	backpressure := queue.BackpressureConfig{
		Enabled:         config.Bulk.Backpressure,
		RejectThreshold: config.Bulk.RejectThreshold,
		WaitTimeout:     config.Bulk.WaitTimeout,
	}

	// Progress store and job queue
	var (
		store cache.ProgressStore
		q     queue.Queue
	)
	switch config.Store.Driver {
	case DriverRedis:
		client := cache.NewRedisClient(cache.RedisConfig{
			Addr:     config.Store.RedisAddr,
			Password: config.Store.RedisPassword,
			DB:       config.Store.RedisDB,
		})
		diContainer.RegisterCloser("redis", client.Close)
		if err := pingRedis(ctx, client); err != nil {
			return nil, err
		}
		store = cache.NewRedisStore(client, config.Store.KeyPrefix, config.Bulk.ProgressTTL, config.Bulk.ErrorCap)
		q = queue.NewRedisQueue(client, config.Store.QueueKey, config.Bulk.QueueSize, backpressure, logger)
		logger.WithField("addr", config.Store.RedisAddr).Info("Redis progress store and queue initialized successfully")
	default:
		memStore := cache.NewInMemoryStore(config.Bulk.ProgressTTL, config.Bulk.ErrorCap, logger)
		diContainer.RegisterCloser("progress_store", memStore.Close)
		store = memStore
		q = queue.NewChannelQueue(config.Bulk.QueueSize, backpressure, logger)
		logger.Info("In-memory progress store and queue initialized successfully")
	}
	diContainer.RegisterCloser("queue", q.Close)

	repo, err := newCatalog(ctx, config, diContainer, logger)
	if err != nil {
		return nil, err
	}

	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:   config.TMDB.APIKey,
		BaseURL:  config.TMDB.BaseURL,
		Language: config.TMDB.Language,
		Rate:     config.TMDB.Rate,
		Burst:    config.TMDB.Burst,
		Timeout:  config.TMDB.Timeout,
	})
	if !tmdbClient.IsConfigured() {
		logger.Warn("TMDB_API_KEY is not set; refresh and import items will fail")
	}

	runner := jobs.NewRunner(store, q, jobs.DefaultProcessors(repo, tmdbClient), jobs.RunnerOptions{
		BatchSize:   config.Bulk.BatchSize,
		Workers:     config.Bulk.Workers,
		ItemTimeout: config.Bulk.ItemTimeout,
	}, logger)
	diContainer.RegisterCloser("runner", func() error { runner.Stop(); return nil })

	alertManager := monitoring.NewAlertManager(logger)
	diContainer.RegisterCloser("alert_manager", func() error { alertManager.Stop(); return nil })
	wireAlertRules(alertManager, runner, q, config.Bulk)

	if err := diContainer.InitializeServices(container.Dependencies{
		Logger:       logger,
		Store:        store,
		Queue:        q,
		Catalog:      repo,
		Feeds:        feeds.NewFetcher(config.TMDB.FeedTimeout),
		Runner:       runner,
		AlertManager: alertManager,
		HandlerOptions: handlers.Options{
			BatchSize:  config.Bulk.BatchSize,
			MaxItems:   config.Bulk.MaxItems,
			StaleAfter: config.Bulk.StaleAfter,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize dependency container: %v", err)
	}

	return &Services{
		Container: diContainer,
		Logger:    logger,
	}, nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %v", err)
	}
	return nil
}

func newCatalog(ctx context.Context, config *Config, c *container.Container, logger *logrus.Logger) (catalog.Repository, error) {
	switch config.Catalog.Driver {
	case DriverPostgres:
		repo, err := catalog.NewPostgresRepository(ctx, config.Catalog.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres catalog: %v", err)
		}
		c.RegisterCloser("postgres", func() error { repo.Close(); return nil })
		if config.Catalog.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("failed to apply catalog schema: %v", err)
			}
		}
		logger.Info("Postgres catalog initialized successfully")
		return repo, nil
	case DriverMemory:
		logger.Warn("Using the in-memory catalog; titles are lost on restart")
		return catalog.NewMemoryRepository(), nil
	default:
		client, err := datastore.NewClient(ctx, config.Catalog.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Datastore client: %v", err)
		}
		c.RegisterCloser("datastore", client.Close)
		logger.WithField("project_id", config.Catalog.ProjectID).Info("Datastore client initialized successfully")
		return catalog.NewDatastoreRepository(client), nil
	}
}

// Thresholds for the bulk alert rules
const (
	failureRateThreshold  = 0.5
	failureRateMinSamples = 20
)

// wireAlertRules binds the alert rule conditions to live runner and queue state
func wireAlertRules(am *monitoring.AlertManager, runner *jobs.Runner, q queue.Queue, cfg BulkConfig) {
	am.UpdateRuleCondition(monitoring.RuleQueueBackpressure, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		depth, err := q.Len(ctx)
		if err != nil {
			return false
		}
		monitoring.UpdateQueueSize(depth)
		return float64(depth) >= cfg.RejectThreshold*float64(cfg.QueueSize)
	})

	var lastMechanismFailures int64
	am.UpdateRuleCondition(monitoring.RuleStalledJobs, func() bool {
		current := runner.Stats().MechanismFailures
		fired := current > lastMechanismFailures
		lastMechanismFailures = current
		return fired
	})

	am.UpdateRuleCondition(monitoring.RuleHighFailureRate, func() bool {
		stats := runner.Stats()
		if stats.ItemsSucceeded+stats.ItemsFailed < failureRateMinSamples {
			return false
		}
		return stats.ItemFailureRate() > failureRateThreshold
	})
}

// NewAppConfig creates a new application configuration with all dependencies.
// A .env file in the working directory is loaded first when present.
func NewAppConfig(ctx context.Context) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %v", err)
	}

	config := NewConfig()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	services, err := NewServices(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %v", err)
	}

	return &AppConfig{
		Config:   config,
		Services: services,
	}, nil
}

// Close gracefully closes all service connections
func (s *Services) Close() error {
	if s.Container != nil {
		return s.Container.Close()
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as time.Duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as bool with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSlice gets an environment variable as a string slice with a default value
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
