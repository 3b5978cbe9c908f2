/*
Package container provides dependency injection capabilities for the catalog bulk backend.

This package implements a simple dependency injection container that helps manage
service dependencies and reduces tight coupling between components.
*/
package container

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Nexora-Open-Source/catalog-bulk-backend/cache"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/catalog"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/handlers"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/handlers/health"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/jobs"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/monitoring"
	"github.com/Nexora-Open-Source/catalog-bulk-backend/queue"
	"github.com/sirupsen/logrus"
)

// Service names
const (
	ServiceLogger        = "logger"
	ServiceProgressStore = "progress_store"
	ServiceQueue         = "queue"
	ServiceCatalog       = "catalog"
	ServiceFeeds         = "feeds"
	ServiceRunner        = "runner"
	ServiceAlertManager  = "alert_manager"
	ServiceHandler       = "handler"
	ServiceHealthHandler = "health_handler"
)

// Container holds all service dependencies
type Container struct {
	mu         sync.RWMutex
	services   map[string]interface{}
	factories  map[string]func() (interface{}, error)
	singletons map[string]interface{}
	closers    []closer
}

type closer struct {
	name string
	fn   func() error
}

// Dependencies are the constructed core services handed to InitializeServices
type Dependencies struct {
	Logger         *logrus.Logger
	Store          cache.ProgressStore
	Queue          queue.Queue
	Catalog        catalog.Repository
	Feeds          handlers.FeedResolverInterface
	Runner         *jobs.Runner
	AlertManager   *monitoring.AlertManager
	HandlerOptions handlers.Options
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		services:   make(map[string]interface{}),
		factories:  make(map[string]func() (interface{}, error)),
		singletons: make(map[string]interface{}),
	}
}

// Register registers a service instance
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// RegisterFactory registers a factory function for lazy service creation
func (c *Container) RegisterFactory(name string, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterSingleton registers a singleton service
func (c *Container) RegisterSingleton(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[name] = service
}

// RegisterCloser registers a shutdown hook. Hooks run in reverse registration order.
func (c *Container) RegisterCloser(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Get retrieves a service by name
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Check if service is already registered
	if service, exists := c.services[name]; exists {
		return service, nil
	}

	// Check if it's a singleton
	if singleton, exists := c.singletons[name]; exists {
		return singleton, nil
	}

	// Check if there's a factory for this service
	if factory, exists := c.factories[name]; exists {
		service, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create service %s: %v", name, err)
		}
		return service, nil
	}

	return nil, fmt.Errorf("service %s not found", name)
}

func get[T any](c *Container, name string) (T, error) {
	var zero T
	service, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("%s service is not of expected type", name)
	}
	return typed, nil
}

// GetLogger retrieves the logger service
func (c *Container) GetLogger() (*logrus.Logger, error) {
	return get[*logrus.Logger](c, ServiceLogger)
}

// GetProgressStore retrieves the progress store
func (c *Container) GetProgressStore() (cache.ProgressStore, error) {
	return get[cache.ProgressStore](c, ServiceProgressStore)
}

// GetQueue retrieves the job queue
func (c *Container) GetQueue() (queue.Queue, error) {
	return get[queue.Queue](c, ServiceQueue)
}

// GetCatalog retrieves the catalog repository
func (c *Container) GetCatalog() (catalog.Repository, error) {
	return get[catalog.Repository](c, ServiceCatalog)
}

// GetRunner retrieves the job runner
func (c *Container) GetRunner() (*jobs.Runner, error) {
	return get[*jobs.Runner](c, ServiceRunner)
}

// GetAlertManager retrieves the alert manager
func (c *Container) GetAlertManager() (*monitoring.AlertManager, error) {
	return get[*monitoring.AlertManager](c, ServiceAlertManager)
}

// GetHandler retrieves the bulk handler service
func (c *Container) GetHandler() (*handlers.Handler, error) {
	return get[*handlers.Handler](c, ServiceHandler)
}

// GetHealthHandler retrieves the health handler service
func (c *Container) GetHealthHandler() (*health.Handler, error) {
	return get[*health.Handler](c, ServiceHealthHandler)
}

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(deps Dependencies) error {
	if deps.Logger == nil || deps.Store == nil || deps.Queue == nil || deps.Catalog == nil {
		return errors.New("logger, progress store, queue and catalog are required")
	}

	// Register core services
	c.RegisterSingleton(ServiceLogger, deps.Logger)
	c.RegisterSingleton(ServiceProgressStore, deps.Store)
	c.RegisterSingleton(ServiceQueue, deps.Queue)
	c.RegisterSingleton(ServiceCatalog, deps.Catalog)
	if deps.Feeds != nil {
		c.RegisterSingleton(ServiceFeeds, deps.Feeds)
	}
	if deps.Runner != nil {
		c.RegisterSingleton(ServiceRunner, deps.Runner)
	}
	if deps.AlertManager != nil {
		c.RegisterSingleton(ServiceAlertManager, deps.AlertManager)
	}

	// Handlers are built lazily and memoised so every caller shares one instance
	var (
		handlerOnce sync.Once
		handler     *handlers.Handler
	)
	c.RegisterFactory(ServiceHandler, func() (interface{}, error) {
		handlerOnce.Do(func() {
			handler = handlers.NewHandler(deps.Store, deps.Queue, deps.Catalog, deps.Feeds, deps.Logger, deps.HandlerOptions)
		})
		return handler, nil
	})
	c.RegisterFactory(ServiceHealthHandler, func() (interface{}, error) {
		return health.NewHandler(deps.Logger,
			health.Check{Name: "progress_store", Pinger: deps.Store},
			health.Check{Name: "catalog", Pinger: deps.Catalog},
		), nil
	})

	return nil
}

// Close runs the registered shutdown hooks and returns every failure joined
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %v", closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}
