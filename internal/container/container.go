package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/dispatcher"
	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/application/service"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
	"github.com/garyjia/indent-flow/internal/infrastructure/worker"
	"github.com/garyjia/indent-flow/internal/notification"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	store       *StoreBundle
	persistence *PersistenceBundle
	documents   *storage.DocumentStore
	notifiers   *NotifierBundle

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   *WorkflowBundle
	services   *ServiceBundle

	// Workers
	workers *worker.Supervisor

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Indent        service.IndentService
	PurchaseOrder service.PurchaseOrderService
	Record        service.RecordService
	Dashboard     service.DashboardService
	Notification  service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Row store, repositories and document store
// 2. Notification channels
// 3. Event dispatcher and workflow engine
// 4. Application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize storage
	if err := c.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized", zap.String("backend", c.store.Backend))

	// Step 2: Initialize notification channels
	notifiers, err := ProvideNotifiers(c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifiers: %w", err)
	}
	c.notifiers = notifiers
	c.logger.Info("Notifiers initialized", zap.Int("channels", len(notifiers.All)))

	// Step 3: Initialize dispatcher and workflow engine
	if err := c.initDispatcherAndWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	// Step 4: Initialize application services
	services, err := ProvideServices(&ServiceDeps{
		Persistence:  c.persistence,
		Workflow:     c.workflow,
		Documents:    c.documents,
		Notifiers:    c.notifiers.All,
		Dispatcher:   c.dispatcher,
		Notification: &c.config.Notification,
		AutoGroup:    c.config.Workflow.AutoGroup,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.Len()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers
	if c.workers != nil {
		if err := c.workers.Stop(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher, draining async handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close the store
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close store", zap.Error(err))
			errs = append(errs, fmt.Errorf("close store: %w", err))
		} else {
			c.logger.Info("Store closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	// Check store
	switch {
	case c.store == nil:
		set("store", false, "not initialized")
	case c.store.DB != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.store.DB.Ping(ctx)
		cancel()
		if err != nil {
			set("store", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("store", true, c.store.Backend)
		}
	default:
		set("store", true, c.store.Backend)
	}

	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	switch {
	case c.workers == nil:
		set("workers", false, "not initialized")
	case c.workers.Len() == 0:
		set("workers", true, "none configured")
	default:
		for _, st := range c.workers.Report() {
			set("worker."+st.Name, st.Healthy, st.Health.Summary())
		}
	}

	if c.notifiers != nil {
		set("notifiers", true, fmt.Sprintf("channels: %d", len(c.notifiers.All)))
	} else {
		set("notifiers", false, "not initialized")
	}

	return status
}

// initStorage opens the row store and builds the repositories and document store.
func (c *Container) initStorage() error {
	store, err := ProvideStore(c.config, c.logger)
	if err != nil {
		return err
	}

	persistence, err := ProvidePersistence(store.Store, &c.config.Workflow, c.logger)
	if err != nil {
		store.Close()
		return err
	}

	documents, err := ProvideDocuments(&c.config.Documents, store.Index, c.logger)
	if err != nil {
		store.Close()
		return err
	}

	c.store = store
	c.persistence = persistence
	c.documents = documents
	return nil
}

// initDispatcherAndWorkflow creates the dispatcher and the workflow engine publishing to it.
func (c *Container) initDispatcherAndWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	wf, err := ProvideWorkflow(&WorkflowDeps{
		Persistence: c.persistence,
		Dispatcher:  c.dispatcher,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = wf

	return nil
}

// initWorkers creates and starts the background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.Worker, c.services.Indent, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if workers.Len() == 0 {
		return nil
	}

	if err := c.workers.Start(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// Repository returns the procurement repository.
func (c *Container) Repository() port.ProcurementRepository {
	return c.persistence.Repository
}

// Documents returns the document store.
func (c *Container) Documents() *storage.DocumentStore {
	return c.documents
}

// Links returns the link notifier outbox.
func (c *Container) Links() *notification.LinkNotifier {
	return c.notifiers.Links
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker supervisor.
func (c *Container) Workers() *worker.Supervisor {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
