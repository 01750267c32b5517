package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/dispatcher"
	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/application/service"
	"github.com/garyjia/indent-flow/internal/application/workflow"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	infraLark "github.com/garyjia/indent-flow/internal/infrastructure/external/lark"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/excel"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/rowstore"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
	"github.com/garyjia/indent-flow/internal/infrastructure/worker"
	"github.com/garyjia/indent-flow/internal/notification"
	"github.com/garyjia/indent-flow/pkg/utils"
)

// StoreBundle holds the row store and what it needs at shutdown.
type StoreBundle struct {
	Backend string
	Store   port.EntityStore

	// DB is set for the sqlite backend only
	DB *sqlite.DB

	// Index is the document index; nil means in-memory
	Index storage.Index

	closeFn func() error
}

// Close releases the store's resources.
func (b *StoreBundle) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// PersistenceBundle holds the repository and unit of work over the store.
type PersistenceBundle struct {
	UnitOfWork *rowstore.UnitOfWork
	Repository port.ProcurementRepository
}

// NotifierBundle holds all notification channels.
type NotifierBundle struct {
	Links *notification.LinkNotifier
	Lark  *infraLark.Messenger
	All   []port.Notifier
}

// WorkflowBundle holds the workflow engine and the grouping operation.
type WorkflowBundle struct {
	Engine   workflow.Engine
	Grouping workflow.VendorGrouping
}

// ProvideStore opens the configured row store.
// The sqlite backend runs pending migrations and also provides the document index.
func ProvideStore(cfg *Config, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Store.Backend {
	case StoreSQLite:
		db, err := sqlite.Open(sqlite.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}

		return &StoreBundle{
			Backend: StoreSQLite,
			Store:   sqlite.NewStore(db),
			DB:      db,
			Index:   sqlite.NewDocumentIndex(db),
			closeFn: db.Close,
		}, nil

	case StoreExcel:
		store, err := excel.Open(cfg.Store.ExcelPath,
			excel.WithColumns(rowstore.Columns),
			excel.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		return &StoreBundle{
			Backend: StoreExcel,
			Store:   store,
			closeFn: store.Close,
		}, nil

	case StoreMemory:
		return &StoreBundle{
			Backend: StoreMemory,
			Store:   memory.NewStore(),
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
}

// ProvidePersistence creates the repository and unit of work over a store.
func ProvidePersistence(store port.EntityStore, cfg *WorkflowConfig, logger *zap.Logger) (*PersistenceBundle, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("workflow config is required")
	}

	opts := rowstore.Options{
		IndentPrefix:        cfg.IndentPrefix,
		PurchaseOrderPrefix: cfg.PurchaseOrderPrefix,
	}
	uow := rowstore.NewUnitOfWork(store, opts, utils.NewKVLogger(logger))

	return &PersistenceBundle{
		UnitOfWork: uow,
		Repository: uow.Repository(),
	}, nil
}

// ProvideDocuments creates the document store under the configured directory.
func ProvideDocuments(cfg *DocumentsConfig, index storage.Index, logger *zap.Logger) (*storage.DocumentStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("documents config is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	files := storage.NewLocalFileStorage(cfg.Dir, logger)
	return storage.NewDocumentStore(files, index, logger), nil
}

// ProvideNotifiers creates the link notifier and, when configured, the Lark messenger.
func ProvideNotifiers(cfg *Config, logger *zap.Logger) (*NotifierBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	bundle := &NotifierBundle{
		Links: notification.NewLinkNotifier(cfg.Notification.LinkOutbox, logger),
	}
	bundle.All = append(bundle.All, bundle.Links)

	if cfg.Lark.AppID != "" {
		sdkClient := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
		bundle.Lark = infraLark.NewMessenger(sdkClient, logger)
		bundle.All = append(bundle.All, bundle.Lark)
		logger.Info("Lark delivery enabled", zap.String("app_id", sdkClient.GetAppID()))
	}

	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger)),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Persistence *PersistenceBundle
	Dispatcher  dispatcher.Dispatcher
	Logger      *zap.Logger
}

// ProvideWorkflow creates the workflow engine and vendor grouping.
func ProvideWorkflow(deps *WorkflowDeps) (*WorkflowBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Persistence == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	}

	return &WorkflowBundle{
		Engine:   workflow.NewEngine(deps.Persistence.Repository, deps.Persistence.UnitOfWork, opts...),
		Grouping: workflow.NewVendorGrouping(deps.Persistence.Repository, deps.Persistence.UnitOfWork, opts...),
	}, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Persistence  *PersistenceBundle
	Workflow     *WorkflowBundle
	Documents    port.DocumentService
	Notifiers    []port.Notifier
	Dispatcher   dispatcher.Dispatcher
	Notification *NotificationConfig
	AutoGroup    bool
	Logger       *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification service to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Persistence == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if deps.Documents == nil {
		return nil, fmt.Errorf("document service is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)
	repo := deps.Persistence.Repository

	bundle := &ServiceBundle{
		Indent: service.NewIndentService(
			deps.Workflow.Engine,
			deps.Workflow.Grouping,
			repo,
			serviceLogger,
			service.WithAutoGroup(deps.AutoGroup),
		),
		PurchaseOrder: service.NewPurchaseOrderService(
			deps.Workflow.Engine,
			repo,
			deps.Documents,
			serviceLogger,
		),
		Record: service.NewRecordService(
			repo,
			deps.Persistence.UnitOfWork,
			serviceLogger,
		),
		Dashboard: service.NewDashboardService(repo, serviceLogger),
	}

	if deps.Notification != nil {
		bundle.Notification = service.NewNotificationService(
			repo,
			directoryFrom(deps.Notification.Recipients),
			deps.Notifiers,
			deps.Notification.BaseURL,
			serviceLogger,
		)
		if deps.Dispatcher != nil {
			bundle.Notification.Register(deps.Dispatcher)
		}
	}

	return bundle, nil
}

func directoryFrom(recipients map[string][]string) service.StaticDirectory {
	directory := make(service.StaticDirectory, len(recipients))
	for role, addrs := range recipients {
		directory[domainwf.Role(role)] = addrs
	}
	return directory
}

// ProvideWorkers creates the supervisor and registers the grouping
// worker when an interval is configured. Workers are not started.
func ProvideWorkers(cfg *WorkerConfig, grouper worker.Grouper, logger *zap.Logger) (*worker.Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	supervisor := worker.NewSupervisor(logger)

	if cfg.GroupingInterval > 0 {
		if grouper == nil {
			return nil, fmt.Errorf("grouper is required for the grouping worker")
		}
		err := supervisor.Register(worker.NewGroupingWorker(worker.GroupingWorkerConfig{
			PollInterval: cfg.GroupingInterval,
			PassTimeout:  cfg.GroupingTimeout,
		}, grouper, logger))
		if err != nil {
			return nil, err
		}
	}

	return supervisor, nil
}
