// Package container provides dependency injection and lifecycle management
// for the indent workflow service.
package container

import (
	"fmt"
	"time"
)

// Store backends understood by ProvideStore
const (
	StoreSQLite = "sqlite"
	StoreExcel  = "excel"
	StoreMemory = "memory"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Store        StoreConfig
	Documents    DocumentsConfig
	Lark         LarkConfig
	Notification NotificationConfig
	Workflow     WorkflowConfig
	Worker       WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StoreConfig selects the row store behind the repositories.
type StoreConfig struct {
	Backend string

	// ExcelPath is the workbook used by the excel backend
	ExcelPath string
}

// DocumentsConfig holds generated document settings.
type DocumentsConfig struct {
	Dir string
}

// LarkConfig holds Lark API settings. An empty AppID disables Lark delivery.
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// NotificationConfig holds notification routing.
type NotificationConfig struct {
	// BaseURL prefixes the links placed in messages
	BaseURL string

	// LinkOutbox is the number of prepared share links kept
	LinkOutbox int

	// Recipients maps a role name to addresses
	Recipients map[string][]string
}

// WorkflowConfig holds workflow settings.
type WorkflowConfig struct {
	AutoGroup           bool
	IndentPrefix        string
	PurchaseOrderPrefix string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// GroupingInterval of zero disables the grouping worker
	GroupingInterval time.Duration
	GroupingTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/indents.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Store: StoreConfig{
			Backend:   StoreSQLite,
			ExcelPath: "data/indents.xlsx",
		},
		Documents: DocumentsConfig{
			Dir: "data/documents",
		},
		Notification: NotificationConfig{
			BaseURL:    "http://localhost:8080",
			LinkOutbox: 200,
		},
		Workflow: WorkflowConfig{
			IndentPrefix:        "IND-",
			PurchaseOrderPrefix: "PO-",
		},
		Worker: WorkerConfig{
			GroupingTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case StoreExcel:
		if c.Store.ExcelPath == "" {
			return fmt.Errorf("store.excel_path is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Documents.Dir == "" {
		return fmt.Errorf("documents.dir is required")
	}

	if c.Lark.AppID != "" && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}

	return nil
}
