package config

import (
	"time"

	"github.com/garyjia/indent-flow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Store: container.StoreConfig{
			Backend:   c.Store.Backend,
			ExcelPath: c.Store.ExcelPath,
		},
		Documents: container.DocumentsConfig{
			Dir: c.Documents.Dir,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		Notification: container.NotificationConfig{
			BaseURL:    c.Notification.BaseURL,
			LinkOutbox: c.Notification.LinkOutbox,
			Recipients: c.Notification.Recipients,
		},
		Workflow: container.WorkflowConfig{
			AutoGroup:           c.Workflow.AutoGroup,
			IndentPrefix:        c.Workflow.IndentPrefix,
			PurchaseOrderPrefix: c.Workflow.PurchaseOrderPrefix,
		},
		Worker: container.WorkerConfig{
			GroupingInterval: c.Workflow.GroupingInterval,
			GroupingTimeout:  30 * time.Second,
		},
	}
}
