package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendExcel  = "excel"
	BackendMemory = "memory"
)

// EnvPrefix is prepended to every environment override, e.g. INDENT_SERVER_PORT
const EnvPrefix = "INDENT"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Store        StoreConfig        `mapstructure:"store"`
	Documents    DocumentsConfig    `mapstructure:"documents"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Notification NotificationConfig `mapstructure:"notification"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig selects the tabular store behind the workflow
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	ExcelPath string `mapstructure:"excel_path"`
}

// DocumentsConfig holds generated document storage configuration
type DocumentsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LarkConfig holds Lark API configuration. Lark delivery is off without an app id.
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// Enabled reports whether Lark credentials are configured
func (c LarkConfig) Enabled() bool {
	return c.AppID != ""
}

// NotificationConfig holds notification routing configuration
type NotificationConfig struct {
	BaseURL    string              `mapstructure:"base_url"`
	LinkOutbox int                 `mapstructure:"link_outbox"`
	Recipients map[string][]string `mapstructure:"recipients"`
}

// WorkflowConfig holds workflow behaviour switches
type WorkflowConfig struct {
	AutoGroup           bool          `mapstructure:"auto_group"`
	GroupingInterval    time.Duration `mapstructure:"grouping_interval"`
	IndentPrefix        string        `mapstructure:"indent_prefix"`
	PurchaseOrderPrefix string        `mapstructure:"purchase_order_prefix"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional YAML file, a .env file in the
// working directory and INDENT_* environment variables, in increasing priority
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/indents.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	// Store defaults
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.excel_path", "data/indents.xlsx")

	v.SetDefault("documents.dir", "data/documents")

	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("notification.base_url", "http://localhost:8080")
	v.SetDefault("notification.link_outbox", 200)

	// Workflow defaults
	v.SetDefault("workflow.auto_group", false)
	v.SetDefault("workflow.grouping_interval", time.Duration(0))
	v.SetDefault("workflow.indent_prefix", "IND-")
	v.SetDefault("workflow.purchase_order_prefix", "PO-")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds credentials that are commonly provided without the prefix
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"lark.app_id":     {"INDENT_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret": {"INDENT_LARK_APP_SECRET", "LARK_APP_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case BackendExcel:
		if c.Store.ExcelPath == "" {
			return fmt.Errorf("store.excel_path is required for the excel backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of %s, %s, %s: got %q", BackendSQLite, BackendExcel, BackendMemory, c.Store.Backend)
	}

	if c.Documents.Dir == "" {
		return fmt.Errorf("documents.dir is required")
	}

	if c.Lark.Enabled() && c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required when lark.app_id is set")
	}

	for role := range c.Notification.Recipients {
		if !domainwf.Role(role).IsValid() {
			return fmt.Errorf("notification.recipients: unknown role %q", role)
		}
	}

	if c.Workflow.GroupingInterval < 0 {
		return fmt.Errorf("workflow.grouping_interval cannot be negative")
	}

	return nil
}

// Directory returns the role to recipients routing table
func (c *Config) Directory() map[domainwf.Role][]string {
	directory := make(map[domainwf.Role][]string, len(c.Notification.Recipients))
	for role, recipients := range c.Notification.Recipients {
		directory[domainwf.Role(role)] = append([]string(nil), recipients...)
	}
	return directory
}
