package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

const sampleConfig = `
server:
  port: 9090
store:
  backend: excel
  excel_path: /tmp/indents.xlsx
documents:
  dir: /tmp/docs
notification:
  base_url: https://indents.plant.example
  recipients:
    purchase_manager:
      - pm@plant.example
      - "+91 98450 12345"
    store_keeper:
      - stores@plant.example
workflow:
  auto_group: true
  grouping_interval: 2m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendExcel, cfg.Store.Backend)
	assert.True(t, cfg.Workflow.AutoGroup)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.GroupingInterval)
	assert.Equal(t, "IND-", cfg.Workflow.IndentPrefix, "default kept")
	assert.False(t, cfg.Lark.Enabled())

	directory := cfg.Directory()
	assert.Equal(t, []string{"pm@plant.example", "+91 98450 12345"}, directory[domainwf.RolePurchaseManager])
	assert.Equal(t, []string{"stores@plant.example"}, directory[domainwf.RoleStoreKeeper])
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "data/indents.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Notification.LinkOutbox)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INDENT_SERVER_PORT", "7070")
	t.Setenv("INDENT_STORE_BACKEND", "memory")
	t.Setenv("LARK_APP_ID", "cli_a1")
	t.Setenv("LARK_APP_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.True(t, cfg.Lark.Enabled())
	assert.Equal(t, "secret", cfg.Lark.AppSecret)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Path: "indents.db"},
			Store:     StoreConfig{Backend: BackendSQLite},
			Documents: DocumentsConfig{Dir: "docs"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: "store.backend"},
		{name: "excel without path", mutate: func(c *Config) { c.Store.Backend = BackendExcel }, wantErr: "store.excel_path"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "no documents dir", mutate: func(c *Config) { c.Documents.Dir = "" }, wantErr: "documents.dir"},
		{name: "lark without secret", mutate: func(c *Config) { c.Lark.AppID = "cli_a1" }, wantErr: "lark.app_secret"},
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Notification.Recipients = map[string][]string{"buyer": {"x@y.example"}} },
			wantErr: "unknown role",
		},
		{name: "negative interval", mutate: func(c *Config) { c.Workflow.GroupingInterval = -time.Second }, wantErr: "grouping_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
