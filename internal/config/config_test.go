package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/catalog.db", cfg.Database.DSN())
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "gs", cfg.Importer.DefaultWorkspace)
	assert.Equal(t, 2, cfg.Importer.RunWorkers)
	assert.Equal(t, 10*time.Second, cfg.Styles.Timeout)
	assert.False(t, cfg.Storage.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("STORAGE_SECRET_KEY", "from-env")
	t.Setenv("IMPORTER_RUN_WORKERS", "4")

	path := writeConfig(t, `
database:
  driver: postgres
  host: db
  user: geo
  password: pw
  dbname: catalog
storage:
  enabled: true
  endpoint: https://acct.r2.cloudflarestorage.com
  bucket: uploads
importer:
  workspaces: [topp, sf]
styles:
  base_url: http://styles:8000
  timeout: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=geo password=pw dbname=catalog sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "from-env", cfg.Storage.SecretKey)
	assert.Equal(t, 4, cfg.Importer.RunWorkers)
	assert.Equal(t, []string{"topp", "sf"}, cfg.Importer.Workspaces)
	assert.Equal(t, "http://styles:8000", cfg.Styles.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Styles.Timeout)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Importer: ImporterConfig{DefaultWorkspace: "gs", RunWorkers: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.host"},
		{"storage without bucket", func(c *Config) {
			c.Storage.Enabled = true
			c.Storage.Endpoint = "localhost:9000"
		}, "storage.bucket"},
		{"no workspace", func(c *Config) { c.Importer.DefaultWorkspace = "" }, "default_workspace"},
		{"no workers", func(c *Config) { c.Importer.RunWorkers = 0 }, "run_workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
