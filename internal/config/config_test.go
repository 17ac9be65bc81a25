package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "breakq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "breakq.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 6, cfg.SubCycles)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, "Asia/Dubai", cfg.Timezone)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, 10*time.Second, cfg.Cadence())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/breakq/queue.db
batch_size: 25
interval: 30s
sub_cycles: 3
timezone: UTC
lease_ttl: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/breakq/queue.db", cfg.DBPath)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.Cadence())
	assert.Equal(t, 90*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 2*time.Second, cfg.LockWait, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "batch_size: 25\n")
	t.Setenv("BREAKQ_BATCH_SIZE", "40")
	t.Setenv("BREAKQ_TIMEZONE", "UTC")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.BatchSize)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BREAKQ_TIMEZONE", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"sub cycles", func(c *Config) { c.SubCycles = 0 }, "sub_cycles"},
		{"interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "Mars/Olympus"},
		{"lease ttl", func(c *Config) { c.LeaseTTL = 0 }, "lease_ttl"},
		{"short lease ttl", func(c *Config) { c.LeaseTTL = 500 * time.Millisecond }, "lease_ttl"},
		{"db path", func(c *Config) { c.DBPath = "" }, "db_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Timezone = "UTC"
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	cfg := Default()
	cat, err := cfg.LoadCatalog()
	require.NoError(t, err)
	_, err = cat.Lookup("cf+2")
	assert.NoError(t, err)

	cfg.CatalogPath = filepath.Join("..", "catalog", "testdata", "catalog.yaml")
	cat, err = cfg.LoadCatalog()
	require.NoError(t, err)
	_, err = cat.Lookup("wc")
	assert.NoError(t, err)
}
