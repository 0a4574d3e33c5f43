package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
)

func noEnv(string) (string, bool) { return "", false }

func env(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30.0, cfg.Capture.MaxAccuracyMeters)
	assert.Equal(t, 15*time.Second, cfg.Capture.StopCheckThrottle)
	assert.Same(t, model.WIB, cfg.Location())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "fieldsync.yaml", `
database:
  path: /var/lib/fieldsync/agent.db
api:
  base_url: https://api.example.com
  client_id: mobile
  timeout: 10s
identity:
  employee_id: EMP042
sync:
  interval: 90s
  batch_size: 8
`)
	cfg, err := load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fieldsync/agent.db", cfg.Database.Path)
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "EMP042", cfg.Identity.EmployeeID)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 8, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts, "unset keys keep defaults")
}

func TestLoad_TOML(t *testing.T) {
	path := write(t, "fieldsync.toml", `
utc_offset_hours = 8

[capture]
max_accuracy_meters = 20.0
min_distance_meters = 15.0
upload_interval = "5m"

[maintenance]
retention_days = 14
legacy_path = "pendingLocations.json"
`)
	cfg, err := load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Capture.MaxAccuracyMeters)
	assert.Equal(t, 5*time.Minute, cfg.Capture.UploadInterval)
	assert.Equal(t, 14, cfg.Maintenance.RetentionDays)
	assert.Equal(t, "pendingLocations.json", cfg.Maintenance.LegacyPath)

	_, offset := time.Date(2025, 3, 14, 0, 0, 0, 0, cfg.Location()).Zone()
	assert.Equal(t, 8*3600, offset)
	assert.Equal(t, cfg.Location(), cfg.CaptureSettings().Location)
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	_, err := load(write(t, "c.yaml", "sync:\n  batchsize: 3\n"), noEnv)
	assert.ErrorContains(t, err, "batchsize")

	_, err = load(write(t, "c.toml", "[sync]\nbatchsize = 3\n"), noEnv)
	assert.ErrorContains(t, err, "unknown keys")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := load(write(t, "c.json", "{}"), noEnv)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	assert.ErrorContains(t, err, "reading config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := write(t, "c.yaml", "api:\n  client_secret: from-file\n")
	cfg, err := load(path, env(map[string]string{
		EnvClientSecret: "from-env",
		EnvClientID:     "cid",
		EnvEmployeeID:   "EMP7",
		EnvBaseURL:      "https://staging.example.com",
		EnvDatabasePath: "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.ClientSecret)
	assert.Equal(t, "cid", cfg.API.ClientID)
	assert.Equal(t, "EMP7", cfg.Identity.EmployeeID)
	assert.Equal(t, "https://staging.example.com", cfg.API.BaseURL)
	assert.Equal(t, "fieldsync.db", cfg.Database.Path, "empty values do not override")
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative distance", func(c *Config) { c.Capture.MinDistanceMeters = -1 }, "min_distance_meters"},
		{"zero accuracy", func(c *Config) { c.Capture.MaxAccuracyMeters = 0 }, "max_accuracy_meters"},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }, "batch_size"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "interval"},
		{"bad url", func(c *Config) { c.API.BaseURL = "ftp://x" }, "base_url"},
		{"empty db", func(c *Config) { c.Database.Path = "" }, "path"},
		{"offset", func(c *Config) { c.UTCOffsetHours = 20 }, "utc_offset_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.KindValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSettingsConversion(t *testing.T) {
	cfg := Default()
	cfg.API.ClientID = "cid"
	s := cfg.SyncSettings()
	assert.Equal(t, cfg.Sync.BatchSize, s.BatchSize)
	assert.Equal(t, cfg.Sync.RetryDelay, s.RetryDelay)
	c := cfg.ClientSettings()
	assert.Equal(t, "cid", c.ClientID)
	assert.Equal(t, cfg.API.Timeout, c.Timeout)
}
