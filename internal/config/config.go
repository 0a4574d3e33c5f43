// Package config loads the fieldsync configuration from YAML or TOML,
// applies environment overrides and validates the result against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/syncer"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file values.
const (
	EnvClientSecret = "FIELDSYNC_CLIENT_SECRET"
	EnvClientID     = "FIELDSYNC_CLIENT_ID"
	EnvEmployeeID   = "FIELDSYNC_EMPLOYEE_ID"
	EnvBaseURL      = "FIELDSYNC_BASE_URL"
	EnvDatabasePath = "FIELDSYNC_DB"
)

// Config is the complete fieldsync configuration.
type Config struct {
	Database       DatabaseConfig    `yaml:"database" toml:"database" json:"database"`
	API            APIConfig         `yaml:"api" toml:"api" json:"api"`
	Identity       IdentityConfig    `yaml:"identity" toml:"identity" json:"identity"`
	Capture        CaptureConfig     `yaml:"capture" toml:"capture" json:"capture"`
	Sync           SyncConfig        `yaml:"sync" toml:"sync" json:"sync"`
	Maintenance    MaintenanceConfig `yaml:"maintenance" toml:"maintenance" json:"maintenance"`
	UTCOffsetHours int               `yaml:"utc_offset_hours" toml:"utc_offset_hours" json:"utc_offset_hours"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

// APIConfig holds the remote API endpoint and client credentials.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	ClientID     string        `yaml:"client_id" toml:"client_id" json:"client_id"`
	ClientSecret string        `yaml:"client_secret" toml:"client_secret" json:"client_secret"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// IdentityConfig names the signed-in employee.
type IdentityConfig struct {
	EmployeeID string `yaml:"employee_id" toml:"employee_id" json:"employee_id"`
}

// CaptureConfig holds the location filter thresholds.
type CaptureConfig struct {
	MaxAccuracyMeters float64       `yaml:"max_accuracy_meters" toml:"max_accuracy_meters" json:"max_accuracy_meters"`
	MinDistanceMeters float64       `yaml:"min_distance_meters" toml:"min_distance_meters" json:"min_distance_meters"`
	StopCheckThrottle time.Duration `yaml:"stop_check_throttle" toml:"stop_check_throttle" json:"stop_check_throttle"`
	UploadInterval    time.Duration `yaml:"upload_interval" toml:"upload_interval" json:"upload_interval"`
	CheckinProximity  time.Duration `yaml:"checkin_proximity" toml:"checkin_proximity" json:"checkin_proximity"`
}

// SyncConfig holds the sync engine cadence and retry settings.
type SyncConfig struct {
	Interval    time.Duration `yaml:"interval" toml:"interval" json:"interval"`
	BatchSize   int           `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
}

// MaintenanceConfig holds retention and legacy migration settings.
type MaintenanceConfig struct {
	RetentionDays int           `yaml:"retention_days" toml:"retention_days" json:"retention_days"`
	LegacyPath    string        `yaml:"legacy_path" toml:"legacy_path" json:"legacy_path"`
	Every         time.Duration `yaml:"every" toml:"every" json:"every"`
}

// Default returns the production configuration.
func Default() Config {
	c := capture.DefaultConfig()
	s := syncer.DefaultConfig()
	return Config{
		Database: DatabaseConfig{Path: "fieldsync.db"},
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8089",
			Timeout: 30 * time.Second,
		},
		Capture: CaptureConfig{
			MaxAccuracyMeters: c.MaxAccuracyMeters,
			MinDistanceMeters: c.MinDistanceMeters,
			StopCheckThrottle: c.StopCheckThrottle,
			UploadInterval:    c.UploadInterval,
			CheckinProximity:  c.CheckinProximity,
		},
		Sync: SyncConfig{
			Interval:    s.Interval,
			BatchSize:   s.BatchSize,
			MaxAttempts: s.MaxAttempts,
			RetryDelay:  s.RetryDelay,
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: 30,
			Every:         time.Minute,
		},
		UTCOffsetHours: 7,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode picks the format by file extension. Unknown keys are rejected.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parsing config %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q (want .yaml, .yml or .toml)", path, filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.API.ClientSecret, EnvClientSecret)
	set(&c.API.ClientID, EnvClientID)
	set(&c.Identity.EmployeeID, EnvEmployeeID)
	set(&c.API.BaseURL, EnvBaseURL)
	set(&c.Database.Path, EnvDatabasePath)
}

// Validate checks c against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	value := ctx.CompileBytes(data, cue.Filename("config"))
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fault.New(fault.KindValidation, "config.validate",
			errors.New(strings.TrimSpace(cueerrors.Details(err, nil))))
	}
	return nil
}

// Location returns the civil time zone.
func (c Config) Location() *time.Location {
	if c.UTCOffsetHours == 7 {
		return model.WIB
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*60*60)
}

// CaptureSettings converts the capture section.
func (c Config) CaptureSettings() capture.Config {
	return capture.Config{
		MaxAccuracyMeters: c.Capture.MaxAccuracyMeters,
		MinDistanceMeters: c.Capture.MinDistanceMeters,
		StopCheckThrottle: c.Capture.StopCheckThrottle,
		UploadInterval:    c.Capture.UploadInterval,
		CheckinProximity:  c.Capture.CheckinProximity,
		Location:          c.Location(),
	}
}

// SyncSettings converts the sync section.
func (c Config) SyncSettings() syncer.Config {
	return syncer.Config{
		Interval:    c.Sync.Interval,
		BatchSize:   c.Sync.BatchSize,
		MaxAttempts: c.Sync.MaxAttempts,
		RetryDelay:  c.Sync.RetryDelay,
		Location:    c.Location(),
	}
}

// ClientSettings converts the api section.
func (c Config) ClientSettings() api.Config {
	return api.Config{
		BaseURL:      c.API.BaseURL,
		ClientID:     c.API.ClientID,
		ClientSecret: c.API.ClientSecret,
		Timeout:      c.API.Timeout,
		Location:     c.Location(),
	}
}
