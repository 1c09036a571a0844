// Package config loads raceview settings. Precedence, lowest first:
// defaults, YAML file, environment (RACEVIEW_*), command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"raceview/internal/blob"
	"raceview/internal/core"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "RACEVIEW_"

// Source drivers.
const (
	SourceBlob = "blob"
	SourceHTTP = "http"
)

// Metrics drivers.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	MetricsNone       = "none"
)

// Config is the complete raceview configuration.
type Config struct {
	HTTP        HTTPConfig                 `yaml:"http"`
	Log         LogConfig                  `yaml:"log"`
	Source      SourceConfig               `yaml:"source"`
	Blob        blob.Config                `yaml:"blob"`
	Preferences core.PreferenceStoreConfig `yaml:"preferences"`
	Metrics     MetricsConfig              `yaml:"metrics"`
	Exports     ExportsConfig              `yaml:"exports"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// SecureCookies marks preference cookies Secure; enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`
	// CacheSize bounds the derived-view cache.
	CacheSize       int           `yaml:"cache_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	// Trace writes one JSON line per service operation to stderr.
	Trace bool `yaml:"trace"`
}

// SourceConfig says where the dataset comes from.
type SourceConfig struct {
	Driver  string        `yaml:"driver"`
	Key     string        `yaml:"key"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// Refresh reloads the dataset periodically when positive.
	Refresh time.Duration `yaml:"refresh"`
	// Watch reloads when the file changes; filesystem blob sources only.
	Watch bool `yaml:"watch"`
}

// MetricsConfig selects the metrics recorder.
type MetricsConfig struct {
	Driver string `yaml:"driver"`
}

// ExportsConfig configures the export worker.
type ExportsConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			CacheSize:       128,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Source: SourceConfig{
			Driver:  SourceBlob,
			Key:     "races.json",
			Timeout: 10 * time.Second,
		},
		Blob:        blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./data"},
		Preferences: core.PreferenceStoreConfig{Driver: core.StorageSQLite, SQLitePath: "raceview.db"},
		Metrics:     MetricsConfig{Driver: MetricsPrometheus},
		Exports:     ExportsConfig{Enabled: true, QueueSize: 32},
	}
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes cfg as YAML, creating the parent directory.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, after loading ./.env.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RACEVIEW_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	e.str("ADDR", &c.HTTP.Addr)
	e.boolean("SECURE_COOKIES", &c.HTTP.SecureCookies)
	e.integer("CACHE_SIZE", &c.HTTP.CacheSize)
	e.duration("SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.boolean("TRACE", &c.Log.Trace)

	e.str("SOURCE_DRIVER", &c.Source.Driver)
	e.str("SOURCE_KEY", &c.Source.Key)
	e.str("SOURCE_URL", &c.Source.URL)
	e.duration("SOURCE_TIMEOUT", &c.Source.Timeout)
	e.duration("REFRESH_INTERVAL", &c.Source.Refresh)
	e.boolean("WATCH", &c.Source.Watch)

	var driver string
	if e.str("BLOB_DRIVER", &driver) {
		c.Blob.Driver = blob.Driver(driver)
	}
	e.str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	e.str("BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	e.str("BLOB_S3_REGION", &c.Blob.S3.Region)
	e.str("BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	e.boolean("BLOB_S3_PATH_STYLE", &c.Blob.S3.PathStyle)
	e.str("BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	e.str("BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)

	if e.str("PREFS_DRIVER", &driver) {
		c.Preferences.Driver = core.StorageDriver(driver)
	}
	e.str("SQLITE_PATH", &c.Preferences.SQLitePath)
	e.str("POSTGRES_DSN", &c.Preferences.PostgresDSN)

	e.str("METRICS_DRIVER", &c.Metrics.Driver)
	e.boolean("EXPORTS_ENABLED", &c.Exports.Enabled)
	e.integer("EXPORTS_QUEUE", &c.Exports.QueueSize)
	return errors.Join(e.errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(name string, dst *string) bool {
	v, ok := e.get(name)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.CacheSize <= 0 {
		return fmt.Errorf("http.cache_size must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	switch c.Source.Driver {
	case SourceBlob:
		if c.Source.Key == "" {
			return fmt.Errorf("source.key is required for blob sources")
		}
	case SourceHTTP:
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required for http sources")
		}
	default:
		return fmt.Errorf("unknown source driver %q", c.Source.Driver)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive")
	}
	if c.Source.Refresh < 0 {
		return fmt.Errorf("source.refresh must not be negative")
	}
	if c.Source.Watch && (c.Source.Driver != SourceBlob || c.Blob.Driver != blob.DriverFilesystem) {
		return fmt.Errorf("source.watch needs a filesystem blob source")
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch c.Preferences.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Preferences.PostgresDSN == "" {
			return fmt.Errorf("preferences.postgres_dsn is required")
		}
	default:
		return fmt.Errorf("unknown preferences driver %q", c.Preferences.Driver)
	}
	switch c.Metrics.Driver {
	case MetricsPrometheus, MetricsExpvar, MetricsNone:
	default:
		return fmt.Errorf("unknown metrics driver %q", c.Metrics.Driver)
	}
	if c.Exports.Enabled && c.Exports.QueueSize <= 0 {
		return fmt.Errorf("exports.queue_size must be positive")
	}
	return nil
}

// DataPath is the local file behind a filesystem blob source.
func (c *Config) DataPath() string {
	return filepath.Join(c.Blob.FSRoot, filepath.FromSlash(c.Source.Key))
}

// NewLogger builds a production zap logger at the configured level, with the
// development console encoder when Format is console.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
