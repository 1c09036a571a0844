package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raceview/internal/blob"
	"raceview/internal/core"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceBlob, cfg.Source.Driver)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Equal(t, core.StorageSQLite, cfg.Preferences.Driver)
	assert.Equal(t, filepath.Join("data", "races.json"), cfg.DataPath())
}

func TestPrecedenceFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raceview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
log:
  level: debug
source:
  key: file.json
  refresh: 30s
blob:
  driver: s3
  s3:
    bucket: from-file
    path_style: true
preferences:
  driver: memory
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Source.Refresh)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.True(t, cfg.Blob.S3.PathStyle)

	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{
		"RACEVIEW_ADDR":           ":9100",
		"RACEVIEW_BLOB_S3_BUCKET": "from-env",
		"RACEVIEW_PREFS_DRIVER":   "postgres",
		"RACEVIEW_POSTGRES_DSN":   "postgres://x",
		"RACEVIEW_SOURCE_KEY":     "  ",
		"RACEVIEW_WATCH":          "false",
		"RACEVIEW_EXPORTS_QUEUE":  "4",
	})))
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, "from-env", cfg.Blob.S3.Bucket)
	assert.Equal(t, core.StoragePostgres, cfg.Preferences.Driver)
	assert.Equal(t, "file.json", cfg.Source.Key, "blank variables are ignored")
	assert.Equal(t, 4, cfg.Exports.QueueSize)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"RACEVIEW_WATCH":            "maybe",
		"RACEVIEW_CACHE_SIZE":       "lots",
		"RACEVIEW_REFRESH_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RACEVIEW_WATCH")
	assert.Contains(t, err.Error(), "RACEVIEW_CACHE_SIZE")
	assert.Contains(t, err.Error(), "RACEVIEW_REFRESH_INTERVAL")
	assert.Equal(t, 128, cfg.HTTP.CacheSize)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("http: [unclosed"), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Driver = SourceHTTP
	cfg.Source.URL = "https://example.test/races.json"
	path := filepath.Join(t.TempDir(), "nested", "raceview.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDotEnv(t *testing.T) {
	const name = "RACEVIEW_DOTENV_PROBE"
	t.Cleanup(func() { _ = os.Unsetenv(name) })
	t.Setenv("RACEVIEW_LOG_FORMAT", "console")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(name+"=loaded\nRACEVIEW_LOG_FORMAT=json\n"), 0o644))
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "loaded", os.Getenv(name))
	assert.Equal(t, "console", os.Getenv("RACEVIEW_LOG_FORMAT"), "existing variables win")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty addr":        func(c *Config) { c.HTTP.Addr = "" },
		"cache size":        func(c *Config) { c.HTTP.CacheSize = 0 },
		"log level":         func(c *Config) { c.Log.Level = "loud" },
		"log format":        func(c *Config) { c.Log.Format = "xml" },
		"source driver":     func(c *Config) { c.Source.Driver = "ftp" },
		"blob key":          func(c *Config) { c.Source.Key = "" },
		"http url":          func(c *Config) { c.Source.Driver = SourceHTTP },
		"negative refresh":  func(c *Config) { c.Source.Refresh = -time.Second },
		"source timeout":    func(c *Config) { c.Source.Timeout = 0 },
		"shutdown timeout":  func(c *Config) { c.HTTP.ShutdownTimeout = -time.Second },
		"watch over http":   func(c *Config) { c.Source.Driver, c.Source.URL, c.Source.Watch = SourceHTTP, "http://x", true },
		"watch over s3":     func(c *Config) { c.Blob.Driver, c.Blob.S3.Bucket, c.Source.Watch = blob.DriverS3, "b", true },
		"s3 bucket":         func(c *Config) { c.Blob.Driver = blob.DriverS3 },
		"blob driver":       func(c *Config) { c.Blob.Driver = "ftp" },
		"postgres dsn":      func(c *Config) { c.Preferences.Driver = core.StoragePostgres },
		"preference driver": func(c *Config) { c.Preferences.Driver = "redis" },
		"metrics driver":    func(c *Config) { c.Metrics.Driver = "statsd" },
		"export queue":      func(c *Config) { c.Exports.QueueSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Source.Watch = true
	cfg.Exports = ExportsConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	l, err := LogConfig{Level: "warn", Format: "console"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))

	_, err = LogConfig{Level: "chatty"}.NewLogger()
	assert.Error(t, err)
}
