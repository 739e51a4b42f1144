// Package config loads crosswalk settings from an optional YAML file and
// CROSSWALK_* environment variables. Environment values override the file;
// command-line flags override both and are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv. Blob and S3 variables are
// read by the blob package directly.
const (
	EnvConfigFile     = "CROSSWALK_CONFIG"
	EnvLogFormat      = "CROSSWALK_LOG_FORMAT"
	EnvLogLevel       = "CROSSWALK_LOG_LEVEL"
	EnvSourceURL      = "CROSSWALK_SOURCE_URL"
	EnvSourceTimeout  = "CROSSWALK_SOURCE_TIMEOUT"
	EnvSourceArchive  = "CROSSWALK_SOURCE_ARCHIVE"
	EnvStorageDriver  = "CROSSWALK_STORAGE_DRIVER"
	EnvSQLitePath     = "CROSSWALK_SQLITE_PATH"
	EnvPostgresDSN    = "CROSSWALK_POSTGRES_DSN"
	EnvBlobDriver     = "CROSSWALK_BLOB_DRIVER"
	EnvBlobFSRoot     = "CROSSWALK_BLOB_FS_ROOT"
	EnvServerAddr     = "CROSSWALK_ADDR"
	EnvMetricsBackend = "CROSSWALK_METRICS"
	EnvTracing        = "CROSSWALK_TRACING"
)

// Config is the full runtime configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format" validate:"oneof=text json"`
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SourceConfig configures the BFS client.
type SourceConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Archive stores every download in the blob store and falls back to
	// the latest archived snapshot when the service is unreachable.
	Archive bool `yaml:"archive"`
}

// StorageConfig selects the record cache.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// BlobConfig selects the blob store for archives and exports.
type BlobConfig struct {
	Driver string `yaml:"driver" validate:"oneof=fs s3 memory"`
	FSRoot string `yaml:"fs_root"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
}

// MetricsConfig selects the metrics and tracing backends.
type MetricsConfig struct {
	Backend string `yaml:"backend" validate:"oneof=none expvar prometheus"`
	Tracing string `yaml:"tracing" validate:"oneof=none json otel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Format: "text", Level: "info"},
		Source:  SourceConfig{BaseURL: "https://www.agvchapp.bfs.admin.ch", Timeout: 60 * time.Second, Archive: true},
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "crosswalk.db"},
		Blob:    BlobConfig{Driver: "fs", FSRoot: "./data"},
		Server:  ServerConfig{Addr: "127.0.0.1:8080", ReadTimeout: 30 * time.Second, WriteTimeout: 5 * time.Minute},
		Metrics: MetricsConfig{Backend: "prometheus", Tracing: "none"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Decode(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges YAML from r into c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides c with the variables lookup reports as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvLogFormat, &c.Log.Format)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvSourceURL, &c.Source.BaseURL)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvSQLitePath, &c.Storage.SQLitePath)
	str(EnvPostgresDSN, &c.Storage.PostgresDSN)
	str(EnvBlobDriver, &c.Blob.Driver)
	str(EnvBlobFSRoot, &c.Blob.FSRoot)
	str(EnvServerAddr, &c.Server.Addr)
	str(EnvMetricsBackend, &c.Metrics.Backend)
	str(EnvTracing, &c.Metrics.Tracing)
	if v, ok := lookup(EnvSourceTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSourceTimeout, err)
		}
		c.Source.Timeout = d
	}
	if v, ok := lookup(EnvSourceArchive); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSourceArchive, err)
		}
		c.Source.Archive = b
	}
	return nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the slog logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c LogConfig) level() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
