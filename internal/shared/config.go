package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Database  DatabaseConfig  `toml:"database"`
	Fetcher   FetcherConfig   `toml:"fetcher"`
	Remote    RemoteConfig    `toml:"remote"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Lock      LockConfig      `toml:"lock"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

// StorageConfig locates the mirrored library on disk.
//
// Playlists live at {root}/{owner}/{playlist_id}/.
type StorageConfig struct {
	Root            string   `toml:"root"`
	MediaExtensions []string `toml:"media_extensions"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// FetcherConfig controls how the yt-dlp binary is invoked.
type FetcherConfig struct {
	Binary         string   `toml:"binary"`
	FFmpegBinary   string   `toml:"ffmpeg_binary"`
	AudioFormat    string   `toml:"audio_format"`
	AudioQuality   string   `toml:"audio_quality"`
	OutputTemplate string   `toml:"output_template"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	CookiesFile    string   `toml:"cookies_file"`
	ExtraArgs      []string `toml:"extra_args"`
}

// RemoteConfig protects the video platform from bursts of flat listings.
type RemoteConfig struct {
	RateLimit             float64 `toml:"rate_limit"`
	BreakerFailures       uint32  `toml:"breaker_failures"`
	BreakerTimeoutSeconds int     `toml:"breaker_timeout_seconds"`
}

// ReconcileConfig holds the bounded retry policy and worker count for reconciliation.
type ReconcileConfig struct {
	MaxAttempts            int  `toml:"max_attempts"`
	BackoffSeconds         int  `toml:"backoff_seconds"`
	Workers                int  `toml:"workers"`
	RepairOnIntegrityIssue bool `toml:"repair_on_integrity_issue"`
}

// SchedulerConfig sets the periodic scan interval and how many playlists a scan inspects at once.
type SchedulerConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
	ScanWorkers     int `toml:"scan_workers"`
}

// LockConfig selects the per-playlist mutual exclusion backend.
type LockConfig struct {
	Backend    string `toml:"backend"`
	RedisAddr  string `toml:"redis_addr"`
	RedisDB    int    `toml:"redis_db"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// ServerConfig contains HTTP server settings for health and metrics.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the minimum log level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// Lock backends understood by [LockConfig.Backend].
const (
	LockBackendMemory = "memory"
	LockBackendFile   = "file"
	LockBackendRedis  = "redis"
)

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a sync cycle.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("%w: storage.root is required", ErrInvalidConfig)
	}
	if c.Reconcile.MaxAttempts <= 0 {
		return fmt.Errorf("%w: reconcile.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Reconcile.BackoffSeconds < 0 {
		return fmt.Errorf("%w: reconcile.backoff_seconds cannot be negative", ErrInvalidConfig)
	}
	if c.Reconcile.Workers <= 0 {
		return fmt.Errorf("%w: reconcile.workers must be positive", ErrInvalidConfig)
	}
	switch c.Lock.Backend {
	case LockBackendMemory, LockBackendFile:
	case LockBackendRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("%w: lock.redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown lock backend %q", ErrInvalidConfig, c.Lock.Backend)
	}
	return nil
}

// Backoff is the fixed delay between reconcile attempts.
func (c ReconcileConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// Timeout bounds a single fetcher invocation. Zero disables the bound.
func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval is the delay between scheduled scans.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// TTL is how long a distributed lock survives a crashed holder.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Addr is the host:port the HTTP server listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
