package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// Current version of the config files.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig `koanf:"common"`
	Worker WorkerConfig `koanf:"worker"`
}

// CommonConfig contains configuration shared between every binary.
type CommonConfig struct {
	// Version of the common config.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Database  Database  `koanf:"database"`
	Redis     Redis     `koanf:"redis"`
	Loki      Loki      `koanf:"loki"`
	Sentry    Sentry    `koanf:"sentry"`
	Telemetry Telemetry `koanf:"telemetry"`
	Security  Security  `koanf:"security"`
	Remote    Remote    `koanf:"remote"`
	API       API       `koanf:"api"`
}

// WorkerConfig contains the reconciliation worker configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version  int      `koanf:"version"`
	Sync     Sync     `koanf:"sync"`
	Reaction Reaction `koanf:"reaction"`
	Daemon   Daemon   `koanf:"daemon"`
	Tasks    Tasks    `koanf:"tasks"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Show a terminal progress bar for each daemon.
	ShowProgress bool `koanf:"show_progress"`
}

// Database contains database connection configuration.
type Database struct {
	// Driver selects the dialect (postgres or sqlite).
	Driver string `koanf:"driver"`
	// Path of the SQLite database file when driver is sqlite.
	Path string `koanf:"path"`
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Loki contains Grafana Loki logging configuration.
type Loki struct {
	// Enable Loki integration
	Enabled bool `koanf:"enabled"`
	// Loki server URL (without /loki/api/v1/push suffix)
	URL string `koanf:"url"`
	// Maximum number of log entries per batch
	BatchMaxSize int `koanf:"batch_max_size"`
	// Maximum time to wait before sending a batch (in milliseconds)
	BatchMaxWaitMS int `koanf:"batch_max_wait_ms"`
	// Labels added to all log streams
	Labels map[string]string `koanf:"labels"`
	// Basic authentication username (optional)
	Username string `koanf:"username"`
	// Basic authentication password (optional)
	Password string `koanf:"password"`
}

// Sentry contains error reporting configuration.
type Sentry struct {
	// DSN of the Sentry project. Empty disables reporting.
	DSN string `koanf:"dsn"`
	// Environment name attached to events.
	Environment string `koanf:"environment"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Empty disables tracing export.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service version reported with traces.
	ServiceVersion string `koanf:"service_version"`
}

// Security contains secrets used to protect stored credentials.
type Security struct {
	// Base64 encoded 32 byte key used to seal access tokens.
	TokenKey string `koanf:"token_key"`
}

// Remote contains configuration for the remote server API clients.
type Remote struct {
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Maximum requests per second sent to a single server.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Burst size of the request limiter.
	Burst int `koanf:"burst"`
	// Number of items requested per page.
	PageSize int `koanf:"page_size"`
	// User agent sent with every request.
	UserAgent string `koanf:"user_agent"`
	// Circuit breaker guarding each server.
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
}

// CircuitBreaker contains circuit breaker configuration.
type CircuitBreaker struct {
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period of the closed state for the circuit breaker to clear the internal counts.
	Interval int `koanf:"interval"`
	// The period of the open state after which the state of the circuit breaker becomes half-open.
	Timeout int `koanf:"timeout"`
}

// API contains the live delivery HTTP server configuration.
type API struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Interval between flush events on the event stream in milliseconds.
	FlushInterval int `koanf:"flush_interval"`
	// Default display window for reaction listings in milliseconds.
	DefaultWindow int `koanf:"default_window"`
	// Requests per second allowed from one client address.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Burst size of the per-client limiter.
	Burst int `koanf:"burst"`
}

// Sync configures the paginated sync activities.
type Sync struct {
	// Oldest item age in hours that unbounded walks will fetch.
	HorizonHours int `koanf:"horizon_hours"`
	// Pause between pages in milliseconds.
	PagePause int `koanf:"page_pause"`
	// Maximum number of pages fetched in one walk.
	MaxPages int `koanf:"max_pages"`
}

// Reaction configures the correlation algorithm.
type Reaction struct {
	// Maximum number of gap syncs for one notification per attempt.
	MaxIterations int `koanf:"max_iterations"`
	// Pause after fetching a relationship in milliseconds.
	RelationshipPause int `koanf:"relationship_pause"`
}

// Daemon configures the orchestrator loop.
type Daemon struct {
	// Number of history events after which the daemon restarts itself.
	HistoryThreshold int `koanf:"history_threshold"`
	// Pause between cycles in milliseconds.
	IdleInterval int `koanf:"idle_interval"`
	// Initial backoff in milliseconds after a rate limit response.
	RateLimitBackoff int `koanf:"rate_limit_backoff"`
	// Maximum backoff in milliseconds after repeated rate limit responses.
	RateLimitMaxBackoff int `koanf:"rate_limit_max_backoff"`
	// Maximum concurrent discovery sub-tasks.
	DiscoveryConcurrency int `koanf:"discovery_concurrency"`
	// Maximum concurrent correlation sub-tasks.
	DrainConcurrency int `koanf:"drain_concurrency"`
	// Age in hours of unresolved notifications picked up by backfill.
	BackfillHorizonHours int `koanf:"backfill_horizon_hours"`
}

// Tasks configures timeouts and retries per sub-task kind.
type Tasks struct {
	Store        TaskPolicy `koanf:"store"`
	Sync         TaskPolicy `koanf:"sync"`
	Relationship TaskPolicy `koanf:"relationship"`
}

// TaskPolicy configures a single sub-task kind.
type TaskPolicy struct {
	// Timeout of a single attempt in milliseconds.
	Timeout int `koanf:"timeout"`
	// Heartbeat timeout in milliseconds (0 disables the watchdog).
	HeartbeatTimeout int `koanf:"heartbeat_timeout"`
	// Initial retry interval in milliseconds.
	InitialInterval int `koanf:"initial_interval"`
	// Maximum retry interval in milliseconds.
	MaxInterval int `koanf:"max_interval"`
	// Maximum attempts including the first one.
	MaxAttempts uint64 `koanf:"max_attempts"`
}

// Horizon returns the sync horizon as a duration.
func (s Sync) Horizon() time.Duration {
	return time.Duration(s.HorizonHours) * time.Hour
}

// BackfillHorizon returns the backfill horizon as a duration.
func (d Daemon) BackfillHorizon() time.Duration {
	return time.Duration(d.BackfillHorizonHours) * time.Hour
}

// Millis converts a millisecond config value to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// LoadConfig loads the configuration from the config search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".decelerator",
		homeDir + "/.decelerator/config",
		"/etc/decelerator/config",
		"/app/config",
		"config",
		".",
	}

	return load(k, configPaths)
}

// LoadConfigFrom loads the configuration from a single directory.
func LoadConfigFrom(dir string) (*Config, error) {
	cfg, _, err := load(koanf.New("."), []string{dir})
	return cfg, err
}

func load(k *koanf.Koanf, configPaths []string) (*Config, string, error) {
	var usedConfigPath string

	configFiles := []string{"common", "worker"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)

			fk := koanf.New(".")
			if err := fk.Load(file.Provider(configPath), toml.Parser()); err == nil {
				// Each file lives under its own section
				if err := k.MergeAt(fk, configName); err != nil {
					return nil, "", fmt.Errorf("error merging %s.toml: %w", configName, err)
				}

				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/decelerator/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
