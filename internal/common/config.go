package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Retention   RetentionConfig `toml:"retention"`
	Compact     CompactConfig   `toml:"compact"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig describes the on-disk layout the service owns: per-day
// JSON-lines event files, one JSON file per job in the history directory,
// and an optional static directory for the browser UI.
type StorageConfig struct {
	LogsDir    string `toml:"logs_dir"`    // Directory for per-day event log files
	HistoryDir string `toml:"history_dir"` // Directory for terminal job snapshots
	StaticDir  string `toml:"static_dir"`  // Directory served for non-API GET requests (optional)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// RetentionConfig controls the daily sweep of aged-out log and history files.
type RetentionConfig struct {
	Days      int `toml:"days"`       // Files older than this many days are deleted
	SweepHour int `toml:"sweep_hour"` // Hour of day (0-23) the sweep runs
}

// CompactConfig configures the default work function.
type CompactConfig struct {
	Pattern string `toml:"pattern"` // Glob pattern for candidate image files
}

// WebSocketConfig controls the live log event stream.
type WebSocketConfig struct {
	MinLevel string `toml:"min_level"` // Minimum event level to broadcast
	Throttle string `toml:"throttle"`  // Minimum interval between debug-level broadcasts (duration string)
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in compactd.toml; technical
// parameters are hardcoded for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8095,
			Host: "localhost",
		},
		Storage: StorageConfig{
			LogsDir:    "./data/logs",
			HistoryDir: "./data/history",
			StaticDir:  "./web",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Retention: RetentionConfig{
			Days:      30,
			SweepHour: 3,
		},
		Compact: CompactConfig{
			Pattern: "*.vhdx",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			Throttle: "250ms",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; CLI flags are applied afterwards via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COMPACTD_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COMPACTD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COMPACTD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if logsDir := os.Getenv("COMPACTD_LOGS_DIR"); logsDir != "" {
		config.Storage.LogsDir = logsDir
	}
	if historyDir := os.Getenv("COMPACTD_HISTORY_DIR"); historyDir != "" {
		config.Storage.HistoryDir = historyDir
	}
	if staticDir := os.Getenv("COMPACTD_STATIC_DIR"); staticDir != "" {
		config.Storage.StaticDir = staticDir
	}

	// Logging configuration
	if level := os.Getenv("COMPACTD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COMPACTD_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Retention configuration
	if days := os.Getenv("COMPACTD_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			config.Retention.Days = d
		}
	}
	if hour := os.Getenv("COMPACTD_RETENTION_SWEEP_HOUR"); hour != "" {
		if h, err := strconv.Atoi(hour); err == nil {
			config.Retention.SweepHour = h
		}
	}

	// Compact configuration
	if pattern := os.Getenv("COMPACTD_COMPACT_PATTERN"); pattern != "" {
		config.Compact.Pattern = pattern
	}

	// WebSocket configuration
	if minLevel := os.Getenv("COMPACTD_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if throttle := os.Getenv("COMPACTD_WEBSOCKET_THROTTLE"); throttle != "" {
		config.WebSocket.Throttle = throttle
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration values that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", c.Retention.Days)
	}
	if c.Retention.SweepHour < 0 || c.Retention.SweepHour > 23 {
		return fmt.Errorf("retention sweep hour must be 0-23, got %d", c.Retention.SweepHour)
	}
	if c.Storage.LogsDir == "" {
		return fmt.Errorf("storage logs_dir is required")
	}
	if c.Storage.HistoryDir == "" {
		return fmt.Errorf("storage history_dir is required")
	}
	return nil
}
