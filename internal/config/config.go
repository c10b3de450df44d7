package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "arwes.db"
	defaultLogFormat     = FormatJSON
	defaultLoadTimeoutMS = 3000
	defaultAssetRoot     = "."

	envConfigFile     = "ARWES_CONFIG"
	envListenAddr     = "ARWES_LISTEN_ADDR"
	envDBPath         = "ARWES_DB_PATH"
	envLogLevel       = "ARWES_LOG_LEVEL"
	envLogFormat      = "ARWES_LOG_FORMAT"
	envLoadTimeoutMS  = "ARWES_LOAD_TIMEOUT_MS"
	envMaxConcurrency = "ARWES_MAX_CONCURRENCY"
	envAssetRoot      = "ARWES_ASSET_ROOT"
	envTracing        = "ARWES_TRACING"
)

// Log output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds application configuration loaded from an optional TOML file
// and environment variables.
type Config struct {
	ListenAddr     string
	DBPath         string
	LogLevel       slog.Level
	LogFormat      string
	LoadTimeout    time.Duration
	MaxConcurrency int
	AssetRoot      string
	Tracing        bool
}

// fileConfig mirrors Config for TOML decoding. Pointers distinguish unset
// keys from zero values.
type fileConfig struct {
	ListenAddr     *string `toml:"listen_addr"`
	DBPath         *string `toml:"db_path"`
	LogLevel       *string `toml:"log_level"`
	LogFormat      *string `toml:"log_format"`
	LoadTimeoutMS  *int    `toml:"load_timeout_ms"`
	MaxConcurrency *int    `toml:"max_concurrency"`
	AssetRoot      *string `toml:"asset_root"`
	Tracing        *bool   `toml:"tracing"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		LogFormat:   defaultLogFormat,
		LoadTimeout: defaultLoadTimeoutMS * time.Millisecond,
		AssetRoot:   defaultAssetRoot,
	}
}

// Load reads configuration with sensible defaults. When ARWES_CONFIG is set
// its TOML file is applied first; environment variables override it.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}
	if fc.DBPath != nil {
		c.DBPath = *fc.DBPath
	}
	if fc.LogLevel != nil {
		c.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	if fc.LogFormat != nil {
		c.LogFormat = parseLogFormat(*fc.LogFormat)
	}
	if fc.LoadTimeoutMS != nil {
		if *fc.LoadTimeoutMS < 0 {
			return fmt.Errorf("config %s: load_timeout_ms must not be negative", path)
		}
		c.LoadTimeout = time.Duration(*fc.LoadTimeoutMS) * time.Millisecond
	}
	if fc.MaxConcurrency != nil {
		if *fc.MaxConcurrency < 0 {
			return fmt.Errorf("config %s: max_concurrency must not be negative", path)
		}
		c.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.AssetRoot != nil {
		c.AssetRoot = *fc.AssetRoot
	}
	if fc.Tracing != nil {
		c.Tracing = *fc.Tracing
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		c.LogFormat = parseLogFormat(v)
	}
	if v := os.Getenv(envLoadTimeoutMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return fmt.Errorf("%s: invalid value %q", envLoadTimeoutMS, v)
		}
		c.LoadTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(envMaxConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: invalid value %q", envMaxConcurrency, v)
		}
		c.MaxConcurrency = n
	}
	if v := os.Getenv(envAssetRoot); v != "" {
		c.AssetRoot = v
	}
	if v := os.Getenv(envTracing); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid value %q", envTracing, v)
		}
		c.Tracing = b
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLogFormat(s string) string {
	if strings.EqualFold(s, FormatText) {
		return FormatText
	}
	return FormatJSON
}

// NewLogger creates a structured logger writing to w at the given level.
// FormatText produces human-readable lines; anything else produces JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	if format == FormatText {
		return slog.New(log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
