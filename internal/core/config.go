// internal/core/config.go
// Configuration management using Koanf

package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/aspnmy/scanapi/pkg/logger"
)

// EnvPrefix is the prefix for environment overrides. A double underscore
// separates nesting levels: SCANAPI_SCANNER__QUEUE_DEPTH=8.
const EnvPrefix = "SCANAPI_"

var (
	config *Config
	mu     sync.RWMutex
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Scanner   ScannerConfig   `koanf:"scanner"`
	Targets   TargetsConfig   `koanf:"targets"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Output    OutputConfig    `koanf:"output"`
	Database  DBConfig        `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ScannerConfig contains nmap execution and job pool settings
type ScannerConfig struct {
	Binary         string        `koanf:"binary"`
	Workers        int           `koanf:"workers"`
	QueueDepth     int           `koanf:"queue_depth"`
	Timeout        time.Duration `koanf:"timeout"`
	KillGrace      time.Duration `koanf:"kill_grace"`
	MaxOutputBytes int64         `koanf:"max_output_bytes"`
	Retention      time.Duration `koanf:"retention"`
	MaxRetained    int           `koanf:"max_retained"`
}

// TargetsConfig contains target admission policy
type TargetsConfig struct {
	MaxHosts         uint64        `koanf:"max_hosts"`
	AllowPublic      bool          `koanf:"allow_public"`
	ResolveHostnames bool          `koanf:"resolve_hostnames"`
	Nameserver       string        `koanf:"nameserver"`
	ResolveTimeout   time.Duration `koanf:"resolve_timeout"`
}

// RateLimitConfig limits scan submissions per client address
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	Rate    float64 `koanf:"rate"` // submissions per second
	Burst   int     `koanf:"burst"`
}

// OutputConfig contains audit output settings
type OutputConfig struct {
	AuditLog   string `koanf:"audit_log"`   // JSONL file, empty disables
	IncludeRaw bool   `koanf:"include_raw"` // add the CSV dump to sync responses
}

// DBConfig contains database settings
type DBConfig struct {
	SQLite string `koanf:"sqlite"` // job archive path, empty disables
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
	File   string `koanf:"file"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			CORSOrigins:     []string{"http://localhost:3000"},
			MaxBodyBytes:    64 << 10,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Scanner: ScannerConfig{
			Binary:         "nmap",
			Workers:        4,
			QueueDepth:     16,
			Timeout:        10 * time.Minute,
			KillGrace:      5 * time.Second,
			MaxOutputBytes: 32 << 20,
			Retention:      time.Hour,
			MaxRetained:    1000,
		},
		Targets: TargetsConfig{
			MaxHosts:       65536,
			AllowPublic:    true,
			Nameserver:     "127.0.0.1:53",
			ResolveTimeout: 3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    1,
			Burst:   5,
		},
		Output: OutputConfig{
			IncludeRaw: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment and flag overrides, in increasing priority. The result also
// becomes the value returned by Get.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// 3. Environment: SCANAPI_SCANNER__WORKERS -> scanner.workers
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. CLI flags
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load flag overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	config = cfg
	mu.Unlock()

	return cfg, nil
}

// Validate performs range checks on a loaded config
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.MaxBodyBytes < 1024 {
		return fmt.Errorf("invalid server.max_body_bytes: %d (must be at least 1024)", cfg.Server.MaxBodyBytes)
	}

	if cfg.Scanner.Binary == "" {
		return fmt.Errorf("scanner.binary is required")
	}
	if cfg.Scanner.Workers < 1 || cfg.Scanner.Workers > 256 {
		return fmt.Errorf("invalid scanner.workers: %d (must be between 1 and 256)", cfg.Scanner.Workers)
	}
	if cfg.Scanner.QueueDepth < 0 || cfg.Scanner.QueueDepth > 10000 {
		return fmt.Errorf("invalid scanner.queue_depth: %d (must be between 0 and 10000)", cfg.Scanner.QueueDepth)
	}
	if cfg.Scanner.Timeout < time.Second || cfg.Scanner.Timeout > 24*time.Hour {
		return fmt.Errorf("invalid scanner.timeout: %v (must be between 1s and 24h)", cfg.Scanner.Timeout)
	}
	if cfg.Scanner.KillGrace < 0 {
		return fmt.Errorf("invalid scanner.kill_grace: %v", cfg.Scanner.KillGrace)
	}
	if cfg.Scanner.MaxOutputBytes < 4096 {
		return fmt.Errorf("invalid scanner.max_output_bytes: %d (must be at least 4096)", cfg.Scanner.MaxOutputBytes)
	}
	if cfg.Scanner.Retention <= 0 {
		return fmt.Errorf("invalid scanner.retention: %v", cfg.Scanner.Retention)
	}
	if cfg.Scanner.MaxRetained < 1 {
		return fmt.Errorf("invalid scanner.max_retained: %d", cfg.Scanner.MaxRetained)
	}

	if cfg.Targets.ResolveHostnames && cfg.Targets.Nameserver == "" {
		return fmt.Errorf("targets.nameserver is required when targets.resolve_hostnames is set")
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.Rate <= 0 || cfg.RateLimit.Burst < 1) {
		return fmt.Errorf("invalid ratelimit: rate %v burst %d", cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	}

	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log.format: %s (must be json or console)", cfg.Log.Format)
	}

	return nil
}

// Get returns the current configuration (thread-safe). Defaults are
// returned when Load has not run.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()

	if config == nil {
		cfg := Default()
		return &cfg
	}
	return config
}

// Print logs the effective configuration at info level
func Print(cfg *Config) {
	logger.Info("Configuration",
		logger.String("addr", cfg.Server.Addr),
		logger.String("binary", cfg.Scanner.Binary),
		logger.Int("workers", cfg.Scanner.Workers),
		logger.Int("queue_depth", cfg.Scanner.QueueDepth),
		logger.Duration("timeout", cfg.Scanner.Timeout),
		logger.Duration("retention", cfg.Scanner.Retention),
		logger.Uint64("max_hosts", cfg.Targets.MaxHosts),
		logger.Bool("allow_public", cfg.Targets.AllowPublic),
		logger.Bool("rate_limit", cfg.RateLimit.Enabled),
		logger.String("archive", cfg.Database.SQLite),
		logger.String("audit_log", cfg.Output.AuditLog),
	)
}
