// Package config provides unified configuration loading for the component
// extractor. Supports YAML files, environment variables, and programmatic
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the extraction pipeline.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Removal       RemovalConfig       `yaml:"background_removal"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// ExecutorConfig holds external tool execution settings.
type ExecutorConfig struct {
	// AllowedCommands is the fixed tool allowlist. Anything else is rejected
	// before spawning.
	AllowedCommands []string      `yaml:"allowed_commands"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	// SandboxUser is the identity tool processes drop to. Empty disables the
	// privilege drop; a user that cannot be resolved logs a warning and runs
	// unsandboxed.
	SandboxUser string `yaml:"sandbox_user"`
}

// FetchConfig holds PDF download settings.
type FetchConfig struct {
	AllowedHosts    []string      `yaml:"allowed_hosts"`
	MaxDownloadSize int64         `yaml:"max_download_size"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// ExtractionConfig holds dual-strategy extraction settings.
type ExtractionConfig struct {
	EmbeddedTool string `yaml:"embedded_tool"` // pdfimages
	SnapshotTool string `yaml:"snapshot_tool"` // pdftoppm
	ConvertTool  string `yaml:"convert_tool"`  // magick or convert
	DefaultDPI   int    `yaml:"default_dpi"`
	DefaultTopN  int    `yaml:"default_top_n"`
	// OutputDir is where surviving candidates are moved before the job's
	// temp directory is removed.
	OutputDir string `yaml:"output_dir"`
}

// RemovalConfig holds background removal engine settings. The weights,
// per-component thresholds, and backoff schedule are empirically chosen
// defaults, kept configurable for tuning.
type RemovalConfig struct {
	EdgeSharpnessWeight     float64            `yaml:"edge_sharpness_weight"`
	CleanlinessWeight       float64            `yaml:"cleanliness_weight"`
	PreservationWeight      float64            `yaml:"preservation_weight"`
	QualityThresholds       map[string]float64 `yaml:"quality_thresholds"`
	DefaultQualityThreshold float64            `yaml:"default_quality_threshold"`
	MaxRetries              int                `yaml:"max_retries"`
	RetryBackoff            []time.Duration    `yaml:"retry_backoff"`
	BatchConcurrency        int                `yaml:"batch_concurrency"`
	MinArea                 int                `yaml:"min_area"`
	MaxAspect               float64            `yaml:"max_aspect"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      5 * time.Minute,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Executor: ExecutorConfig{
			AllowedCommands: []string{"pdfimages", "pdftoppm", "magick", "convert"},
			MaxConcurrent:   5,
			DefaultTimeout:  60 * time.Second,
			SandboxUser:     "",
		},
		Fetch: FetchConfig{
			AllowedHosts:    []string{},
			MaxDownloadSize: 50 << 20, // 50 MB
			DownloadTimeout: 60 * time.Second,
		},
		Extraction: ExtractionConfig{
			EmbeddedTool: "pdfimages",
			SnapshotTool: "pdftoppm",
			ConvertTool:  "magick",
			DefaultDPI:   300,
			DefaultTopN:  100,
			OutputDir:    "extracted",
		},
		Removal: RemovalConfig{
			EdgeSharpnessWeight: 0.4,
			CleanlinessWeight:   0.3,
			PreservationWeight:  0.3,
			QualityThresholds: map[string]float64{
				"dice":    0.75,
				"cards":   0.80,
				"tokens":  0.78,
				"boards":  0.85,
				"figures": 0.70,
			},
			DefaultQualityThreshold: 0.75,
			MaxRetries:              3,
			RetryBackoff:            []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
			BatchConcurrency:        3,
			MinArea:                 2500,
			MaxAspect:               10.0,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 32,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "component-extractor",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("executor max_concurrent must be at least 1")
	}

	if len(c.Executor.AllowedCommands) == 0 {
		return fmt.Errorf("executor allowed_commands must not be empty")
	}

	if c.Fetch.MaxDownloadSize < 1 {
		return fmt.Errorf("fetch max_download_size must be positive")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max_entries must be at least 1")
	}

	wsum := c.Removal.EdgeSharpnessWeight + c.Removal.CleanlinessWeight + c.Removal.PreservationWeight
	if wsum < 0.99 || wsum > 1.01 {
		return fmt.Errorf("background removal quality weights must sum to 1.0, got %.2f", wsum)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("CE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("CE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxConcurrent = n
		}
	}

	if v := os.Getenv("CE_SANDBOX_USER"); v != "" {
		cfg.Executor.SandboxUser = v
	}

	if v := os.Getenv("CE_ALLOWED_HOSTS"); v != "" {
		cfg.Fetch.AllowedHosts = strings.Split(v, ",")
	}

	if v := os.Getenv("CE_MAX_DOWNLOAD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.MaxDownloadSize = n
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
