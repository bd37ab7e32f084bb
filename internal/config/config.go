package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Retry   RetryConfig   `yaml:"retry"`
	Cleanup CleanupConfig `yaml:"cleanup"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize"`
	WorkerCount   int           `yaml:"workerCount"`
	QueueCapacity int           `yaml:"queueCapacity"`
	StorageDir    string        `yaml:"storageDir"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for workers before forced stop
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
	RateLimit     float64       `yaml:"rateLimit"`     // requests per second, 0 disables
	RateBurst     int           `yaml:"rateBurst"`
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend      string        `yaml:"backend"` // memory|sqlite|redis
	DatabasePath string        `yaml:"databasePath"`
	Redis        RedisConfig   `yaml:"redis"`
	TTL          time.Duration `yaml:"ttl"` // redis record expiry, 0 keeps forever
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetryConfig bounds attempts per job.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
}

// CleanupConfig controls the expired-job sweep. An explicit maxAge of 0
// disables it; when the key is absent the default retention applies.
type CleanupConfig struct {
	MaxAge   time.Duration `yaml:"maxAge"`
	Interval time.Duration `yaml:"interval"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	// Numeric only
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	// Normalize to upper for suffix matching but keep numeric part as-is
	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		// Kubernetes binary-style without 'B'
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		// Binary with B
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		// Decimal
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var MEDIACONV_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("MEDIACONV_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	// Seeded before unmarshal so an explicit `maxAge: 0` survives as
	// "sweep disabled" instead of being mistaken for an absent key.
	cfg.Cleanup.MaxAge = 24 * time.Hour
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// Ensure storage dir exists
	if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storage dir: %w", err)
	}
	// Default DB path under storage dir if not set.
	if cfg.Store.Backend == "sqlite" && cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = filepath.Join(cfg.Server.StorageDir, "mediaconv.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(500 * 1024 * 1024) // 500 MiB default
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = 4
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = 64
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "storage"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) * 2
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = "localhost:6379"
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 2 * time.Second
	}

	if cfg.Cleanup.Interval == 0 {
		cfg.Cleanup.Interval = time.Hour
	}
	if cfg.Cleanup.MaxAge < 0 {
		cfg.Cleanup.MaxAge = 0
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Server.LogLevel)
	}
	if cfg.Retry.BaseDelay < 0 {
		return errors.New("retry baseDelay must not be negative")
	}
	return nil
}
