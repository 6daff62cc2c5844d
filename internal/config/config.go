// Package config loads assistant settings: defaults, then an optional YAML
// file, then ASSISTANT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"citizen-assistant/internal/proactive"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

const envPrefix = "ASSISTANT_"

type Config struct {
	Store     StoreConfig       `yaml:"store"`
	Params    ParamsConfig      `yaml:"params"`
	Patterns  PatternsConfig    `yaml:"patterns"`
	Directory DirectoryConfig   `yaml:"directory"`
	Proactive proactive.Windows `yaml:"proactive"`
	Log       LogConfig         `yaml:"log"`
	HTTP      HTTPConfig        `yaml:"http"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Table   string        `yaml:"table"`
	Redis   RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ParamsConfig struct {
	// Prefix is the SSM path under which tokens and tables live.
	Prefix   string        `yaml:"prefix"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// PatternsConfig selects the pattern tables. File wins over Parameter;
// with neither set the built-in tables are used.
type PatternsConfig struct {
	File      string `yaml:"file"`
	Parameter string `yaml:"parameter"`
}

// DirectoryConfig points at a remote directory. An empty BaseURL selects
// the in-process demo directory.
type DirectoryConfig struct {
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	Assessor  string  `yaml:"assessor"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "assistant:"},
		},
		Params:    ParamsConfig{Prefix: "/citizen-assistant", CacheTTL: 5 * time.Minute},
		Proactive: proactive.DefaultWindows,
		Log:       LogConfig{Level: "info", Format: "json"},
		HTTP:      HTTPConfig{Addr: ":8080"},
	}
}

// Load builds a Config. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("STORE_BACKEND", &cfg.Store.Backend)
	duration("STORE_TTL", &cfg.Store.TTL)
	str("STATE_TABLE", &cfg.Store.Table)
	str("REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Store.Redis.Password)
	integer("REDIS_DB", &cfg.Store.Redis.DB)
	str("REDIS_KEY_PREFIX", &cfg.Store.Redis.KeyPrefix)
	str("PARAM_PREFIX", &cfg.Params.Prefix)
	duration("PARAM_CACHE_TTL", &cfg.Params.CacheTTL)
	str("PATTERNS_FILE", &cfg.Patterns.File)
	str("PATTERNS_PARAMETER", &cfg.Patterns.Parameter)
	str("DIRECTORY_URL", &cfg.Directory.BaseURL)
	float("DIRECTORY_RATE_LIMIT", &cfg.Directory.RateLimit)
	integer("DIRECTORY_BURST", &cfg.Directory.Burst)
	str("ASSESSOR", &cfg.Directory.Assessor)
	integer("UPCOMING_DAYS", &cfg.Proactive.Upcoming)
	integer("DUE_SOON_DAYS", &cfg.Proactive.DueSoon)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	return errors.Join(errs...)
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory:
	case BackendDynamoDB:
		if strings.TrimSpace(c.Store.Table) == "" {
			errs = append(errs, errors.New("config: store.table is required for the dynamodb backend"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			errs = append(errs, errors.New("config: store.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store backend %q", c.Store.Backend))
	}
	if c.Store.TTL < 0 {
		errs = append(errs, errors.New("config: store.ttl must not be negative"))
	}
	if c.Directory.RateLimit < 0 || c.Directory.Burst < 0 {
		errs = append(errs, errors.New("config: directory rate limit and burst must not be negative"))
	}
	if c.Proactive.Upcoming < 0 || c.Proactive.DueSoon < 0 {
		errs = append(errs, errors.New("config: proactive windows must not be negative"))
	}
	if c.Patterns.Parameter != "" && strings.TrimSpace(c.Params.Prefix) == "" && !strings.HasPrefix(c.Patterns.Parameter, "/") {
		errs = append(errs, errors.New("config: patterns.parameter must be absolute when params.prefix is empty"))
	}
	return errors.Join(errs...)
}

// PatternParameterName resolves the SSM name of the pattern tables.
// Relative names are placed under the parameter prefix.
func (c Config) PatternParameterName() string {
	name := strings.TrimSpace(c.Patterns.Parameter)
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return strings.TrimRight(c.Params.Prefix, "/") + "/" + name
}
