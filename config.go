package storecache

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Durable backends accepted by Config.Backend.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds runtime settings read from STORECACHE_* environment variables.
type Config struct {
	Backend   string `env:"STORECACHE_BACKEND"    envDefault:"badger"`
	RedisURL  string `env:"STORECACHE_REDIS_URL"  envDefault:"redis://localhost:6379/0"`
	BadgerDir string `env:"STORECACHE_BADGER_DIR" envDefault:".storecache"`

	SchemaVersion string        `env:"STORECACHE_SCHEMA_VERSION" envDefault:"1.0.0"`
	StandardTTL   time.Duration `env:"STORECACHE_TTL_STANDARD"   envDefault:"5m"`
	CriticalTTL   time.Duration `env:"STORECACHE_TTL_CRITICAL"   envDefault:"30m"`
	DurableTTL    time.Duration `env:"STORECACHE_TTL_DURABLE"    envDefault:"24h"`
	WriteTimeout  time.Duration `env:"STORECACHE_WRITE_TIMEOUT"  envDefault:"10s"`

	PrefetchDelay       time.Duration `env:"STORECACHE_PREFETCH_DELAY"       envDefault:"2s"`
	PrefetchConcurrency int           `env:"STORECACHE_PREFETCH_CONCURRENCY" envDefault:"4"`

	APIBaseURL  string `env:"STORECACHE_API_BASE_URL"`
	APIKey      string `env:"STORECACHE_API_KEY"`
	APIDataPath string `env:"STORECACHE_API_DATA_PATH" envDefault:"data"`
	APIRateRPM  int    `env:"STORECACHE_API_RATE_RPM"  envDefault:"120"`

	DefaultLocale string `env:"STORECACHE_DEFAULT_LOCALE" envDefault:"en"`
	LiveRelayout  bool   `env:"STORECACHE_LIVE_RELAYOUT"  envDefault:"false"`

	LogLevel  string `env:"STORECACHE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"STORECACHE_LOG_FORMAT" envDefault:"text"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfigFrom reads the configuration from environ instead of the process
// environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the backend, durations and log settings. TTL classes must
// not shrink from standard to critical to durable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want badger, redis or memory)", c.Backend)
	}
	if c.StandardTTL <= 0 || c.CriticalTTL <= 0 || c.DurableTTL <= 0 {
		return fmt.Errorf("TTLs must be positive")
	}
	if c.StandardTTL > c.CriticalTTL || c.CriticalTTL > c.DurableTTL {
		return fmt.Errorf("TTLs must satisfy standard (%s) <= critical (%s) <= durable (%s)", c.StandardTTL, c.CriticalTTL, c.DurableTTL)
	}
	if c.SchemaVersion == "" {
		return fmt.Errorf("schema version must not be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Policy returns the freshness durations configured in c.
func (c Config) Policy() Policy {
	return Policy{
		Standard: c.StandardTTL,
		Critical: c.CriticalTTL,
		Durable:  c.DurableTTL,
	}
}

// Registry returns the default registry with DefaultLocale moved first.
func (c Config) Registry() (*Registry, error) {
	base := DefaultRegistry()
	def, err := base.Lookup(c.DefaultLocale)
	if err != nil {
		return nil, err
	}
	return NewRegistry(append([]Locale{def}, base.Others(def)...)...)
}

// ParseLogLevel converts debug, info, warn or error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
