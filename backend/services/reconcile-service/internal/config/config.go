package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "expolis/backend/libs/config"
	libdb "expolis/backend/libs/db"
	"expolis/backend/services/reconcile-service/internal/parser"
)

// Config defines reconcile service configuration.
type Config struct {
	Database struct {
		Driver string `yaml:"driver" env:"EXPOLIS_DB_DRIVER"`
		DSN    string `yaml:"dsn" env:"EXPOLIS_DB_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"EXPOLIS_REDIS_ADDR"`
		Password string `yaml:"password" env:"EXPOLIS_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"EXPOLIS_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"EXPOLIS_REDIS_TTL"`
	} `yaml:"redis"`
	Reconcile struct {
		SkipMalformed    bool          `yaml:"skip_malformed" env:"EXPOLIS_SKIP_MALFORMED"`
		QueriesPerSecond float64       `yaml:"queries_per_second" env:"EXPOLIS_QPS"`
		QueryTimeout     time.Duration `yaml:"query_timeout" env:"EXPOLIS_QUERY_TIMEOUT"`
	} `yaml:"reconcile"`
	TimeFormats parser.Formats `yaml:"time_formats"`
}

// Load reads configuration via shared helper. path may be empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Database.Driver = libdb.DriverPostgres
	cfg.Redis.TTL = 7 * 24 * 3600
	cfg.TimeFormats = parser.DefaultFormats()

	if err := libconfig.LoadConfig(path, cfg); err != nil {
		return nil, err
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case libdb.DriverPostgres, libdb.DriverSQLite:
	default:
		return nil, fmt.Errorf("config: unsupported database driver %q", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if cfg.Reconcile.QueriesPerSecond < 0 {
		return nil, errors.New("config: queries_per_second must not be negative")
	}
	if cfg.Reconcile.QueryTimeout < 0 {
		return nil, errors.New("config: query_timeout must not be negative")
	}
	return cfg, nil
}

// SummaryTTL returns ttl of published summaries as duration.
func (c *Config) SummaryTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// RedisEnabled reports whether summaries should be published.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
