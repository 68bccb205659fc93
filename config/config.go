package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Occupancy  OccupancyConfig  `yaml:"occupancy"`
	Booking    BookingConfig    `yaml:"booking"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the departure-prompt worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push departure prompts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the local API server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BackendConfig describes the parking backend REST API.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OccupancyConfig holds the sensor feed polling configuration.
type OccupancyConfig struct {
	Enabled         bool              `yaml:"enabled"`
	FeedURL         string            `yaml:"feed_url"`
	Headers         map[string]string `yaml:"headers"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string            `yaml:"http_proxy"`
}

// BookingConfig holds the lifecycle and pricing parameters.
type BookingConfig struct {
	GracePeriodSeconds     int           `yaml:"grace_period_seconds"`
	GracePeriod            time.Duration `yaml:"-"`
	RateSecondsPerUnit     int           `yaml:"rate_seconds_per_unit"`
	RatePerSecond          float64       `yaml:"-"` // Derived: 1 / RateSecondsPerUnit
	RefreshIntervalSeconds int           `yaml:"refresh_interval_seconds"`
	RefreshInterval        time.Duration `yaml:"-"`
	ResumeOnReentry        *bool         `yaml:"resume_on_reentry"`
}

// DatabaseConfig holds the local snapshot database configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" (default) or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ResumeEnabled reports whether a departed car re-occupying its spot
// resumes the original timer instead of leaving the display frozen.
func (b *BookingConfig) ResumeEnabled() bool {
	return b.ResumeOnReentry != nil && *b.ResumeOnReentry
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills zero values with the reference defaults and computes
// the derived duration/rate fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Occupancy.IntervalSeconds <= 0 {
		cfg.Occupancy.IntervalSeconds = 5
	}
	cfg.Occupancy.Interval = time.Duration(cfg.Occupancy.IntervalSeconds) * time.Second

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 30
	}

	if cfg.Booking.GracePeriodSeconds <= 0 {
		cfg.Booking.GracePeriodSeconds = 20
	}
	cfg.Booking.GracePeriod = time.Duration(cfg.Booking.GracePeriodSeconds) * time.Second

	if cfg.Booking.RateSecondsPerUnit <= 0 {
		cfg.Booking.RateSecondsPerUnit = 30
	}
	cfg.Booking.RatePerSecond = 1 / float64(cfg.Booking.RateSecondsPerUnit)

	if cfg.Booking.RefreshIntervalSeconds <= 0 {
		cfg.Booking.RefreshIntervalSeconds = 30
	}
	cfg.Booking.RefreshInterval = time.Duration(cfg.Booking.RefreshIntervalSeconds) * time.Second

	if cfg.Booking.ResumeOnReentry == nil {
		resume := true
		cfg.Booking.ResumeOnReentry = &resume
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./spotpark.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
