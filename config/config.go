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
	Database   DatabaseConfig   `yaml:"database"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Evaluator  EvaluatorConfig  `yaml:"evaluator"`
	Events     EventsConfig     `yaml:"events"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SchedulingConfig holds the knobs for availability resolution.
type SchedulingConfig struct {
	Timezone                string        `yaml:"timezone"`
	SlotScanStepMinutes     int           `yaml:"slot_scan_step_minutes"`
	SlotScanHorizonDays     int           `yaml:"slot_scan_horizon_days"`
	ReadCacheTTLSeconds     int           `yaml:"read_cache_ttl_seconds"`
	DefaultDelayToleranceMn int           `yaml:"default_delay_tolerance_minutes"`
	SlotScanStep            time.Duration `yaml:"-"`
	SlotScanHorizon         time.Duration `yaml:"-"`
	ReadCacheTTL            time.Duration `yaml:"-"`
	DefaultDelayTolerance   time.Duration `yaml:"-"`
}

// EvaluatorConfig holds the delay/overdue evaluator cadence.
type EvaluatorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// EventsConfig selects the event bus backend.
type EventsConfig struct {
	Backend       string `yaml:"backend"` // "memory" or "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
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

	if cfg.Scheduling.Timezone == "" {
		cfg.Scheduling.Timezone = "UTC"
	}
	if cfg.Scheduling.SlotScanStepMinutes <= 0 {
		cfg.Scheduling.SlotScanStepMinutes = 15
	}
	if cfg.Scheduling.SlotScanHorizonDays <= 0 {
		cfg.Scheduling.SlotScanHorizonDays = 30
	}
	if cfg.Scheduling.ReadCacheTTLSeconds <= 0 {
		cfg.Scheduling.ReadCacheTTLSeconds = 30
	}
	if cfg.Scheduling.DefaultDelayToleranceMn <= 0 {
		cfg.Scheduling.DefaultDelayToleranceMn = 30
	}
	cfg.Scheduling.SlotScanStep = time.Duration(cfg.Scheduling.SlotScanStepMinutes) * time.Minute
	cfg.Scheduling.SlotScanHorizon = time.Duration(cfg.Scheduling.SlotScanHorizonDays) * 24 * time.Hour
	cfg.Scheduling.ReadCacheTTL = time.Duration(cfg.Scheduling.ReadCacheTTLSeconds) * time.Second
	cfg.Scheduling.DefaultDelayTolerance = time.Duration(cfg.Scheduling.DefaultDelayToleranceMn) * time.Minute

	if cfg.Evaluator.IntervalSeconds <= 0 {
		cfg.Evaluator.IntervalSeconds = 45
	}
	cfg.Evaluator.Interval = time.Duration(cfg.Evaluator.IntervalSeconds) * time.Second

	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "memory"
	}
	if cfg.Events.RedisAddr == "" {
		cfg.Events.RedisAddr = "localhost:6379"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
