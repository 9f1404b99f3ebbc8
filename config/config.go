// Package config loads the server configuration.
//
// Values come from, in increasing priority: built-in defaults, a YAML file, and
// MINIRPC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr    string `yaml:"listenAddr"`
	AdvertiseAddr string `yaml:"advertiseAddr"`
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queueSize"`
	ConnQueueSize int    `yaml:"connQueueSize"`

	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Etcd      EtcdConfig      `yaml:"etcd"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AuthToken       string        `yaml:"authToken"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the /metrics listener
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Empty disables registration
	TTL       int64    `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerCaller bool    `yaml:"perCaller"` // One bucket per client name or peer host
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		AdvertiseAddr: "127.0.0.1:8080",
		Workers:       32,
		QueueSize:     1024,
		ConnQueueSize: 64,
		Log:           LogConfig{Level: "info"},
		Etcd:          EtcdConfig{TTL: 10},
		RateLimit: RateLimitConfig{
			RPS:   1000,
			Burst: 2000,
		},
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config: listenAddr is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("config: rate limit needs positive rps and burst")
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MINIRPC_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_ADVERTISE_ADDR")); v != "" {
		cfg.AdvertiseAddr = v
	}
	if v, ok := intEnv("MINIRPC_WORKERS"); ok {
		cfg.Workers = v
	}
	if v, ok := intEnv("MINIRPC_QUEUE_SIZE"); ok {
		cfg.QueueSize = v
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_METRICS_ADDR")); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_ETCD_ENDPOINTS")); v != "" {
		cfg.Etcd.Endpoints = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_RATE_LIMIT_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_RATE_LIMIT_RPS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimit.RPS = f
		}
	}
	if v, ok := intEnv("MINIRPC_RATE_LIMIT_BURST"); ok {
		cfg.RateLimit.Burst = v
	}
	if v := strings.TrimSpace(os.Getenv("MINIRPC_REQUEST_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("MINIRPC_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
}

func intEnv(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
