package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Database   DatabaseConfig   `yaml:"database"`
	GeoIP      GeoIPConfig      `yaml:"geoip"`
	Stream     StreamConfig     `yaml:"stream"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Explain    ExplainConfig    `yaml:"explain"`
	TLS        TLSConfig        `yaml:"tls"`
	Health     HealthConfig     `yaml:"health"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Production selects the production ACME CA.
	Production bool `yaml:"production"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type ClassifierConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// DatabaseConfig is optional; an empty URL runs the gateway without the
// activity log.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type GeoIPConfig struct {
	Path string `yaml:"path"`
}

type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type ExplainConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Model   string `yaml:"model"`
}

type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

type HealthConfig struct {
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{RateLimit: RateLimitConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty), fills
// defaults, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{RateLimit: RateLimitConfig{Enabled: true}}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{RateLimit: RateLimitConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://127.0.0.1:6379"
	}
	if cfg.Classifier.URL == "" {
		cfg.Classifier.URL = "http://127.0.0.1:8000"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}
	if cfg.Classifier.HealthTimeout == 0 {
		cfg.Classifier.HealthTimeout = 5 * time.Second
	}
	if cfg.Stream.PollInterval == 0 {
		cfg.Stream.PollInterval = 2 * time.Second
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 30
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 60
	}
	if cfg.Explain.Region == "" {
		cfg.Explain.Region = "us-west-2"
	}
	if cfg.Explain.Model == "" {
		cfg.Explain.Model = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	}
	if cfg.Health.WatchInterval == 0 {
		cfg.Health.WatchInterval = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("PHISHGUARD_ENV"); v != "" {
		cfg.Server.Production = v == "production"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CLASSIFIER_URL"); v != "" {
		cfg.Classifier.URL = v
	}
	// ML_SERVICE_URL wins over the alias.
	if v := os.Getenv("ML_SERVICE_URL"); v != "" {
		cfg.Classifier.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("GEOIP_DB_PATH"); v != "" {
		cfg.GeoIP.Path = v
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_ENABLED: %w", err)
		}
		cfg.RateLimit.Enabled = b
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	if v := os.Getenv("EXPLAIN_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXPLAIN_ENABLED: %w", err)
		}
		cfg.Explain.Enabled = b
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Explain.Region = v
	}
	if v := os.Getenv("BEDROCK_MODEL"); v != "" {
		cfg.Explain.Model = v
	}
	if v := os.Getenv("TLS_DOMAINS"); v != "" {
		cfg.TLS.Domains = splitList(v)
	}
	if v := os.Getenv("ACME_EMAIL"); v != "" {
		cfg.TLS.Email = v
	}
	return nil
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server.port %q", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	if u, err := url.Parse(c.Classifier.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid classifier.url %q", c.Classifier.URL)
	}
	if c.Classifier.Timeout < 0 || c.Classifier.HealthTimeout < 0 {
		return fmt.Errorf("classifier timeouts must be positive")
	}
	if c.Stream.PollInterval < 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be > 0")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
