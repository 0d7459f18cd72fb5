package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "bridge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "BRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "BRIDGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BRIDGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BRIDGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "BRIDGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "BRIDGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "BRIDGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "BRIDGE_NATS_STREAM")
	setString(&cfg.NATS.Subject, "BRIDGE_NATS_SUBJECT")
	setDuration(&cfg.NATS.ReconnectMinWait, "BRIDGE_NATS_RECONNECT_MIN_WAIT")
	setDuration(&cfg.NATS.ReconnectMaxWait, "BRIDGE_NATS_RECONNECT_MAX_WAIT")
	setInt(&cfg.Bridge.QueueCapacity, "BRIDGE_QUEUE_CAPACITY")
	setDuration(&cfg.Bridge.KeepaliveInterval, "BRIDGE_KEEPALIVE_INTERVAL")
	setString(&cfg.Bridge.SessionCookie, "BRIDGE_SESSION_COOKIE")
	setDuration(&cfg.Membership.CacheTTL, "BRIDGE_MEMBERSHIP_TTL")
	setDuration(&cfg.Membership.LookupTimeout, "BRIDGE_MEMBERSHIP_LOOKUP_TIMEOUT")
	setInt64(&cfg.Membership.CacheMaxBytes, "BRIDGE_MEMBERSHIP_CACHE_MAX_BYTES")
	setInt(&cfg.Breaker.MaxFailures, "BRIDGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "BRIDGE_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "BRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BRIDGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "BRIDGE_LOG_ASYNC")
	setBool(&cfg.Telemetry.Enabled, "BRIDGE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "BRIDGE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.NATS.Stream == "" {
		return errors.New("nats.stream is required")
	}
	if cfg.NATS.Subject == "" {
		return errors.New("nats.subject is required")
	}
	if cfg.Bridge.QueueCapacity < 1 {
		return errors.New("bridge.queue_capacity must be >= 1")
	}
	if cfg.Bridge.KeepaliveInterval <= 0 {
		return errors.New("bridge.keepalive_interval must be > 0")
	}
	if cfg.Membership.CacheTTL <= 0 {
		return errors.New("membership.cache_ttl must be > 0")
	}
	if cfg.Membership.LookupTimeout <= 0 {
		return errors.New("membership.lookup_timeout must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.NATS.ReconnectMinWait <= 0 || cfg.NATS.ReconnectMaxWait < cfg.NATS.ReconnectMinWait {
		return errors.New("nats reconnect waits must satisfy 0 < min <= max")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
