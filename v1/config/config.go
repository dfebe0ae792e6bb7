// Package config loads the tidings service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Bus transports.
const (
	TransportNone  = "none"
	TransportRedis = "redis"
	TransportNATS  = "nats"
	TransportKafka = "kafka"
)

// Feed backends.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

// ErrInvalid is returned for configurations that cannot run.
var ErrInvalid = errors.New("config: invalid")

// Config is the service configuration.
type Config struct {
	HTTPAddr   string `env:"TIDINGS_HTTP_ADDR" envDefault:":8080"`
	SQLitePath string `env:"TIDINGS_SQLITE_PATH" envDefault:"tidings.db"`
	LogLevel   string `env:"TIDINGS_LOG_LEVEL" envDefault:"info"`
	Tracing    bool   `env:"TIDINGS_TRACING" envDefault:"false"`

	Transport      string        `env:"TIDINGS_BUS_TRANSPORT" envDefault:"none"`
	BusChannel     string        `env:"TIDINGS_BUS_CHANNEL" envDefault:"tidings:invalidate"`
	RedisAddr      string        `env:"TIDINGS_REDIS_ADDR" envDefault:"localhost:6379"`
	NATSURL        string        `env:"TIDINGS_NATS_URL" envDefault:"nats://localhost:4222"`
	KafkaBrokers   []string      `env:"TIDINGS_KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	BreakerFails   int           `env:"TIDINGS_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerTimeout time.Duration `env:"TIDINGS_BREAKER_TIMEOUT" envDefault:"30s"`

	Feed string `env:"TIDINGS_FEED" envDefault:"memory"`

	ShutdownTimeout time.Duration `env:"TIDINGS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportNone, TransportRedis, TransportNATS, TransportKafka:
	default:
		return fmt.Errorf("%w: unknown bus transport %q", ErrInvalid, c.Transport)
	}
	switch c.Feed {
	case FeedMemory, FeedRedis:
	default:
		return fmt.Errorf("%w: unknown feed %q", ErrInvalid, c.Feed)
	}
	if c.Transport == TransportKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: kafka transport needs brokers", ErrInvalid)
	}
	if c.BreakerFails <= 0 {
		return fmt.Errorf("%w: breaker threshold must be positive", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// NeedsRedis reports whether any component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.Transport == TransportRedis || c.Feed == FeedRedis
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}
