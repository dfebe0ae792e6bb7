package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Transport != TransportNone || cfg.Feed != FeedMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.BreakerTimeout != 30*time.Second || len(cfg.KafkaBrokers) != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.NeedsRedis() {
		t.Fatal("defaults should not need redis")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIDINGS_BUS_TRANSPORT", "kafka")
	t.Setenv("TIDINGS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TIDINGS_FEED", "redis")
	t.Setenv("TIDINGS_LOG_LEVEL", "debug")
	t.Setenv("TIDINGS_TRACING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.Tracing || !cfg.NeedsRedis() {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Fatalf("unexpected level %v", l)
	}
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	for name, kv := range map[string][2]string{
		"transport": {"TIDINGS_BUS_TRANSPORT", "carrier-pigeon"},
		"feed":      {"TIDINGS_FEED", "postgres"},
		"level":     {"TIDINGS_LOG_LEVEL", "loud"},
		"breaker":   {"TIDINGS_BREAKER_THRESHOLD", "0"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
