package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.SaveDebounce != 2*time.Second {
		t.Fatalf("expected 2s debounce, got %v", cfg.SaveDebounce)
	}
	if cfg.MigrationsDir != "./db/migrations" {
		t.Fatalf("unexpected migrations dir %q", cfg.MigrationsDir)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected kafka disabled by default, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("DRAFTWISE_SAVE_DEBOUNCE_MS", "750")
	t.Setenv("DRAFTWISE_SESSION_TTL_SECONDS", "60")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.Addr)
	}
	if cfg.SaveDebounce != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v", cfg.SaveDebounce)
	}
	if cfg.SessionTTL != time.Minute {
		t.Fatalf("expected 1m session ttl, got %v", cfg.SessionTTL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadIgnoresNonPositiveDurations(t *testing.T) {
	t.Setenv("DRAFTWISE_SAVE_DEBOUNCE_MS", "-5")
	t.Setenv("DRAFTWISE_SAVE_TIMEOUT_SECONDS", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SaveDebounce != 2*time.Second || cfg.SaveTimeout != 15*time.Second {
		t.Fatalf("expected defaults, got debounce=%v timeout=%v", cfg.SaveDebounce, cfg.SaveTimeout)
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftwise.yaml")
	body := "api_addr: \":7000\"\nkafka_topic: from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DRAFTWISE_CONFIG", path)
	t.Setenv("KAFKA_TOPIC", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.KafkaTopic != "from-env" {
		t.Fatalf("expected env to win over file, got %q", cfg.KafkaTopic)
	}
}

func TestLoadRejectsMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draftwise.yaml")
	if err := os.WriteFile(path, []byte("api_addr: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DRAFTWISE_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
