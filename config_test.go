package attempts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AttemptTTL != 24*time.Hour {
		t.Errorf("AttemptTTL = %s, want 24h", cfg.AttemptTTL)
	}
	if cfg.DefaultQueue != "default" {
		t.Errorf("DefaultQueue = %q, want %q", cfg.DefaultQueue, "default")
	}
	if cfg.KeyPrefix != "rr_job_attempt:" {
		t.Errorf("KeyPrefix = %q, want %q", cfg.KeyPrefix, "rr_job_attempt:")
	}
	if !cfg.Logging.Enabled {
		t.Error("expected logging enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attempts.yaml")
	body := []byte(`
attempt_ttl: 1h
key_prefix: "rr_job_attempt:"
default_queue: mail
identity_keys: [orderId, id]
logging:
  enabled: false
failed_store:
  driver: sqlite
  dsn: /tmp/failed.db
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AttemptTTL != time.Hour {
		t.Errorf("AttemptTTL = %s, want 1h", cfg.AttemptTTL)
	}
	if cfg.KeyPrefix != "rr_job_attempt:" {
		t.Errorf("KeyPrefix = %q", cfg.KeyPrefix)
	}
	if cfg.DefaultQueue != "mail" {
		t.Errorf("DefaultQueue = %q", cfg.DefaultQueue)
	}
	if len(cfg.IdentityKeys) != 2 || cfg.IdentityKeys[0] != "orderId" {
		t.Errorf("IdentityKeys = %v", cfg.IdentityKeys)
	}
	if cfg.Logging.Enabled {
		t.Error("expected logging disabled")
	}
	if cfg.FailedStore.Driver != "sqlite" {
		t.Errorf("FailedStore.Driver = %q", cfg.FailedStore.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.Queue.Codec != "json" {
		t.Errorf("Queue.Codec = %q, want json", cfg.Queue.Codec)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ATTEMPTS_ATTEMPT_TTL":   "120",
		"ATTEMPTS_DEFAULT_QUEUE": "reports",
		"ATTEMPTS_LOGGING":       "false",
		"ATTEMPTS_REDIS_ADDR":    "redis:6379",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.AttemptTTL != 2*time.Minute {
		t.Errorf("AttemptTTL = %s, want 2m", cfg.AttemptTTL)
	}
	if cfg.DefaultQueue != "reports" {
		t.Errorf("DefaultQueue = %q", cfg.DefaultQueue)
	}
	if cfg.Logging.Enabled {
		t.Error("expected logging disabled")
	}
	if cfg.Counter.Addr != "redis:6379" || cfg.Queue.Addr != "redis:6379" {
		t.Errorf("redis addr not applied: %q %q", cfg.Counter.Addr, cfg.Queue.Addr)
	}
}

func TestLoadConfigDurationUnits(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		ttl    time.Duration
		maxAge time.Duration
	}{
		{"integer seconds", "attempt_ttl: 86400\nretention:\n  max_age: 3600\n", 24 * time.Hour, time.Hour},
		{"duration strings", "attempt_ttl: 90m\nretention:\n  max_age: 48h\n", 90 * time.Minute, 48 * time.Hour},
		{"absent keeps defaults", "default_queue: mail\n", 24 * time.Hour, 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "attempts.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if cfg.AttemptTTL != tt.ttl {
				t.Errorf("AttemptTTL = %s, want %s", cfg.AttemptTTL, tt.ttl)
			}
			if cfg.Retention.MaxAge != tt.maxAge {
				t.Errorf("MaxAge = %s, want %s", cfg.Retention.MaxAge, tt.maxAge)
			}
		})
	}
}

func TestValidate_SubSecondTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttemptTTL = 86400 * time.Nanosecond
	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) || !strings.Contains(err.Error(), "attempt_ttl") {
		t.Fatalf("expected an attempt_ttl ErrConfiguration, got %v", err)
	}
}

func TestApplyEnvBadTTL(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "ATTEMPTS_ATTEMPT_TTL" {
			return "a day", true
		}
		return "", false
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttemptTTL = 0
	cfg.DefaultQueue = " "

	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate_Drivers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailedStore.Driver = "cassandra"
	cfg.Counter.Driver = "mongo"

	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	for _, want := range []string{"cassandra", "counter.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestUnavailable(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Unavailable("incr", base)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Error("expected ErrStoreUnavailable")
	}
	if !errors.Is(err, base) {
		t.Error("expected the backend error to be preserved")
	}
	if Unavailable("incr", nil) != nil {
		t.Error("expected nil for nil error")
	}
}
