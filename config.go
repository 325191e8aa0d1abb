package attempts

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/xraph/attempts/identity"
)

// Config holds per-deployment settings.
type Config struct {
	// AttemptTTL bounds how long an attempt counter survives without being
	// incremented. Orphaned counters from crashed workers expire after it.
	// In YAML a plain integer is seconds; a string is a Go duration.
	AttemptTTL time.Duration `yaml:"attempt_ttl"`

	// KeyPrefix is prepended to every attempt counter key.
	KeyPrefix string `yaml:"key_prefix"`

	// DefaultQueue is used when neither the job nor its definition names a
	// queue.
	DefaultQueue string `yaml:"default_queue"`

	// IdentityKeys is the ordered list of payload fields tried as the
	// identity discriminator before falling back to a content hash.
	IdentityKeys []string `yaml:"identity_keys"`

	Logging     LoggingConfig     `yaml:"logging"`
	FailedStore FailedStoreConfig `yaml:"failed_store"`
	Counter     CounterConfig     `yaml:"counter"`
	Queue       QueueConfig       `yaml:"queue"`
	Retention   RetentionConfig   `yaml:"retention"`
}

// LoggingConfig toggles the per-event job log lines.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// FailedStoreConfig selects the durable failed-job backend.
type FailedStoreConfig struct {
	// Driver is one of memory, postgres, bun, sqlite, mongo, redis.
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// CounterConfig selects the attempt counter backend.
type CounterConfig struct {
	// Driver is one of memory, redis, or store. The store driver keeps
	// counters in the failed-job backend when it supports them.
	Driver   string `yaml:"driver"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig selects the dispatcher used for retries and operator
// re-dispatch.
type QueueConfig struct {
	// Driver is one of memory, redis.
	Driver     string  `yaml:"driver"`
	Connection string  `yaml:"connection"`
	Addr       string  `yaml:"addr"`
	Password   string  `yaml:"password"`
	DB         int     `yaml:"db"`
	Prefix     string  `yaml:"prefix"`
	Codec      string  `yaml:"codec"`
	RateLimit  float64 `yaml:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst"`
}

// RetentionConfig drives the failed-record pruner.
type RetentionConfig struct {
	Schedule string `yaml:"schedule"`
	// MaxAge follows the same YAML units as Config.AttemptTTL.
	MaxAge   time.Duration `yaml:"max_age"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AttemptTTL:   24 * time.Hour,
		KeyPrefix:    "rr_job_attempt:",
		DefaultQueue: "default",
		IdentityKeys: identity.DefaultCandidateKeys(),
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		FailedStore: FailedStoreConfig{Driver: "memory"},
		Counter:     CounterConfig{Driver: "memory"},
		Queue: QueueConfig{
			Driver:     "memory",
			Connection: "default",
			Prefix:     "queues:",
			Codec:      "json",
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *",
			MaxAge:   7 * 24 * time.Hour,
		},
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped
// when path is empty) and ATTEMPTS_* environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("attempts: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %w", ErrConfiguration, path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UnmarshalYAML reads durations given as plain integers as seconds, the
// unit of ATTEMPTS_ATTEMPT_TTL. yaml.v2 would otherwise take them as
// nanoseconds.
func (c *Config) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	var raw struct {
		AttemptTTL any `yaml:"attempt_ttl"`
		Retention  struct {
			MaxAge any `yaml:"max_age"`
		} `yaml:"retention"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if secs, ok := integerSeconds(raw.AttemptTTL); ok {
		c.AttemptTTL = secs
	}
	if secs, ok := integerSeconds(raw.Retention.MaxAge); ok {
		c.Retention.MaxAge = secs
	}
	return nil
}

func integerSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	case uint64:
		return time.Duration(n) * time.Second, true
	default:
		return 0, false
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ATTEMPTS_ATTEMPT_TTL"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ATTEMPTS_ATTEMPT_TTL=%q: %w", ErrConfiguration, v, err)
		}
		c.AttemptTTL = time.Duration(secs) * time.Second
	}
	if v, ok := lookup("ATTEMPTS_KEY_PREFIX"); ok {
		c.KeyPrefix = v
	}
	if v, ok := lookup("ATTEMPTS_DEFAULT_QUEUE"); ok {
		c.DefaultQueue = v
	}
	if v, ok := lookup("ATTEMPTS_LOGGING"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: ATTEMPTS_LOGGING=%q: %w", ErrConfiguration, v, err)
		}
		c.Logging.Enabled = enabled
	}
	if v, ok := lookup("ATTEMPTS_FAILED_DRIVER"); ok {
		c.FailedStore.Driver = v
	}
	if v, ok := lookup("ATTEMPTS_FAILED_DSN"); ok {
		c.FailedStore.DSN = v
	}
	if v, ok := lookup("ATTEMPTS_REDIS_ADDR"); ok {
		c.Counter.Addr = v
		c.Queue.Addr = v
	}
	return nil
}

// Validate reports every problem in c joined into one ErrConfiguration.
func (c Config) Validate() error {
	var errs []error
	if c.AttemptTTL < time.Second {
		errs = append(errs, fmt.Errorf("attempt_ttl must be at least 1s, got %s", c.AttemptTTL))
	}
	if strings.TrimSpace(c.DefaultQueue) == "" {
		errs = append(errs, errors.New("default_queue must not be empty"))
	}
	if c.Retention.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("retention.max_age must not be negative, got %s", c.Retention.MaxAge))
	}
	if !oneOf(c.FailedStore.Driver, "memory", "postgres", "bun", "sqlite", "mongo", "redis") {
		errs = append(errs, fmt.Errorf("failed_store.driver %q is not supported", c.FailedStore.Driver))
	}
	if !oneOf(c.Counter.Driver, "memory", "redis", "store") {
		errs = append(errs, fmt.Errorf("counter.driver %q is not supported", c.Counter.Driver))
	}
	if !oneOf(c.Queue.Driver, "memory", "redis") {
		errs = append(errs, fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver))
	}
	if c.Queue.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("queue.rate_limit must not be negative, got %v", c.Queue.RateLimit))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
