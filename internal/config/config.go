// Package config loads dispatcher settings from defaults, an optional YAML or
// JSON file and DISPATCH_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks dispatcher variables; "__" separates nested keys, so
// DISPATCH_MATCHING__STRATEGY sets matching.strategy.
const EnvPrefix = "DISPATCH_"

type Config struct {
	LogLevel string         `koanf:"log_level"`
	Ops      OpsConfig      `koanf:"ops"`
	Matching MatchingConfig `koanf:"matching"`
	Surge    SurgeConfig    `koanf:"surge"`
	Redis    RedisConfig    `koanf:"redis"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Postgres PostgresConfig `koanf:"postgres"`
	Stripe   StripeConfig   `koanf:"stripe"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// OpsConfig covers the health, metrics and notification socket server.
type OpsConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type MatchingConfig struct {
	Strategy     string        `koanf:"strategy"`
	MaxAttempts  int           `koanf:"max_attempts"`
	Distance     string        `koanf:"distance"`
	SpeedMps     float64       `koanf:"speed_mps"`
	RatingWeight float64       `koanf:"rating_weight"`
	OSRMEndpoint string        `koanf:"osrm_endpoint"`
	ETACacheTTL  time.Duration `koanf:"eta_cache_ttl"`
	ETATimeout   time.Duration `koanf:"eta_timeout"`
}

// SurgeConfig activates surge pricing at startup when Multiplier > 1.
type SurgeConfig struct {
	Multiplier float64 `koanf:"multiplier"`
}

type RedisConfig struct {
	Addr        string `koanf:"addr"`
	Password    string `koanf:"password"`
	SequenceKey string `koanf:"sequence_key"`
	StatusKey   string `koanf:"status_key"`
}

type KafkaConfig struct {
	Brokers      []string      `koanf:"brokers"`
	Topic        string        `koanf:"topic"`
	Group        string        `koanf:"group"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type PostgresConfig struct {
	DSN     string `koanf:"dsn"`
	Migrate bool   `koanf:"migrate"`
}

type StripeConfig struct {
	APIKey   string `koanf:"api_key"`
	Currency string `koanf:"currency"`
}

type NotifyConfig struct {
	WebhookURL string        `koanf:"webhook_url"`
	WebhookKey string        `koanf:"webhook_key"`
	Timeout    time.Duration `koanf:"timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		"log_level":              "info",
		"ops.addr":               ":8080",
		"ops.read_timeout":       "5s",
		"ops.write_timeout":      "10s",
		"ops.idle_timeout":       "120s",
		"ops.shutdown_timeout":   "15s",
		"matching.strategy":      "nearest",
		"matching.max_attempts":  3,
		"matching.distance":      "euclidean",
		"matching.speed_mps":     8.0,
		"matching.rating_weight": 30.0,
		"matching.eta_cache_ttl": "30s",
		"matching.eta_timeout":   "500ms",
		"surge.multiplier":       1.0,
		"redis.sequence_key":     "ride:id:seq",
		"redis.status_key":       "ride:status:",
		"kafka.topic":            "ride-status",
		"kafka.group":            "ride-status-projector",
		"kafka.write_timeout":    "2s",
		"stripe.currency":        "usd",
		"notify.timeout":         "3s",
	}
}

// Load reads the configuration. path may be empty to use only defaults and
// the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, err
	}
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return Config{}, fmt.Errorf("unsupported config format: %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Kafka.Brokers = splitAndTrim(cfg.Kafka.Brokers)
	return cfg, cfg.Validate()
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Matching.Strategy {
	case "nearest", "best_rated", "weighted":
	default:
		errs = append(errs, fmt.Errorf("matching.strategy: unknown strategy %q", c.Matching.Strategy))
	}
	switch c.Matching.Distance {
	case "euclidean", "haversine", "haversine_km":
	default:
		errs = append(errs, fmt.Errorf("matching.distance: unknown distance %q", c.Matching.Distance))
	}
	if c.Matching.MaxAttempts <= 0 {
		errs = append(errs, errors.New("matching.max_attempts must be > 0"))
	}
	if c.Matching.SpeedMps <= 0 {
		errs = append(errs, errors.New("matching.speed_mps must be > 0"))
	}
	if c.Surge.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("surge.multiplier must be >= 1, got %v", c.Surge.Multiplier))
	}
	if c.Ops.Addr == "" {
		errs = append(errs, errors.New("ops.addr is required"))
	}
	if c.Kafka.WriteTimeout <= 0 {
		errs = append(errs, errors.New("kafka.write_timeout must be > 0"))
	}
	return errors.Join(errs...)
}

// splitAndTrim also splits entries that arrived as one comma-separated value.
func splitAndTrim(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
