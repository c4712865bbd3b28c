package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dunapp/water-level-alert/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	APIAddr         string
	OpsAddr         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// HTTP trigger boundary.
	AllowedOrigins   []string
	AllowEmptyOrigin bool

	// Alert run.
	AlertStation    string
	AlertThreshold  float64
	AlertCooldown   time.Duration
	AlertRunTimeout time.Duration
	StoreTimeout    time.Duration

	// Dispatch. An empty DispatchURL means the dispatcher runs in-process.
	DispatchURL         string
	DispatchToken       string
	DispatchTimeout     time.Duration
	DispatchConcurrency int
	PushTimeout         time.Duration
	PushTTL             time.Duration

	// VAPID credentials for Web Push.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	// Alert events. No brokers disables publishing.
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Cooldown reservation. An empty address disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultAllowedOrigins are the production and local development origins of the PWA.
const DefaultAllowedOrigins = "https://dunapp.hu,https://www.dunapp.hu,http://localhost:5173"

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is honoured when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := parseDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		APIAddr:         envOrDefault("API_ADDR", ":8080"),
		OpsAddr:         envOrDefault("OPS_ADDR", ":9090"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "10s"),

		AllowedOrigins: parseList(envOrDefault("ALLOWED_ORIGINS", DefaultAllowedOrigins)),

		AlertStation:    envOrDefault("ALERT_STATION", "Mohács"),
		AlertCooldown:   duration("ALERT_COOLDOWN", domain.DefaultCooldown.String()),
		AlertRunTimeout: duration("ALERT_RUN_TIMEOUT", "60s"),
		StoreTimeout:    duration("STORE_TIMEOUT", "5s"),

		DispatchURL:     strings.TrimRight(os.Getenv("DISPATCH_URL"), "/"),
		DispatchToken:   os.Getenv("DISPATCH_TOKEN"),
		DispatchTimeout: duration("DISPATCH_TIMEOUT", "30s"),
		PushTimeout:     duration("PUSH_TIMEOUT", "10s"),
		PushTTL:         duration("PUSH_TTL", "24h"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    envOrDefault("VAPID_SUBJECT", "mailto:contact@dunapp.hu"),

		KafkaBrokers:    parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "water-level-alerts"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.AllowEmptyOrigin, err = parseBool("ALLOW_EMPTY_ORIGIN", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.AlertThreshold, err = parseFloat("ALERT_THRESHOLD_CM", domain.DefaultThreshold); err != nil {
		errs = append(errs, err)
	}
	if cfg.DispatchConcurrency, err = parseInt("DISPATCH_CONCURRENCY", 10, 1); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0, 0); err != nil {
		errs = append(errs, err)
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, &domain.ConfigurationError{Key: "DATABASE_URL", Msg: "is required"})
	}
	if len(cfg.AllowedOrigins) == 0 && !cfg.AllowEmptyOrigin {
		errs = append(errs, &domain.ConfigurationError{Key: "ALLOWED_ORIGINS", Msg: "must list at least one origin"})
	}
	if cfg.DispatchURL != "" && cfg.DispatchToken == "" {
		errs = append(errs, &domain.ConfigurationError{Key: "DISPATCH_TOKEN", Msg: "is required when DISPATCH_URL is set"})
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAlertTopic == "" {
		errs = append(errs, &domain.ConfigurationError{Key: "KAFKA_ALERT_TOPIC", Msg: "is required when KAFKA_BROKERS is set"})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// PushConfigured reports whether both VAPID keys are present. Without them the
// in-process dispatcher refuses to send.
func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, &domain.ConfigurationError{Key: key, Msg: "must be a positive duration"}
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &domain.ConfigurationError{Key: key, Msg: fmt.Sprintf("must be a boolean, got %q", v)}
	}
	return b, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		return 0, &domain.ConfigurationError{Key: key, Msg: fmt.Sprintf("must be an integer >= %d, got %q", minimum, v)}
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, &domain.ConfigurationError{Key: key, Msg: fmt.Sprintf("must be a positive number, got %q", v)}
	}
	return f, nil
}
