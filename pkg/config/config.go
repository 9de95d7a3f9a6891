package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MEETAI_"

type StoreKind string

const (
	StorePostgres StoreKind = "postgres"
	StoreMemory   StoreKind = "memory"
)

type Config struct {
	Addr     string
	Env      string
	LogLevel string
	// LogFile enables rotated file output; empty logs to stdout.
	LogFile string

	Store          StoreKind
	DatabaseURL    string
	MigrateOnStart bool

	MaxBodyBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Stream Video
	StreamAPIKey    string
	StreamAPISecret string
	StreamBaseURL   string

	// Realtime agent bridge
	RealtimeModel              string
	RealtimeHandshakeTimeout   time.Duration
	RealtimeMaxSessionDuration time.Duration
	RealtimeTokenTTL           time.Duration

	// Premium API. Disabled when StripeSecretKey is empty.
	StripeSecretKey string
	AuthJWTSecret   string
	LimitRPS        float64
	LimitBurst      int

	// OpenAIKeyEnv names the variable holding the realtime credential. It is
	// read per request, never cached.
	OpenAIKeyEnv string
}

func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func (c Config) PremiumEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

// OpenAIKey reads the realtime credential from the process environment.
func (c Config) OpenAIKey() string {
	name := c.OpenAIKeyEnv
	if name == "" {
		name = "OPENAI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(name))
}

// LoadFromEnv builds the config from MEETAI_* variables. When
// MEETAI_CONFIG_FILE points at a YAML file its keys (variable names without
// the prefix, lowercased) act as defaults beneath the environment.
func LoadFromEnv() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE")); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	cfg := Config{
		Addr:                       src.or("ADDR", ":8080"),
		Env:                        src.or("ENV", "dev"),
		LogLevel:                   src.or("LOG_LEVEL", "info"),
		LogFile:                    src.or("LOG_FILE", ""),
		Store:                      StoreKind(strings.ToLower(src.or("STORE", string(StorePostgres)))),
		DatabaseURL:                src.or("DATABASE_URL", ""),
		MigrateOnStart:             src.boolOr("MIGRATE_ON_START", true),
		MaxBodyBytes:               src.int64Or("MAX_BODY_BYTES", 1<<20), // 1 MiB
		ReadHeaderTimeout:          src.durationOr("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                src.durationOr("READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             src.durationOr("HANDLER_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:        src.durationOr("SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		StreamAPIKey:               src.or("STREAM_API_KEY", ""),
		StreamAPISecret:            src.or("STREAM_API_SECRET", ""),
		StreamBaseURL:              src.or("STREAM_BASE_URL", "https://video.stream-io-api.com"),
		RealtimeModel:              src.or("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeHandshakeTimeout:   src.durationOr("REALTIME_HANDSHAKE_TIMEOUT", 15*time.Second),
		RealtimeMaxSessionDuration: src.durationOr("REALTIME_MAX_SESSION_DURATION", 2*time.Hour),
		RealtimeTokenTTL:           src.durationOr("REALTIME_TOKEN_TTL", time.Hour),
		StripeSecretKey:            src.or("STRIPE_SECRET_KEY", ""),
		AuthJWTSecret:              src.or("AUTH_JWT_SECRET", ""),
		LimitRPS:                   src.float64Or("RATE_LIMIT_RPS", 5),
		LimitBurst:                 src.intOr("RATE_LIMIT_BURST", 10),
		OpenAIKeyEnv:               src.or("OPENAI_KEY_ENV", "OPENAI_API_KEY"),
	}

	switch cfg.Store {
	case StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("MEETAI_STORE must be one of postgres|memory")
	}
	if cfg.Store == StorePostgres && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("MEETAI_DATABASE_URL must be set when MEETAI_STORE=postgres")
	}
	if cfg.StreamAPIKey == "" {
		return Config{}, fmt.Errorf("MEETAI_STREAM_API_KEY must be set")
	}
	if cfg.StreamAPISecret == "" {
		return Config{}, fmt.Errorf("MEETAI_STREAM_API_SECRET must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("MEETAI_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("MEETAI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.RealtimeHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_REALTIME_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.RealtimeMaxSessionDuration < 0 {
		return Config{}, fmt.Errorf("MEETAI_REALTIME_MAX_SESSION_DURATION must be >= 0")
	}
	if cfg.RealtimeTokenTTL <= 0 {
		return Config{}, fmt.Errorf("MEETAI_REALTIME_TOKEN_TTL must be > 0")
	}
	if cfg.OpenAIKeyEnv == "" {
		return Config{}, fmt.Errorf("MEETAI_OPENAI_KEY_ENV must not be empty")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("MEETAI_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("MEETAI_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.PremiumEnabled() && cfg.AuthJWTSecret == "" {
		return Config{}, fmt.Errorf("MEETAI_AUTH_JWT_SECRET must be set when MEETAI_STRIPE_SECRET_KEY is set")
	}

	return cfg, nil
}

func loadFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return out, nil
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s source) or(key, def string) string {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	return v
}

func (s source) int64Or(key string, def int64) int64 {
	raw := s.lookup(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (s source) intOr(key string, def int) int {
	raw := s.lookup(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s source) float64Or(key string, def float64) float64 {
	raw := s.lookup(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func (s source) boolOr(key string, def bool) bool {
	raw := s.lookup(key)
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func (s source) durationOr(key string, def time.Duration) time.Duration {
	raw := s.lookup(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
