package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var meetaiEnvKeys = []string{
	"MEETAI_CONFIG_FILE",
	"MEETAI_ADDR",
	"MEETAI_ENV",
	"MEETAI_LOG_LEVEL",
	"MEETAI_LOG_FILE",
	"MEETAI_STORE",
	"MEETAI_DATABASE_URL",
	"MEETAI_MIGRATE_ON_START",
	"MEETAI_MAX_BODY_BYTES",
	"MEETAI_READ_HEADER_TIMEOUT",
	"MEETAI_READ_TIMEOUT",
	"MEETAI_HANDLER_TIMEOUT",
	"MEETAI_SHUTDOWN_GRACE_PERIOD",
	"MEETAI_STREAM_API_KEY",
	"MEETAI_STREAM_API_SECRET",
	"MEETAI_STREAM_BASE_URL",
	"MEETAI_REALTIME_MODEL",
	"MEETAI_REALTIME_HANDSHAKE_TIMEOUT",
	"MEETAI_REALTIME_MAX_SESSION_DURATION",
	"MEETAI_REALTIME_TOKEN_TTL",
	"MEETAI_STRIPE_SECRET_KEY",
	"MEETAI_AUTH_JWT_SECRET",
	"MEETAI_RATE_LIMIT_RPS",
	"MEETAI_RATE_LIMIT_BURST",
	"MEETAI_OPENAI_KEY_ENV",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range meetaiEnvKeys {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MEETAI_DATABASE_URL", "postgres://localhost/meetai")
	t.Setenv("MEETAI_STREAM_API_KEY", "key")
	t.Setenv("MEETAI_STREAM_API_SECRET", "secret")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.Store != StorePostgres || !cfg.MigrateOnStart {
		t.Fatalf("Store=%q MigrateOnStart=%v", cfg.Store, cfg.MigrateOnStart)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.HandlerTimeout != 30*time.Second {
		t.Fatalf("HandlerTimeout=%v", cfg.HandlerTimeout)
	}
	if cfg.RealtimeModel != "gpt-4o-realtime-preview" {
		t.Fatalf("RealtimeModel=%q", cfg.RealtimeModel)
	}
	if cfg.RealtimeMaxSessionDuration != 2*time.Hour {
		t.Fatalf("RealtimeMaxSessionDuration=%v", cfg.RealtimeMaxSessionDuration)
	}
	if cfg.OpenAIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("OpenAIKeyEnv=%q", cfg.OpenAIKeyEnv)
	}
	if cfg.PremiumEnabled() {
		t.Fatalf("premium should be disabled without a stripe key")
	}
}

func TestLoadFromEnv_RequiresStreamCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEETAI_STORE", "memory")
	t.Setenv("MEETAI_STREAM_API_KEY", "key")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "MEETAI_STREAM_API_SECRET") {
		t.Fatalf("expected stream secret error, got %v", err)
	}
}

func TestLoadFromEnv_PostgresRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEETAI_STREAM_API_KEY", "key")
	t.Setenv("MEETAI_STREAM_API_SECRET", "secret")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "MEETAI_DATABASE_URL") {
		t.Fatalf("expected database url error, got %v", err)
	}

	t.Setenv("MEETAI_STORE", "memory")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("memory store should not need a database url: %v", err)
	}
}

func TestLoadFromEnv_InvalidStore(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("MEETAI_STORE", "sqlite")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}

func TestLoadFromEnv_PremiumRequiresJWTSecret(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("MEETAI_STRIPE_SECRET_KEY", "sk_test_123")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "MEETAI_AUTH_JWT_SECRET") {
		t.Fatalf("expected jwt secret error, got %v", err)
	}

	t.Setenv("MEETAI_AUTH_JWT_SECRET", "jwt-secret")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if !cfg.PremiumEnabled() {
		t.Fatalf("expected premium enabled")
	}
}

func TestLoadFromEnv_RejectsNonPositiveTimeouts(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("MEETAI_HANDLER_TIMEOUT", "0s")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "MEETAI_HANDLER_TIMEOUT") {
		t.Fatalf("expected handler timeout error, got %v", err)
	}
}

func TestLoadFromEnv_FileDefaultsUnderEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "meetai.yaml")
	content := "" +
		"store: memory\n" +
		"stream_api_key: file-key\n" +
		"stream_api_secret: file-secret\n" +
		"max_body_bytes: 2048\n" +
		"realtime_handshake_timeout: 3s\n" +
		"addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("MEETAI_CONFIG_FILE", path)
	t.Setenv("MEETAI_ADDR", ":7000")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("Store=%q", cfg.Store)
	}
	if cfg.StreamAPIKey != "file-key" {
		t.Fatalf("StreamAPIKey=%q", cfg.StreamAPIKey)
	}
	if cfg.MaxBodyBytes != 2048 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.RealtimeHandshakeTimeout != 3*time.Second {
		t.Fatalf("RealtimeHandshakeTimeout=%v", cfg.RealtimeHandshakeTimeout)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("Addr=%q, want env to override file", cfg.Addr)
	}
}

func TestLoadFromEnv_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("MEETAI_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestOpenAIKey_ReadsAtCallTime(t *testing.T) {
	cfg := Config{OpenAIKeyEnv: "MEETAI_TEST_OPENAI_KEY"}
	t.Setenv("MEETAI_TEST_OPENAI_KEY", "")
	if got := cfg.OpenAIKey(); got != "" {
		t.Fatalf("OpenAIKey=%q, want empty", got)
	}
	t.Setenv("MEETAI_TEST_OPENAI_KEY", "sk-123")
	if got := cfg.OpenAIKey(); got != "sk-123" {
		t.Fatalf("OpenAIKey=%q", got)
	}
}
