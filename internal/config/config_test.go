package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":3000" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Transport.Driver != DriverWhatsApp {
		t.Fatalf("unexpected Transport.Driver default: %q", cfg.Transport.Driver)
	}
	if cfg.Store.SQLitePath != "wasender.db" {
		t.Fatalf("unexpected Store.SQLitePath default: %q", cfg.Store.SQLitePath)
	}
	if cfg.Bulk.DefaultDelay != 5*time.Second {
		t.Fatalf("unexpected Bulk.DefaultDelay default: %v", cfg.Bulk.DefaultDelay)
	}
	if cfg.Bulk.SendTimeout != 60*time.Second {
		t.Fatalf("unexpected Bulk.SendTimeout default: %v", cfg.Bulk.SendTimeout)
	}
	if cfg.Bulk.SessionSendsPerMinute != 0 {
		t.Fatalf("expected throttle disabled by default, got %d", cfg.Bulk.SessionSendsPerMinute)
	}
	if cfg.Bulk.Retention != 24*time.Hour {
		t.Fatalf("unexpected Bulk.Retention default: %v", cfg.Bulk.Retention)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Fatalf("unexpected Server.ShutdownTimeout default: %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_PortFallback(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("PORT", "8081")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Server.Address != ":8081" {
		t.Fatalf("expected :8081, got %q", cfg.Server.Address)
	}

	t.Setenv("SERVER_ADDRESS", "127.0.0.1:9000")
	cfg, err = LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Fatalf("expected SERVER_ADDRESS to win, got %q", cfg.Server.Address)
	}
}

func TestLoadAll_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL)
	}
}

func TestLoadAll_WebhookDriverRequiresURL(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("TRANSPORT_DRIVER", "webhook")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "WEBHOOK_URL") {
		t.Fatalf("expected error mentioning WEBHOOK_URL, got: %v", err)
	}

	t.Setenv("WEBHOOK_URL", "https://example.com/webhook")
	t.Setenv("WEBHOOK_TIMEOUT_SECONDS", "3")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if cfg.Webhook.URL != "https://example.com/webhook" {
		t.Fatalf("unexpected Webhook.URL: %q", cfg.Webhook.URL)
	}
	if cfg.Webhook.Timeout != 3*time.Second {
		t.Fatalf("unexpected Webhook.Timeout: %v", cfg.Webhook.Timeout)
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid BULK_DEFAULT_DELAY_SECONDS", "BULK_DEFAULT_DELAY_SECONDS", "abc"},
		{"invalid SEND_TIMEOUT_SECONDS", "SEND_TIMEOUT_SECONDS", "nope"},
		{"invalid SESSION_SENDS_PER_MINUTE", "SESSION_SENDS_PER_MINUTE", "x"},
		{"invalid TASK_RETENTION_SECONDS", "TASK_RETENTION_SECONDS", "1d"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
		{"invalid REDIS_TTL_SECONDS", "REDIS_TTL_SECONDS", "bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			// Enable redis only for redis-related invalid ints.
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}

			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"unknown driver", "TRANSPORT_DRIVER", "telegram", "TRANSPORT_DRIVER"},
		{"negative delay", "BULK_DEFAULT_DELAY_SECONDS", "-1", "BULK_DEFAULT_DELAY_SECONDS"},
		{"negative throttle", "SESSION_SENDS_PER_MINUTE", "-5", "SESSION_SENDS_PER_MINUTE"},
		{"janitor interval <= 0", "JANITOR_INTERVAL_SECONDS", "0", "JANITOR_INTERVAL_SECONDS"},
		{"shutdown timeout <= 0", "SHUTDOWN_TIMEOUT_SECONDS", "0", "SHUTDOWN_TIMEOUT_SECONDS"},
		{"bad log format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoadAll_AggregatesErrors(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("SEND_TIMEOUT_SECONDS", "x")
	t.Setenv("TRANSPORT_DRIVER", "nope")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, want := range []string{"SEND_TIMEOUT_SECONDS", "TRANSPORT_DRIVER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got: %v", want, err)
		}
	}
}

func TestConfig_Masked(t *testing.T) {
	cfg := Config{
		Store: StoreConfig{PostgresURL: "postgres://u:p@db/wa"},
		Redis: RedisConfig{Password: "secret", Address: "localhost:6379"},
	}

	m := cfg.Masked()
	if m.Store.PostgresURL != "****" || m.Redis.Password != "****" {
		t.Fatalf("expected secrets masked, got %+v", m)
	}
	if m.Redis.Address != "localhost:6379" {
		t.Fatalf("expected address untouched, got %q", m.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("Masked must not modify the receiver")
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"PORT",
		"TRANSPORT_DRIVER",
		"WEBHOOK_URL",
		"WEBHOOK_TIMEOUT_SECONDS",
		"POSTGRES_URL",
		"SQLITE_PATH",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"BULK_DEFAULT_DELAY_SECONDS",
		"SEND_TIMEOUT_SECONDS",
		"SESSION_SENDS_PER_MINUTE",
		"TASK_RETENTION_SECONDS",
		"JANITOR_INTERVAL_SECONDS",
		"SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		// t.Setenv registers restore; Unsetenv then clears for this test.
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}
