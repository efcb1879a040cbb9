package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverWhatsApp = "whatsapp"
	DriverWebhook  = "webhook"
)

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Webhook   WebhookConfig
	Store     StoreConfig
	Redis     RedisConfig
	Bulk      BulkConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

type TransportConfig struct {
	Driver string
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// StoreConfig locates the WhatsApp device store. PostgresURL wins when set.
type StoreConfig struct {
	PostgresURL string
	SQLitePath  string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type BulkConfig struct {
	DefaultDelay          time.Duration
	SendTimeout           time.Duration
	SessionSendsPerMinute int
	Retention             time.Duration
	JanitorInterval       time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadAll() (*Config, error) {
	var errs []error

	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":"+getEnv("PORT", "3000")),
			ShutdownTimeout: seconds("SHUTDOWN_TIMEOUT_SECONDS", 15),
		},
		Transport: TransportConfig{
			Driver: strings.ToLower(getEnv("TRANSPORT_DRIVER", DriverWhatsApp)),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("WEBHOOK_URL"),
			Timeout: seconds("WEBHOOK_TIMEOUT_SECONDS", 10),
		},
		Store: StoreConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
			SQLitePath:  getEnv("SQLITE_PATH", "wasender.db"),
		},
		Bulk: BulkConfig{
			DefaultDelay:          seconds("BULK_DEFAULT_DELAY_SECONDS", 5),
			SendTimeout:           seconds("SEND_TIMEOUT_SECONDS", 60),
			SessionSendsPerMinute: intVar("SESSION_SENDS_PER_MINUTE", 0),
			Retention:             seconds("TASK_RETENTION_SECONDS", 86400),
			JanitorInterval:       seconds("JANITOR_INTERVAL_SECONDS", 300),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	if cfg.Transport.Driver == DriverWebhook {
		if _, err := requireEnv("WEBHOOK_URL"); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errors.Join(dbErr, ttlErr)
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.Transport.Driver {
	case DriverWhatsApp, DriverWebhook:
	default:
		errs = append(errs, fmt.Errorf("TRANSPORT_DRIVER must be %q or %q, got %q", DriverWhatsApp, DriverWebhook, cfg.Transport.Driver))
	}
	if cfg.Bulk.DefaultDelay < 0 {
		errs = append(errs, errors.New("BULK_DEFAULT_DELAY_SECONDS must be >= 0"))
	}
	if cfg.Bulk.SendTimeout < 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be >= 0"))
	}
	if cfg.Bulk.SessionSendsPerMinute < 0 {
		errs = append(errs, errors.New("SESSION_SENDS_PER_MINUTE must be >= 0"))
	}
	if cfg.Bulk.Retention < 0 {
		errs = append(errs, errors.New("TASK_RETENTION_SECONDS must be >= 0"))
	}
	if cfg.Bulk.JanitorInterval <= 0 {
		errs = append(errs, errors.New("JANITOR_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMEOUT_SECONDS must be > 0"))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format))
	}
	return errs
}

// Masked returns a copy that is safe to print.
func (c Config) Masked() Config {
	if c.Store.PostgresURL != "" {
		c.Store.PostgresURL = "****"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "****"
	}
	return c
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
