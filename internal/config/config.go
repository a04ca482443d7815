package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"github.com/ulule/limiter/v3"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Gateways  GatewayConfig
	Log       LogConfig
	Directory DirectoryConfig
}

type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    string
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	PostGIS      bool
	MaxOpenConns int
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	LocationTTL time.Duration
}

type QueueConfig struct {
	Name                string
	Lease               time.Duration
	WorkerConcurrency   int
	PollInterval        time.Duration
	MaintenanceInterval time.Duration
	CleanSchedule       string
	CleanGrace          time.Duration
}

type GatewayConfig struct {
	SMSWebhookURL  string
	PushWebhookURL string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPTLS        bool
	MapsBaseURL    string
}

type LogConfig struct {
	Level string
	File  string
}

type DirectoryConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// LoadAll reads the configuration from the environment. Every problem found
// is reported in the returned error.
func LoadAll() (*Config, error) {
	var errs []error
	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(num(key, def)) * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8080"),
			ReadTimeout:  dur("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: dur("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RateLimit:    getEnv("RATE_LIMIT", "20-M"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DATABASE_DRIVER", "postgres"),
			DSN:          str("DATABASE_DSN"),
			PostGIS:      flag("DATABASE_POSTGIS", false),
			MaxOpenConns: num("DATABASE_MAX_OPEN_CONNS", 25),
		},
		Redis: RedisConfig{
			Address:     str("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          num("REDIS_DB", 0),
			LocationTTL: seconds("LOCATION_CACHE_TTL_SECONDS", 86400),
		},
		Queue: QueueConfig{
			Name:                getEnv("QUEUE_NAME", "notifications"),
			Lease:               seconds("QUEUE_LEASE_SECONDS", 60),
			WorkerConcurrency:   num("WORKER_CONCURRENCY", 4),
			PollInterval:        time.Duration(num("WORKER_POLL_MS", 500)) * time.Millisecond,
			MaintenanceInterval: seconds("MAINTENANCE_INTERVAL_SECONDS", 5),
			CleanSchedule:       getEnv("QUEUE_CLEAN_SCHEDULE", "@hourly"),
			CleanGrace:          dur("QUEUE_CLEAN_GRACE", 24*time.Hour),
		},
		Gateways: GatewayConfig{
			SMSWebhookURL:  str("SMS_WEBHOOK_URL"),
			PushWebhookURL: str("PUSH_WEBHOOK_URL"),
			SMTPHost:       str("SMTP_HOST"),
			SMTPPort:       num("SMTP_PORT", 587),
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
			SMTPFrom:       str("SMTP_FROM"),
			SMTPTLS:        flag("SMTP_TLS", true),
			MapsBaseURL:    getEnv("MAPS_BASE_URL", "https://www.google.com/maps/search/?api=1"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Directory: DirectoryConfig{
			CacheSize: num("DIRECTORY_CACHE_SIZE", 1024),
			CacheTTL:  dur("DIRECTORY_CACHE_TTL", 5*time.Minute),
		},
	}

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", cfg.Database.Driver))
	}
	if cfg.Queue.WorkerConcurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be > 0"))
	}
	if cfg.Queue.Lease <= 0 {
		errs = append(errs, errors.New("QUEUE_LEASE_SECONDS must be > 0"))
	}
	if cfg.Queue.PollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_MS must be > 0"))
	}
	if cfg.Queue.MaintenanceInterval <= 0 {
		errs = append(errs, errors.New("MAINTENANCE_INTERVAL_SECONDS must be > 0"))
	}
	if _, err := cron.ParseStandard(cfg.Queue.CleanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("QUEUE_CLEAN_SCHEDULE: %w", err))
	}
	if _, err := limiter.NewRateFromFormatted(cfg.Server.RateLimit); err != nil {
		errs = append(errs, fmt.Errorf("RATE_LIMIT: %w", err))
	}
	if cfg.Gateways.SMTPPort <= 0 {
		errs = append(errs, errors.New("SMTP_PORT must be > 0"))
	}
	return errs
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
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

// getEnvDuration accepts Go duration strings such as "90s" or "24h".
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration for env %s: %s", key, v)
	}
	return d, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
