package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

const defaultJWTSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OTel         OTelConfig         `mapstructure:"otel"`
	Store        StoreConfig        `mapstructure:"store"`
	Reservation  ReservationConfig  `mapstructure:"reservation"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
	HoldTimer    HoldTimerConfig    `mapstructure:"hold_timer"`
	Notification NotificationConfig `mapstructure:"notification"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings. When disabled,
// claim notifications are logged and domain events are dropped.
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// StoreConfig selects the reservation store driver
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres, redis, memory
}

// ReservationConfig holds the booking rules
type ReservationConfig struct {
	HoldDuration               time.Duration `mapstructure:"hold_duration"`
	OverrideWindow             time.Duration `mapstructure:"override_window"`
	LimitAppliesWithinOverride bool          `mapstructure:"limit_applies_within_override"`
	StandardLimit              int           `mapstructure:"standard_limit"`
	ElevatedLimit              int           `mapstructure:"elevated_limit"`
	NotifyTimeout              time.Duration `mapstructure:"notify_timeout"`
}

// SweeperConfig holds the expiry sweeper schedule
type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// HoldTimerConfig holds the delayed hold-expiry task settings
type HoldTimerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

// NotificationConfig holds claim notification and event settings
type NotificationConfig struct {
	Topic           string        `mapstructure:"topic"`
	EventsTopic     string        `mapstructure:"events_topic"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	// Workers and QueueSize size the in-process delivery pool
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// RateLimitConfig holds per-diner rate limits on write routes
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// IdempotencyConfig holds idempotency-key settings for write routes
type IdempotencyConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Required bool          `mapstructure:"required"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine; environment variables still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	return load(v)
}

// LoadWithPath loads configuration from a specific env file
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "reservation-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("SERVER_CORS_ORIGINS", "*")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "reservations")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 20)
	v.SetDefault("DATABASE_MIN_CONNS", 2)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "reservation-service")

	// JWT defaults
	v.SetDefault("JWT_SECRET", defaultJWTSecret)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "reservation-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Store
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	// Reservation rules
	v.SetDefault("RESERVATION_HOLD_DURATION", "15m")
	v.SetDefault("RESERVATION_OVERRIDE_WINDOW", "24h")
	v.SetDefault("RESERVATION_LIMIT_APPLIES_WITHIN_OVERRIDE", true)
	v.SetDefault("RESERVATION_STANDARD_LIMIT", 3)
	v.SetDefault("RESERVATION_ELEVATED_LIMIT", 10)
	v.SetDefault("RESERVATION_NOTIFY_TIMEOUT", "10s")

	// Sweeper
	v.SetDefault("SWEEPER_ENABLED", true)
	v.SetDefault("SWEEPER_SCHEDULE", "@every 1m")
	v.SetDefault("SWEEPER_BATCH_SIZE", 100)
	v.SetDefault("SWEEPER_TIMEOUT", "50s")
	v.SetDefault("SWEEPER_RUN_ON_START", true)

	// Delayed hold expiry
	v.SetDefault("HOLD_TIMER_ENABLED", false)
	v.SetDefault("HOLD_TIMER_QUEUE", "holds")
	v.SetDefault("HOLD_TIMER_CONCURRENCY", 5)

	// Notifications
	v.SetDefault("NOTIFICATION_TOPIC", "slot-claim-notifications")
	v.SetDefault("NOTIFICATION_EVENTS_TOPIC", "reservation-events")
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_INITIAL_INTERVAL", "200ms")
	v.SetDefault("NOTIFICATION_WORKERS", 4)
	v.SetDefault("NOTIFICATION_QUEUE_SIZE", 256)

	// Rate limiting
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_SECOND", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Idempotency
	v.SetDefault("IDEMPOTENCY_ENABLED", true)
	v.SetDefault("IDEMPOTENCY_REQUIRED", false)
	v.SetDefault("IDEMPOTENCY_TTL", "5m")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")
	cfg.Server.CORSOrigins = splitList(v.GetString("SERVER_CORS_ORIGINS"))

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Store
	cfg.Store.Driver = strings.ToLower(v.GetString("STORE_DRIVER"))

	// Reservation
	cfg.Reservation.HoldDuration = v.GetDuration("RESERVATION_HOLD_DURATION")
	cfg.Reservation.OverrideWindow = v.GetDuration("RESERVATION_OVERRIDE_WINDOW")
	cfg.Reservation.LimitAppliesWithinOverride = v.GetBool("RESERVATION_LIMIT_APPLIES_WITHIN_OVERRIDE")
	cfg.Reservation.StandardLimit = v.GetInt("RESERVATION_STANDARD_LIMIT")
	cfg.Reservation.ElevatedLimit = v.GetInt("RESERVATION_ELEVATED_LIMIT")
	cfg.Reservation.NotifyTimeout = v.GetDuration("RESERVATION_NOTIFY_TIMEOUT")

	// Sweeper
	cfg.Sweeper.Enabled = v.GetBool("SWEEPER_ENABLED")
	cfg.Sweeper.Schedule = v.GetString("SWEEPER_SCHEDULE")
	cfg.Sweeper.BatchSize = v.GetInt("SWEEPER_BATCH_SIZE")
	cfg.Sweeper.Timeout = v.GetDuration("SWEEPER_TIMEOUT")
	cfg.Sweeper.RunOnStart = v.GetBool("SWEEPER_RUN_ON_START")

	// Hold timer
	cfg.HoldTimer.Enabled = v.GetBool("HOLD_TIMER_ENABLED")
	cfg.HoldTimer.Queue = v.GetString("HOLD_TIMER_QUEUE")
	cfg.HoldTimer.Concurrency = v.GetInt("HOLD_TIMER_CONCURRENCY")

	// Notifications
	cfg.Notification.Topic = v.GetString("NOTIFICATION_TOPIC")
	cfg.Notification.EventsTopic = v.GetString("NOTIFICATION_EVENTS_TOPIC")
	cfg.Notification.MaxRetries = v.GetInt("NOTIFICATION_MAX_RETRIES")
	cfg.Notification.InitialInterval = v.GetDuration("NOTIFICATION_INITIAL_INTERVAL")
	cfg.Notification.Workers = v.GetInt("NOTIFICATION_WORKERS")
	cfg.Notification.QueueSize = v.GetInt("NOTIFICATION_QUEUE_SIZE")

	// Rate limiting
	cfg.RateLimit.Enabled = v.GetBool("RATE_LIMIT_ENABLED")
	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_REQUESTS_PER_SECOND")
	cfg.RateLimit.Burst = v.GetInt("RATE_LIMIT_BURST")

	// Idempotency
	cfg.Idempotency.Enabled = v.GetBool("IDEMPOTENCY_ENABLED")
	cfg.Idempotency.Required = v.GetBool("IDEMPOTENCY_REQUIRED")
	cfg.Idempotency.TTL = v.GetDuration("IDEMPOTENCY_TTL")

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverRedis:
	case StoreDriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Reservation.HoldDuration <= 0 {
		return fmt.Errorf("RESERVATION_HOLD_DURATION must be positive")
	}
	if c.Reservation.OverrideWindow < 0 {
		return fmt.Errorf("RESERVATION_OVERRIDE_WINDOW must not be negative")
	}
	if c.Reservation.StandardLimit < 1 || c.Reservation.ElevatedLimit < 1 {
		return fmt.Errorf("booking limits must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	if c.Sweeper.BatchSize < 1 {
		return fmt.Errorf("SWEEPER_BATCH_SIZE must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit requires a positive rate and burst")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
