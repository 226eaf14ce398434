package di

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/migrate"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/repository"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/worker"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/database"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/kafka"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	pkgredis "github.com/johnnyhall81/clientdining-v1-sub000/pkg/redis"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/retry"
	"go.uber.org/zap"
)

// Build connects the infrastructure selected by cfg and wires the container.
// The store backend is required; Kafka and Redis extras degrade with a warning.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	appLog := logger.Get()
	cc := &ContainerConfig{
		ServiceConfig:    ServiceConfig(cfg),
		SweeperConfig:    SweeperConfig(cfg),
		HoldWorkerConfig: &worker.HoldExpiryWorkerConfig{Concurrency: cfg.HoldTimer.Concurrency, Queue: cfg.HoldTimer.Queue},
		DispatcherConfig: DispatcherConfig(cfg),
	}

	// cleanup releases whatever connected before a failure
	cleanup := func() {
		(&Container{DB: cc.DB, Redis: cc.Redis, Kafka: cc.Kafka, AsynqClient: cc.AsynqClient}).Close()
	}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, PostgresConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		cc.DB = db
		appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", cfg.Database.MinConns, cfg.Database.MaxConns))

		if cfg.Database.AutoMigrate {
			applied, err := migrate.Up(ctx, db)
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
			appLog.Info(fmt.Sprintf("Migrations applied: %d", len(applied)))
		}
		cc.Store = repository.NewPostgresStore(db.Pool())
		cc.Profiles = repository.NewPostgresDinerRepository(db.Pool())

	case config.StoreDriverRedis:
		client, err := pkgredis.NewClient(ctx, RedisConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		cc.Redis = client
		appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", cfg.Redis.PoolSize, cfg.Redis.MinIdleConns))

		store := repository.NewRedisStore(client)
		if err := store.LoadScripts(ctx); err != nil {
			appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
		} else {
			appLog.Info("Lua scripts pre-loaded into Redis")
		}
		cc.Store = store
		cc.Profiles = repository.NewRedisDinerRepository(client)

	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		cc.Store = store
		cc.Profiles = store
		appLog.Warn("Using in-memory reservation store; state is lost on restart")

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	// Redis also backs idempotency keys and hold timers
	if cc.Redis == nil && (cfg.Idempotency.Enabled || cfg.HoldTimer.Enabled) {
		client, err := pkgredis.NewClient(ctx, RedisConfig(cfg))
		if err != nil {
			appLog.Warn(fmt.Sprintf("Redis unavailable, idempotency and hold timers disabled: %v", err))
		} else {
			cc.Redis = client
		}
	}

	if cfg.HoldTimer.Enabled && cc.Redis != nil {
		opt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		cc.AsynqClient = asynq.NewClient(opt)
		cc.RedisConnOpt = opt
		cc.HoldScheduler = service.NewAsynqHoldScheduler(cc.AsynqClient, cfg.HoldTimer.Queue)
		appLog.Info(fmt.Sprintf("Hold timers enabled (queue: %s)", cfg.HoldTimer.Queue))
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using log notifier and no-op publisher: %v", err))
		} else {
			cc.Kafka = producer
			appLog.Info("Kafka producer connected")
		}
	}

	if cc.Kafka != nil {
		cc.Notifier = kafkaNotifier(cfg, cc.Kafka)
		publisher, err := service.NewKafkaEventPublisher(cc.Kafka, &service.EventPublisherConfig{
			Topic:       cfg.Notification.EventsTopic,
			ServiceName: cfg.App.Name,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Event publisher unavailable, using no-op publisher: %v", err))
		} else {
			cc.EventPublisher = publisher
		}
	}

	return NewContainer(cc), nil
}

func kafkaNotifier(cfg *config.Config, producer *kafka.Producer) service.NotificationDispatcher {
	dlq := retry.NewDLQHandler(
		retry.NewKafkaDLQPublisher(producer, cfg.App.Name),
		&retry.Config{
			MaxRetries:      cfg.Notification.MaxRetries,
			InitialInterval: cfg.Notification.InitialInterval,
		},
		cfg.App.Name,
		func(msg *retry.DLQMessage) {
			logger.Get().Error("Claim notification moved to DLQ",
				zap.String("key", msg.OriginalKey),
				zap.Int("attempts", msg.Attempts),
				zap.String("error", msg.Error),
			)
		},
	)
	next := service.NewKafkaNotifier(producer, cfg.Notification.Topic, cfg.App.Name)
	return service.NewRetryingNotifier(next, dlq, cfg.Notification.Topic)
}

// PostgresConfig maps application config onto the pool settings
func PostgresConfig(cfg *config.Config) *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
}

// RedisConfig maps application config onto the client settings
func RedisConfig(cfg *config.Config) *pkgredis.Config {
	return &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// ServiceConfig maps the booking rules onto the service
func ServiceConfig(cfg *config.Config) *service.ReservationServiceConfig {
	return &service.ReservationServiceConfig{
		Policy: &domain.EligibilityPolicy{
			OverrideWindow:             cfg.Reservation.OverrideWindow,
			LimitAppliesWithinOverride: cfg.Reservation.LimitAppliesWithinOverride,
			StandardLimit:              cfg.Reservation.StandardLimit,
			ElevatedLimit:              cfg.Reservation.ElevatedLimit,
		},
		HoldDuration:   cfg.Reservation.HoldDuration,
		SweepBatchSize: cfg.Sweeper.BatchSize,
	}
}

// DispatcherConfig maps the in-process claim notification pool
func DispatcherConfig(cfg *config.Config) *service.AsyncDispatcherConfig {
	return &service.AsyncDispatcherConfig{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		Timeout:   cfg.Reservation.NotifyTimeout,
	}
}

// SweeperConfig maps the sweeper schedule
func SweeperConfig(cfg *config.Config) *worker.ExpirySweeperConfig {
	return &worker.ExpirySweeperConfig{
		Schedule:   cfg.Sweeper.Schedule,
		RunOnStart: cfg.Sweeper.RunOnStart,
		Timeout:    cfg.Sweeper.Timeout,
	}
}
