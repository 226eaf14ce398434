package di

import (
	"github.com/hibiken/asynq"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/handler"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/repository"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/service"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/worker"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/database"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/kafka"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/redis"
	"go.uber.org/zap"
)

// Container holds all dependencies for the reservation service
type Container struct {
	// Infrastructure
	DB           *database.PostgresDB
	Redis        *redis.Client
	Kafka        *kafka.Producer
	AsynqClient  *asynq.Client
	RedisConnOpt asynq.RedisConnOpt

	// Repositories
	Store    repository.ReservationStore
	Profiles repository.DinerProfileRepository

	// Collaborators
	Notifier       service.NotificationDispatcher
	EventPublisher service.EventPublisher
	HoldScheduler  service.HoldScheduler
	ClaimQueue     service.ClaimQueue
	// Dispatcher delivers claim notifications in process when asynq is off
	Dispatcher *service.AsyncDispatcher

	// Services
	ReservationService service.ReservationService

	// Workers
	ExpirySweeper    *worker.ExpirySweeper
	HoldExpiryWorker *worker.HoldExpiryWorker

	// Handlers
	HealthHandler      *handler.HealthHandler
	ReservationHandler *handler.ReservationHandler
	AlertHandler       *handler.AlertHandler
	AdminHandler       *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB    *database.PostgresDB
	Redis *redis.Client
	Kafka *kafka.Producer

	// AsynqClient and RedisConnOpt enable the delayed hold-expiry path
	AsynqClient  *asynq.Client
	RedisConnOpt asynq.RedisConnOpt

	Store    repository.ReservationStore
	Profiles repository.DinerProfileRepository

	Notifier       service.NotificationDispatcher
	EventPublisher service.EventPublisher
	HoldScheduler  service.HoldScheduler

	ServiceConfig    *service.ReservationServiceConfig
	SweeperConfig    *worker.ExpirySweeperConfig
	HoldWorkerConfig *worker.HoldExpiryWorkerConfig
	DispatcherConfig *service.AsyncDispatcherConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Kafka:          cfg.Kafka,
		AsynqClient:    cfg.AsynqClient,
		RedisConnOpt:   cfg.RedisConnOpt,
		Store:          cfg.Store,
		Profiles:       cfg.Profiles,
		Notifier:       cfg.Notifier,
		EventPublisher: cfg.EventPublisher,
		HoldScheduler:  cfg.HoldScheduler,
	}

	if c.Notifier == nil {
		c.Notifier = service.NewLogNotifier()
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}
	if c.HoldScheduler == nil {
		c.HoldScheduler = service.NoOpHoldScheduler{}
	}

	// Claim notifications leave the transition path through a queue
	if c.AsynqClient != nil && c.RedisConnOpt != nil {
		queue := ""
		if cfg.HoldWorkerConfig != nil {
			queue = cfg.HoldWorkerConfig.Queue
		}
		c.ClaimQueue = service.NewAsynqClaimQueue(c.AsynqClient, queue)
	} else {
		c.Dispatcher = service.NewAsyncDispatcher(c.Notifier, cfg.DispatcherConfig)
		c.ClaimQueue = c.Dispatcher
	}

	// Initialize services
	c.ReservationService = service.NewReservationService(
		c.Store,
		c.Profiles,
		c.ClaimQueue,
		c.EventPublisher,
		c.HoldScheduler,
		cfg.ServiceConfig,
	)

	// Initialize workers
	c.ExpirySweeper = worker.NewExpirySweeper(c.ReservationService, cfg.SweeperConfig)
	if c.RedisConnOpt != nil {
		c.HoldExpiryWorker = worker.NewHoldExpiryWorker(c.RedisConnOpt, c.ReservationService, c.Notifier, cfg.HoldWorkerConfig)
	}

	// Initialize handlers
	components := map[string]handler.Pinger{"store": c.Store}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	if c.Kafka != nil {
		components["kafka"] = c.Kafka
	}
	c.HealthHandler = handler.NewHealthHandler(components)
	c.ReservationHandler = handler.NewReservationHandler(c.ReservationService)
	c.AlertHandler = handler.NewAlertHandler(c.ReservationService)
	c.AdminHandler = handler.NewAdminHandler(c.ReservationService, c.ExpirySweeper)

	return c
}

// Close stops workers and releases infrastructure in reverse start order
func (c *Container) Close() {
	log := logger.Get()

	if c.ExpirySweeper != nil {
		c.ExpirySweeper.Stop()
	}
	if c.HoldExpiryWorker != nil {
		c.HoldExpiryWorker.Stop()
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Close()
	}
	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Warn("Failed to close asynq client", zap.Error(err))
		}
	}
	if c.Kafka != nil {
		c.Kafka.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
