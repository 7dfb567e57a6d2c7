package server

import (
	"context"
	"fmt"
	"net/http"

	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/filters"
	"webhook-dispatcher/internal/sender"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/internal/worker"
	"webhook-dispatcher/pkg/logger"

	"go.uber.org/zap"
)

const (
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"

	ModeInProcess = "inprocess"
	ModeRabbitMQ  = "rabbitmq"
)

// OpenStore connects the configured webhook store. The delivery log is nil
// for backends that do not keep one.
func OpenStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) (storage.Store, storage.DeliveryLog, error) {
	switch cfg.Storage.Backend {
	case "", BackendMemory:
		return storage.NewMemoryStore(), nil, nil
	case BackendMongoDB:
		store, err := storage.NewMongoStore(ctx,
			cfg.MongoDB.URI,
			cfg.MongoDB.Database,
			cfg.MongoDB.Collection,
			cfg.MongoDB.Deliveries,
			logger.Component("storage"))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewFilterCatalogue exposes the wildcard plus the configured actions.
func NewFilterCatalogue(cfg *config.Config, logger *logger.Logger) *filters.Manager {
	return filters.NewManager(logger.Component("filters"),
		filters.WildcardProvider{},
		filters.NewActionsProvider(cfg.WebHooks.Actions),
	)
}

// NewHTTPClient is the client shared by all outbound calls.
func NewHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Dispatch.Timeout}
}

// NewDispatcher starts the delivery worker pool. Outcomes are written to
// deliveries when it is not nil.
func NewDispatcher(cfg *config.Config, logger *logger.Logger, client *http.Client, deliveries storage.DeliveryLog) *worker.Dispatcher {
	log := logger.Component("dispatcher")

	var observers []worker.Observer
	if deliveries != nil {
		observers = append(observers, worker.NewDeliveryLogObserver(deliveries, log))
	}

	log.Info("Starting dispatcher",
		zap.Int("workers", cfg.Dispatch.Workers),
		zap.Int("queue_size", cfg.Dispatch.QueueSize),
		zap.Int("max_attempts", cfg.Dispatch.MaxAttempts))

	return worker.NewDispatcher(sender.New(logger.Component("sender")), client, log, worker.Options{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Retry: worker.ExponentialBackoff{
			BaseDelay: cfg.Dispatch.BaseDelay,
			MaxDelay:  cfg.Dispatch.MaxDelay,
		},
		Observers: observers,
	})
}
