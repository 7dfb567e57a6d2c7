package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"webhook-dispatcher/api/handlers"
	"webhook-dispatcher/api/router"
	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/notify"
	"webhook-dispatcher/internal/queue"
	"webhook-dispatcher/internal/registration"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/internal/user"
	"webhook-dispatcher/internal/worker"
	"webhook-dispatcher/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *logger.Logger

	store      storage.Store
	dispatcher *worker.Dispatcher
	publisher  *queue.Publisher
	stopQueue  context.CancelFunc
}

// NewServer wires the store, the delivery transport and the HTTP API.
func NewServer(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Server, error) {
	store, deliveries, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Server{logger: logger, store: store}
	client := NewHTTPClient(cfg)

	var enqueuer notify.Enqueuer
	switch cfg.Dispatch.Mode {
	case "", ModeInProcess:
		s.dispatcher = NewDispatcher(cfg, logger, client, deliveries)
		enqueuer = s.dispatcher
	case ModeRabbitMQ:
		publisher, err := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName, logger.Component("queue"))
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("failed to create rabbitmq publisher: %w", err)
		}
		queueCtx, cancel := context.WithCancel(context.Background())
		publisher.StartMetricsUpdater(queueCtx)
		s.publisher = publisher
		s.stopQueue = cancel
		enqueuer = publisher
	default:
		_ = store.Close(ctx)
		return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Dispatch.Mode)
	}

	catalogue := NewFilterCatalogue(cfg, logger)

	var registrars []registration.Registrar
	if len(cfg.WebHooks.PrivateFilters) > 0 {
		registrars = append(registrars, registration.StaticFilterRegistrar{Filters: cfg.WebHooks.PrivateFilters})
	}
	registrations := registration.NewManager(store, catalogue, registration.DefaultIDValidator{},
		registration.EchoVerifier{Client: client},
		registrars,
		registration.Options{
			RequireHTTPS:  cfg.WebHooks.RequireHTTPS,
			VerifyAddress: cfg.WebHooks.VerifyAddress,
			MaxPerUser:    cfg.WebHooks.MaxPerUser,
		},
		logger.Component("registration"))

	resolver := user.NameResolver{}
	notifier := notify.NewManager(store, resolver, enqueuer, logger.Component("notify"))

	r := router.Setup(logger, router.Dependencies{
		Registrations: registrations,
		Notifier:      notifier,
		Filters:       catalogue,
		RateLimiter:   handlers.NewRateLimiter(cfg.WebHooks.DailyNotifyCap),
		Resolver:      resolver,
	}, cfg)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	// Create metrics server
	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: promhttp.Handler(),
	}
	return s, nil
}

func (s *Server) Start() error {
	// Start metrics server in a goroutine
	go func() {
		s.logger.Info("Metrics server starting on " + s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("metrics server error: %v", err)
		}
	}()

	// Start main HTTP server
	s.logger.Info("Server starting on " + s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains the delivery transport
// and closes the store. Work still queued when ctx ends is abandoned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Server shutting down")
	var errs []error

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Desugar().Warn("failed to stop metrics server", zap.Error(err))
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	if s.publisher != nil {
		s.stopQueue()
		if err := s.publisher.Close(); err != nil {
			s.logger.Desugar().Error("failed to close publisher", zap.Error(err))
		}
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}
