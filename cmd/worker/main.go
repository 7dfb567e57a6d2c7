package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/queue"
	"webhook-dispatcher/internal/server"
	"webhook-dispatcher/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The delivery log lives in the store, so the worker opens it too
	store, deliveries, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}

	// Initialize RabbitMQ connection
	amqpConn, err := queue.NewRabbitMQConnection(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	// Create a channel
	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	// Bound unacknowledged messages to the local queue capacity
	if err := ch.Qos(cfg.Dispatch.QueueSize, 0, false); err != nil {
		logger.Fatalf("Failed to set QoS: %v", err)
	}

	dispatcher := server.NewDispatcher(cfg, logger, server.NewHTTPClient(cfg), deliveries)
	consumer := queue.NewConsumer(ch, dispatcher, logger.Component("consumer"))

	// Start consuming messages
	if err := consumer.Start(ctx, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.Timeout+5*time.Second)
	defer cancel()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Desugar().Warn("Dispatcher did not drain cleanly", zap.Error(err))
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Desugar().Error("Failed to close store", zap.Error(err))
	}
}
