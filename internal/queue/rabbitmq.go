package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher ships work items to RabbitMQ for delivery by cmd/worker.
type Publisher struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	exchangeName string
	queueName    string
	logger       *zap.Logger
}

func NewPublisher(url, exchangeName, queueName string, logger *zap.Logger) (*Publisher, error) {
	conn, err := NewRabbitMQConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, exchangeName, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:         conn,
		ch:           ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger,
	}, nil
}

// StartMetricsUpdater starts a goroutine to periodically update queue metrics
func (p *Publisher) StartMetricsUpdater(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if queue, err := p.ch.QueueInspect(p.queueName); err == nil {
					metrics.DispatchQueueSize.WithLabelValues("rabbitmq").Set(float64(queue.Messages))
				}
			}
		}
	}()
}

// Enqueue publishes each item as a persistent message.
func (p *Publisher) Enqueue(ctx context.Context, items ...*models.WorkItem) error {
	for _, item := range items {
		if err := p.publish(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, item *models.WorkItem) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	headers := make(amqp.Table)
	headers["work_item_id"] = item.ID
	headers["user"] = item.User
	headers["attempt"] = strconv.Itoa(item.Attempt())
	if item.WebHook != nil {
		headers["webhook_id"] = item.WebHook.ID
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchangeName,
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Headers:      headers,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    item.ID,
		})
	if err != nil {
		return fmt.Errorf("failed to publish work item: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.logger.Error("Failed to close channel", zap.Error(err))
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Error("Failed to close connection", zap.Error(err))
	}
	return nil
}
