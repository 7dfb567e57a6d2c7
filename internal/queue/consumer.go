package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"webhook-dispatcher/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Enqueuer receives decoded work items, normally a worker.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, items ...*models.WorkItem) error
}

// Delivery is the subset of amqp.Delivery the consumer needs.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consumer moves work items from RabbitMQ into a local dispatcher.
type Consumer struct {
	channel *amqp.Channel
	target  Enqueuer
	logger  *zap.Logger
}

func NewConsumer(channel *amqp.Channel, target Enqueuer, logger *zap.Logger) *Consumer {
	return &Consumer{
		channel: channel,
		target:  target,
		logger:  logger,
	}
}

// Start declares the topology and consumes queueName until the channel
// closes.
func (c *Consumer) Start(ctx context.Context, exchangeName, queueName string) error {
	if err := declareTopology(c.channel, exchangeName, queueName); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue: %w", err)
	}

	go func() {
		for msg := range msgs {
			c.Handle(ctx, msg.Body, &msg)
		}
	}()
	return nil
}

// Handle decodes one message and hands it to the target. Undecodable
// messages are dropped; enqueue failures are requeued.
func (c *Consumer) Handle(ctx context.Context, body []byte, msg Delivery) {
	var item models.WorkItem
	if err := json.Unmarshal(body, &item); err != nil || item.WebHook == nil || item.ID == "" {
		c.logger.Error("Failed to decode work item",
			zap.Error(err),
			zap.String("body", string(body)))
		msg.Nack(false, false)
		return
	}

	if err := c.target.Enqueue(ctx, &item); err != nil {
		c.logger.Warn("Failed to enqueue work item, requeueing",
			zap.Error(err),
			zap.String("work_item_id", item.ID))
		msg.Nack(false, true)
		return
	}

	c.logger.Debug("Work item accepted",
		zap.String("work_item_id", item.ID),
		zap.String("webhook_id", item.WebHook.ID),
		zap.Int("attempt", item.Attempt()))
	msg.Ack(false)
}
