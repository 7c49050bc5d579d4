package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// InquiryHandler processes one submitted inquiry. Returning an error requeues
// the message.
type InquiryHandler func(ctx context.Context, event Event, payload InquiryPayload) error

// Consumer reads inquiry.submitted events from a durable queue
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	handler   InquiryHandler
	log       *zap.Logger
}

// NewConsumer dials the broker and declares the exchange
func NewConsumer(url, queueName string, handler InquiryHandler, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Consumer{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		handler:   handler,
		log:       log,
	}, nil
}

// Start consumes until ctx is cancelled or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	queue, err := c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(queue.Name, EventTypeInquirySubmitted, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to %s: %w", EventTypeInquirySubmitted, err)
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.queueName, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("Listening for events", zap.String("queue", queue.Name), zap.String("routing_key", EventTypeInquirySubmitted))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	if msg.RoutingKey != EventTypeInquirySubmitted {
		c.log.Warn("Unknown event type", zap.String("routing_key", msg.RoutingKey))
		msg.Nack(false, false)
		return
	}

	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.log.Error("Failed to unmarshal event", zap.Error(err))
		msg.Nack(false, false)
		return
	}

	var payload InquiryPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		c.log.Error("Failed to unmarshal inquiry payload", zap.String("event_id", event.EventID), zap.Error(err))
		msg.Nack(false, false)
		return
	}

	if err := c.handler(ctx, event, payload); err != nil {
		c.log.Error("Failed to handle inquiry", zap.String("event_id", event.EventID), zap.Error(err))
		msg.Nack(false, true) // Requeue for retry
		return
	}

	msg.Ack(false)
}

// Close closes the consumer connection
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// LogInquiry is the handler used by watch-inquiries: it writes each inquiry
// to the log for studio staff.
func LogInquiry(log *zap.Logger) InquiryHandler {
	return func(ctx context.Context, event Event, p InquiryPayload) error {
		log.Info("New inquiry",
			zap.String("event_id", event.EventID),
			zap.String("inquiry_id", p.ID),
			zap.String("name", p.Name),
			zap.String("phone", p.Phone),
			zap.String("jewellery_type", p.JewelleryType),
			zap.String("budget", p.Budget),
			zap.String("message", p.Message),
			zap.Bool("reference_image", p.ReferenceImageURL != ""),
			zap.Time("submitted_at", p.CreatedAt),
		)
		return nil
	}
}
