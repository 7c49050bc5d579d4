package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atelier/studio/internal/db"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "atelier.events"
	ExchangeType = "topic"

	EventTypeInquirySubmitted = "inquiry.submitted"
	eventVersion              = "1.0.0"

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// Notifier announces stored inquiries to the studio
type Notifier interface {
	PublishInquirySubmitted(ctx context.Context, s *db.ContactSubmission) error
	IsHealthy() bool
	Close() error
}

// Event is the envelope of every message on the exchange
type Event struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion string          `json:"event_version"`
	Timestamp    string          `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

// InquiryPayload is the payload of inquiry.submitted
type InquiryPayload struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	JewelleryType     string    `json:"jewellery_type"`
	Budget            string    `json:"budget,omitempty"`
	Message           string    `json:"message,omitempty"`
	ReferenceImageURL string    `json:"reference_image_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewInquiryEvent builds the inquiry.submitted envelope for s
func NewInquiryEvent(s *db.ContactSubmission) (Event, error) {
	payload := InquiryPayload{
		ID:            s.ID,
		Name:          s.Name,
		Phone:         s.Phone,
		JewelleryType: s.JewelleryType,
		CreatedAt:     s.CreatedAt.UTC(),
	}
	if s.Budget != nil {
		payload.Budget = *s.Budget
	}
	if s.Message != nil {
		payload.Message = *s.Message
	}
	if s.ReferenceImageURL != nil {
		payload.ReferenceImageURL = *s.ReferenceImageURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal inquiry payload: %w", err)
	}

	return Event{
		EventID:      uuid.New().String(),
		EventType:    EventTypeInquirySubmitted,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Payload:      body,
	}, nil
}

// confirmation is the broker's answer for one published message
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// publishChannel is the slice of *amqp.Channel the publisher uses
type publishChannel interface {
	publish(ctx context.Context, routingKey string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// amqpChannel publishes on a channel in confirm mode
type amqpChannel struct {
	ch *amqp.Channel
}

func (c amqpChannel) publish(ctx context.Context, routingKey string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, routingKey, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, fmt.Errorf("publisher confirms not enabled")
	}
	return dc, nil
}

func (c amqpChannel) Close() error {
	return c.ch.Close()
}

// Publisher publishes events to RabbitMQ with publisher confirms. Each
// publish waits on its own deferred confirmation, so a late ack can never be
// taken for another message.
type Publisher struct {
	conn           *amqp.Connection
	channel        publishChannel
	log            *zap.Logger
	initialBackoff time.Duration
	confirmTimeout time.Duration
}

// NewPublisher dials the broker and declares the exchange
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Publisher{
		conn:           conn,
		channel:        amqpChannel{ch: channel},
		log:            log,
		initialBackoff: initialBackoff,
		confirmTimeout: confirmTimeout,
	}, nil
}

func declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// PublishInquirySubmitted announces a stored inquiry
func (p *Publisher) PublishInquirySubmitted(ctx context.Context, s *db.ContactSubmission) error {
	event, err := NewInquiryEvent(s)
	if err != nil {
		return err
	}
	return p.publishWithRetry(ctx, EventTypeInquirySubmitted, event)
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *Publisher) publishWithRetry(ctx context.Context, routingKey string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := p.initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		confirm, err := p.channel.publish(ctx, routingKey, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    event.EventID,
			Body:         body,
			Headers: amqp.Table{
				"event_type":    event.EventType,
				"event_version": event.EventVersion,
			},
		})
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		acked, err := p.waitConfirm(ctx, confirm)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			lastErr = err
		case acked:
			p.log.Info("Event published",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
			)
			return nil
		default:
			lastErr = fmt.Errorf("event not acknowledged")
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

func (p *Publisher) waitConfirm(ctx context.Context, confirm confirmation) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return false, errConfirmTimeout
	}
	return acked, err
}

var errConfirmTimeout = errors.New("confirmation timeout")

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}

// NoopNotifier is used when no broker is configured
type NoopNotifier struct {
	Log *zap.Logger
}

func (n NoopNotifier) PublishInquirySubmitted(ctx context.Context, s *db.ContactSubmission) error {
	if n.Log != nil {
		n.Log.Debug("Inquiry notification skipped, no broker configured", zap.String("id", s.ID))
	}
	return nil
}

func (NoopNotifier) IsHealthy() bool { return true }

func (NoopNotifier) Close() error { return nil }
