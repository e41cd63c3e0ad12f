package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
)

// Account lifecycle event types
const (
	AccountRegistered      = "registered"
	AccountLoggedIn        = "logged_in"
	AccountLoggedOut       = "logged_out"
	AccountTokenRefreshed  = "token_refreshed"
	AccountPasswordChanged = "password_changed"
	AccountUpdated         = "updated"
	AccountAvatarChanged   = "avatar_changed"
	AccountCoverChanged    = "cover_image_changed"
)

const (
	AuditQueueName = "account_events"
	routingPrefix  = "account."
)

// AccountEvent is the message body published for every account change
type AccountEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	AccountID  string    `json:"accountId"`
	Username   string    `json:"username,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewAccountEvent builds an event stamped with a fresh id and the current time
func NewAccountEvent(eventType, accountID, username string) AccountEvent {
	return AccountEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		AccountID:  accountID,
		Username:   username,
		OccurredAt: time.Now().UTC(),
	}
}

// RoutingKey is the topic key the event is published under
func (e AccountEvent) RoutingKey() string {
	return routingPrefix + e.Type
}

// Publisher sends account events to a RabbitMQ topic exchange
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// New creates a new publisher and declares its exchange and audit queue
func New(cfg config.QueueConfig) (*Publisher, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare audit queue receiving every account event
	_, err = channel.QueueDeclare(
		AuditQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		AuditQueueName,
		routingPrefix+"#",
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
	}, nil
}

// Close closes the queue connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish sends an account event
func (p *Publisher) Publish(ctx context.Context, event AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.ID,
			Type:         event.Type,
			Body:         body,
			Timestamp:    event.OccurredAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// QueueDepth returns the number of messages waiting in the audit queue
func (p *Publisher) QueueDepth() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := p.channel.QueueInspect(AuditQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}

// Consume delivers audit queue events to handler until ctx is done.
// Malformed messages are dropped; handler failures are requeued.
func (p *Publisher) Consume(ctx context.Context, handler func(AccountEvent) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Set QoS to limit concurrent processing
	if err := p.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := p.channel.Consume(
		AuditQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ack, requeue := handleDelivery(msg.Body, handler)
				if ack {
					msg.Ack(false)
				} else {
					msg.Nack(false, requeue)
				}
			}
		}
	}()

	return nil
}

// handleDelivery decodes body and runs handler. It reports whether the
// message should be acked and, if not, whether it should be requeued.
func handleDelivery(body []byte, handler func(AccountEvent) error) (ack, requeue bool) {
	var event AccountEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		return false, false
	}
	if err := handler(event); err != nil {
		return false, true
	}
	return true, false
}

// NopPublisher drops every event. Used when the queue is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AccountEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
