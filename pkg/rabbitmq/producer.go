package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 10 * time.Second

// Message is one payload published to a topic exchange.
type Message struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Body       []byte
	Headers    map[string]any
}

// EventProducer publishes JSON messages to durable topic exchanges.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
	logger   *slog.Logger
}

// FallbackProducer stands in when RabbitMQ is not configured or unreachable.
// It logs every message and drops it.
type FallbackProducer struct {
	logger *slog.Logger
}

func NewFallbackProducer(logger *slog.Logger) *FallbackProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProducer{logger: logger}
}

func (p *FallbackProducer) Publish(ctx context.Context, msg Message) error {
	p.logger.WarnContext(ctx, "Publish skipped, RabbitMQ unavailable",
		slog.String("exchange", msg.Exchange),
		slog.String("routing_key", msg.RoutingKey),
		slog.String("message_id", msg.MessageID))
	return nil
}

func (p *FallbackProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	logger.Info("Connected to RabbitMQ")
	return &EventProducer{conn: conn, channel: ch, declared: make(map[string]bool), logger: logger}, nil
}

// Publish sends msg, reopening the channel once when it has been closed by
// the broker.
func (p *EventProducer) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.publish(ctx, msg)
	if err == nil {
		return nil
	}

	p.logger.WarnContext(ctx, "Publish failed, reopening channel",
		slog.String("exchange", msg.Exchange),
		slog.String("routing_key", msg.RoutingKey),
		slog.String("error", err.Error()))

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("reopen channel: %w", chErr)
	}
	p.channel = ch
	p.declared = make(map[string]bool)
	return p.publish(ctx, msg)
}

func (p *EventProducer) publish(ctx context.Context, msg Message) error {
	if !p.declared[msg.Exchange] {
		if err := p.channel.ExchangeDeclare(
			msg.Exchange, // name
			"topic",      // type
			true,         // durable
			false,        // autoDelete
			false,        // internal
			false,        // noWait
			nil,          // args
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", msg.Exchange, err)
		}
		p.declared[msg.Exchange] = true
	}

	return p.channel.PublishWithContext(ctx,
		msg.Exchange,
		msg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.MessageID,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp091.Table(msg.Headers),
			Body:         msg.Body,
		},
	)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
