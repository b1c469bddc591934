package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// IngestMessage is a batch of meter readings in the metering ingest format
type IngestMessage struct {
	RequestID         string    `json:"request_id"`
	ClientFingerprint string    `json:"client_fingerprint"`
	UserAgent         string    `json:"user_agent,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	Payload           Payload   `json:"payload"`
}

// Payload holds the readings of one message
type Payload struct {
	PM []PMData `json:"PM"`
}

// PMData is a single reading. Date uses the DD/MM/YYYY HH:mm:ss layout in UTC.
type PMData struct {
	Date string `json:"date"`
	Data string `json:"data"`
	Name string `json:"name"`
}

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	channel    Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher opens a channel on conn and declares the ingest exchange
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return NewChannelPublisher(ch, exchange, routingKey, logger)
}

// NewChannelPublisher declares the exchange on ch and publishes through it
func NewChannelPublisher(ch Channel, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// PublishIngestMessage publishes msg as a persistent JSON message
func (p *Publisher) PublishIngestMessage(ctx context.Context, msg IngestMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.RequestID,
			Timestamp:    msg.ReceivedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("published ingest message",
		zap.String("routing_key", p.routingKey),
		zap.String("request_id", msg.RequestID),
		zap.String("client_fingerprint", msg.ClientFingerprint),
		zap.Int("pm_count", len(msg.Payload.PM)),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
