// Package events publishes domain events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
)

// Publisher sends events to interested consumers. Delivery is best effort.
//
//go:generate mockgen -destination=../../mocks/mock_publisher.go -package=mocks . Publisher
type Publisher interface {
	PublishReviewerCompleted(ctx context.Context, event *core.ReviewerCompletedEvent) error
	Close() error
}

// NewPublisher returns an AMQP publisher, or a no-op one when no broker URL is configured.
func NewPublisher(cfg *config.EventsConfig, logger *slog.Logger) (Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		logger.Info("no AMQP url configured, events are disabled")
		return NopPublisher{}, func() {}, nil
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, func() {}, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, func() {}, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	p := newAMQPPublisher(ch, conn, cfg, logger)
	cleanup := func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}
	return p, cleanup, nil
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// newAMQPPublisher publishes on ch. conn may be nil when ch is not backed by
// a connection the publisher owns.
func newAMQPPublisher(ch amqpChannel, conn *amqp.Connection, cfg *config.EventsConfig, logger *slog.Logger) *amqpPublisher {
	return &amqpPublisher{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}
}

func (p *amqpPublisher) PublishReviewerCompleted(ctx context.Context, event *core.ReviewerCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    event.BatchKey + "/" + event.ReviewerID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("published reviewer completed event", "batch", event.BatchKey, "reviewer", event.ReviewerID)
	return nil
}

func (p *amqpPublisher) Close() error {
	chErr := p.channel.Close()
	if p.conn == nil {
		return chErr
	}
	connErr := p.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishReviewerCompleted(context.Context, *core.ReviewerCompletedEvent) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
