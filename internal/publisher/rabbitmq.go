// Package publisher announces domain events on a RabbitMQ topic exchange so
// other services (search indexing, cache purges, analytics) can react.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	RoutingKeyPostPublished      = "post.published"
	RoutingKeyMemberUnsubscribed = "member.unsubscribed"
)

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger

	mu sync.Mutex
}

type Config struct {
	URL        string
	Exchange   string
	QueueName  string
	BindingKey string
}

func NewRabbitMQ(cfg Config, logger zerolog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.QueueName != "" {
		q, err := ch.QueueDeclare(
			cfg.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue: %w", err)
		}

		if err := ch.QueueBind(q.Name, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue: %w", err)
		}
	}

	logger = logger.With().Str("component", "publisher").Logger()
	logger.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", cfg.QueueName).
		Str("binding_key", cfg.BindingKey).
		Msg("connected to rabbitmq")

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

type PostPublishedMessage struct {
	Event       string    `json:"event"`
	PostID      uuid.UUID `json:"postId"`
	PublishedAt time.Time `json:"publishedAt"`
	Timestamp   time.Time `json:"timestamp"`
}

type MemberUnsubscribedMessage struct {
	Event     string    `json:"event"`
	MemberID  uuid.UUID `json:"memberId"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *RabbitMQ) PublishPostPublished(ctx context.Context, postID uuid.UUID, at time.Time) error {
	return r.publish(ctx, RoutingKeyPostPublished, PostPublishedMessage{
		Event:       RoutingKeyPostPublished,
		PostID:      postID,
		PublishedAt: at.UTC(),
		Timestamp:   time.Now().UTC(),
	})
}

func (r *RabbitMQ) PublishMemberUnsubscribed(ctx context.Context, memberID uuid.UUID, reason string, at time.Time) error {
	return r.publish(ctx, RoutingKeyMemberUnsubscribed, MemberUnsubscribedMessage{
		Event:     RoutingKeyMemberUnsubscribed,
		MemberID:  memberID,
		Reason:    reason,
		At:        at.UTC(),
		Timestamp: time.Now().UTC(),
	})
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug().Str("routing_key", routingKey).Msg("published event")

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
