//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) newPublisher(name, bindingKey string) (*RabbitMQ, Config) {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		QueueName:  "test-queue-" + name,
		BindingKey: bindingKey,
	}
	pub, err := NewRabbitMQ(cfg, zerolog.Nop())
	s.Require().NoError(err)
	return pub, cfg
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, _ := s.newPublisher("connect", "#")
	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PostPublished() {
	pub, cfg := s.newPublisher("post", "post.*")
	defer pub.Close()

	postID := uuid.New()
	publishedAt := time.Now().Truncate(time.Millisecond)
	s.Require().NoError(pub.PublishPostPublished(s.ctx, postID, publishedAt))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(RoutingKeyPostPublished, msg.RoutingKey)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received PostPublishedMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(RoutingKeyPostPublished, received.Event)
	s.Equal(postID, received.PostID)
	s.True(publishedAt.Equal(received.PublishedAt))
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MemberUnsubscribed() {
	pub, cfg := s.newPublisher("member", "member.#")
	defer pub.Close()

	memberID := uuid.New()
	s.Require().NoError(pub.PublishMemberUnsubscribed(s.ctx, memberID, "complained", time.Now()))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received MemberUnsubscribedMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(memberID, received.MemberID)
	s.Equal("complained", received.Reason)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_BindingKeyFilters() {
	pub, cfg := s.newPublisher("filter", "member.#")
	defer pub.Close()

	s.Require().NoError(pub.PublishPostPublished(s.ctx, uuid.New(), time.Now()))
	s.Require().NoError(pub.PublishMemberUnsubscribed(s.ctx, uuid.New(), "bounced", time.Now()))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal(RoutingKeyMemberUnsubscribed, msg.RoutingKey)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
