package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/domain"
)

type PostStore interface {
	FindDueScheduled(ctx context.Context, now time.Time) ([]domain.Post, error)
	PublishDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	GetPublishedBySlug(ctx context.Context, slug string) (*domain.Post, error)
	ListPublished(ctx context.Context, tagSlug string) ([]domain.Post, error)
	Create(ctx context.Context, post *domain.Post) error
	Update(ctx context.Context, post *domain.Post) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClaimNotification(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error)
	CompleteNotification(ctx context.Context, id uuid.UUID, status domain.NotifyStatus, at time.Time) error
	ListAwaitingNotification(ctx context.Context, now time.Time, lease time.Duration) ([]domain.Post, error)
}

type TagStore interface {
	Create(ctx context.Context, tag *domain.Tag) error
	List(ctx context.Context) ([]domain.Tag, error)
	SetPostTags(ctx context.Context, postID uuid.UUID, slugs []string) error
}

type MemberStore interface {
	ListSubscribed(ctx context.Context) ([]domain.Member, error)
	SetUnsubscribed(ctx context.Context, id uuid.UUID, unsubscribed bool) error
	FindByContactID(ctx context.Context, contactID string) (*domain.Member, error)
	FindByEmail(ctx context.Context, email string) (*domain.Member, error)
	ApplyMutation(ctx context.Context, id uuid.UUID, mut domain.MemberMutation) error
	// Upsert matches by email. A nil unsubscribed keeps an existing member's flag.
	Upsert(ctx context.Context, member *domain.Member, unsubscribed *bool) error
}

// EventStore records processed webhook event ids. MarkProcessed reports
// false when the id was already recorded.
type EventStore interface {
	MarkProcessed(ctx context.Context, eventID, eventType string, at time.Time) (bool, error)
}

// ProcessedCache is an optional fast path in front of EventStore.
type ProcessedCache interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	PublishPostPublished(ctx context.Context, postID uuid.UUID, at time.Time) error
	PublishMemberUnsubscribed(ctx context.Context, memberID uuid.UUID, reason string, at time.Time) error
	Close() error
}

type EmailSender interface {
	Send(ctx context.Context, msg domain.EmailMessage) (string, error)
}

type Renderer interface {
	Render(post domain.Post) (domain.RenderedEmail, error)
	UnsubscribeHeaders(member domain.Member) map[string]string
}
