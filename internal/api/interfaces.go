package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/domain"
	"newsroom/internal/service"
)

type Publisher interface {
	PublishDue(ctx context.Context, now time.Time) (*domain.PublishResult, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, postID uuid.UUID) (*domain.DispatchStats, error)
	DispatchPending(ctx context.Context) ([]domain.DispatchStats, error)
}

type DeliveryReceiver interface {
	Apply(ctx context.Context, ev domain.VerifiedEvent) (domain.DeliveryOutcome, error)
}

type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) (*domain.VerifiedEvent, error)
}

type PostManager interface {
	Create(ctx context.Context, in service.PostInput, now time.Time) (*domain.Post, error)
	Update(ctx context.Context, id uuid.UUID, in service.PostInput, now time.Time) (*domain.Post, error)
	Get(ctx context.Context, slug string) (*domain.Post, error)
	ListPublished(ctx context.Context, tag string) ([]domain.Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CreateTag(ctx context.Context, in service.TagInput) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
}

type MemberManager interface {
	Import(ctx context.Context, r io.Reader) (*domain.ImportResult, error)
	SetUnsubscribed(ctx context.Context, id uuid.UUID, unsubscribed bool) error
}
