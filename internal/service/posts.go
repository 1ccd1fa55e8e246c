package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

type PostInput struct {
	Title       string            `json:"title" validate:"required,max=300"`
	Content     string            `json:"content" validate:"required"`
	PostURL     string            `json:"postUrl" validate:"max=200"`
	Status      domain.PostStatus `json:"status" validate:"omitempty,oneof=DRAFT SCHEDULED PUBLISHED"`
	PublishDate *string           `json:"publishDate"`
	Excerpt     *string           `json:"excerpt" validate:"omitempty,max=500"`
	Featured    bool              `json:"featured"`
	Newsletter  bool              `json:"newsletter"`
	Tags        []string          `json:"tags" validate:"dive,required,max=100"`
	AuthorIDs   []uuid.UUID       `json:"authorIds"`
}

type TagInput struct {
	Slug        string  `json:"slug" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	ImageURL    *string `json:"imageUrl" validate:"omitempty,url"`
}

// PostService covers post and tag authoring and the public read paths.
type PostService struct {
	posts     PostStore
	tags      TagStore
	txManager TransactionManager
	publisher EventPublisher
	validate  *validator.Validate
	logger    zerolog.Logger
}

func NewPostService(
	posts PostStore,
	tags TagStore,
	txManager TransactionManager,
	publisher EventPublisher,
	logger zerolog.Logger,
) *PostService {
	return &PostService{
		posts:     posts,
		tags:      tags,
		txManager: txManager,
		publisher: publisher,
		validate:  newValidator(),
		logger:    logger.With().Str("component", "posts").Logger(),
	}
}

func (s *PostService) Create(ctx context.Context, in PostInput, now time.Time) (*domain.Post, error) {
	post := &domain.Post{}
	if err := s.apply(post, in, now); err != nil {
		return nil, err
	}
	if post.Status == domain.PostStatusPublished && post.Newsletter {
		post.NotifyStatus = domain.NotifyStatusPending
	} else {
		post.NotifyStatus = domain.NotifyStatusNone
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.posts.Create(ctx, post); err != nil {
			return err
		}
		return s.tags.SetPostTags(ctx, post.ID, tagSlugs(in.Tags))
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info().Stringer("post_id", post.ID).Str("status", string(post.Status)).Msg("post created")

	if post.Status == domain.PostStatusPublished {
		s.announce(ctx, post)
	}
	return s.posts.GetByID(ctx, post.ID)
}

func (s *PostService) Update(ctx context.Context, id uuid.UUID, in PostInput, now time.Time) (*domain.Post, error) {
	current, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	wasPublished := current.Status == domain.PostStatusPublished
	post := *current
	if err := s.apply(&post, in, now); err != nil {
		return nil, err
	}
	if wasPublished && post.Status != domain.PostStatusPublished {
		return nil, domain.NewValidationError("status", "a published post cannot be unpublished")
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.posts.Update(ctx, &post); err != nil {
			return err
		}
		return s.tags.SetPostTags(ctx, post.ID, tagSlugs(in.Tags))
	})
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	s.logger.Info().Stringer("post_id", post.ID).Str("status", string(post.Status)).Msg("post updated")

	if !wasPublished && post.Status == domain.PostStatusPublished {
		s.announce(ctx, &post)
	}
	return s.posts.GetByID(ctx, post.ID)
}

func (s *PostService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// Get returns a published post by slug.
func (s *PostService) Get(ctx context.Context, slug string) (*domain.Post, error) {
	return s.posts.GetPublishedBySlug(ctx, domain.Slugify(slug))
}

func (s *PostService) ListPublished(ctx context.Context, tag string) ([]domain.Post, error) {
	if tag != "" {
		tag = domain.Slugify(tag)
	}
	return s.posts.ListPublished(ctx, tag)
}

func (s *PostService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Stringer("post_id", id).Msg("post deleted")
	return nil
}

func (s *PostService) CreateTag(ctx context.Context, in TagInput) (*domain.Tag, error) {
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	slug := domain.Slugify(in.Slug)
	if slug == "" {
		return nil, domain.NewValidationError("slug", "must contain letters or digits")
	}

	tag := &domain.Tag{
		Slug:        slug,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (s *PostService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.tags.List(ctx)
}

// apply validates in and copies it onto post.
func (s *PostService) apply(post *domain.Post, in PostInput, now time.Time) error {
	if err := validateStruct(s.validate, in); err != nil {
		return err
	}

	slug := in.PostURL
	if slug == "" {
		slug = in.Title
	}
	slug = domain.Slugify(slug)
	if slug == "" {
		return domain.NewValidationError("postUrl", "must contain letters or digits")
	}

	publishDate, err := parseDate(in.PublishDate)
	if err != nil {
		return err
	}

	status := in.Status
	if status == "" {
		status = post.Status
	}
	if status == "" {
		status = domain.PostStatusDraft
	}

	switch status {
	case domain.PostStatusScheduled:
		if publishDate == nil {
			return domain.NewValidationError("publishDate", "is required for scheduled posts")
		}
		if !publishDate.After(now) {
			return domain.NewValidationError("publishDate", "must be in the future")
		}
	case domain.PostStatusPublished:
		if publishDate == nil {
			if post.PublishDate != nil && post.Status == domain.PostStatusPublished {
				publishDate = post.PublishDate
			} else {
				t := now
				publishDate = &t
			}
		}
	}

	post.Title = in.Title
	post.Content = in.Content
	post.PostURL = slug
	post.Status = status
	post.PublishDate = publishDate
	post.Excerpt = in.Excerpt
	post.Featured = in.Featured
	post.Newsletter = in.Newsletter
	post.AuthorIDs = in.AuthorIDs
	return nil
}

func (s *PostService) announce(ctx context.Context, post *domain.Post) {
	if s.publisher == nil {
		return
	}
	at := time.Now()
	if post.PublishDate != nil {
		at = *post.PublishDate
	}
	if err := s.publisher.PublishPostPublished(ctx, post.ID, at); err != nil {
		s.logger.Warn().Err(err).Stringer("post_id", post.ID).Msg("failed to announce published post")
	}
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, domain.NewValidationError("publishDate", "must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

func tagSlugs(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if slug := domain.Slugify(tag); slug != "" {
			out = append(out, slug)
		}
	}
	return out
}
