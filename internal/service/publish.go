package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

// PublishService flips due SCHEDULED posts to PUBLISHED.
type PublishService struct {
	posts     PostStore
	publisher EventPublisher
	logger    zerolog.Logger
}

func NewPublishService(posts PostStore, publisher EventPublisher, logger zerolog.Logger) *PublishService {
	return &PublishService{
		posts:     posts,
		publisher: publisher,
		logger:    logger.With().Str("component", "publish").Logger(),
	}
}

// FindDue lists scheduled posts whose publish date is at or before now
// without changing them.
func (s *PublishService) FindDue(ctx context.Context, now time.Time) ([]domain.Post, error) {
	posts, err := s.posts.FindDueScheduled(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find due posts: %w", err)
	}
	return posts, nil
}

// PublishDue publishes every due post in one conditional update. Concurrent
// callers receive disjoint sets of ids.
func (s *PublishService) PublishDue(ctx context.Context, now time.Time) (*domain.PublishResult, error) {
	start := time.Now()

	ids, err := s.posts.PublishDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("publish due posts: %w", err)
	}

	result := &domain.PublishResult{
		PostIDs: ids,
		Count:   len(ids),
	}

	if s.publisher != nil {
		for _, id := range ids {
			if err := s.publisher.PublishPostPublished(ctx, id, now); err != nil {
				s.logger.Warn().Err(err).Stringer("post_id", id).Msg("failed to announce published post")
			}
		}
	}

	result.Duration = time.Since(start)

	if result.Count > 0 {
		s.logger.Info().
			Int("count", result.Count).
			Dur("duration", result.Duration).
			Msg("published scheduled posts")
	} else {
		s.logger.Debug().Msg("no scheduled posts due")
	}

	return result, nil
}
