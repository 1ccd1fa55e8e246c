package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"newsroom/internal/domain"
)

type NotifyConfig struct {
	Concurrency   int
	RatePerSecond float64
	ClaimLease    time.Duration
}

// NotifyService sends a published post to every subscribed member.
type NotifyService struct {
	posts    PostStore
	members  MemberStore
	sender   EmailSender
	renderer Renderer
	limiter  *rate.Limiter
	logger   zerolog.Logger
	config   NotifyConfig
	now      func() time.Time
}

func NewNotifyService(
	posts PostStore,
	members MemberStore,
	sender EmailSender,
	renderer Renderer,
	logger zerolog.Logger,
	cfg NotifyConfig,
) *NotifyService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 30 * time.Minute
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &NotifyService{
		posts:    posts,
		members:  members,
		sender:   sender,
		renderer: renderer,
		limiter:  rate.NewLimiter(limit, cfg.Concurrency),
		logger:   logger.With().Str("component", "notify").Logger(),
		config:   cfg,
		now:      time.Now,
	}
}

// Dispatch claims a published post and sends it to all subscribed members.
// Stats are returned alongside ErrProviderUnavailable so callers can report
// partial progress.
func (s *NotifyService) Dispatch(ctx context.Context, postID uuid.UUID) (*domain.DispatchStats, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post.Status != domain.PostStatusPublished {
		return nil, domain.NewValidationError("status", "only published posts can be sent")
	}

	claimed, err := s.posts.ClaimNotification(ctx, postID, s.now(), s.config.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim post: %w", err)
	}
	if !claimed {
		return nil, s.claimRejection(ctx, postID)
	}

	logger := s.logger.With().Stringer("post_id", postID).Logger()
	logger.Info().Msg("dispatch started")

	stats, err := s.send(ctx, *post, logger)

	status := domain.NotifyStatusSent
	if err != nil {
		status = domain.NotifyStatusFailed
	}
	// the claim must be released even when the caller has gone away
	if cerr := s.posts.CompleteNotification(context.WithoutCancel(ctx), postID, status, s.now()); cerr != nil {
		return stats, errors.Join(err, fmt.Errorf("complete notification: %w", cerr))
	}

	if stats != nil {
		logger.Info().
			Str("status", string(status)).
			Int("recipients", stats.Recipients).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Int("unavailable", stats.Unavailable).
			Dur("duration", stats.Duration).
			Msg("dispatch finished")
	}

	return stats, err
}

// DispatchPending sends every newsletter post awaiting notification. A post
// that fails does not stop the others; their errors are joined.
func (s *NotifyService) DispatchPending(ctx context.Context) ([]domain.DispatchStats, error) {
	posts, err := s.posts.ListAwaitingNotification(ctx, s.now(), s.config.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}

	results := make([]domain.DispatchStats, 0, len(posts))
	var errs []error
	for _, post := range posts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		stats, err := s.Dispatch(ctx, post.ID)
		if stats != nil {
			results = append(results, *stats)
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotifyInProgress), errors.Is(err, domain.ErrAlreadyNotified):
			s.logger.Debug().Stringer("post_id", post.ID).Err(err).Msg("post taken by another run")
		default:
			s.logger.Error().Stringer("post_id", post.ID).Err(err).Msg("dispatch failed")
			errs = append(errs, fmt.Errorf("post %s: %w", post.ID, err))
		}
	}

	return results, errors.Join(errs...)
}

func (s *NotifyService) claimRejection(ctx context.Context, postID uuid.UUID) error {
	current, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	switch {
	case current.Status != domain.PostStatusPublished:
		return domain.NewValidationError("status", "only published posts can be sent")
	case current.NotifyStatus == domain.NotifyStatusSent:
		return domain.ErrAlreadyNotified
	}
	return domain.ErrNotifyInProgress
}

func (s *NotifyService) send(ctx context.Context, post domain.Post, logger zerolog.Logger) (*domain.DispatchStats, error) {
	start := time.Now()
	stats := &domain.DispatchStats{PostID: post.ID}

	rendered, err := s.renderer.Render(post)
	if err != nil {
		return stats, fmt.Errorf("render post: %w", err)
	}

	members, err := s.members.ListSubscribed(ctx)
	if err != nil {
		return stats, fmt.Errorf("list subscribed members: %w", err)
	}
	stats.Recipients = len(members)

	var mu sync.Mutex
	record := func(member domain.Member, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err == nil {
			stats.Sent++
			return
		}
		if errors.Is(err, domain.ErrRecipientRejected) {
			stats.Failed++
		} else {
			stats.Unavailable++
		}
		stats.Failures = append(stats.Failures, domain.SendFailure{
			MemberID: member.ID,
			Email:    member.Email,
			Reason:   err.Error(),
		})
	}

	// per-member errors are recorded, never returned, so one bad address
	// cannot cancel the rest of the batch
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)

	for _, member := range members {
		g.Go(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				record(member, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err))
				return nil
			}

			msg := domain.EmailMessage{
				To:             member.Email,
				Subject:        rendered.Subject,
				HTML:           rendered.HTML,
				Text:           rendered.Text,
				Headers:        s.renderer.UnsubscribeHeaders(member),
				IdempotencyKey: post.ID.String() + "/" + member.ID.String(),
			}

			id, err := s.sender.Send(ctx, msg)
			if err != nil {
				logger.Warn().Err(err).Stringer("member_id", member.ID).Msg("send failed")
			} else {
				logger.Debug().Str("email_id", id).Stringer("member_id", member.ID).Msg("email sent")
			}
			record(member, err)
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = time.Since(start)

	if ctx.Err() != nil && stats.Unavailable > 0 {
		return stats, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, ctx.Err())
	}
	if stats.Sent == 0 && stats.Unavailable > 0 {
		return stats, domain.ErrProviderUnavailable
	}
	return stats, nil
}
