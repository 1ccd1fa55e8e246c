package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

// DeliveryService applies verified email provider webhook events to members.
type DeliveryService struct {
	members      MemberStore
	events       EventStore
	txManager    TransactionManager
	cache        ProcessedCache
	publisher    EventPublisher
	processedTTL time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewDeliveryService builds the receiver. cache and publisher may be nil.
func NewDeliveryService(
	members MemberStore,
	events EventStore,
	txManager TransactionManager,
	cache ProcessedCache,
	publisher EventPublisher,
	processedTTL time.Duration,
	logger zerolog.Logger,
) *DeliveryService {
	return &DeliveryService{
		members:      members,
		events:       events,
		txManager:    txManager,
		cache:        cache,
		publisher:    publisher,
		processedTTL: processedTTL,
		logger:       logger.With().Str("component", "delivery").Logger(),
		now:          time.Now,
	}
}

// Apply records the event id and applies the member mutation in one
// transaction. A returned error means the event was not recorded and the
// provider should redeliver it.
func (s *DeliveryService) Apply(ctx context.Context, ev domain.VerifiedEvent) (domain.DeliveryOutcome, error) {
	logger := s.logger.With().Str("event_id", ev.ID).Logger()

	event, err := domain.ParseDeliveryEvent(ev)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring malformed event")
		return domain.OutcomeIgnored, nil
	}
	logger = logger.With().Str("type", event.RawType).Logger()

	mutation, ok := event.Mutation()
	if !ok {
		logger.Debug().Msg("event does not change members")
		return domain.OutcomeIgnored, nil
	}

	if s.cache != nil {
		seen, err := s.cache.IsProcessed(ctx, ev.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("processed cache lookup failed")
		} else if seen {
			logger.Debug().Msg("duplicate event")
			return domain.OutcomeDuplicate, nil
		}
	}

	outcome := domain.OutcomeIgnored
	var unsubscribed *domain.Member

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		fresh, err := s.events.MarkProcessed(ctx, ev.ID, event.RawType, s.now())
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !fresh {
			outcome = domain.OutcomeDuplicate
			return nil
		}

		member, err := s.resolveMember(ctx, event)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info().Str("contact_id", event.ContactID).Msg("event for unknown member")
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.members.ApplyMutation(ctx, member.ID, mutation); err != nil {
			return fmt.Errorf("apply mutation: %w", err)
		}
		outcome = domain.OutcomeApplied

		if mutation.Unsubscribed != nil && *mutation.Unsubscribed && !member.Unsubscribed {
			unsubscribed = member
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.MarkProcessed(ctx, ev.ID, s.processedTTL); err != nil {
			logger.Warn().Err(err).Msg("processed cache write failed")
		}
	}

	if unsubscribed != nil && s.publisher != nil {
		if err := s.publisher.PublishMemberUnsubscribed(ctx, unsubscribed.ID, string(event.Type), event.OccurredAt); err != nil {
			logger.Warn().Err(err).Msg("failed to announce unsubscribe")
		}
	}

	logger.Info().Str("outcome", string(outcome)).Msg("delivery event handled")
	return outcome, nil
}

func (s *DeliveryService) resolveMember(ctx context.Context, event *domain.DeliveryEvent) (*domain.Member, error) {
	if event.ContactID != "" {
		member, err := s.members.FindByContactID(ctx, event.ContactID)
		if err == nil {
			return member, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("find member by contact: %w", err)
		}
	}
	if event.Email == "" {
		return nil, domain.ErrNotFound
	}
	member, err := s.members.FindByEmail(ctx, event.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find member by email: %w", err)
	}
	return member, err
}
