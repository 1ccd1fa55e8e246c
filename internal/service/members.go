package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/importer"
)

type MemberService struct {
	members   MemberStore
	txManager TransactionManager
	publisher EventPublisher
	parser    *importer.Parser
	logger    zerolog.Logger
}

func NewMemberService(
	members MemberStore,
	txManager TransactionManager,
	publisher EventPublisher,
	logger zerolog.Logger,
) *MemberService {
	return &MemberService{
		members:   members,
		txManager: txManager,
		publisher: publisher,
		parser:    importer.NewParser(),
		logger:    logger.With().Str("component", "members").Logger(),
	}
}

// Import upserts the valid rows of a member CSV by email in one transaction.
// Invalid rows are skipped and reported. Rows that do not state a
// subscription leave an existing member's unsubscribed flag untouched.
func (s *MemberService) Import(ctx context.Context, r io.Reader) (*domain.ImportResult, error) {
	rows, rowErrs, err := s.parser.Parse(r)
	if errors.Is(err, importer.ErrMissingEmailColumn) {
		return nil, domain.NewValidationError("file", err.Error())
	}
	if err != nil {
		return nil, domain.NewValidationError("file", fmt.Sprintf("unreadable csv: %v", err))
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		for i := range rows {
			if err := s.members.Upsert(ctx, &rows[i].Member, rows[i].Unsubscribed); err != nil {
				return fmt.Errorf("upsert %s: %w", rows[i].Member.Email, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import members: %w", err)
	}

	result := &domain.ImportResult{
		Imported: len(rows),
		Skipped:  len(rowErrs),
		Errors:   rowErrs,
	}

	s.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("members imported")

	return result, nil
}

func (s *MemberService) SetUnsubscribed(ctx context.Context, id uuid.UUID, unsubscribed bool) error {
	if err := s.members.SetUnsubscribed(ctx, id, unsubscribed); err != nil {
		return err
	}

	s.logger.Info().Stringer("member_id", id).Bool("unsubscribed", unsubscribed).Msg("subscription changed")

	if unsubscribed && s.publisher != nil {
		if err := s.publisher.PublishMemberUnsubscribed(ctx, id, "admin", time.Now()); err != nil {
			s.logger.Warn().Err(err).Stringer("member_id", id).Msg("failed to announce unsubscribe")
		}
	}
	return nil
}

func (s *MemberService) ListSubscribed(ctx context.Context) ([]domain.Member, error) {
	return s.members.ListSubscribed(ctx)
}
