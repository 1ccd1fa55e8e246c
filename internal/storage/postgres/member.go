package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"newsroom/internal/domain"
)

const memberColumns = `id, email, first_name, last_name, unsubscribed, resend_contact_id, location,
	emails_delivered, emails_opened,
	CASE WHEN emails_delivered > 0 THEN emails_opened::float8 / emails_delivered ELSE 0 END AS open_rate,
	bounced_at, created_at, updated_at`

type MemberStore struct {
	db *sqlx.DB
}

func NewMemberStore(db *sqlx.DB) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) ListSubscribed(ctx context.Context) ([]domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE NOT unsubscribed ORDER BY created_at, id`

	var members []domain.Member
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &members, query)
	return members, err
}

func (s *MemberStore) SetUnsubscribed(ctx context.Context, id uuid.UUID, unsubscribed bool) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE members SET unsubscribed = $2, updated_at = now() WHERE id = $1`,
		id, unsubscribed,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *MemberStore) FindByContactID(ctx context.Context, contactID string) (*domain.Member, error) {
	return s.getMember(ctx, `SELECT `+memberColumns+` FROM members WHERE resend_contact_id = $1`, contactID)
}

func (s *MemberStore) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return s.getMember(ctx, `SELECT `+memberColumns+` FROM members WHERE email = $1`, domain.NormalizeEmail(email))
}

// ApplyMutation applies a delivery event change. Counters are incremented
// in place; unsubscribed and bounced_at are set only when provided.
func (s *MemberStore) ApplyMutation(ctx context.Context, id uuid.UUID, m domain.MemberMutation) error {
	query := `
		UPDATE members SET
			unsubscribed = COALESCE($2, unsubscribed),
			bounced_at = COALESCE($3, bounced_at),
			emails_delivered = emails_delivered + $4,
			emails_opened = emails_opened + $5,
			updated_at = now()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id, m.Unsubscribed, m.BouncedAt, m.DeliveredDelta, m.OpenedDelta,
	)
	if err != nil {
		return fmt.Errorf("apply member mutation: %w", err)
	}
	return expectOneRow(res)
}

// Upsert inserts a member or updates the existing member with the same email.
// A nil unsubscribed keeps an existing member's flag and subscribes a new one.
func (s *MemberStore) Upsert(ctx context.Context, member *domain.Member, unsubscribed *bool) error {
	query := `
		INSERT INTO members (
			email, first_name, last_name, unsubscribed, location, resend_contact_id
		) VALUES (
			$1, $2, $3, COALESCE($4::boolean, false), $5, $6
		)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			unsubscribed = COALESCE($4::boolean, members.unsubscribed),
			location = COALESCE(EXCLUDED.location, members.location),
			resend_contact_id = COALESCE(EXCLUDED.resend_contact_id, members.resend_contact_id),
			updated_at = now()
		RETURNING id, unsubscribed, created_at, updated_at`

	member.Email = domain.NormalizeEmail(member.Email)
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		member.Email,
		member.FirstName,
		member.LastName,
		unsubscribed,
		member.Location,
		member.ResendContactID,
	).Scan(&member.ID, &member.Unsubscribed, &member.CreatedAt, &member.UpdatedAt)
	return mapError(err)
}

func (s *MemberStore) getMember(ctx context.Context, query string, args ...any) (*domain.Member, error) {
	var member domain.Member
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &member, query, args...); err != nil {
		return nil, mapError(err)
	}
	return &member, nil
}
