package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Member struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	FirstName       string     `db:"first_name" json:"firstName"`
	LastName        string     `db:"last_name" json:"lastName"`
	Unsubscribed    bool       `db:"unsubscribed" json:"unsubscribed"`
	ResendContactID *string    `db:"resend_contact_id" json:"resendContactId,omitempty"`
	Location        *string    `db:"location" json:"location,omitempty"`
	EmailsDelivered int        `db:"emails_delivered" json:"emailsDelivered"`
	EmailsOpened    int        `db:"emails_opened" json:"emailsOpened"`
	OpenRate        float64    `db:"open_rate" json:"openRate"`
	BouncedAt       *time.Time `db:"bounced_at" json:"bouncedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// NormalizeEmail is the canonical form used for member lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OpenRate derives the open rate from the delivery counters.
func OpenRate(delivered, opened int) float64 {
	if delivered <= 0 {
		return 0
	}
	return float64(opened) / float64(delivered)
}

// MemberMutation is the change a delivery event makes to a member.
// Unsubscribed is an absolute value, never a toggle.
type MemberMutation struct {
	Unsubscribed   *bool
	BouncedAt      *time.Time
	DeliveredDelta int
	OpenedDelta    int
}

func (m MemberMutation) IsZero() bool {
	return m.Unsubscribed == nil && m.BouncedAt == nil && m.DeliveredDelta == 0 && m.OpenedDelta == 0
}

// Apply returns a copy of member with the mutation applied.
func (m MemberMutation) Apply(member Member) Member {
	if m.Unsubscribed != nil {
		member.Unsubscribed = *m.Unsubscribed
	}
	if m.BouncedAt != nil {
		at := *m.BouncedAt
		member.BouncedAt = &at
	}
	member.EmailsDelivered += m.DeliveredDelta
	member.EmailsOpened += m.OpenedDelta
	member.OpenRate = OpenRate(member.EmailsDelivered, member.EmailsOpened)
	return member
}
