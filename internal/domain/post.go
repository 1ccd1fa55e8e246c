package domain

import (
	"time"

	"github.com/google/uuid"
)

type PostStatus string

const (
	PostStatusDraft     PostStatus = "DRAFT"
	PostStatusScheduled PostStatus = "SCHEDULED"
	PostStatusPublished PostStatus = "PUBLISHED"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished:
		return true
	}
	return false
}

// NotifyStatus tracks whether a published post has been sent to members.
type NotifyStatus string

const (
	NotifyStatusNone    NotifyStatus = "NONE"
	NotifyStatusPending NotifyStatus = "PENDING"
	NotifyStatusSending NotifyStatus = "SENDING"
	NotifyStatusSent    NotifyStatus = "SENT"
	NotifyStatusFailed  NotifyStatus = "FAILED"
)

type Post struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Content         string       `db:"content" json:"content"` // opaque editor document
	PostURL         string       `db:"post_url" json:"postUrl"`
	Status          PostStatus   `db:"status" json:"status"`
	PublishDate     *time.Time   `db:"publish_date" json:"publishDate,omitempty"`
	Excerpt         *string      `db:"excerpt" json:"excerpt,omitempty"`
	Featured        bool         `db:"featured" json:"featured"`
	Newsletter      bool         `db:"newsletter" json:"newsletter"`
	NotifyStatus    NotifyStatus `db:"notify_status" json:"notifyStatus"`
	NotifyClaimedAt *time.Time   `db:"notify_claimed_at" json:"-"`
	NotifiedAt      *time.Time   `db:"notified_at" json:"notifiedAt,omitempty"`
	Tags            []Tag        `db:"-" json:"tags"`
	Authors         []Author     `db:"-" json:"authors"`
	AuthorIDs       []uuid.UUID  `db:"-" json:"-"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// IsDue reports whether a scheduled post should be published at now.
// The boundary is inclusive.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusScheduled && p.PublishDate != nil && !p.PublishDate.After(now)
}

// ClaimableAt reports whether a notification run may take ownership of the
// post. A SENDING claim older than lease is considered abandoned.
func (p *Post) ClaimableAt(now time.Time, lease time.Duration) bool {
	if p.Status != PostStatusPublished {
		return false
	}
	switch p.NotifyStatus {
	case NotifyStatusNone, NotifyStatusPending, NotifyStatusFailed:
		return true
	case NotifyStatusSending:
		return p.NotifyClaimedAt == nil || p.NotifyClaimedAt.Before(now.Add(-lease))
	}
	return false
}

// AwaitingNotification reports whether the automatic cycle should pick the post up.
func (p *Post) AwaitingNotification(now time.Time, lease time.Duration) bool {
	if p.Status != PostStatusPublished || !p.Newsletter {
		return false
	}
	if p.NotifyStatus == NotifyStatusPending {
		return true
	}
	return p.NotifyStatus == NotifyStatusSending && p.ClaimableAt(now, lease)
}

type Author struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Email string    `db:"email" json:"-"`
}

type Tag struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Slug        string    `db:"slug" json:"slug"`
	Description *string   `db:"description" json:"description,omitempty"`
	ImageURL    *string   `db:"image_url" json:"imageUrl,omitempty"`
	PostCount   int       `db:"post_count" json:"postCount"`
}
