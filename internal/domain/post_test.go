package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPost_IsDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		post Post
		want bool
	}{
		{name: "publish date equal to now", post: Post{Status: PostStatusScheduled, PublishDate: at(0)}, want: true},
		{name: "one second in the past", post: Post{Status: PostStatusScheduled, PublishDate: at(-time.Second)}, want: true},
		{name: "one second in the future", post: Post{Status: PostStatusScheduled, PublishDate: at(time.Second)}, want: false},
		{name: "draft with past date", post: Post{Status: PostStatusDraft, PublishDate: at(-time.Hour)}, want: false},
		{name: "already published", post: Post{Status: PostStatusPublished, PublishDate: at(-time.Hour)}, want: false},
		{name: "scheduled without date", post: Post{Status: PostStatusScheduled}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.post.IsDue(now))
		})
	}
}

func TestPost_ClaimableAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease := 10 * time.Minute
	recent := now.Add(-time.Minute)
	stale := now.Add(-time.Hour)

	tests := []struct {
		name string
		post Post
		want bool
	}{
		{name: "pending", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusPending}, want: true},
		{name: "never requested", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusNone}, want: true},
		{name: "failed", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusFailed}, want: true},
		{name: "sent", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusSent}, want: false},
		{name: "sending with live claim", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusSending, NotifyClaimedAt: &recent}, want: false},
		{name: "sending with stale claim", post: Post{Status: PostStatusPublished, NotifyStatus: NotifyStatusSending, NotifyClaimedAt: &stale}, want: true},
		{name: "not published", post: Post{Status: PostStatusScheduled, NotifyStatus: NotifyStatusPending}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.post.ClaimableAt(now, lease))
		})
	}
}
