package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublishResult holds the outcome of one scheduling trigger run.
type PublishResult struct {
	PostIDs  []uuid.UUID
	Count    int
	Duration time.Duration
}

// DispatchStats holds statistics about one notification dispatch.
type DispatchStats struct {
	PostID      uuid.UUID     `json:"postId"`
	Recipients  int           `json:"recipients"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Unavailable int           `json:"unavailable"`
	Failures    []SendFailure `json:"failures,omitempty"`
	Duration    time.Duration `json:"duration"`
}

type SendFailure struct {
	MemberID uuid.UUID `json:"memberId"`
	Email    string    `json:"email"`
	Reason   string    `json:"reason"`
}

type ImportResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}

type ImportRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}
