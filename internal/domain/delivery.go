package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DeliveryEventType string

const (
	EventSent            DeliveryEventType = "sent"
	EventDelivered       DeliveryEventType = "delivered"
	EventDeliveryDelayed DeliveryEventType = "delivery_delayed"
	EventOpened          DeliveryEventType = "opened"
	EventClicked         DeliveryEventType = "clicked"
	EventBounced         DeliveryEventType = "bounced"
	EventComplained      DeliveryEventType = "complained"
	EventUnsubscribed    DeliveryEventType = "unsubscribed"
	EventContactUpdated  DeliveryEventType = "contact.updated"
	EventContactDeleted  DeliveryEventType = "contact.deleted"
)

// NormalizeEventType accepts provider types with or without the "email." prefix.
func NormalizeEventType(raw string) DeliveryEventType {
	t := strings.ToLower(strings.TrimSpace(raw))
	return DeliveryEventType(strings.TrimPrefix(t, "email."))
}

// VerifiedEvent is a webhook delivery whose signature has been checked.
// Body is the raw payload exactly as signed.
type VerifiedEvent struct {
	ID        string
	Timestamp time.Time
	Body      []byte
}

type DeliveryPayload struct {
	Type      string       `json:"type"`
	CreatedAt string       `json:"created_at"`
	Data      DeliveryData `json:"data"`
}

type DeliveryData struct {
	ID           string   `json:"id"`
	EmailID      string   `json:"email_id"`
	ContactID    string   `json:"contact_id"`
	Email        string   `json:"email"`
	To           []string `json:"to"`
	Unsubscribed *bool    `json:"unsubscribed"`
}

// DeliveryEvent is the parsed application view of a verified webhook delivery.
type DeliveryEvent struct {
	ID         string
	Type       DeliveryEventType
	RawType    string
	OccurredAt time.Time
	ContactID  string
	Email      string
	Data       DeliveryData
}

func ParseDeliveryEvent(ev VerifiedEvent) (*DeliveryEvent, error) {
	var payload DeliveryPayload
	if err := json.Unmarshal(ev.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Type == "" {
		return nil, fmt.Errorf("decode payload: missing type")
	}

	out := &DeliveryEvent{
		ID:         ev.ID,
		Type:       NormalizeEventType(payload.Type),
		RawType:    payload.Type,
		OccurredAt: ev.Timestamp,
		ContactID:  payload.Data.ContactID,
		Data:       payload.Data,
	}
	if t, err := time.Parse(time.RFC3339Nano, payload.CreatedAt); err == nil {
		out.OccurredAt = t
	}

	switch {
	case payload.Data.Email != "":
		out.Email = NormalizeEmail(payload.Data.Email)
	case len(payload.Data.To) > 0:
		out.Email = NormalizeEmail(payload.Data.To[0])
	}
	// contact events carry the contact id as data.id
	if out.ContactID == "" && strings.HasPrefix(string(out.Type), "contact.") {
		out.ContactID = payload.Data.ID
	}
	return out, nil
}

// Mutation maps the event to the member change it implies. The second return
// value is false for event types that never change a member.
func (e *DeliveryEvent) Mutation() (MemberMutation, bool) {
	yes := true
	switch e.Type {
	case EventSent, EventDeliveryDelayed, EventClicked:
		return MemberMutation{}, false
	case EventDelivered:
		return MemberMutation{DeliveredDelta: 1}, true
	case EventOpened:
		return MemberMutation{OpenedDelta: 1}, true
	case EventBounced:
		at := e.OccurredAt
		return MemberMutation{Unsubscribed: &yes, BouncedAt: &at}, true
	case EventComplained, EventUnsubscribed, EventContactDeleted:
		return MemberMutation{Unsubscribed: &yes}, true
	case EventContactUpdated:
		if e.Data.Unsubscribed == nil {
			return MemberMutation{}, false
		}
		v := *e.Data.Unsubscribed
		return MemberMutation{Unsubscribed: &v}, true
	}
	return MemberMutation{}, false
}

type DeliveryOutcome string

const (
	OutcomeApplied   DeliveryOutcome = "applied"
	OutcomeDuplicate DeliveryOutcome = "duplicate"
	OutcomeIgnored   DeliveryOutcome = "ignored"
)
