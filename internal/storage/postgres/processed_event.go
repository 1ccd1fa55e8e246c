package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type EventStore struct {
	db *sqlx.DB
}

func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// MarkProcessed records an event id. It returns false when the id is
// already present. Inside a transaction a concurrent insert of the same id
// blocks until the other transaction finishes.
func (s *EventStore) MarkProcessed(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO processed_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
