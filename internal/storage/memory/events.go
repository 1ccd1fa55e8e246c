package memory

import (
	"context"
	"time"
)

type EventStore struct {
	s *Store
}

func (e *EventStore) MarkProcessed(ctx context.Context, eventID, _ string, at time.Time) (bool, error) {
	defer e.s.lock(ctx)()

	if _, ok := e.s.st.events[eventID]; ok {
		return false, nil
	}
	e.s.st.events[eventID] = at
	return true, nil
}
