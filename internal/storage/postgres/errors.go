package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"newsroom/internal/domain"
)

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Constraint)
		case foreignKeyViolation:
			return domain.NewValidationError("", "references a missing record: "+pqErr.Constraint)
		}
	}
	return err
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
