package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrNoRows aliases sql.ErrNoRows so callers can match without importing database/sql.
var ErrNoRows = sql.ErrNoRows

const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation reports a PostgreSQL unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
