package errors

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ClassifyDB converts a database error into a structured AppError using the
// PostgreSQL error code where one is available. sql.ErrNoRows maps to
// NotFound so repositories can return it directly.
func ClassifyDB(err error, resource string) *AppError {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundf("%s not found", resource)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return Wrapf(err, ErrCodeConflict, "%s already exists", resource)
		case pgerrcode.ForeignKeyViolation:
			return Wrapf(err, ErrCodeValidation, "%s references a missing row", resource)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return Wrapf(err, ErrCodeValidation, "%s violates a constraint", resource)
		}
	}

	return Wrapf(err, ErrCodeInternal, "%s query failed", resource)
}
