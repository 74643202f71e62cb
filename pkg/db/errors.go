package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const sqlstateUniqueViolation = "23505"

// sqlstate pulls the SQLSTATE and constraint out of either Postgres driver.
func sqlstate(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports a duplicate insert, such as a redelivered Stripe
// event hitting the event_id index. A non-empty constraint narrows the match.
// sqlite reports neither SQLSTATE nor index names, so any duplicate message
// counts there.
func IsUniqueViolation(err error, constraint string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	if code, name, ok := sqlstate(err); ok {
		return code == sqlstateUniqueViolation && (constraint == "" || name == constraint)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
