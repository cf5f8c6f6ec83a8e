package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolationCode    = "23505"
	exclusionViolationCode = "23P01"
)

// IsUniqueViolation reports whether err is a Postgres unique violation. When
// constraintName is given, it must also name that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	return isConstraintViolation(err, uniqueViolationCode, "duplicate key value", constraintName)
}

// IsExclusionViolation reports whether err is a Postgres exclusion constraint
// violation, such as two bookings claiming overlapping windows on one lab.
func IsExclusionViolation(err error, constraintName string) bool {
	return isConstraintViolation(err, exclusionViolationCode, "conflicting key value", constraintName)
}

func isConstraintViolation(err error, code, fallback, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != code {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	// Drivers that do not surface *pgconn.PgError only give us the message.
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, fallback)
}
