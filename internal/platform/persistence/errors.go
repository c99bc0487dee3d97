package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to
const (
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeLockNotAvailable     = "55P03"
	CodeDeadlockDetected     = "40P01"
	CodeSerializationFailure = "40001"
)

// PgErrorCode extracts the SQLSTATE of err, or "" when err is not a server error
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique violation, optionally restricted to one constraint
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// UniqueConstraint returns the violated constraint name, or "" for other errors
func UniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// IsCheckViolation reports a CHECK constraint failure
func IsCheckViolation(err error) bool {
	return PgErrorCode(err) == CodeCheckViolation
}

// IsContention reports lock timeouts, deadlocks and serialization failures.
// All three leave the transaction aborted and are safe to retry from the start.
func IsContention(err error) bool {
	switch PgErrorCode(err) {
	case CodeLockNotAvailable, CodeDeadlockDetected, CodeSerializationFailure:
		return true
	default:
		return false
	}
}
