package db

import "strings"

// IsUniqueViolation reports whether the provided error references a unique
// violation constraint. When constraintName is provided, the helper looks for
// the constraint text in the error message. The sqlite fallback keeps dev and
// test behavior aligned with Postgres.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsBusy reports whether the error looks like transient lock contention that a
// bounded retry may clear (serialization failures, lock timeouts, sqlite busy).
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "lock timeout") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
