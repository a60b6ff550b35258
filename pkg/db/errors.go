package db

import "strings"

// IsUniqueViolation reports whether err looks like a Postgres unique
// constraint failure. A non-empty constraintName narrows the check to that
// constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	if constraintName != "" {
		return strings.Contains(message, constraintName)
	}
	return strings.Contains(message, "duplicate key value")
}
