package store

import (
	"errors"
	"strings"
)

var (
	// ErrAlreadyMember is returned when a user joins a list they belong to.
	ErrAlreadyMember = errors.New("already a member of this list")

	// ErrVersionConflict is returned when an item update carries a stale version.
	ErrVersionConflict = errors.New("item was modified by someone else")

	// ErrEmailTaken is returned when a signup reuses an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrLoginTaken is returned when a signup reuses an existing login.
	ErrLoginTaken = errors.New("login already taken")
)

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
