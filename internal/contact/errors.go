package contact

import (
	"errors"
)

var (
	// ErrDBNil is returned when the contact store connection is nil.
	ErrDBNil = errors.New("contact store connection is nil")
	// ErrNotFound is returned when a contact does not exist.
	ErrNotFound = errors.New("contact not found")
	// ErrInvalidTransition is returned when an operation was attempted
	// from a status that does not permit it. Never silently coerced.
	ErrInvalidTransition = errors.New("status transition not permitted")
	// ErrDuplicateAccount is returned when approval found a pre-existing
	// pending-auth row for the same email. The contact is left in
	// duplicate status for manual review, not rolled back.
	ErrDuplicateAccount = errors.New("another live contact already stages this email")
	// ErrMappingsExist is returned when a delete was attempted on a
	// contact that still has pupil mappings.
	ErrMappingsExist = errors.New("contact still has pupil mappings")
	// ErrDeleteBlocked is returned when a delete was attempted while the
	// contact's LMS account is provisioned and enabled. Deleting such a
	// contact would drop the only trace of a live account.
	ErrDeleteBlocked = errors.New("contact account is provisioned and enabled")
	// ErrAccountNotResolved is returned by operations that need the
	// materialized LMS account when it cannot be found.
	ErrAccountNotResolved = errors.New("contact LMS account not resolved")
)
