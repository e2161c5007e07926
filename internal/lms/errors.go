package lms

import (
	"errors"
)

var (
	// ErrDBNil is returned when the LMS database connection is nil.
	ErrDBNil = errors.New("LMS database connection is nil")
	// ErrNotFound is returned when an expected account, context or row is absent.
	ErrNotFound = errors.New("LMS record not found")
	// ErrAmbiguousMatch is returned when more than one account matched a
	// pupil lookup. The caller must not guess.
	ErrAmbiguousMatch = errors.New("more than one LMS account matched")
)
