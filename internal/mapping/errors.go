package mapping

import (
	"errors"
)

var (
	// ErrDBNil is returned when the contact store connection is nil.
	ErrDBNil = errors.New("mapping store connection is nil")
	// ErrNotFound is returned when a mapping does not exist.
	ErrNotFound = errors.New("mapping not found")
	// ErrStillMapped is returned when a delete was attempted while the
	// external role assignment still exists. Unmap first.
	ErrStillMapped = errors.New("role assignment still exists for mapping")
)
