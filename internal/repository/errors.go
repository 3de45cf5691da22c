package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrUniqueViolation is returned when an insert collides with an existing key
	ErrUniqueViolation = errors.New("unique constraint violation")
)
