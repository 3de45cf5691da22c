package tag

import "errors"

var (
	// ErrNotFound indicates no tag exists for the code.
	ErrNotFound = errors.New("tag not found")
	// ErrAlreadyActivated indicates the tag is bound to a different owner.
	ErrAlreadyActivated = errors.New("tag already activated")
	// ErrAlreadyFound indicates the tag was already reported found.
	ErrAlreadyFound = errors.New("tag already reported found")
	// ErrNotActivated indicates the tag has not been activated yet.
	ErrNotActivated = errors.New("tag not activated")
	// ErrInvalidTransition indicates a status change that is not allowed.
	ErrInvalidTransition = errors.New("invalid tag status transition")
	// ErrInvalidInput indicates invalid input for tag operations.
	ErrInvalidInput = errors.New("invalid tag input")
	// ErrForbidden indicates the requester does not own the tag.
	ErrForbidden = errors.New("tag not owned by requester")
	// ErrStoreTimeout indicates the record store did not answer in time.
	ErrStoreTimeout = errors.New("record store timeout")
	// ErrCodeExhausted indicates code generation kept colliding.
	ErrCodeExhausted = errors.New("could not allocate a unique code")
)
