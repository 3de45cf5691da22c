package contact

import "errors"

var (
	// ErrInvalidOrExpiredOTP indicates no matching, unexpired verification is pending.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired verification code")
	// ErrInvalidInput indicates invalid contact update input.
	ErrInvalidInput = errors.New("invalid contact update input")
)
