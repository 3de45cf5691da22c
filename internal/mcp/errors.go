package mcp

import (
	"errors"
	"fmt"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. It returns nil for errors
// that have no stable code.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, tag.ErrNotFound):
		return &APIError{Code: "TAG_NOT_FOUND", Message: "tag not found", RecoveryHint: "Check the code spelling"}
	case errors.Is(err, tag.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, tag.ErrInvalidTransition):
		return &APIError{Code: "INVALID_TRANSITION", Message: "status cannot be changed from its current value", RecoveryHint: "Only active and inactive tags can be toggled"}
	case errors.Is(err, tag.ErrAlreadyActivated):
		return &APIError{Code: "ALREADY_ACTIVATED", Message: "tag already activated"}
	case errors.Is(err, tag.ErrNotActivated):
		return &APIError{Code: "NOT_ACTIVATED", Message: "tag not activated"}
	case errors.Is(err, tag.ErrStoreTimeout):
		return &APIError{Code: "STORE_TIMEOUT", Message: "record store did not answer in time", RecoveryHint: "Retry shortly"}
	case errors.Is(err, tag.ErrCodeExhausted):
		return &APIError{Code: "CODE_EXHAUSTED", Message: "could not allocate unique codes", RecoveryHint: "Retry with a smaller count"}
	default:
		return nil
	}
}
