package tag

import "strings"

// ValidateCreateInput validates fields required to issue a tag.
func ValidateCreateInput(req CreateRequest) error {
	if !req.Kind.Valid() {
		return ErrInvalidInput
	}
	return nil
}

// ValidateActivateInput validates an activation request.
func ValidateActivateInput(req ActivateRequest) error {
	if NormalizeCode(req.Code) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Owner) == "" {
		return ErrInvalidInput
	}
	return nil
}

// ToggleTarget returns the status a toggle moves to.
// Only active and inactive tags can be toggled.
func ToggleTarget(from Status) (Status, error) {
	switch from {
	case StatusActive:
		return StatusInactive, nil
	case StatusInactive:
		return StatusActive, nil
	default:
		return "", ErrInvalidTransition
	}
}
