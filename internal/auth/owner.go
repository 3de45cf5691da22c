package auth

import "context"

// OwnerCheck authorizes a requester as owner by direct identity equality.
type OwnerCheck struct{}

func (OwnerCheck) IsOwner(_ context.Context, requester, owner string) bool {
	return requester != "" && requester == owner
}
