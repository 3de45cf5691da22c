package tag

import "context"

// RecordStore provides durable keyed storage for tag records.
// UpdateByCode must apply a Mutation atomically with respect to other updates of the same code.
type RecordStore interface {
	FindByCode(ctx context.Context, code string) (*Record, error)
	FindPublicByCode(ctx context.Context, code string) (*PublicView, error)
	Insert(ctx context.Context, rec *Record) error
	UpdateByCode(ctx context.Context, code string, m Mutation) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]Summary, error)
}

// CodeGenerator produces candidate tag codes.
type CodeGenerator interface {
	NewCode() (string, error)
}

// Invalidator evicts cached public views after a mutation.
type Invalidator interface {
	Invalidate(code string)
}

// EventPublisher hands lifecycle events to the notification side channel.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// AuthorizationCheck decides whether requester may act as owner.
type AuthorizationCheck interface {
	IsOwner(ctx context.Context, requester, owner string) bool
}
