package contact

import (
	"context"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
)

// PendingStore keeps pending updates keyed by tag code, independent of the record.
type PendingStore interface {
	// Put stores p, replacing any pending update for p.Code.
	Put(ctx context.Context, p PendingUpdate) error
	Get(ctx context.Context, code string) (*PendingUpdate, error)
	// Consume deletes the pending update for code only if its ID is id.
	// It returns repository.ErrNotFound when another caller got there first.
	Consume(ctx context.Context, code, id string) error
	IncrementAttempts(ctx context.Context, code, id string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TagService provides the record operations the flow depends on.
type TagService interface {
	Get(ctx context.Context, code string) (*tag.Record, error)
	UpdateDetails(ctx context.Context, code string, patch tag.DetailsPatch) (*tag.Record, error)
}
