package memory

import (
	"context"
	"sync"

	"github.com/FahadIshaq/scanback-backend/internal/notify"
)

// DeliveryLog records notification outcomes in memory, newest last.
type DeliveryLog struct {
	mu      sync.RWMutex
	nextID  int64
	entries []notify.Delivery
}

// NewDeliveryLog creates an empty log.
func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{}
}

func (l *DeliveryLog) Record(ctx context.Context, d *notify.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	d.ID = l.nextID
	l.entries = append(l.entries, *d)
	return nil
}

// List returns matching deliveries, newest first.
func (l *DeliveryLog) List(ctx context.Context, opts notify.ListOptions) ([]notify.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]notify.Delivery, 0)
	skipped := 0
	for i := len(l.entries) - 1; i >= 0; i-- {
		d := l.entries[i]
		if opts.Code != "" && d.Code != opts.Code {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, d)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
