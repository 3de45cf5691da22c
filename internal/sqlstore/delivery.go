package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/FahadIshaq/scanback-backend/internal/notify"
)

// DeliveryRepository implements notify.DeliveryLog.
type DeliveryRepository struct {
	db *DB
}

// NewDeliveryRepository creates a new DeliveryRepository
func NewDeliveryRepository(db *DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Record inserts a delivery outcome and sets its ID.
func (r *DeliveryRepository) Record(ctx context.Context, d *notify.Delivery) error {
	query := r.db.rebind(`
		INSERT INTO deliveries (event_kind, code, deliverer, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowContext(ctx, query,
		d.EventKind,
		d.Code,
		d.Deliverer,
		d.Status,
		d.Error,
		toNanos(d.CreatedAt),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// List returns deliveries matching the given filters, newest first.
func (r *DeliveryRepository) List(ctx context.Context, opts notify.ListOptions) ([]notify.Delivery, error) {
	query := `
		SELECT id, event_kind, code, deliverer, status, error, created_at
		FROM deliveries
	`
	var (
		conditions []string
		args       []any
	)
	if opts.Code != "" {
		conditions = append(conditions, "code = ?")
		args = append(args, opts.Code)
	}
	if opts.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *opts.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]notify.Delivery, 0)
	for rows.Next() {
		var (
			d         notify.Delivery
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.EventKind, &d.Code, &d.Deliverer, &d.Status, &d.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.CreatedAt = fromNanos(createdAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}
	return out, nil
}
