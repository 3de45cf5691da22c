package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
)

// PendingRepository implements contact.PendingStore.
type PendingRepository struct {
	db *DB
}

// NewPendingRepository creates a new PendingRepository
func NewPendingRepository(db *DB) *PendingRepository {
	return &PendingRepository{db: db}
}

// Put stores p, replacing any pending update for the same tag.
func (r *PendingRepository) Put(ctx context.Context, p contact.PendingUpdate) error {
	query := r.db.rebind(`
		INSERT INTO pending_updates (
			code, id, otp_hash, proposed_email, proposed_phone, attempts, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			id = excluded.id,
			otp_hash = excluded.otp_hash,
			proposed_email = excluded.proposed_email,
			proposed_phone = excluded.proposed_phone,
			attempts = excluded.attempts,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		p.Code,
		p.ID,
		p.OTPHash,
		p.ProposedEmail,
		p.ProposedPhone,
		p.Attempts,
		toNanos(p.ExpiresAt),
		toNanos(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store pending update: %w", err)
	}
	return nil
}

// Get returns the pending update for code.
func (r *PendingRepository) Get(ctx context.Context, code string) (*contact.PendingUpdate, error) {
	query := r.db.rebind(`
		SELECT code, id, otp_hash, proposed_email, proposed_phone, attempts, expires_at, created_at
		FROM pending_updates
		WHERE code = ?
	`)
	var (
		p                    contact.PendingUpdate
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.Code,
		&p.ID,
		&p.OTPHash,
		&p.ProposedEmail,
		&p.ProposedPhone,
		&p.Attempts,
		&expiresAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending update: %w", err)
	}
	p.ExpiresAt = fromNanos(expiresAt)
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}

// Consume deletes the pending update for code if it is still the one identified by id.
func (r *PendingRepository) Consume(ctx context.Context, code, id string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.rebind(`DELETE FROM pending_updates WHERE code = ? AND id = ?`), code, id)
	if err != nil {
		return fmt.Errorf("failed to consume pending update: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementAttempts bumps the failed-attempt counter and returns the new value.
func (r *PendingRepository) IncrementAttempts(ctx context.Context, code, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, r.db.rebind(`
		UPDATE pending_updates
		SET attempts = attempts + 1
		WHERE code = ? AND id = ?
		RETURNING attempts
	`), code, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempts, nil
}

// DeleteExpired removes every pending update that expired at or before now.
func (r *PendingRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		r.db.rebind(`DELETE FROM pending_updates WHERE expires_at <= ?`), toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired updates: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
