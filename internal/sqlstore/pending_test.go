package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestPendingRepository_Lifecycle(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, NewRecordRepository(db).Insert(ctx, newTag("OTP1", time.Now())))
	repo := NewPendingRepository(db)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := contact.PendingUpdate{
		ID:            "first",
		Code:          "OTP1",
		OTPHash:       "hash",
		ProposedEmail: "new@example.com",
		ExpiresAt:     now.Add(10 * time.Minute),
		CreatedAt:     now,
	}
	require.NoError(t, repo.Put(ctx, p))

	loaded, err := repo.Get(ctx, "OTP1")
	require.NoError(t, err)
	require.Equal(t, "first", loaded.ID)
	require.Equal(t, "new@example.com", loaded.ProposedEmail)
	require.True(t, p.ExpiresAt.Equal(loaded.ExpiresAt))

	attempts, err := repo.IncrementAttempts(ctx, "OTP1", "first")
	require.NoError(t, err)
	require.Equal(t, 1, attempts)

	// A newer request replaces the old one and resets attempts.
	p.ID = "second"
	require.NoError(t, repo.Put(ctx, p))
	loaded, err = repo.Get(ctx, "OTP1")
	require.NoError(t, err)
	require.Equal(t, "second", loaded.ID)
	require.Zero(t, loaded.Attempts)

	require.Equal(t, repository.ErrNotFound, repo.Consume(ctx, "OTP1", "first"))
	_, err = repo.IncrementAttempts(ctx, "OTP1", "first")
	require.Equal(t, repository.ErrNotFound, err)

	require.NoError(t, repo.Consume(ctx, "OTP1", "second"))
	require.Equal(t, repository.ErrNotFound, repo.Consume(ctx, "OTP1", "second"))

	_, err = repo.Get(ctx, "OTP1")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestPendingRepository_DeleteExpired(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	tags := NewRecordRepository(db)
	repo := NewPendingRepository(db)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, code := range []string{"E1", "E2", "E3"} {
		require.NoError(t, tags.Insert(ctx, newTag(code, now)))
		require.NoError(t, repo.Put(ctx, contact.PendingUpdate{
			ID:        code,
			Code:      code,
			OTPHash:   "h",
			ExpiresAt: now.Add(time.Duration(i-1) * time.Minute),
			CreatedAt: now,
		}))
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, n, "expired and expiring-now entries are removed")

	_, err = repo.Get(ctx, "E3")
	require.NoError(t, err)
}
