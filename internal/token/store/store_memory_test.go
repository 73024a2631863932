package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"beantrace/internal/sentinel"
	"beantrace/internal/token/models"
	"beantrace/pkg/testutil"
)

func newRecord(token, subjectRef string, ttl time.Duration) *models.Record {
	now := time.Now().UTC()
	return &models.Record{
		Token:      token,
		SubjectRef: subjectRef,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestInMemoryStore_RedeemOnce(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Create(ctx, newRecord("tok-1", "BATCH-1", time.Hour)))

	record, err := store.Redeem(ctx, "tok-1", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, "BATCH-1", record.SubjectRef)
	require.True(t, record.Used)

	_, err = store.Redeem(ctx, "tok-1", time.Now().UTC())
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestInMemoryStore_RedeemUnknown(t *testing.T) {
	store := NewInMemory()
	_, err := store.Redeem(context.Background(), "no-such-token", time.Now().UTC())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_RedeemExpired(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Create(ctx, newRecord("tok-exp", "BATCH-2", time.Minute)))

	_, err := store.Redeem(ctx, "tok-exp", time.Now().UTC().Add(2*time.Minute))
	require.ErrorIs(t, err, sentinel.ErrExpired)
}

func TestInMemoryStore_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Create(ctx, newRecord("tok-dup", "BATCH-3", time.Hour)))
	err := store.Create(ctx, newRecord("tok-dup", "BATCH-4", time.Hour))
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_ConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Create(ctx, newRecord("tok-race", "BATCH-5", time.Hour)))

	now := time.Now().UTC()
	result := testutil.RunConcurrent(50, func(int) error {
		_, err := store.Redeem(ctx, "tok-race", now)
		return err
	})

	require.EqualValues(t, 1, result.Successes)
	require.EqualValues(t, 49, result.AlreadyUsed)
	require.EqualValues(t, 0, result.Errors)
}

func TestInMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	require.NoError(t, store.Create(ctx, newRecord("tok-live", "BATCH-6", time.Hour)))
	require.NoError(t, store.Create(ctx, newRecord("tok-old", "BATCH-7", time.Minute)))
	require.NoError(t, store.Create(ctx, newRecord("tok-spent", "BATCH-8", time.Hour)))

	_, err := store.Redeem(ctx, "tok-spent", time.Now().UTC())
	require.NoError(t, err)

	deleted, err := store.DeleteExpired(ctx, time.Now().UTC().Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	deleted, err = store.DeleteUsed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = store.Redeem(ctx, "tok-live", time.Now().UTC())
	require.NoError(t, err)
}
