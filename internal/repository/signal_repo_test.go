package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/testutil"
)

func TestSignalCreateAndExists(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSignalRepository(testutil.NewDB(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := repo.Create(ctx, "a", "b", now)
	require.NoError(t, err)

	// signals are not unique per pair, only per instant
	_, err = repo.Create(ctx, "a", "b", now.Add(time.Second))
	require.NoError(t, err)
	_, err = repo.Create(ctx, "a", "b", now)
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	ok, err := repo.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalCountSentSince(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewSignalRepository(gdb)
	now := time.Now().UTC().Truncate(time.Millisecond)

	testutil.CreateSignals(t, gdb, "a", 2, now.Add(-25*time.Hour))
	testutil.CreateSignals(t, gdb, "a", 3, now.Add(-time.Hour))
	testutil.CreateSignals(t, gdb, "b", 4, now.Add(-time.Hour))

	n, err := repo.CountSentSince(ctx, "a", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
