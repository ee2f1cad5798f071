package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/db"
	"github.com/oggyb/venue-match/internal/repository"
	"github.com/oggyb/venue-match/internal/testutil"
)

func text(s string) *string { return &s }

func TestListByConnectionPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMessageRepository(testutil.NewDB(t))
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, &db.Message{
			ID:           int64(i),
			ConnectionID: "c1",
			SenderID:     "a",
			Content:      text("hi"),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	first, err := repo.ListByConnection(ctx, "c1", time.Time{}, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(5), first[0].ID)
	assert.Equal(t, int64(4), first[1].ID)

	last := first[1]
	next, err := repo.ListByConnection(ctx, "c1", last.CreatedAt, last.ID, 10)
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, int64(3), next[0].ID)
}

func TestMarkReadSkipsOwnMessages(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewMessageRepository(gdb)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, &db.Message{ID: 1, ConnectionID: "c1", SenderID: "a", Content: text("1"), CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, &db.Message{ID: 2, ConnectionID: "c1", SenderID: "b", Content: text("2"), CreatedAt: now}))

	n, err := repo.MarkRead(ctx, "c1", "b", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, int64(1), testutil.CountRows(t, gdb, &db.Message{}, "read_at IS NOT NULL AND sender_id = ?", "a"))

	n, err = repo.MarkRead(ctx, "c1", "b", now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestToggleReaction(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMessageRepository(testutil.NewDB(t))

	require.NoError(t, repo.CreateGroup(ctx, &db.VenueGroupMessage{ID: 7, VenueID: "v1", SenderID: "a", Content: text("hey"), CreatedAt: time.Now().UTC()}))

	added, err := repo.ToggleReaction(ctx, 7, "b", "🔥")
	require.NoError(t, err)
	assert.True(t, added)
	_, err = repo.ToggleReaction(ctx, 7, "c", "🔥")
	require.NoError(t, err)

	added, err = repo.ToggleReaction(ctx, 7, "b", "🔥")
	require.NoError(t, err)
	assert.False(t, added)

	rs, err := repo.Reactions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "c", rs[0].UserID)

	_, err = repo.GetGroupMessage(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
