package indexes

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
	"github.com/dmitrijs2005/drawbridge/internal/storage/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, prefix string) (*KVRepository, *redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return NewKVRepository(s, keys.NewSpace(prefix)), s, mr
}

func TestKVRepository_OrderedSets(t *testing.T) {
	repo, s, _ := newRepo(t, "")
	ctx := context.Background()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	err := s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueAddMember(b, keys.Waitlist, "b@example.com", t2)
		repo.QueueAddMember(b, keys.Waitlist, "a@example.com", t1)
		return nil
	})
	require.NoError(t, err)

	members, err := repo.Members(ctx, keys.Waitlist)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, members)

	score, err := repo.Score(ctx, keys.Waitlist, "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, t2, score)

	n, err := repo.Cardinality(ctx, keys.Waitlist)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountSince(ctx, keys.Waitlist, t2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountSince(ctx, keys.Waitlist, t2.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueRemoveMember(b, keys.Waitlist, "a@example.com")
		return nil
	}))

	ok, err := repo.IsMember(ctx, keys.Waitlist, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Score(ctx, keys.Waitlist, "a@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestKVRepository_Maps(t *testing.T) {
	repo, s, mr := newRepo(t, "app:")
	ctx := context.Background()

	require.NoError(t, s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueMapSet(b, keys.Invited, "tok-1", "a@example.com")
		repo.QueueMapSet(b, keys.Invited, "tok-2", "b@example.com")
		return nil
	}))
	assert.Equal(t, "a@example.com", mr.HGet("app:invited", "tok-1"))

	v, err := repo.Lookup(ctx, keys.Invited, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", v)

	vals, err := repo.Values(ctx, keys.Invited)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, vals)

	require.NoError(t, s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueMapDelete(b, keys.Invited, "tok-1")
		return nil
	}))

	_, err = repo.Lookup(ctx, keys.Invited, "tok-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Lookup(ctx, keys.Invited, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := repo.Len(ctx, keys.Invited)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKVRepository_Counters(t *testing.T) {
	repo, s, _ := newRepo(t, "")
	ctx := context.Background()

	empty, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{}, empty)

	require.NoError(t, s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueIncrement(b, NumWaitlist, 3)
		repo.QueueIncrement(b, NumWaitlist, -1)
		repo.QueueIncrement(b, NumInvited, 1)
		return nil
	}))

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{NumWaitlist: 2, NumInvited: 1}, st)

	want := models.Stats{NumWaitlist: 5, NumInvited: 4, NumUnConfirmed: 3, NumUsers: 2}
	require.NoError(t, s.Exec(ctx, func(b kv.Batch) error {
		repo.QueueSetStats(b, want)
		return nil
	}))

	st, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, st)
}

func TestKVRepository_StoreFailure(t *testing.T) {
	repo, _, mr := newRepo(t, "")
	mr.SetError("down")

	_, err := repo.Members(context.Background(), keys.Users)
	assert.ErrorIs(t, err, common.ErrStore)

	_, err = repo.IsMember(context.Background(), keys.Users, "a")
	assert.ErrorIs(t, err, common.ErrStore)
}
