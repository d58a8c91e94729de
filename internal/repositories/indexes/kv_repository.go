package indexes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
)

type KVRepository struct {
	h    kv.Handle
	keys keys.Space
}

func NewKVRepository(h kv.Handle, space keys.Space) *KVRepository {
	return &KVRepository{h: h, keys: space}
}

func (r *KVRepository) Key(i keys.Index) string {
	return r.keys.Index(i)
}

func (r *KVRepository) Members(ctx context.Context, set keys.Index) ([]string, error) {
	v, err := r.h.ZRange(ctx, r.Key(set), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%s members: %w", set, err)
	}
	return v, nil
}

func (r *KVRepository) Score(ctx context.Context, set keys.Index, member string) (time.Time, error) {
	v, err := r.h.ZScore(ctx, r.Key(set), member)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s score: %w", set, err)
	}
	return time.UnixMilli(int64(v)).UTC(), nil
}

func (r *KVRepository) IsMember(ctx context.Context, set keys.Index, member string) (bool, error) {
	_, err := r.h.ZScore(ctx, r.Key(set), member)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s membership: %w", set, err)
	}
	return true, nil
}

func (r *KVRepository) Cardinality(ctx context.Context, set keys.Index) (int64, error) {
	n, err := r.h.ZCard(ctx, r.Key(set))
	if err != nil {
		return 0, fmt.Errorf("%s cardinality: %w", set, err)
	}
	return n, nil
}

func (r *KVRepository) CountSince(ctx context.Context, set keys.Index, since time.Time) (int64, error) {
	n, err := r.h.ZCount(ctx, r.Key(set), strconv.FormatInt(since.UnixMilli(), 10), "+inf")
	if err != nil {
		return 0, fmt.Errorf("%s count since: %w", set, err)
	}
	return n, nil
}

// Lookup resolves key in map m. An absent entry is common.ErrorNotFound.
func (r *KVRepository) Lookup(ctx context.Context, m keys.Index, key string) (string, error) {
	if key == "" {
		return "", common.ErrorNotFound
	}
	v, err := r.h.HGet(ctx, r.Key(m), key)
	if err != nil {
		return "", fmt.Errorf("%s lookup: %w", m, err)
	}
	return v, nil
}

func (r *KVRepository) Values(ctx context.Context, m keys.Index) ([]string, error) {
	v, err := r.h.HVals(ctx, r.Key(m))
	if err != nil {
		return nil, fmt.Errorf("%s values: %w", m, err)
	}
	return v, nil
}

func (r *KVRepository) Len(ctx context.Context, m keys.Index) (int64, error) {
	n, err := r.h.HLen(ctx, r.Key(m))
	if err != nil {
		return 0, fmt.Errorf("%s length: %w", m, err)
	}
	return n, nil
}

func (r *KVRepository) Stats(ctx context.Context) (models.Stats, error) {
	m, err := r.h.HGetAll(ctx, r.Key(keys.Stats))
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}

	var s models.Stats
	dst := map[Counter]*int64{
		NumWaitlist:    &s.NumWaitlist,
		NumInvited:     &s.NumInvited,
		NumUnConfirmed: &s.NumUnConfirmed,
		NumUsers:       &s.NumUsers,
	}
	for c, p := range dst {
		v := m[string(c)]
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.Stats{}, fmt.Errorf("stats %s: %w", c, err)
		}
		*p = n
	}
	return s, nil
}

func (r *KVRepository) QueueAddMember(b kv.Batch, set keys.Index, member string, at time.Time) {
	b.ZAdd(r.Key(set), float64(at.UnixMilli()), member)
}

func (r *KVRepository) QueueRemoveMember(b kv.Batch, set keys.Index, member string) {
	b.ZRem(r.Key(set), member)
}

func (r *KVRepository) QueueMapSet(b kv.Batch, m keys.Index, key, value string) {
	b.HSet(r.Key(m), map[string]any{key: value})
}

func (r *KVRepository) QueueMapDelete(b kv.Batch, m keys.Index, key string) {
	b.HDel(r.Key(m), key)
}

func (r *KVRepository) QueueIncrement(b kv.Batch, c Counter, delta int64) {
	b.HIncrBy(r.Key(keys.Stats), string(c), delta)
}

// QueueSetStats overwrites all counters.
func (r *KVRepository) QueueSetStats(b kv.Batch, s models.Stats) {
	b.HSet(r.Key(keys.Stats), map[string]any{
		string(NumWaitlist):    s.NumWaitlist,
		string(NumInvited):     s.NumInvited,
		string(NumUnConfirmed): s.NumUnConfirmed,
		string(NumUsers):       s.NumUsers,
	})
}
