package redisstore

import (
	"context"

	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/redis/go-redis/v9"
)

// cmdable is the command subset shared by *redis.Client and *redis.Tx.
type cmdable interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HVals(ctx context.Context, key string) *redis.StringSliceCmd
	HLen(ctx context.Context, key string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

type reader struct {
	c cmdable
}

func (r reader) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.c.HGet(ctx, key, field).Result()
	return v, wrap("hget", err)
}

func (r reader) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := r.c.HGetAll(ctx, key).Result()
	return v, wrap("hgetall", err)
}

func (r reader) HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return []map[string]string{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := r.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("hgetall", err)
	}

	out := make([]map[string]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

func (r reader) HVals(ctx context.Context, key string) ([]string, error) {
	v, err := r.c.HVals(ctx, key).Result()
	return v, wrap("hvals", err)
}

func (r reader) HLen(ctx context.Context, key string) (int64, error) {
	v, err := r.c.HLen(ctx, key).Result()
	return v, wrap("hlen", err)
}

func (r reader) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	return n > 0, wrap("exists", err)
}

func (r reader) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := r.c.ZRange(ctx, key, start, stop).Result()
	return v, wrap("zrange", err)
}

func (r reader) ZCard(ctx context.Context, key string) (int64, error) {
	v, err := r.c.ZCard(ctx, key).Result()
	return v, wrap("zcard", err)
}

func (r reader) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := r.c.ZScore(ctx, key, member).Result()
	return v, wrap("zscore", err)
}

func (r reader) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	v, err := r.c.ZCount(ctx, key, min, max).Result()
	return v, wrap("zcount", err)
}

// batch queues commands on a MULTI pipeline.
type batch struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (b *batch) HSet(key string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	b.p.HSet(b.ctx, key, values)
}

func (b *batch) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	b.p.HDel(b.ctx, key, fields...)
}

func (b *batch) HIncrBy(key, field string, delta int64) {
	b.p.HIncrBy(b.ctx, key, field, delta)
}

func (b *batch) ZAdd(key string, score float64, member string) {
	b.p.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *batch) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	b.p.ZRem(b.ctx, key, args...)
}

func (b *batch) Rename(from, to string) {
	b.p.Rename(b.ctx, from, to)
}

func (b *batch) HGetAll(key string) kv.MapResult {
	return b.p.HGetAll(b.ctx, key)
}
