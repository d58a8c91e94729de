// Package kv defines the key-value store capability Drawbridge is a client of:
// field-map (hash) records, score-ordered sets, key rename and an atomic
// batched command group. Repositories depend only on these interfaces; the
// Redis adapter in internal/storage/redisstore implements them.
//
// Reads return common.ErrorNotFound for absent single values and
// *common.StoreError for driver failures.
package kv

import "context"

// Reader is the read-only subset of the store used for decisions and
// listings. Both Store and Tx satisfy it, the same way *sql.DB and *sql.Tx
// both satisfy a DBTX.
type Reader interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HGetAllMany fetches several records in one pipelined round trip.
	// Results are positional; a missing key yields an empty map.
	HGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error)
	HVals(ctx context.Context, key string) ([]string, error)
	HLen(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)

	// ZRange returns members by rank; 0..-1 is the full range.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZCount(ctx context.Context, key, min, max string) (int64, error)
}

// MapResult is the deferred result of a read queued inside a batch. It is
// valid only after the batch executed.
type MapResult interface {
	Result() (map[string]string, error)
}

// Batch queues commands. Nothing is sent until the enclosing Exec returns;
// the queued group then runs without interleaving from other clients.
type Batch interface {
	HSet(key string, values map[string]any)
	HDel(key string, fields ...string)
	HIncrBy(key, field string, delta int64)
	ZAdd(key string, score float64, member string)
	ZRem(key string, members ...string)
	Rename(from, to string)
	HGetAll(key string) MapResult
}

// BatchFunc queues the commands of one atomic group. Returning an error
// discards the group without sending it.
type BatchFunc func(b Batch) error

// Executor runs one atomic batch.
//
// Typical use:
//
//	err := store.Exec(ctx, func(b kv.Batch) error {
//	    b.HSet(key, map[string]any{"stage": 1})
//	    b.ZAdd("waitlist", score, key)
//	    return nil
//	})
type Executor interface {
	Exec(ctx context.Context, fn BatchFunc) error
}

// Handle reads and writes. Store and Tx both satisfy it; repositories are
// built on whichever the caller holds.
type Handle interface {
	Reader
	Executor
}

// Tx is an optimistic transaction: reads observe current state, additional
// keys may be watched, and Exec commits only if no watched key changed
// since it was watched. A failed commit returns common.ErrConflict.
type Tx interface {
	Reader
	Executor
	Watch(ctx context.Context, keys ...string) error
}

// TxFunc is the body of an optimistic transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a connected client handle. It is created once at startup and
// injected into every repository.
type Store interface {
	Reader
	Executor
	// Watch runs fn with keys watched. fn must issue at most one Exec.
	Watch(ctx context.Context, fn TxFunc, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
