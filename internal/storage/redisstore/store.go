// Package redisstore implements the kv store contract on Redis with
// go-redis. Batches run as MULTI/EXEC groups; optimistic transactions use
// WATCH so a concurrent change to a watched key aborts the EXEC.
//
// Redis does not roll back a MULTI group when one queued command fails at
// run time (for example WRONGTYPE). Callers only queue commands whose
// preconditions they checked under WATCH, so queued groups do not fail
// part-way in practice.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/redis/go-redis/v9"
)

// Options configures the client connection.
type Options struct {
	Addr             string
	Password         string
	DB               int
	DialTimeout      time.Duration
	OperationTimeout time.Duration
}

type Store struct {
	reader
	client *redis.Client
}

var (
	_ kv.Store = (*Store)(nil)
	_ kv.Tx    = (*tx)(nil)
)

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.OperationTimeout,
		WriteTimeout: opts.OperationTimeout,
	})

	s := New(client)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{reader: reader{c: client}, client: client}
}

func (s *Store) Exec(ctx context.Context, fn kv.BatchFunc) error {
	return execTx(ctx, s.client, fn)
}

func (s *Store) Watch(ctx context.Context, fn kv.TxFunc, keys ...string) error {
	var fnErr error
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		if err := fn(ctx, &tx{reader: reader{c: rtx}, rtx: rtx}); err != nil {
			fnErr = err
			return err
		}
		return nil
	}, keys...)
	if fnErr != nil {
		return fnErr
	}
	return wrap("watch", err)
}

func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx).Err())
}

func (s *Store) Close() error {
	return s.client.Close()
}

type tx struct {
	reader
	rtx *redis.Tx
}

func (t *tx) Watch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap("watch", t.rtx.Watch(ctx, keys...).Err())
}

func (t *tx) Exec(ctx context.Context, fn kv.BatchFunc) error {
	return execTx(ctx, t.rtx, fn)
}

type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

func execTx(ctx context.Context, c txPipeliner, fn kv.BatchFunc) error {
	var fnErr error
	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if err := fn(&batch{ctx: ctx, p: p}); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return wrap("exec", err)
}

// wrap maps driver errors onto the common taxonomy.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return common.ErrorNotFound
	case errors.Is(err, redis.TxFailedErr):
		return common.ErrConflict
	default:
		return &common.StoreError{Op: op, Err: err}
	}
}
