package services

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
	"github.com/dmitrijs2005/drawbridge/internal/storage/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

// fakeClock advances one second per reading.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type seqTokens struct {
	n int
}

func (g *seqTokens) Next() string {
	g.n++
	return fmt.Sprintf("tok-%d", g.n)
}

type env struct {
	mr        *miniredis.Miniredis
	store     *redisstore.Store
	other     *redis.Client
	clock     *fakeClock
	sink      *events.Recorder
	lifecycle *LifecycleService
	tokens    *TokenService
	admin     *AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, func(s kv.Store) kv.Store { return s })
}

func newEnvWithStore(t *testing.T, wrap func(kv.Store) kv.Store) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = store.Close()
		_ = other.Close()
	})

	e := &env{
		mr:    mr,
		store: store,
		other: other,
		clock: &fakeClock{t: t0},
		sink:  &events.Recorder{},
	}
	gen := &seqTokens{}
	opts := []Option{WithClock(e.clock.Now), WithTokenGenerator(gen.Next), WithEventSink(e.sink)}
	m := repomanager.NewKVRepositoryManager("")
	s := wrap(store)
	e.lifecycle = NewLifecycleService(s, m, opts...)
	e.tokens = NewTokenService(s, m, opts...)
	e.admin = NewAdminService(s, m, opts...)
	return e
}

// snapshot dumps every key so tests can assert nothing changed.
func (e *env) snapshot(t *testing.T) string {
	t.Helper()
	return e.mr.Dump()
}

func (e *env) stats(t *testing.T) models.Stats {
	t.Helper()
	st, err := e.admin.GetDashboardValues(context.Background())
	require.NoError(t, err)
	return st
}

func (e *env) zmembers(t *testing.T, key string) []string {
	t.Helper()
	if !e.mr.Exists(key) {
		return nil
	}
	m, err := e.mr.ZMembers(key)
	require.NoError(t, err)
	return m
}

func (e *env) hkeys(t *testing.T, key string) []string {
	t.Helper()
	if !e.mr.Exists(key) {
		return nil
	}
	k, err := e.mr.HKeys(key)
	require.NoError(t, err)
	sort.Strings(k)
	return k
}

// waitlisted adds email to the waitlist at t0 plus offset seconds.
func (e *env) waitlisted(t *testing.T, email string, offset int) {
	t.Helper()
	at := t0.Add(time.Duration(offset) * time.Second)
	require.NoError(t, e.lifecycle.AddToWaitlist(context.Background(), email, "10.0.0.1", at, "/landing"))
}

func (e *env) invited(t *testing.T, email string, offset int) string {
	t.Helper()
	e.waitlisted(t, email, offset)
	tok, err := e.lifecycle.InviteSignup(context.Background(), email)
	require.NoError(t, err)
	return tok
}

func (e *env) registered(t *testing.T, email string, offset int) *models.Account {
	t.Helper()
	tok := e.invited(t, email, offset)
	a, err := e.lifecycle.CreateUnactivatedUser(context.Background(), Registration{
		InviteToken:  tok,
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return a
}

func (e *env) activated(t *testing.T, email string, offset int) *models.Account {
	t.Helper()
	a := e.registered(t, email, offset)
	out, err := e.lifecycle.ActivateUser(context.Background(), a.ConfirmationToken)
	require.NoError(t, err)
	return out
}

// meddlingStore runs meddle after the watch is set and before the body.
type meddlingStore struct {
	kv.Store
	meddle func(ctx context.Context)
}

func (m *meddlingStore) Watch(ctx context.Context, fn kv.TxFunc, keys ...string) error {
	return m.Store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		if m.meddle != nil {
			m.meddle(ctx)
		}
		return fn(ctx, tx)
	}, keys...)
}

type failingSink struct{}

func (failingSink) Record(context.Context, events.Event) error {
	return fmt.Errorf("broker down")
}
