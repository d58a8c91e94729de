// Package indexes is the Index Maintainer: the waitlist and active-user
// ordered sets, the token and screen-name maps, the super-user map and the
// stats counters. Writes are queued into a caller's batch so an index change
// always commits together with the record change it mirrors.
package indexes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
)

// Counter names a stats field.
type Counter string

const (
	NumWaitlist    Counter = "numWaitlist"
	NumInvited     Counter = "numInvited"
	NumUnConfirmed Counter = "numUnConfirmed"
	NumUsers       Counter = "numUsers"
)

// Counters lists every stats field in dashboard order.
var Counters = []Counter{NumWaitlist, NumInvited, NumUnConfirmed, NumUsers}

type Repository interface {
	// Ordered sets (Waitlist, Users).
	Members(ctx context.Context, set keys.Index) ([]string, error)
	Score(ctx context.Context, set keys.Index, member string) (time.Time, error)
	IsMember(ctx context.Context, set keys.Index, member string) (bool, error)
	Cardinality(ctx context.Context, set keys.Index) (int64, error)
	// CountSince counts members scored at or after since.
	CountSince(ctx context.Context, set keys.Index, since time.Time) (int64, error)

	// Maps (Invited, Unconfirmed, ScreenNames, ResetPasswords, RememberMe,
	// SuperUsers).
	Lookup(ctx context.Context, m keys.Index, key string) (string, error)
	Values(ctx context.Context, m keys.Index) ([]string, error)
	Len(ctx context.Context, m keys.Index) (int64, error)

	Stats(ctx context.Context) (models.Stats, error)

	Key(i keys.Index) string

	QueueAddMember(b kv.Batch, set keys.Index, member string, at time.Time)
	QueueRemoveMember(b kv.Batch, set keys.Index, member string)
	QueueMapSet(b kv.Batch, m keys.Index, key, value string)
	QueueMapDelete(b kv.Batch, m keys.Index, key string)
	QueueIncrement(b kv.Batch, c Counter, delta int64)
	QueueSetStats(b kv.Batch, s models.Stats)
}
