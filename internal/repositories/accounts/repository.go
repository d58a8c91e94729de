package accounts

import (
	"context"

	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
)

// Repository is the Account Record Store. Reads go through the handle the
// repository was built on; Queue* methods add commands to a caller's batch
// so record writes can join a larger atomic group.
type Repository interface {
	Get(ctx context.Context, email string) (*models.Account, error)
	GetField(ctx context.Context, email, field string) (string, error)
	Exists(ctx context.Context, email string) (bool, error)
	GetMany(ctx context.Context, emails []string) ([]*models.Account, []*DecodeError, error)
	SetFields(ctx context.Context, email string, fields Fields) error

	Key(email string) string
	QueueSetFields(b kv.Batch, email string, fields Fields)
	QueueDeleteFields(b kv.Batch, email string, fields ...string)
	QueueRename(b kv.Batch, from, to string)
	QueueLoad(b kv.Batch, email string) kv.MapResult
}
