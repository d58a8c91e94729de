package accounts

import (
	"context"
	"fmt"

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

func (r *KVRepository) Key(email string) string {
	return r.keys.Account(email)
}

func (r *KVRepository) Get(ctx context.Context, email string) (*models.Account, error) {
	m, err := r.h.HGetAll(ctx, r.Key(email))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return Decode(m)
}

func (r *KVRepository) GetField(ctx context.Context, email, field string) (string, error) {
	v, err := r.h.HGet(ctx, r.Key(email), field)
	if err != nil {
		return "", fmt.Errorf("get account field %s: %w", field, err)
	}
	return v, nil
}

func (r *KVRepository) Exists(ctx context.Context, email string) (bool, error) {
	ok, err := r.h.Exists(ctx, r.Key(email))
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return ok, nil
}

// DecodeError is a stored record that exists but no longer decodes.
type DecodeError struct {
	Email string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable account %q: %v", e.Email, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// GetMany fetches the records for emails in order. Emails without a record
// are skipped. Records that fail to decode are skipped too and reported in
// bad, so one broken record does not hide the others.
func (r *KVRepository) GetMany(ctx context.Context, emails []string) (out []*models.Account, bad []*DecodeError, err error) {
	ks := make([]string, len(emails))
	for i, e := range emails {
		ks[i] = r.Key(e)
	}

	maps, err := r.h.HGetAllMany(ctx, ks)
	if err != nil {
		return nil, nil, fmt.Errorf("get accounts: %w", err)
	}

	out = make([]*models.Account, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		a, err := Decode(m)
		if err != nil {
			bad = append(bad, &DecodeError{Email: keys.Normalize(emails[i]), Err: err})
			continue
		}
		out = append(out, a)
	}
	return out, bad, nil
}

func (r *KVRepository) SetFields(ctx context.Context, email string, fields Fields) error {
	if err := r.h.Exec(ctx, func(b kv.Batch) error {
		r.QueueSetFields(b, email, fields)
		return nil
	}); err != nil {
		return fmt.Errorf("set account fields: %w", err)
	}
	return nil
}

func (r *KVRepository) QueueSetFields(b kv.Batch, email string, fields Fields) {
	b.HSet(r.Key(email), fields)
}

func (r *KVRepository) QueueDeleteFields(b kv.Batch, email string, fields ...string) {
	b.HDel(r.Key(email), fields...)
}

// QueueRename moves the whole record from one email key to another.
func (r *KVRepository) QueueRename(b kv.Batch, from, to string) {
	b.Rename(r.Key(from), r.Key(to))
}

// QueueLoad reads the record at its position in the batch, i.e. after the
// writes queued before it.
func (r *KVRepository) QueueLoad(b kv.Batch, email string) kv.MapResult {
	return b.HGetAll(r.Key(email))
}
