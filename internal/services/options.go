package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/logging"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
	"github.com/google/uuid"
)

// Option customizes a service.
type Option func(*core)

// WithClock sets the time source used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *core) { c.now = now }
}

// WithTokenGenerator sets how opaque invite and confirmation tokens are made.
func WithTokenGenerator(gen func() string) Option {
	return func(c *core) { c.newToken = gen }
}

// WithEventSink sets where committed transitions are reported.
func WithEventSink(s events.Sink) Option {
	return func(c *core) { c.sink = s }
}

func WithLogger(l logging.Logger) Option {
	return func(c *core) { c.logger = l }
}

// core holds what every service shares: the injected store handle, the
// repository manager and the ambient collaborators.
type core struct {
	store       kv.Store
	repomanager repomanager.RepositoryManager
	now         func() time.Time
	newToken    func() string
	sink        events.Sink
	logger      logging.Logger
}

func newCore(store kv.Store, m repomanager.RepositoryManager, opts []Option) core {
	c := core{
		store:       store,
		repomanager: m,
		now:         time.Now,
		newToken:    uuid.NewString,
		sink:        events.Discard{},
		logger:      logging.Nop(),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c *core) emit(ctx context.Context, kind events.Kind, email string, attrs map[string]string) {
	e := events.Event{Kind: kind, Email: email, At: c.now().UTC(), Attrs: attrs}
	if err := c.sink.Record(ctx, e); err != nil {
		c.logger.Warn(ctx, "event sink failed", "kind", kind, "email", email, "error", err)
	}
}

// fail wraps err with the operation name. Store failures are also logged.
func (c *core) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, common.ErrStore) {
		c.logger.Error(ctx, "store failure", "op", op, "error", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// tokenMiss is the error for a token lookup that resolved to nothing. It
// matches both common.ErrInvalidToken and common.ErrorNotFound.
func tokenMiss(desc string) error {
	return fmt.Errorf("%s: %w, %w", desc, common.ErrInvalidToken, common.ErrorNotFound)
}

func required(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", common.ErrorValidation, name)
	}
	return nil
}
