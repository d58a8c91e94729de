// Package app wires a Drawbridge process: it opens the store client once at
// startup, builds the services around it and tears everything down on Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/drawbridge/internal/config"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/export"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/logging"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
	"github.com/dmitrijs2005/drawbridge/internal/services"
	"github.com/dmitrijs2005/drawbridge/internal/storage/redisstore"
)

var (
	openStore = func(ctx context.Context, opts redisstore.Options) (kv.Store, error) {
		return redisstore.Open(ctx, opts)
	}

	dialAMQP = func(url, queue string) (sinkCloser, error) {
		return events.DialAMQP(url, queue)
	}
)

type sinkCloser interface {
	events.Sink
	io.Closer
}

type App struct {
	config *config.Config
	logger logging.Logger
	store  kv.Store
	sink   sinkCloser

	Lifecycle *services.LifecycleService
	Tokens    *services.TokenService
	Admin     *services.AdminService
	Exporter  *export.Exporter
}

// NewApp connects to the store, and to the event broker when one is
// configured. Logs go to logOut.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	store, err := openStore(ctx, redisstore.Options{
		Addr:             cfg.RedisAddr,
		Password:         cfg.RedisPassword,
		DB:               cfg.RedisDB,
		DialTimeout:      cfg.DialTimeout,
		OperationTimeout: cfg.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	a := &App{config: cfg, logger: logger, store: store}

	var sink events.Sink = events.Discard{}
	if cfg.AMQPURL != "" {
		s, err := dialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("event sink init error: %w", err)
		}
		a.sink = s
		sink = s
	}

	m := repomanager.NewKVRepositoryManager(cfg.KeyPrefix)
	opts := []services.Option{
		services.WithLogger(logger),
		services.WithEventSink(sink),
	}
	a.Lifecycle = services.NewLifecycleService(store, m, opts...)
	a.Tokens = services.NewTokenService(store, m, opts...)
	a.Admin = services.NewAdminService(store, m, opts...)
	a.Exporter = export.New(a.Admin, export.Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3BaseEndpoint,
		AccessKey: cfg.S3RootUser,
		SecretKey: cfg.S3RootPassword,
		Prefix:    cfg.S3Prefix,
	})

	logger.Debug(ctx, "app ready", "redis", cfg.RedisAddr, "events", cfg.AMQPURL != "")
	return a, nil
}

func (a *App) Logger() logging.Logger {
	return a.logger
}

// Close releases the event sink and the store client.
func (a *App) Close() error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
