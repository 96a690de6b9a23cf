// Package app assembles the fetch, cache and diagnostics stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/simple-wcs/internal/cache/doccache"
	"github.com/mohammed-shakir/simple-wcs/internal/cache/redisstore"
	"github.com/mohammed-shakir/simple-wcs/internal/core/config"
	"github.com/mohammed-shakir/simple-wcs/internal/core/crs"
	"github.com/mohammed-shakir/simple-wcs/internal/core/diag"
	"github.com/mohammed-shakir/simple-wcs/internal/core/executor"
	"github.com/mohammed-shakir/simple-wcs/internal/core/health"
	"github.com/mohammed-shakir/simple-wcs/internal/core/httpclient"
	"github.com/mohammed-shakir/simple-wcs/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/simple-wcs/internal/session"
	"github.com/mohammed-shakir/simple-wcs/internal/wcsevents"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Fetcher  executor.Fetcher
	Resolver *crs.Resolver
	Sink     diag.Sink
	Checks   map[string]health.Check

	// Invalidator is set when invalidation is enabled; the caller runs Start.
	Invalidator *kafkaconsumer.Consumer

	closers []func() error
}

// New builds the stack. A Redis tier that cannot be reached is skipped with a
// warning; an events producer that cannot be created is an error.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Resolver: crs.NewResolver(nil),
		Checks:   map[string]health.Check{},
	}

	exec := executor.New(logger, httpclient.NewOutbound(cfg.HTTPTimeout))
	a.Fetcher = exec

	if cfg.Cache.Enabled {
		opts := []doccache.Option{
			doccache.WithLogger(logger),
			doccache.WithOpTimeout(cfg.Cache.OpTimeout),
		}
		if cfg.Cache.RedisAddr != "" {
			rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
			if err != nil {
				logger.Warn("redis tier disabled", "addr", cfg.Cache.RedisAddr, "err", err)
			} else {
				opts = append(opts, doccache.WithRemote(rc))
				a.Checks["redis"] = rc.Ping
				a.closers = append(a.closers, rc.Close)
			}
		}
		c, err := doccache.New(cfg.Cache.LRUSize, cfg.Cache.TTL, opts...)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("document cache: %w", err)
		}
		cached := doccache.NewFetcher(exec, c)
		a.Fetcher = cached

		if cfg.Invalidation.Enabled {
			a.Invalidator = kafkaconsumer.New(kafkaconsumer.Config{
				Brokers: cfg.Events.BrokerList(),
				Topic:   cfg.Invalidation.Topic,
				GroupID: cfg.Invalidation.GroupID,
			}, logger, cached)
		}
	}

	sinks := []diag.Sink{diag.SlogSink(logger)}
	if cfg.Events.Enabled {
		pub, err := wcsevents.NewPublisher(cfg.Events.BrokerList(), cfg.Events.Topic, cfg.Events.Queue,
			wcsevents.WithLogger(logger),
			wcsevents.WithResolver(a.Resolver),
			wcsevents.WithResolution(cfg.Events.H3Res),
		)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
		a.closers = append(a.closers, pub.Close)
	}
	a.Sink = diag.Multi(sinks...)
	return a, nil
}

// NewSession returns an unconnected session sharing this stack.
func (a *App) NewSession() *session.Session {
	return session.New(a.Fetcher,
		session.WithResolver(a.Resolver),
		session.WithSink(a.Sink),
		session.WithLogger(a.Logger),
	)
}

// Close releases resources in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
