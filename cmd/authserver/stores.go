package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
	"github.com/giantswarm/mcp-authserver/storage"
	"github.com/giantswarm/mcp-authserver/storage/bolt"
	"github.com/giantswarm/mcp-authserver/storage/memory"
	"github.com/giantswarm/mcp-authserver/storage/redis"
	"github.com/giantswarm/mcp-authserver/storage/sqlstore"
)

// registry is a store that accepts client, user and API registrations.
type registry interface {
	storage.ClientStore
	storage.UserStore
	storage.APIStore
	SaveClient(ctx context.Context, client *storage.Client) error
	SaveUser(ctx context.Context, user *storage.User) error
	SaveAPI(ctx context.Context, api *storage.API) error
}

type instrumented interface {
	SetInstrumentation(inst *instrumentation.Instrumentation)
}

// backends are the opened storage backends of the process.
type backends struct {
	Stores   server.Stores
	Registry registry

	// checks are run by /healthz, keyed by backend name.
	checks map[string]func(context.Context) error

	instrumented []instrumented
	closers      []func() error
}

// openBackends opens the kv backend for protocol state and, unless sql is
// none, a SQL database for registrations. Without SQL, registrations live in
// the kv backend.
func openBackends(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *backends, err error) {
	b := &backends{checks: make(map[string]func(context.Context) error)}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	var encryptor *security.Encryptor
	if cfg.Storage.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.Storage.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		if encryptor, err = security.NewEncryptor(key); err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
	}

	var kv interface {
		registry
		storage.TokenStore
	}
	switch cfg.Storage.KV {
	case KVMemory:
		if encryptor != nil {
			logger.Warn("Encryption key ignored by the memory backend")
		}
		store := memory.New()
		store.SetLogger(logger)
		b.closers = append(b.closers, func() error { store.Stop(); return nil })
		b.instrumented = append(b.instrumented, store)
		kv = store
	case KVRedis:
		rc := cfg.Storage.Redis
		redisCfg := redis.Config{
			Address:   rc.Address,
			Username:  rc.Username,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
			Encryptor: encryptor,
			Logger:    logger,
		}
		if rc.TLS {
			redisCfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := redis.New(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.instrumented = append(b.instrumented, store)
		b.checks["redis"] = store.Ping
		kv = store
	case KVBolt:
		store, err := bolt.Open(cfg.Storage.Bolt.Path, bolt.Options{Encryptor: encryptor, Logger: logger})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.instrumented = append(b.instrumented, store)
		kv = store
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Storage.KV)
	}

	b.Registry = kv
	if cfg.Storage.SQL != SQLNone {
		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver: cfg.Storage.SQL,
			DSN:    cfg.Storage.DSN,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks["sql"] = db.Ping
		b.Registry = db
	}

	b.Stores = server.Stores{
		Clients:       b.Registry,
		Users:         b.Registry,
		APIs:          b.Registry,
		Codes:         kv,
		Grants:        kv,
		RefreshTokens: kv,
	}
	return b, nil
}

// SetInstrumentation attaches inst to every backend that records spans and
// metrics.
func (b *backends) SetInstrumentation(inst *instrumentation.Instrumentation) {
	for _, s := range b.instrumented {
		s.SetInstrumentation(inst)
	}
}

// Check runs the health checks and returns the failures by backend name.
func (b *backends) Check(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

// Close closes the backends in reverse order of opening.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
