package bolt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/storage"
)

var (
	bucketClients       = []byte("clients")
	bucketUsers         = []byte("users")
	bucketAPIs          = []byte("apis")
	bucketCodes         = []byte("codes")
	bucketGrants        = []byte("grants")
	bucketRefreshTokens = []byte("refresh_tokens")

	allBuckets = [][]byte{bucketClients, bucketUsers, bucketAPIs, bucketCodes, bucketGrants, bucketRefreshTokens}
)

const (
	// DefaultCleanupInterval is how often expired records are removed.
	DefaultCleanupInterval = 5 * time.Minute

	// refreshTokenRetention keeps expired refresh token records around so a
	// late replay is still recognised.
	refreshTokenRetention = time.Hour

	openTimeout = time.Second
)

// Options configures a Store.
type Options struct {
	// Encryptor seals records at rest. Nil stores plain JSON.
	Encryptor *security.Encryptor

	// CleanupInterval defaults to DefaultCleanupInterval. A negative value
	// disables the background cleanup.
	CleanupInterval time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a bbolt-backed implementation of all storage interfaces.
type Store struct {
	db        *bbolt.DB
	encryptor *security.Encryptor
	logger    *slog.Logger
	now       func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore       = (*Store)(nil)
	_ storage.UserStore         = (*Store)(nil)
	_ storage.APIStore          = (*Store)(nil)
	_ storage.CodeStore         = (*Store)(nil)
	_ storage.GrantStore        = (*Store)(nil)
	_ storage.RefreshTokenStore = (*Store)(nil)
)

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:          db,
		encryptor:   opts.Encryptor,
		logger:      logger,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	interval := opts.CleanupInterval
	if interval == 0 {
		interval = DefaultCleanupInterval
	}
	if interval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(interval)
	}

	logger.Info("Opened bolt storage", "path", path)
	return s, nil
}

// Close stops the cleanup loop and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	s.wg.Wait()
	return s.db.Close()
}

// SetClock replaces the time source used for expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Cleanup(); err != nil {
				s.logger.Warn("Bolt cleanup failed", "error", err)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Cleanup removes expired codes and refresh tokens past their retention.
// It returns the number of records removed.
func (s *Store) Cleanup() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var stale [][]byte
		err := tx.Bucket(bucketCodes).ForEach(func(k, v []byte) error {
			var code storage.AuthorizationCode
			if err := s.decode(v, &code); err != nil || code.Expired(now) {
				stale = append(stale, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := deleteKeys(tx.Bucket(bucketCodes), stale); err != nil {
			return err
		}
		removed += len(stale)

		stale = stale[:0]
		err = tx.Bucket(bucketRefreshTokens).ForEach(func(k, v []byte) error {
			var token storage.RefreshToken
			if err := s.decode(v, &token); err != nil {
				stale = append(stale, k)
				return nil
			}
			if !token.ExpiresAt.IsZero() && now.After(token.ExpiresAt.Add(refreshTokenRetention)) {
				stale = append(stale, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		removed += len(stale)
		return deleteKeys(tx.Bucket(bucketRefreshTokens), stale)
	})
	if removed > 0 && err == nil {
		s.logger.Debug("Cleaned up expired entries", "count", removed)
	}
	return removed, err
}

// deleteKeys removes keys collected during a ForEach, which must not modify
// the bucket itself.
func deleteKeys(b *bbolt.Bucket, keys [][]byte) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Record Helpers
// ============================================================

func (s *Store) decode(data []byte, v any) error {
	return storage.DecodeRecord(data, v, s.encryptor)
}

func (s *Store) put(tx *bbolt.Tx, bucket []byte, key string, v any) error {
	data, err := storage.EncodeRecord(v, s.encryptor)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// get decodes the record at key into v, returning notFound when absent.
func (s *Store) get(tx *bbolt.Tx, bucket []byte, key string, v any, notFound error) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return notFound
	}
	return s.decode(data, v)
}

func (s *Store) view(ctx context.Context, operation string, fn func(tx *bbolt.Tx) error) error {
	return s.observe(ctx, operation, func() error { return s.db.View(fn) })
}

func (s *Store) update(ctx context.Context, operation string, fn func(tx *bbolt.Tx) error) error {
	return s.observe(ctx, operation, func() error { return s.db.Update(fn) })
}

// ============================================================
// Instrumentation Helpers
// ============================================================

func (s *Store) observe(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "storage."+operation,
			trace.WithAttributes(
				attribute.String(instrumentation.AttrStorageOperation, operation),
				attribute.String(instrumentation.AttrStorageType, "bolt"),
			))
		defer span.End()
	}

	startTime := time.Now()
	err := fn()
	if s.instrumentation == nil {
		return err
	}

	result := instrumentation.ResultSuccess
	if err != nil && !storage.IsNotFound(err) {
		result = instrumentation.ResultFailure
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(startTime).Milliseconds()))
	return err
}
