package redis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/storage"
	"github.com/giantswarm/mcp-authserver/storage/storagetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cfg.Logger = discardLogger()
	s := NewWithClient(client, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestTokenStoreContract(t *testing.T) {
	storagetest.RunTokenStoreTests(t, func(t *testing.T) storage.TokenStore {
		s, _ := newTestStore(t, Config{})
		return s
	})
}

func TestRegistrationStoreContract(t *testing.T) {
	storagetest.RunRegistrationStoreTests(t, func(t *testing.T) storagetest.RegistrationStore {
		s, _ := newTestStore(t, Config{})
		return s
	})
}

func TestTokenStoreContract_Encrypted(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	storagetest.RunTokenStoreTests(t, func(t *testing.T) storage.TokenStore {
		s, _ := newTestStore(t, Config{Encryptor: enc})
		return s
	})
}

func TestEncryptionAtRest(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	s, mr := newTestStore(t, Config{Encryptor: enc, KeyPrefix: "test:"})
	ctx := context.Background()
	require.NoError(t, s.SaveGrant(ctx, storagetest.Grant("g1", "alice")))

	raw, err := mr.Get("test:grant:g1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "alice")

	got, err := s.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestCodeExpiresWithTTL(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	code := storagetest.Code("c1", "g1")
	require.NoError(t, s.SaveCode(ctx, code, 2*time.Minute))
	assert.Equal(t, 2*time.Minute, s.client.TTL(ctx, DefaultKeyPrefix+"code:c1").Val())

	mr.FastForward(2*time.Minute + time.Second)
	_, err := s.GetCode(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
}

func TestExpiredCodeIsAbsent(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })
	code := storagetest.Code("c1", "g1")
	code.ExpiresAt = now.Add(time.Minute)
	require.NoError(t, s.SaveCode(ctx, code, time.Hour))

	now = now.Add(time.Minute)
	_, err := s.ConsumeCode(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
}

func TestListRefreshTokensPrunesExpired(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.SaveRefreshToken(ctx, storagetest.RefreshToken("r1", "g1", "alice")))
	mr.FastForward(24*time.Hour + refreshTokenRetention + time.Minute)

	tokens, err := s.ListRefreshTokens(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	member, err := s.client.SIsMember(ctx, DefaultKeyPrefix+"idx:user-tokens:alice", "r1").Result()
	require.NoError(t, err)
	assert.False(t, member)
}

func TestDeleteGrantClearsIndexes(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.SaveGrant(ctx, storagetest.Grant("g1", "alice")))
	require.NoError(t, s.SaveRefreshToken(ctx, storagetest.RefreshToken("r1", "g1", "alice")))
	require.NoError(t, s.DeleteGrant(ctx, "g1"))

	for _, key := range mr.Keys() {
		assert.False(t, strings.Contains(key, "g1") || strings.Contains(key, "r1"), "leftover key %s", key)
	}
	tokens, err := s.ListRefreshTokens(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), Config{Address: mr.Addr(), Logger: discardLogger()})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorContains(t, err, "address is required")

	_, err = New(context.Background(), Config{
		Address:        "127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
		Logger:         discardLogger(),
	})
	assert.ErrorContains(t, err, "failed to connect to redis")
}

// failingSRem makes every SREM fail while other commands pass through.
type failingSRem struct{}

func (failingSRem) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (failingSRem) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "srem" {
			err := errors.New("READONLY replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failingSRem) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestListRefreshTokensLogsPruneFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	var logs bytes.Buffer
	s := NewWithClient(client, Config{
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.SaveRefreshToken(ctx, storagetest.RefreshToken("r1", "g1", "alice")))
	mr.FastForward(24*time.Hour + refreshTokenRetention + time.Minute)
	client.AddHook(failingSRem{})

	tokens, err := s.ListRefreshTokens(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, tokens)
	assert.Contains(t, logs.String(), "Failed to prune refresh token index")
	assert.Contains(t, logs.String(), "READONLY replica")
}
