package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleConfig = `
listen: ":9090"
issuer: https://auth.example.com
audiences:
  - https://api.example.com
tokens:
  authorizationCodeTTL: 1m
  accessTokenTTL: 30m
  refreshTokenTTL: 720h
  clockSkew: 10s
signingKey:
  file: /etc/authserver/key.json
storage:
  kv: Bolt
  bolt:
    path: /var/lib/authserver/state.db
  sql: sqlite
  dsn: ${TEST_AUTHSERVER_DSN}
rateLimit:
  rate: 5
  burst: 10
proxy:
  trust: true
  count: 2
audit: true
telemetry:
  metrics: true
logging:
  level: debug
  format: text
`

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("TEST_AUTHSERVER_DSN", "file:registrations.db")
	path := writeFile(t, "authserver.yaml", sampleConfig)

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "https://auth.example.com", cfg.Issuer)
	assert.Equal(t, []string{"https://api.example.com"}, cfg.Audiences)
	assert.Equal(t, 30*time.Minute, cfg.Tokens.AccessTokenTTL)
	assert.Equal(t, KVBolt, cfg.Storage.KV, "backend names are case-insensitive")
	assert.Equal(t, "/var/lib/authserver/state.db", cfg.Storage.Bolt.Path)
	assert.Equal(t, SQLSQLite, cfg.Storage.SQL)
	assert.Equal(t, "file:registrations.db", cfg.Storage.DSN, "${VAR} is expanded")
	assert.True(t, cfg.Telemetry.Metrics)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	hc := cfg.HandlerConfig()
	assert.Equal(t, int64(60), hc.Server.AuthorizationCodeTTL)
	assert.Equal(t, int64(1800), hc.Server.AccessTokenTTL)
	assert.Equal(t, int64(2592000), hc.Server.RefreshTokenTTL)
	assert.Equal(t, int64(10), hc.Server.ClockSkewGracePeriod)
	assert.Equal(t, 5.0, hc.RateLimit.Rate)
	assert.Equal(t, 10, hc.RateLimit.Burst)
	assert.True(t, hc.Proxy.Trust)
	assert.Equal(t, 2, hc.Proxy.Count)
	assert.True(t, hc.EnableAuditLogging)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(EnvIssuer, "https://auth.example.com")

	cfg, err := LoadConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, KVMemory, cfg.Storage.KV)
	assert.Equal(t, SQLNone, cfg.Storage.SQL)
	assert.Equal(t, "authserver", cfg.SigningKey.KeyID)
	assert.Equal(t, "mcp-authserver", cfg.Telemetry.ServiceName)

	hc := cfg.HandlerConfig()
	assert.Zero(t, hc.Server.AccessTokenTTL, "unset lifetimes use the server defaults")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "authserver.yaml", `
issuer: https://file.example.com
storage:
  kv: memory
`)
	t.Setenv(EnvIssuer, "https://env.example.com")
	t.Setenv(EnvKVBackend, "redis")
	t.Setenv(EnvRedisAddress, "localhost:6379")
	t.Setenv(EnvMetricsEnabled, "true")

	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Issuer)
	assert.Equal(t, KVRedis, cfg.Storage.KV)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Address)
	assert.True(t, cfg.Telemetry.Metrics)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "AUTHSERVER_ISSUER=https://dotenv.example.com\nAUTHSERVER_LOG_LEVEL=warn\n")
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvIssuer)
		_ = os.Unsetenv(EnvLogLevel)
	})

	cfg, err := LoadConfig("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "https://dotenv.example.com", cfg.Issuer)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing issuer",
			yaml:    "listen: \":8080\"\n",
			wantErr: "issuer is required",
		},
		{
			name:    "unknown kv",
			yaml:    "issuer: https://a.example.com\nstorage:\n  kv: etcd\n",
			wantErr: `unknown kv backend "etcd"`,
		},
		{
			name:    "redis without address",
			yaml:    "issuer: https://a.example.com\nstorage:\n  kv: redis\n",
			wantErr: "storage.redis.address is required",
		},
		{
			name:    "sql without dsn",
			yaml:    "issuer: https://a.example.com\nstorage:\n  sql: postgres\n",
			wantErr: "storage.dsn is required for the postgres backend",
		},
		{
			name:    "unknown sql",
			yaml:    "issuer: https://a.example.com\nstorage:\n  sql: mysql\n",
			wantErr: `unknown sql backend "mysql"`,
		},
		{
			name:    "invalid yaml",
			yaml:    "issuer: [unterminated\n",
			wantErr: "failed to parse config",
		},
		{
			name:    "invalid bool",
			yaml:    "issuer: https://a.example.com\n",
			env:     map[string]string{EnvMetricsEnabled: "sometimes"},
			wantErr: "invalid " + EnvMetricsEnabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeFile(t, "authserver.yaml", tt.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFiles(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.ErrorContains(t, err, "failed to read config")

	_, err = LoadConfig("", filepath.Join(t.TempDir(), "absent.env"))
	require.ErrorContains(t, err, "failed to load env file")
}
