package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	oauth "github.com/giantswarm/mcp-authserver"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
)

// Environment variables that override the configuration file.
const (
	EnvListen            = "AUTHSERVER_LISTEN"
	EnvIssuer            = "AUTHSERVER_ISSUER"
	EnvSigningJWK        = "AUTHSERVER_SIGNING_JWK"
	EnvSigningKeyFile    = "AUTHSERVER_SIGNING_KEY_FILE"
	EnvEncryptionKey     = "AUTHSERVER_ENCRYPTION_KEY"
	EnvKVBackend         = "AUTHSERVER_KV"
	EnvRedisAddress      = "AUTHSERVER_REDIS_ADDRESS"
	EnvRedisPassword     = "AUTHSERVER_REDIS_PASSWORD"
	EnvBoltPath          = "AUTHSERVER_BOLT_PATH"
	EnvSQLDriver         = "AUTHSERVER_SQL"
	EnvSQLDSN            = "AUTHSERVER_SQL_DSN"
	EnvLogLevel          = "AUTHSERVER_LOG_LEVEL"
	EnvMetricsEnabled    = "AUTHSERVER_METRICS_ENABLED"
	EnvAllowInsecureHTTP = "AUTHSERVER_ALLOW_INSECURE_HTTP"
)

// Storage backends.
const (
	KVMemory = "memory"
	KVRedis  = "redis"
	KVBolt   = "bolt"

	SQLNone     = "none"
	SQLSQLite   = "sqlite"
	SQLPostgres = "postgres"
)

// Config is the process configuration, read from YAML and overlaid by the
// AUTHSERVER_* environment variables.
type Config struct {
	Listen            string        `yaml:"listen"`
	Issuer            string        `yaml:"issuer"`
	LoginURL          string        `yaml:"loginURL"`
	ErrorURL          string        `yaml:"errorURL"`
	UserInfoURL       string        `yaml:"userInfoURL"`
	Audiences         []string      `yaml:"audiences"`
	AllowInsecureHTTP bool          `yaml:"allowInsecureHTTP"`
	Tokens            TokenConfig   `yaml:"tokens"`
	SigningKey        SigningConfig `yaml:"signingKey"`
	Storage           StorageConfig `yaml:"storage"`
	RateLimit         RateConfig    `yaml:"rateLimit"`
	Proxy             ProxyConfig   `yaml:"proxy"`
	Audit             bool          `yaml:"audit"`
	Telemetry         TelemetryConf `yaml:"telemetry"`
	Logging           LoggingConfig `yaml:"logging"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// TokenConfig holds lifetimes. Zero values use the server defaults.
type TokenConfig struct {
	AuthorizationCodeTTL time.Duration `yaml:"authorizationCodeTTL"`
	AccessTokenTTL       time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL      time.Duration `yaml:"refreshTokenTTL"`
	ClockSkew            time.Duration `yaml:"clockSkew"`
	PasswordIterations   int           `yaml:"passwordIterations"`
}

// SigningConfig selects the ES512 signing key. JWK wins over File; Generate
// is for development only.
type SigningConfig struct {
	JWK      string `yaml:"jwk"`
	File     string `yaml:"file"`
	Generate bool   `yaml:"generate"`
	KeyID    string `yaml:"keyID"`
}

// StorageConfig selects the backends.
type StorageConfig struct {
	KV            string      `yaml:"kv"`
	SQL           string      `yaml:"sql"`
	DSN           string      `yaml:"dsn"`
	EncryptionKey string      `yaml:"encryptionKey"`
	Redis         RedisConfig `yaml:"redis"`
	Bolt          BoltConfig  `yaml:"bolt"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
	TLS       bool   `yaml:"tls"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

type RateConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type ProxyConfig struct {
	Trust bool `yaml:"trust"`
	Count int  `yaml:"count"`
}

type TelemetryConf struct {
	Metrics      bool   `yaml:"metrics"`
	Tracing      bool   `yaml:"tracing"`
	ServiceName  string `yaml:"serviceName"`
	LogClientIPs bool   `yaml:"logClientIPs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads envFile (when set) into the environment, reads path (when
// set) with ${VAR} expansion, applies the environment overrides and
// defaults, and validates the result.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setBool := func(dst *bool, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString(&c.Listen, EnvListen)
	setString(&c.Issuer, EnvIssuer)
	setString(&c.SigningKey.JWK, EnvSigningJWK)
	setString(&c.SigningKey.File, EnvSigningKeyFile)
	setString(&c.Storage.EncryptionKey, EnvEncryptionKey)
	setString(&c.Storage.KV, EnvKVBackend)
	setString(&c.Storage.Redis.Address, EnvRedisAddress)
	setString(&c.Storage.Redis.Password, EnvRedisPassword)
	setString(&c.Storage.Bolt.Path, EnvBoltPath)
	setString(&c.Storage.SQL, EnvSQLDriver)
	setString(&c.Storage.DSN, EnvSQLDSN)
	setString(&c.Logging.Level, EnvLogLevel)

	if err := setBool(&c.Telemetry.Metrics, EnvMetricsEnabled); err != nil {
		return err
	}
	return setBool(&c.AllowInsecureHTTP, EnvAllowInsecureHTTP)
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	c.Storage.KV = strings.ToLower(c.Storage.KV)
	if c.Storage.KV == "" {
		c.Storage.KV = KVMemory
	}
	c.Storage.SQL = strings.ToLower(c.Storage.SQL)
	if c.Storage.SQL == "" {
		c.Storage.SQL = SQLNone
	}
	if c.Storage.Bolt.Path == "" {
		c.Storage.Bolt.Path = "authserver.db"
	}
	if c.SigningKey.KeyID == "" {
		c.SigningKey.KeyID = "authserver"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mcp-authserver"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the issuer and the backend selection. The signing key is
// checked when serving.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	switch c.Storage.KV {
	case KVMemory, KVBolt:
	case KVRedis:
		if c.Storage.Redis.Address == "" {
			return errors.New("storage.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown kv backend %q", c.Storage.KV)
	}
	switch c.Storage.SQL {
	case SQLNone:
	case SQLSQLite, SQLPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s backend", c.Storage.SQL)
		}
	default:
		return fmt.Errorf("unknown sql backend %q", c.Storage.SQL)
	}
	return nil
}

// HandlerConfig maps the process configuration onto the handler
// configuration.
func (c *Config) HandlerConfig() oauth.Config {
	return oauth.Config{
		Server: server.Config{
			Issuer:               c.Issuer,
			LoginURL:             c.LoginURL,
			ErrorURL:             c.ErrorURL,
			UserInfoURL:          c.UserInfoURL,
			Audiences:            c.Audiences,
			AuthorizationCodeTTL: seconds(c.Tokens.AuthorizationCodeTTL),
			AccessTokenTTL:       seconds(c.Tokens.AccessTokenTTL),
			RefreshTokenTTL:      seconds(c.Tokens.RefreshTokenTTL),
			ClockSkewGracePeriod: seconds(c.Tokens.ClockSkew),
			PasswordIterations:   c.Tokens.PasswordIterations,
			AllowInsecureHTTP:    c.AllowInsecureHTTP,
		},
		RateLimit: oauth.RateLimitConfig{
			Rate:  c.RateLimit.Rate,
			Burst: c.RateLimit.Burst,
		},
		Proxy: security.ProxyConfig{
			Trust: c.Proxy.Trust,
			Count: c.Proxy.Count,
		},
		EnableAuditLogging: c.Audit,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
