package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/server/crypto"
)

// DefaultUserInfoScope is the reserved scope of the resource owner API.
const DefaultUserInfoScope = "openid"

// applySecureDefaults returns a copy of config with defaults filled in.
func applySecureDefaults(config *Config) *Config {
	c := *config
	c.Issuer = strings.TrimRight(c.Issuer, "/")
	c.Audiences = append([]string(nil), config.Audiences...)

	applyTimeDefaults(&c)
	applyEndpointDefaults(&c)

	if c.PasswordIterations <= 0 {
		c.PasswordIterations = crypto.DefaultPasswordIterations
	}
	return &c
}

// applyTimeDefaults sets default values for time-based configuration.
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = 120 // 2 minutes
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = 7776000 // 90 days
	}
	if config.ClockSkewGracePeriod <= 0 {
		config.ClockSkewGracePeriod = 5
	}
}

// applyEndpointDefaults derives the auxiliary URLs from the issuer.
func applyEndpointDefaults(config *Config) {
	if config.LoginURL == "" {
		config.LoginURL = config.Issuer + "/login"
	}
	if config.ErrorURL == "" {
		config.ErrorURL = config.Issuer + "/error"
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = config.Issuer + "/me"
	}
	if config.UserInfoScope == "" {
		config.UserInfoScope = DefaultUserInfoScope
	}
}

// validateConfig checks the issuer and the configured audiences.
func validateConfig(config *Config, logger *slog.Logger) error {
	if config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if err := validateHTTPSEnforcement(config, logger); err != nil {
		return err
	}
	for _, aud := range config.Audiences {
		u, err := url.Parse(aud)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("invalid audience %q: must be an absolute http(s) URL", aud)
		}
	}
	return nil
}

// validateHTTPSEnforcement requires an https issuer except on loopback hosts
// or when AllowInsecureHTTP is set.
func validateHTTPSEnforcement(config *Config, logger *slog.Logger) error {
	issuerURL, err := url.Parse(config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Host == "" {
		return fmt.Errorf("invalid issuer URL %q: must be absolute", config.Issuer)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}

	hostname := issuerURL.Hostname()
	if util.IsLoopbackHostname(hostname) {
		if !config.AllowInsecureHTTP {
			logger.Warn("Running OAuth over HTTP on localhost",
				"issuer", config.Issuer,
				"to_suppress", "Set AllowInsecureHTTP=true in Config")
		}
		return nil
	}

	if !config.AllowInsecureHTTP {
		return fmt.Errorf(
			"issuer must use HTTPS (got %s://%s); set AllowInsecureHTTP=true to override",
			issuerURL.Scheme,
			hostname,
		)
	}

	logger.Error("Running OAuth server over HTTP",
		"issuer", config.Issuer,
		"hostname", hostname,
		"risk", "tokens and credentials exposed to network sniffing")
	return nil
}
