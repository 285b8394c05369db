package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

// EnvUserPassword supplies the password of "register user" when the flag is
// not given, keeping it out of the process list.
const EnvUserPassword = "AUTHSERVER_USER_PASSWORD"

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register clients, users and APIs in the configured registration store",
	}
	cmd.AddCommand(
		newRegisterClientCmd(opts),
		newRegisterUserCmd(opts),
		newRegisterAPICmd(opts),
	)
	return cmd
}

// withRegistry opens the configured backends, runs fn against the
// registration store and closes them again.
func withRegistry(ctx context.Context, opts *rootOptions, fn func(context.Context, registry) error) error {
	cfg, err := LoadConfig(opts.configPath, opts.envFile)
	if err != nil {
		return err
	}
	if cfg.Storage.KV == KVMemory && cfg.Storage.SQL == SQLNone {
		return errors.New("registrations need a persistent backend: configure storage.sql or a redis or bolt kv backend")
	}
	b, err := openBackends(ctx, cfg, newLogger(cfg.Logging))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b.Registry)
}

func newRegisterClientCmd(opts *rootOptions) *cobra.Command {
	client := &storage.Client{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Register a client with its redirect URI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(cmd.Context(), opts, func(ctx context.Context, r registry) error {
				if err := r.SaveClient(ctx, client); err != nil {
					return fmt.Errorf("failed to save client: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered client %s\n", client.ClientID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client.ClientID, "id", "", "Client id")
	cmd.Flags().StringVar(&client.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&client.RedirectURI, "redirect-uri", "", "Exact redirect URI")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("redirect-uri")
	return cmd
}

func newRegisterUserCmd(opts *rootOptions) *cobra.Command {
	var (
		username   string
		password   string
		scope      []string
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register a resource owner and the scope it is entitled to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(EnvUserPassword)
			}
			if password == "" {
				return fmt.Errorf("a password is required: use --password or %s", EnvUserPassword)
			}
			user, err := newUser(username, password, scope, iterations)
			if err != nil {
				return err
			}
			return withRegistry(cmd.Context(), opts, func(ctx context.Context, r registry) error {
				if err := r.SaveUser(ctx, user); err != nil {
					return fmt.Errorf("failed to save user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered user %s\n", user.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (default: $"+EnvUserPassword+")")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "Entitled scope values")
	cmd.Flags().IntVar(&iterations, "iterations", crypto.DefaultPasswordIterations, "PBKDF2 iterations")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newUser hashes password with PBKDF2-SHA512 and a random salt.
func newUser(username, password string, scope []string, iterations int) (*storage.User, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	if iterations <= 0 {
		iterations = crypto.DefaultPasswordIterations
	}
	return &storage.User{
		Username:           username,
		PasswordSalt:       saltHex,
		PasswordHash:       crypto.HashPassword(password, saltHex, iterations),
		PasswordAlgorithm:  crypto.AlgorithmPBKDF2SHA512,
		PasswordIterations: iterations,
		Scope:              scope,
	}, nil
}

func newRegisterAPICmd(opts *rootOptions) *cobra.Command {
	api := &storage.API{}
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Register a resource server that tokens may be issued for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(cmd.Context(), opts, func(ctx context.Context, r registry) error {
				if err := r.SaveAPI(ctx, api); err != nil {
					return fmt.Errorf("failed to save api: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered api %s\n", api.Identifier)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&api.Identifier, "identifier", "", "Absolute URL identifying the API (the token audience)")
	cmd.Flags().StringVar(&api.Name, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&api.Scope, "scope", nil, "Scope values the API understands")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a P-521 signing key and print it as a private JWK",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey(keyID)
			if err != nil {
				return err
			}
			jwk, err := key.MarshalPrivateJWK()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jwk))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "key-id", "authserver", "Key id (kid) of the generated key")
	return cmd
}
