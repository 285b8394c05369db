package oauth

import (
	"context"

	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
	"github.com/giantswarm/mcp-authserver/server/keys"
)

// New creates the authorization server engine over stores and the keys of
// keyProvider, and returns its HTTP handler.
//
// Example:
//
//	store := memory.New()
//	defer store.Stop()
//
//	h, err := oauth.New(ctx, server.Stores{
//	    Clients: store, Users: store, APIs: store,
//	    Codes: store, Grants: store, RefreshTokens: store,
//	}, keys.NewGeneratingProvider("dev"), oauth.Config{
//	    Server: server.Config{Issuer: "https://auth.example.com"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//	http.ListenAndServe(":8080", h)
func New(ctx context.Context, stores server.Stores, keyProvider keys.Provider, config Config) (*Handler, error) {
	config = applyDefaults(config)

	srv, err := server.New(ctx, stores, keyProvider, &config.Server, config.Logger)
	if err != nil {
		return nil, err
	}
	srv.SetAuditor(security.NewAuditor(config.Logger, config.EnableAuditLogging))
	if config.Instrumentation != nil {
		srv.SetInstrumentation(config.Instrumentation)
	}

	return NewHandler(srv, config)
}
