// Package keys supplies the JWK material the authorization server signs and
// verifies tokens with.
package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/giantswarm/mcp-authserver/server/crypto"
)

// ErrNoSigningKey is returned when a provider has no key configured.
var ErrNoSigningKey = errors.New("no signing key configured")

// Provider returns the signing and verification keys as JWK documents.
type Provider interface {
	// SigningKey returns the private JWK used to sign tokens.
	SigningKey(ctx context.Context) ([]byte, error)

	// PublicKey returns the public JWK used to verify tokens.
	PublicKey(ctx context.Context) ([]byte, error)
}

// StaticProvider serves a fixed JWK.
type StaticProvider struct {
	signing []byte
	public  []byte
}

// NewStaticProvider validates signingJWK and derives its public half.
func NewStaticProvider(signingJWK []byte) (*StaticProvider, error) {
	if len(signingJWK) == 0 {
		return nil, ErrNoSigningKey
	}
	key, err := crypto.ImportECDSAKey(signingJWK, crypto.RoleSign)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	public, err := json.Marshal(key.JWK())
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return &StaticProvider{signing: signingJWK, public: public}, nil
}

// NewFileProvider loads the signing JWK from path.
func NewFileProvider(path string) (*StaticProvider, error) {
	if path == "" {
		return nil, ErrNoSigningKey
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return NewStaticProvider(data)
}

// SigningKey implements Provider.
func (p *StaticProvider) SigningKey(_ context.Context) ([]byte, error) {
	return p.signing, nil
}

// PublicKey implements Provider.
func (p *StaticProvider) PublicKey(_ context.Context) ([]byte, error) {
	return p.public, nil
}

// GeneratingProvider creates an ephemeral P-521 key on first use.
// Tokens signed with it do not survive a restart.
type GeneratingProvider struct {
	keyID string

	mu     sync.Mutex
	static *StaticProvider
}

// NewGeneratingProvider returns a provider that lazily generates a key.
func NewGeneratingProvider(keyID string) *GeneratingProvider {
	return &GeneratingProvider{keyID: keyID}
}

func (p *GeneratingProvider) load() (*StaticProvider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.static != nil {
		return p.static, nil
	}

	key, err := crypto.GenerateKey(p.keyID)
	if err != nil {
		return nil, err
	}
	jwk, err := key.MarshalPrivateJWK()
	if err != nil {
		return nil, err
	}
	static, err := NewStaticProvider(jwk)
	if err != nil {
		return nil, err
	}

	slog.Warn("generated ephemeral signing key - tokens will be invalid after restart",
		"algorithm", crypto.AlgorithmES512,
		"key_id", p.keyID,
	)
	p.static = static
	return static, nil
}

// SigningKey implements Provider.
func (p *GeneratingProvider) SigningKey(ctx context.Context) ([]byte, error) {
	static, err := p.load()
	if err != nil {
		return nil, err
	}
	return static.SigningKey(ctx)
}

// PublicKey implements Provider.
func (p *GeneratingProvider) PublicKey(ctx context.Context) ([]byte, error) {
	static, err := p.load()
	if err != nil {
		return nil, err
	}
	return static.PublicKey(ctx)
}
