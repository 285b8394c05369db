package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-authserver/server/crypto"
)

func TestGeneratingProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := NewGeneratingProvider("dev")

	signing, err := p.SigningKey(ctx)
	require.NoError(t, err)
	again, err := p.SigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, signing, again, "key must be generated once")

	public, err := p.PublicKey(ctx)
	require.NoError(t, err)

	signer, err := crypto.ImportECDSAKey(signing, crypto.RoleSign)
	require.NoError(t, err)
	verifier, err := crypto.ImportECDSAKey(public, crypto.RoleVerify)
	require.NoError(t, err)
	assert.Equal(t, "dev", verifier.ID())

	sig, err := crypto.Sign([]byte("content"), signer)
	require.NoError(t, err)
	assert.NoError(t, crypto.Verify([]byte("content"), sig, verifier))
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey("file-key")
	require.NoError(t, err)
	jwk, err := key.MarshalPrivateJWK()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.jwk")
	require.NoError(t, os.WriteFile(path, jwk, 0o600))

	p, err := NewFileProvider(path)
	require.NoError(t, err)

	public, err := p.PublicKey(context.Background())
	require.NoError(t, err)
	_, err = crypto.ImportECDSAKey(public, crypto.RoleSign)
	assert.ErrorIs(t, err, crypto.ErrPrivateKeyRequired)

	_, err = NewFileProvider(filepath.Join(t.TempDir(), "missing.jwk"))
	assert.Error(t, err)

	_, err = NewFileProvider("")
	assert.True(t, errors.Is(err, ErrNoSigningKey))
}

func TestStaticProviderRejectsPublicKey(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey("")
	require.NoError(t, err)
	p, err := NewStaticProvider([]byte(`{"kty":"oct","k":"c2VjcmV0"}`))
	assert.Error(t, err)
	assert.Nil(t, p)

	jwk, err := key.MarshalPrivateJWK()
	require.NoError(t, err)
	_, err = NewStaticProvider(jwk)
	assert.NoError(t, err)
}
