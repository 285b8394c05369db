package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmES512 is the JOSE identifier of ECDSA P-521 with SHA-512.
const AlgorithmES512 = "ES512"

// Role selects what an imported key is used for.
type Role int

const (
	RoleSign Role = iota
	RoleVerify
)

func (r Role) String() string {
	if r == RoleSign {
		return "sign"
	}
	return "verify"
}

var (
	// ErrUnsupportedKey is returned for JWKs that are not EC P-521.
	ErrUnsupportedKey = errors.New("key must be an EC P-521 key")

	// ErrPrivateKeyRequired is returned when a signing key has no private part.
	ErrPrivateKeyRequired = errors.New("signing requires a private key")

	// ErrInvalidSignature is returned by Verify on mismatch.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Key is an imported P-521 key.
type Key struct {
	id      string
	private *ecdsa.PrivateKey
	public  *ecdsa.PublicKey
}

// ImportECDSAKey parses a JWK and checks it can serve role.
func ImportECDSAKey(jwk []byte, role Role) (*Key, error) {
	var parsed jose.JSONWebKey
	if err := json.Unmarshal(jwk, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s key: %w", role, err)
	}

	switch k := parsed.Key.(type) {
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P521() {
			return nil, ErrUnsupportedKey
		}
		key := &Key{id: parsed.KeyID, private: k, public: &k.PublicKey}
		if role == RoleVerify {
			return key.Public(), nil
		}
		return key, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P521() {
			return nil, ErrUnsupportedKey
		}
		if role == RoleSign {
			return nil, ErrPrivateKeyRequired
		}
		return &Key{id: parsed.KeyID, public: k}, nil
	default:
		return nil, ErrUnsupportedKey
	}
}

// GenerateKey creates a new P-521 signing key.
func GenerateKey(id string) (*Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-521 key: %w", err)
	}
	return &Key{id: id, private: priv, public: &priv.PublicKey}, nil
}

// ID returns the key id ("kid"), which may be empty.
func (k *Key) ID() string {
	return k.id
}

// CanSign reports whether k holds private material.
func (k *Key) CanSign() bool {
	return k.private != nil
}

// Public returns the verification half of k.
func (k *Key) Public() *Key {
	return &Key{id: k.id, public: k.public}
}

// SigningKey exposes the private key for JWT signing.
func (k *Key) SigningKey() *ecdsa.PrivateKey {
	return k.private
}

// VerificationKey exposes the public key for JWT verification.
func (k *Key) VerificationKey() *ecdsa.PublicKey {
	return k.public
}

// JWK returns the public key as a JSON Web Key.
func (k *Key) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.public,
		KeyID:     k.id,
		Algorithm: AlgorithmES512,
		Use:       "sig",
	}
}

// MarshalPrivateJWK serialises a signing key as a JWK document.
func (k *Key) MarshalPrivateJWK() ([]byte, error) {
	if k.private == nil {
		return nil, ErrPrivateKeyRequired
	}
	return json.Marshal(jose.JSONWebKey{
		Key:       k.private,
		KeyID:     k.id,
		Algorithm: AlgorithmES512,
		Use:       "sig",
	})
}

// Sign produces an ES512 signature (132-byte r||s) over content.
func Sign(content []byte, key *Key) ([]byte, error) {
	if key == nil || key.private == nil {
		return nil, ErrPrivateKeyRequired
	}
	sig, err := jwt.SigningMethodES512.Sign(string(content), key.private)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Verify checks an ES512 signature over content.
func Verify(content, signature []byte, key *Key) error {
	if key == nil || key.public == nil {
		return ErrInvalidSignature
	}
	if err := jwt.SigningMethodES512.Verify(string(content), signature, key.public); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
