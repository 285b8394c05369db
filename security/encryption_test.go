package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != EncryptionKeySize {
		t.Errorf("GenerateKey() returned key of length %d, want %d", len(key), EncryptionKeySize)
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		wantErr    bool
		wantEnable bool
	}{
		{"valid 32-byte key", make([]byte, 32), false, true},
		{"nil key (disabled)", nil, false, false},
		{"empty key (disabled)", []byte{}, false, false},
		{"invalid key length (16 bytes)", make([]byte, 16), true, false},
		{"invalid key length (64 bytes)", make([]byte, 64), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && enc.IsEnabled() != tt.wantEnable {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnable)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte(`{"refresh_token_id":"abc","active":true}`)

	sealed, err := enc.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("refresh_token_id")) {
		t.Error("sealed output contains plaintext")
	}

	again, _ := enc.Seal(plaintext)
	if bytes.Equal(sealed, again) {
		t.Error("Seal() must use a fresh nonce")
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Open() = %s, want %s", opened, plaintext)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := enc.Open(sealed); err == nil {
		t.Error("Open() accepted tampered ciphertext")
	}

	if _, err := enc.Open([]byte("short")); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open(short) error = %v, want ErrCiphertextTooShort", err)
	}

	otherKey, _ := GenerateKey()
	other, _ := NewEncryptor(otherKey)
	sealed, _ = enc.Seal(plaintext)
	if _, err := other.Open(sealed); err == nil {
		t.Error("Open() with wrong key succeeded")
	}
}

func TestDisabledEncryptorPassesThrough(t *testing.T) {
	for name, enc := range map[string]*Encryptor{"nil": nil, "zero key": mustEncryptor(t, nil)} {
		t.Run(name, func(t *testing.T) {
			data := []byte("plain")
			sealed, err := enc.Seal(data)
			if err != nil || !bytes.Equal(sealed, data) {
				t.Errorf("Seal() = %q, %v", sealed, err)
			}
			opened, err := enc.Open(data)
			if err != nil || !bytes.Equal(opened, data) {
				t.Errorf("Open() = %q, %v", opened, err)
			}
		})
	}
}

func TestKeyFromBase64(t *testing.T) {
	key, _ := GenerateKey()

	decoded, err := KeyFromBase64(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("KeyFromBase64() returned a different key")
	}

	if _, err := KeyFromBase64("not-base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := KeyFromBase64(base64.StdEncoding.EncodeToString(make([]byte, 16))); err == nil {
		t.Error("expected error for short key")
	}
}

func mustEncryptor(t *testing.T, key []byte) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatal(err)
	}
	return enc
}
