package storage

import (
	"encoding/json"
	"fmt"

	"github.com/giantswarm/mcp-authserver/security"
)

// EncodeRecord serialises v as JSON, encrypting it when encryptor is enabled.
// Key-value backends use it so records are protected at rest.
func EncodeRecord(v any, encryptor *security.Encryptor) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	sealed, err := encryptor.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt record: %w", err)
	}
	return sealed, nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(data []byte, v any, encryptor *security.Encryptor) error {
	data, err := encryptor.Open(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
