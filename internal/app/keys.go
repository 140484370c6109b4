package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openportal/twofa/pkg/crypto"
)

// DecodeKey decodes a key from hex or base64 encoding to raw bytes. It tries
// hex first, then base64 variants, and finally treats the input as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// EncryptionKey resolves the at-rest encryption key from configuration. A
// decoded value of exactly 16, 24, or 32 bytes is used as-is; anything else
// is treated as a passphrase and stretched to 32 bytes with Argon2id, salted
// by the issuer so distinct deployments derive distinct keys.
func EncryptionKey(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.Security.EncryptionKey) == "" {
		return nil, fmt.Errorf("security.encryption_key must be configured")
	}

	key, err := DecodeKey(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}

	return crypto.DeriveKey(key, []byte(cfg.Auth.TOTP.Issuer), crypto.DefaultArgon2Params())
}
