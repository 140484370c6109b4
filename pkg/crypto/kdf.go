package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Parameters controls the cost factors for Argon2id key derivation.
type Argon2Parameters struct {
	Time      uint32
	Memory    uint32 // kibibytes
	Threads   uint8
	KeyLength uint32
}

// DefaultArgon2Params returns the cost factors used to derive the secret
// storage key from a configured passphrase.
func DefaultArgon2Params() Argon2Parameters {
	return Argon2Parameters{
		Time:      2,
		Memory:    64 * 1024,
		Threads:   4,
		KeyLength: 32,
	}
}

// Validate ensures the parameters are suitable for Argon2id key derivation.
func (p Argon2Parameters) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("argon2: time cost must be greater than zero")
	}
	if p.Threads == 0 {
		return fmt.Errorf("argon2: parallelism must be greater than zero")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("argon2: memory cost must be at least 8 * threads")
	}
	switch p.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("argon2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// DeriveKey derives an AES key from a passphrase using Argon2id. The salt is
// stretched to 16 bytes with SHA-256 when callers provide a shorter
// application-level salt such as an issuer name.
func DeriveKey(passphrase, salt []byte, params Argon2Parameters) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("argon2: passphrase is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if len(salt) < 16 {
		digest := sha256.Sum256(salt)
		salt = digest[:]
	}

	return argon2.IDKey(passphrase, salt, params.Time, params.Memory, params.Threads, params.KeyLength), nil
}
