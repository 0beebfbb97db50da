package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"pin-ledger/config"
	"pin-ledger/internal/core/ports"

	"golang.org/x/crypto/argon2"
)

const (
	argon2KeyLen  = 32
	argon2SaltLen = 16

	// legacySHA256Len is the length of a bare hex SHA-256 digest as written
	// by the original data files.
	legacySHA256Len = 64
)

// Argon2HashService implements ports.PinHasher using Argon2id. It also
// verifies unsalted SHA-256 hex digests so imported accounts can log in once
// and be rehashed.
type Argon2HashService struct {
	memory  uint32
	time    uint32
	threads uint8
}

var _ ports.PinHasher = (*Argon2HashService)(nil)

// NewArgon2HashService creates a hash service with the configured cost.
func NewArgon2HashService(cfg config.HashConfig) *Argon2HashService {
	return &Argon2HashService{
		memory:  cfg.Memory,
		time:    cfg.Time,
		threads: cfg.Threads,
	}
}

// Hash returns format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (s *Argon2HashService) Hash(pin string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(pin), salt, s.time, s.memory, s.threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		s.memory, s.time, s.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks pin against an Argon2id hash or a legacy SHA-256 digest.
func (s *Argon2HashService) Verify(pin string, encodedHash string) (bool, error) {
	if isLegacyDigest(encodedHash) {
		sum := sha256.Sum256([]byte(pin))
		want, err := hex.DecodeString(strings.ToLower(encodedHash))
		if err != nil {
			return false, fmt.Errorf("decoding legacy digest: %w", err)
		}
		return subtle.ConstantTimeCompare(sum[:], want) == 1, nil
	}

	salt, hash, params, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	otherHash := argon2.IDKey([]byte(pin), salt, params.time, params.memory, params.threads, params.keyLen)

	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

// NeedsRehash is true for legacy digests and for Argon2id hashes made with
// a different cost than the current configuration.
func (s *Argon2HashService) NeedsRehash(encodedHash string) bool {
	if isLegacyDigest(encodedHash) {
		return true
	}
	_, _, params, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return true
	}
	return params.memory != s.memory || params.time != s.time || params.threads != s.threads
}

func isLegacyDigest(h string) bool {
	if len(h) != legacySHA256Len {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// decodeArgon2Hash parses the encoded hash string.
func decodeArgon2Hash(encodedHash string) (salt, hash []byte, params argon2Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing params: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	params.keyLen = uint32(len(hash))

	return salt, hash, params, nil
}
