package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used by HashKey.
//
// COST TUNING RULE OF THUMB:
// The server checks the key on every protected request, so this is lower
// than a login-form cost would be. 10 takes roughly 60ms.
const DefaultCost = 10

// maxKeyBytes is bcrypt's input limit. Longer input would be silently
// truncated.
const maxKeyBytes = 72

// Secret is the server's configured credential, either in plain text or as
// a bcrypt hash ("$2a$10$...", produced by `sipp hash-key`).
type Secret struct {
	plain  []byte // sha256 of the plain secret
	hashed []byte // bcrypt hash; nil for a plain secret
}

// NewSecret parses a configured credential. A value starting with "$2" is
// taken as a bcrypt hash and must parse as one.
func NewSecret(value string) (*Secret, error) {
	if value == "" {
		return nil, errors.New("auth: empty secret")
	}
	if strings.HasPrefix(value, "$2") {
		if _, err := bcrypt.Cost([]byte(value)); err != nil {
			return nil, fmt.Errorf("auth: SIPP_API_KEY looks like a bcrypt hash but does not parse: %w", err)
		}
		return &Secret{hashed: []byte(value)}, nil
	}
	sum := sha256.Sum256([]byte(value))
	return &Secret{plain: sum[:]}, nil
}

// Matches reports whether supplied equals the secret.
//
// TIMING SAFETY:
// Plain secrets are compared as SHA-256 digests with
// subtle.ConstantTimeCompare, so neither the content nor the length of the
// secret leaks through response time. bcrypt.CompareHashAndPassword is
// constant-time internally.
func (s *Secret) Matches(supplied string) bool {
	if s.hashed != nil {
		return bcrypt.CompareHashAndPassword(s.hashed, []byte(supplied)) == nil
	}
	sum := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(s.plain, sum[:]) == 1
}

// HashKey hashes a plaintext key with bcrypt at the given cost (DefaultCost
// when cost is 0). The output can be put in SIPP_API_KEY in place of the
// plain key.
//
// The output is a self-contained string like:
//
//	$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
func HashKey(plaintext string, cost int) (string, error) {
	if plaintext == "" {
		return "", errors.New("auth: key must not be empty")
	}
	if len(plaintext) > maxKeyBytes {
		return "", fmt.Errorf("auth: key must be %d bytes or fewer", maxKeyBytes)
	}
	if cost == 0 {
		cost = DefaultCost
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing key: %w", err)
	}
	return string(hashed), nil
}
