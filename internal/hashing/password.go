package hashing

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is a salted, irreversible and verifiable hash for secrets
// presented directly for authentication.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// Bcrypt implements PasswordHasher with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a bcrypt hasher, falling back to bcrypt.DefaultCost when
// cost is out of range.
func NewBcrypt(cost int) Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Bcrypt{Cost: cost}
}

// Hash salts and hashes secret.
func (b Bcrypt) Hash(secret string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(secret), b.Cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(out), nil
}

// Verify reports whether secret matches hash.
func (Bcrypt) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
