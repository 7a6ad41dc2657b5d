// Package hashing derives the one-way fingerprints used as lookup keys for
// mobile numbers and credentials, and produces the random values handed out
// during verification.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex encoded SHA-256 digest of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CombinedFingerprint binds a mobile number to a password without storing
// either: fingerprint(fingerprint(mobileNumber) + fingerprint(password)).
func CombinedFingerprint(mobileNumber, password string) string {
	return Fingerprint(Fingerprint(mobileNumber) + Fingerprint(password))
}
