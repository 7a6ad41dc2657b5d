package hashing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

const (
	// DefaultChallengeDigits is the length of the numeric SMS challenge.
	DefaultChallengeDigits = 5
	// MaxChallengeDigits keeps challenge values inside int64.
	MaxChallengeDigits = 18

	smsHandleBytes = 16
)

// RandomChallengeDigits returns a uniformly distributed decimal string with
// exactly n digits, drawn from [10^(n-1), 10^n - 1].
func RandomChallengeDigits(n int) (string, error) {
	if n < 1 || n > MaxChallengeDigits {
		return "", fmt.Errorf("challenge digits must be between 1 and %d, got %d", MaxChallengeDigits, n)
	}

	lower := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n-1)), nil)
	upper := new(big.Int).Mul(lower, big.NewInt(10))
	span := new(big.Int).Sub(upper, lower)

	v, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return strconv.FormatInt(v.Add(v, lower).Int64(), 10), nil
}

// RandomOpaqueToken returns a random UUID string. Used for client ids and
// client challenges.
func RandomOpaqueToken() string {
	return uuid.NewString()
}

// RandomHandle returns 16 random bytes, base64 encoded. The handle only
// correlates an SMS dispatch with its delivery report.
func RandomHandle() (string, error) {
	buf := make([]byte, smsHandleBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate sms handle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
