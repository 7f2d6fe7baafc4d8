package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ResetTokenBytes is the entropy of a password reset token.
const ResetTokenBytes = 32

// ErrMalformedToken is returned by ParseResetToken for input that cannot
// be a token we issued.
var ErrMalformedToken = errors.New("malformed token")

// NewResetToken returns a random token as lowercase hex. Only its hash is
// ever persisted.
func NewResetToken() (string, error) {
	var raw [ResetTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ParseResetToken normalizes a client-supplied reset token and rejects
// anything that is not ResetTokenBytes of hex.
func ParseResetToken(token string) (string, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) != 2*ResetTokenBytes {
		return "", ErrMalformedToken
	}
	if _, err := hex.DecodeString(token); err != nil {
		return "", ErrMalformedToken
	}
	return token, nil
}

// HashToken returns the SHA-256 of token as lowercase hex. Used for reset
// tokens and for refresh tokens at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
