package password

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Length bounds counted in characters (runes).
const (
	MinLength = 8
	MaxLength = 100
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d characters", MaxLength)
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnsupportedHash is returned when no hasher in a Chain recognizes the encoding.
	ErrUnsupportedHash = errors.New("password: unsupported hash format")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Scheme is a Hasher that can recognize its own encodings.
type Scheme interface {
	Hasher
	Handles(encoded string) bool
}

// CheckLength enforces MinLength and MaxLength.
func CheckLength(plain string) error {
	n := utf8.RuneCountInString(plain)
	if n < MinLength {
		return ErrPasswordTooShort
	}
	if n > MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Chain hashes with the primary scheme and verifies against whichever
// scheme recognizes the stored encoding. Hashes from a legacy scheme
// always report NeedsUpgrade.
type Chain struct {
	primary Scheme
	legacy  []Scheme
}

// NewChain builds a Chain. primary must not be nil.
func NewChain(primary Scheme, legacy ...Scheme) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(plain string) (string, error) {
	return c.primary.Hash(plain)
}

func (c *Chain) Verify(plain, encoded string) (bool, error) {
	s, _, err := c.pick(encoded)
	if err != nil {
		return false, err
	}
	return s.Verify(plain, encoded)
}

func (c *Chain) NeedsUpgrade(encoded string) (bool, error) {
	s, legacy, err := c.pick(encoded)
	if err != nil {
		return false, err
	}
	if legacy {
		return true, nil
	}
	return s.NeedsUpgrade(encoded)
}

func (c *Chain) pick(encoded string) (Scheme, bool, error) {
	if c.primary.Handles(encoded) {
		return c.primary, false, nil
	}
	for _, s := range c.legacy {
		if s.Handles(encoded) {
			return s, true, nil
		}
	}
	return nil, false, ErrUnsupportedHash
}

var (
	_ Scheme = (*Argon2)(nil)
	_ Scheme = (*Bcrypt)(nil)
	_ Hasher = (*Chain)(nil)
)
