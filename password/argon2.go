package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"
	argon2ID              = "argon2id"
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production Argon2id parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes passwords with Argon2id and encodes them in PHC format.
type Argon2 struct {
	config Config
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh salted Argon2id hash. Plaintext bytes are used as
// given, without Unicode normalization.
func (a *Argon2) Hash(plain string) (string, error) {
	if err := CheckLength(plain); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the stored parameters and compares in
// constant time. A malformed encoding returns ErrMalformedHash.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	parsed, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plain), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	parsed, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	switch {
	case a.config.Memory > parsed.memory,
		a.config.Time > parsed.time,
		a.config.Parallelism > parsed.parallelism,
		a.config.KeyLength != uint32(len(parsed.hash)):
		return true, nil
	}
	return false, nil
}

// Handles reports whether encoded is an Argon2id PHC string.
func (a *Argon2) Handles(encoded string) bool {
	return strings.HasPrefix(encoded, argon2Prefix)
}

func parseArgon2(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: invalid PHC layout", ErrMalformedHash)
	}
	if parts[1] != argon2ID {
		return nil, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: invalid version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	out := &phcHash{}
	if err := parseArgon2Params(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = decodeB64(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	out.hash, err = decodeB64(parts[5])
	if err != nil || len(out.hash) == 0 {
		return nil, fmt.Errorf("%w: invalid key", ErrMalformedHash)
	}
	return out, nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parseArgon2Params(part string, out *phcHash) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: invalid parameter list", ErrMalformedHash)
	}

	seen := 0
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: invalid parameter %q", ErrMalformedHash, pair)
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return fmt.Errorf("%w: invalid memory", ErrMalformedHash)
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return fmt.Errorf("%w: invalid time", ErrMalformedHash)
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return fmt.Errorf("%w: invalid parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, key)
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

// Validate rejects parameters below the safe floor.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}
