package nickauth

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override the sections you need; Build validates the result.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	RefreshTokens RefreshTokensConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh token signing.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 key pairs, one per token kind. Public keys are optional.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme for new hashes. Hashes written
// by the other scheme still verify and are upgraded on login when
// UpgradeOnLogin is set.
type PasswordConfig struct {
	Algorithm      string // "argon2id" (default) or "bcrypt"
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	BcryptCost     int
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	// MaxAttempts consecutive failures lock the account. Zero disables lockout.
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
REFRESH TOKEN CONFIG
====================================
*/

type RefreshTokensConfig struct {
	// MaxPerUser bounds the stored refresh list; the oldest entry is evicted first.
	MaxPerUser int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig configures forgot/reset password.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// MinResponseTime pads ForgotPassword so known and unknown emails take
	// the same time.
	MinResponseTime time.Duration
	// MaxRequests per IP per Window across forgot and reset.
	MaxRequests int
	Window      time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the Redis-backed per-IP auth limiter. It is
// only active when the builder receives a Redis client.
type RateLimitConfig struct {
	AuthMaxFailures int
	AuthWindow      time.Duration
	RedisPrefix     string
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool
	// RevealUnknownUser answers login for an unknown nickname with
	// USER_NOT_FOUND instead of INVALID_CREDENTIALS.
	RevealUnknownUser bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull never drops account_locked or refresh_reuse_detected.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the development defaults: HS256 with placeholder
// secrets, Argon2id, lockout after 5 failures for 15 minutes, 5 refresh
// tokens per user and a 1 hour reset token.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessSecret:  []byte("change-me-access-secret-32-bytes"),
			RefreshSecret: []byte("change-me-refresh-secret-32-byte"),
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "nickauth",
			Audience:      "nickauth-client",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:      "argon2id",
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		RefreshTokens: RefreshTokensConfig{
			MaxPerUser: 5,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:        time.Hour,
			MinResponseTime: 300 * time.Millisecond,
			MaxRequests:     3,
			Window:          time.Hour,
		},
		RateLimit: RateLimitConfig{
			AuthMaxFailures: 10,
			AuthWindow:      15 * time.Minute,
			RedisPrefix:     "nickauth",
		},
		Security: SecurityConfig{
			ProductionMode:    false,
			RevealUnknownUser: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects incomplete or unsafe configurations. ProductionMode
// adds stricter floors on secrets and token lifetimes.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
		if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
			return errors.New("JWT AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.RefreshPrivateKey) == 0 {
			return errors.New("ed25519 requires AccessPrivateKey and RefreshPrivateKey")
		}
		if bytes.Equal(c.JWT.AccessPrivateKey, c.JWT.RefreshPrivateKey) {
			return errors.New("JWT AccessPrivateKey and RefreshPrivateKey must differ")
		}
		if len(c.JWT.AccessPublicKey) > 0 && bytes.Equal(c.JWT.AccessPublicKey, c.JWT.RefreshPublicKey) {
			return errors.New("JWT AccessPublicKey and RefreshPublicKey must differ")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 0 {
		return errors.New("Lockout MaxAttempts must be >= 0")
	}
	if c.Lockout.MaxAttempts > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when MaxAttempts is set")
	}

	// Refresh tokens
	if c.RefreshTokens.MaxPerUser < 1 {
		return errors.New("RefreshTokens MaxPerUser must be >= 1")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.MinResponseTime < 0 {
		return errors.New("PasswordReset MinResponseTime must be >= 0")
	}
	if c.PasswordReset.MaxRequests < 0 {
		return errors.New("PasswordReset MaxRequests must be >= 0")
	}
	if c.PasswordReset.MaxRequests > 0 && c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset Window must be > 0 when MaxRequests is set")
	}

	// Rate limit
	if c.RateLimit.AuthMaxFailures < 0 {
		return errors.New("RateLimit AuthMaxFailures must be >= 0")
	}
	if c.RateLimit.AuthMaxFailures > 0 && c.RateLimit.AuthWindow <= 0 {
		return errors.New("RateLimit AuthWindow must be > 0 when AuthMaxFailures is set")
	}
	if c.RateLimit.RedisPrefix == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > time.Hour {
			return errors.New("ProductionMode requires JWT AccessTTL <= 1h")
		}
		if c.JWT.SigningMethod == "hs256" &&
			(len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32) {
			return errors.New("ProductionMode requires hs256 secrets of at least 32 bytes")
		}
		if c.JWT.SigningMethod == "hs256" && isPlaceholderSecret(c.JWT) {
			return errors.New("ProductionMode requires non-default JWT secrets")
		}
		if c.Security.RevealUnknownUser {
			return errors.New("ProductionMode forbids Security RevealUnknownUser")
		}
		if c.Lockout.MaxAttempts == 0 {
			return errors.New("ProductionMode requires account lockout")
		}
		if c.Password.Algorithm == "argon2id" && c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Algorithm == "bcrypt" && c.Password.BcryptCost < 10 {
			return errors.New("ProductionMode requires Password BcryptCost >= 10")
		}
	}

	return nil
}

func isPlaceholderSecret(j JWTConfig) bool {
	d := DefaultConfig().JWT
	return bytes.Equal(j.AccessSecret, d.AccessSecret) || bytes.Equal(j.RefreshSecret, d.RefreshSecret)
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration smell that Validate accepts.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are legal but weaken the deployment.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT Leeway %s exceeds 1m", c.JWT.Leeway)
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "JWT AccessTTL %s exceeds 15m", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "JWT RefreshTTL %s exceeds 30d", c.JWT.RefreshTTL)
	}
	if c.Lockout.MaxAttempts == 0 {
		add("lockout_disabled", "account lockout is disabled")
	}
	if c.RateLimit.AuthMaxFailures == 0 {
		add("auth_rate_limit_disabled", "per-IP auth rate limiting is disabled")
	}
	if c.PasswordReset.MaxRequests == 0 {
		add("reset_rate_limit_disabled", "per-IP password reset rate limiting is disabled")
	}
	if c.PasswordReset.MinResponseTime == 0 {
		add("reset_padding_disabled", "ForgotPassword response time is not padded")
	}
	if c.Security.RevealUnknownUser {
		add("reveal_unknown_user", "login reveals whether a nickname exists")
	}
	if c.Password.Algorithm == "argon2id" && !c.Password.UpgradeOnLogin {
		add("hash_upgrade_disabled", "legacy password hashes are never upgraded")
	}
	return ws
}
