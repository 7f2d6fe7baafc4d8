package nickauth

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/nickauth/internal/audit"
	"github.com/MrEthical07/nickauth/internal/flows"
	"github.com/MrEthical07/nickauth/internal/limiters"
	"github.com/MrEthical07/nickauth/jwt"
	"github.com/MrEthical07/nickauth/password"
	"github.com/MrEthical07/nickauth/store"
)

const dummyPassword = "nickauth-timing-equalizer"

// Builder assembles an Engine. Configure it once, call Build, and discard
// it; a Builder cannot be reused.
type Builder struct {
	config    Config
	store     store.Store
	redis     redis.UniversalClient
	logger    *zap.Logger
	clock     Clock
	captcha   CaptchaVerifier
	mailer    ResetMailer
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis enables the per-IP auth and password reset limiters. Without
// it both limiters are off.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithCaptcha enables captcha verification on Register.
func (b *Builder) WithCaptcha(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithMailer sets where password reset links go. Without it reset tokens
// are stored but never delivered.
func (b *Builder) WithMailer(m ResetMailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("precompute dummy hash: %w", err)
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod:     jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessSecret:      cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret:     cloneBytes(cfg.JWT.RefreshSecret),
		AccessPrivateKey:  cloneBytes(cfg.JWT.AccessPrivateKey),
		AccessPublicKey:   cloneBytes(cfg.JWT.AccessPublicKey),
		RefreshPrivateKey: cloneBytes(cfg.JWT.RefreshPrivateKey),
		RefreshPublicKey:  cloneBytes(cfg.JWT.RefreshPublicKey),
		AccessTTL:         cfg.JWT.AccessTTL,
		RefreshTTL:        cfg.JWT.RefreshTTL,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            cfg.JWT.Leeway,
		Now:               clock.Now,
	})
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewZapSink(logger)
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		tokens:    jm,
		hasher:    hasher,
		dummyHash: dummyHash,
		lockout: limiters.LockoutPolicy{
			Threshold: cfg.Lockout.MaxAttempts,
			Duration:  cfg.Lockout.Duration,
		},
		captcha: b.captcha,
		mailer:  b.mailer,
		clock:   clock,
		logger:  logger.Named("nickauth"),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:     cfg.Audit.Enabled,
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			MustDeliver: []string{auditEventAccountLocked, auditEventRefreshReuseDetected},
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
	}

	if b.redis != nil {
		if cfg.RateLimit.AuthMaxFailures > 0 {
			engine.authLimiter = limiters.NewAuthLimiter(b.redis, cfg.RateLimit.RedisPrefix, limiters.AuthConfig{
				MaxFailures: cfg.RateLimit.AuthMaxFailures,
				Window:      cfg.RateLimit.AuthWindow,
			})
		}
		if cfg.PasswordReset.MaxRequests > 0 {
			engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, cfg.RateLimit.RedisPrefix, limiters.PasswordResetConfig{
				MaxRequests: cfg.PasswordReset.MaxRequests,
				Window:      cfg.PasswordReset.Window,
			})
		}
	}

	engine.flow = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

// newHasher returns a chain whose primary scheme writes new hashes and
// whose legacy scheme still verifies hashes written before a switch.
func newHasher(cfg PasswordConfig) (*password.Chain, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil && cfg.Algorithm == "argon2id" {
		return nil, err
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = 12
	}
	bc, berr := password.NewBcrypt(cost)
	if berr != nil {
		return nil, berr
	}
	if cfg.Algorithm == "bcrypt" {
		if argon == nil {
			return password.NewChain(bc), nil
		}
		return password.NewChain(bc, argon), nil
	}
	return password.NewChain(argon, bc), nil
}
