package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenType distinguishes access from refresh tokens inside the claims.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Defaults applied by NewManager when the corresponding field is zero.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "nickauth"
	DefaultAudience   = "nickauth-client"
	maxLeeway         = 2 * time.Minute
	defaultFutureIAT  = 10 * time.Minute
)

var (
	// ErrTokenExpired is returned for well-formed, correctly signed tokens past exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure, including a
	// token of the wrong kind.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config configures token issuance and verification.
//
// Access and refresh tokens are always signed with different keys: two
// secrets with HS256, two key pairs with Ed25519. Ed25519 keys are raw
// bytes or PEM; a missing public key is derived from its private key.
type Config struct {
	SigningMethod     SigningMethod
	AccessSecret      []byte
	RefreshSecret     []byte
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Issuer            string
	Audience          string
	Leeway            time.Duration
	MaxFutureIAT      time.Duration
	KeyID             string
	// Now overrides the clock for issuance and verification.
	Now func() time.Time
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID string    `json:"userId"`
	Role   string    `json:"role,omitempty"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access and refresh tokens. It is safe for
// concurrent use.
type Manager struct {
	config Config
	now    func() time.Time

	edKeys map[TokenType]edKeyPair
}

type edKeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewManager validates cfg, fills defaults and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	var edKeys map[TokenType]edKeyPair
	switch cfg.SigningMethod {
	case "", MethodHS256:
		cfg.SigningMethod = MethodHS256
		if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
			return nil, errors.New("hs256 requires access and refresh secrets")
		}
		if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
			return nil, errors.New("access and refresh secrets must differ")
		}
	case MethodEd25519:
		access, err := loadEdKeyPair(TypeAccess, cfg.AccessPrivateKey, cfg.AccessPublicKey)
		if err != nil {
			return nil, err
		}
		refresh, err := loadEdKeyPair(TypeRefresh, cfg.RefreshPrivateKey, cfg.RefreshPublicKey)
		if err != nil {
			return nil, err
		}
		if access.public.Equal(refresh.public) {
			return nil, errors.New("access and refresh key pairs must differ")
		}
		edKeys = map[TokenType]edKeyPair{TypeAccess: access, TypeRefresh: refresh}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now, edKeys: edKeys}, nil
}

func loadEdKeyPair(kind TokenType, privateKey, publicKey []byte) (edKeyPair, error) {
	priv, err := parseEdPrivateKey(privateKey)
	if err != nil {
		return edKeyPair{}, fmt.Errorf("%s: %w", kind, err)
	}
	derived := priv.Public().(ed25519.PublicKey)
	if len(publicKey) == 0 {
		return edKeyPair{private: priv, public: derived}, nil
	}
	pub, err := parseEdPublicKey(publicKey)
	if err != nil {
		return edKeyPair{}, fmt.Errorf("%s: %w", kind, err)
	}
	if !pub.Equal(derived) {
		return edKeyPair{}, fmt.Errorf("%s: ed25519 public key does not match private key", kind)
	}
	return edKeyPair{private: priv, public: pub}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs a short-lived access token carrying userID and role.
func (m *Manager) IssueAccess(userID, role string) (string, error) {
	token, _, err := m.issue(TypeAccess, userID, role, m.config.AccessTTL)
	return token, err
}

// IssueRefresh signs a refresh token and returns its expiry. Every call
// yields a distinct token because jti is random.
func (m *Manager) IssueRefresh(userID string) (string, time.Time, error) {
	return m.issue(TypeRefresh, userID, "", m.config.RefreshTTL)
}

func (m *Manager) issue(kind TokenType, userID, role string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}
	now := m.now()
	exp := now.Add(ttl)

	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	key, err := m.signKey(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token. A refresh token is rejected
// with ErrTokenInvalid.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(TypeAccess, token)
}

// VerifyRefresh validates a refresh token. An access token is rejected
// with ErrTokenInvalid.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(TypeRefresh, token)
}

func (m *Manager) verify(kind TokenType, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey(kind)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, kind)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey(kind TokenType) (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		pair, ok := m.edKeys[kind]
		if !ok {
			return nil, fmt.Errorf("no ed25519 key for %s tokens", kind)
		}
		return pair.private, nil
	}
	return m.secret(kind), nil
}

func (m *Manager) verifyKey(kind TokenType) (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		pair, ok := m.edKeys[kind]
		if !ok {
			return nil, fmt.Errorf("no ed25519 key for %s tokens", kind)
		}
		return pair.public, nil
	}
	return m.secret(kind), nil
}

func (m *Manager) secret(kind TokenType) []byte {
	if kind == TypeRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
