// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrEthical07/nickauth"
)

// Config is the server configuration.
type Config struct {
	Environment string
	Port        int
	BasePath    string
	TrustProxy  bool

	RedisURL    string
	DatabaseURL string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	// AppOrigin is the frontend origin used for CORS and reset links.
	AppOrigin string

	CaptchaEnabled   bool
	CaptchaSecret    string
	CaptchaVerifyURL string
	CaptchaMinScore  float64

	EmailEnabled bool
	SMTP         SMTP

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c *Config) IsProduction() bool  { return c.Environment == "production" }
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// Load reads .env files (missing files are ignored) and then the process
// environment. Values already present in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup. Outside development, missing
// required variables are reported together in one error.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	env := r.str("APP_ENV", "")
	if env == "" {
		env = r.str("NODE_ENV", "development")
	}

	cfg := &Config{
		Environment: strings.ToLower(env),
		Port:        r.int("PORT", 5000),
		BasePath:    r.str("BASE_PATH", "/api"),
		TrustProxy:  r.bool("TRUST_PROXY", false),

		RedisURL:    r.str("REDIS_URL", ""),
		DatabaseURL: r.str("DATABASE_URL", ""),

		JWTSecret:        r.str("JWT_SECRET", ""),
		JWTRefreshSecret: r.str("JWT_REFRESH_SECRET", ""),
		AccessTTL:        r.duration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		RefreshTTL:       r.duration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),

		AppOrigin: r.str("APP_ORIGIN", r.str("CORS_ORIGIN", "http://localhost:5173")),

		CaptchaEnabled:   r.bool("ENABLE_CAPTCHA", false),
		CaptchaSecret:    r.str("CAPTCHA_SECRET", ""),
		CaptchaVerifyURL: r.str("CAPTCHA_VERIFY_URL", ""),
		CaptchaMinScore:  r.float("CAPTCHA_MIN_SCORE", 0),

		EmailEnabled: r.bool("ENABLE_EMAIL", false),
		SMTP: SMTP{
			Host:     r.str("SMTP_HOST", ""),
			Port:     r.int("SMTP_PORT", 587),
			Username: r.str("SMTP_USER", ""),
			Password: r.str("SMTP_PASSWORD", ""),
			From:     r.str("SMTP_FROM", ""),
		},

		LogLevel:       r.str("LOG_LEVEL", "info"),
		LogFormat:      r.str("LOG_FORMAT", "json"),
		MetricsEnabled: r.bool("METRICS_ENABLED", false),
	}

	if !cfg.IsDevelopment() {
		r.require("JWT_SECRET", "JWT_REFRESH_SECRET")
		if _, ok := lookup("APP_ORIGIN"); !ok {
			r.require("CORS_ORIGIN")
		}
	}
	if cfg.CaptchaEnabled {
		r.require("CAPTCHA_SECRET")
	}
	if cfg.EmailEnabled {
		r.require("SMTP_HOST", "SMTP_FROM")
	}

	if err := r.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineConfig maps the server settings onto the library defaults.
func (c *Config) EngineConfig() nickauth.Config {
	ec := nickauth.DefaultConfig()
	if c.JWTSecret != "" {
		ec.JWT.AccessSecret = []byte(c.JWTSecret)
	}
	if c.JWTRefreshSecret != "" {
		ec.JWT.RefreshSecret = []byte(c.JWTRefreshSecret)
	}
	ec.JWT.AccessTTL = c.AccessTTL
	ec.JWT.RefreshTTL = c.RefreshTTL
	ec.Security.ProductionMode = c.IsProduction()
	ec.Metrics.Enabled = c.MetricsEnabled
	ec.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return ec
}

type reader struct {
	lookup  func(string) (string, bool)
	missing []string
	invalid []string
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return f
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return d
}

func (r *reader) require(keys ...string) {
	for _, k := range keys {
		if _, ok := r.raw(k); !ok {
			r.missing = append(r.missing, k)
		}
	}
}

func (r *reader) err() error {
	var msgs []string
	if len(r.missing) > 0 {
		msgs = append(msgs, "missing required environment variables: "+strings.Join(r.missing, ", "))
	}
	if len(r.invalid) > 0 {
		msgs = append(msgs, "invalid environment variables: "+strings.Join(r.invalid, ", "))
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ParseDuration accepts Go durations plus a whole-day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
