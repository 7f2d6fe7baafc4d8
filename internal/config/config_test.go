package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDevelopmentDefaults(t *testing.T) {
	cfg, err := FromLookup(mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "/api", cfg.BasePath)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.False(t, cfg.IsProduction())

	ec := cfg.EngineConfig()
	assert.False(t, ec.Security.ProductionMode)
	require.NoError(t, ec.Validate())
}

func TestProductionRequiresSecrets(t *testing.T) {
	_, err := FromLookup(mapLookup(map[string]string{
		"NODE_ENV":       "production",
		"ENABLE_EMAIL":   "true",
		"ENABLE_CAPTCHA": "yes-please",
	}))
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "JWT_REFRESH_SECRET", "CORS_ORIGIN", "SMTP_HOST", "SMTP_FROM", "ENABLE_CAPTCHA"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestProductionConfig(t *testing.T) {
	cfg, err := FromLookup(mapLookup(map[string]string{
		"APP_ENV":            "production",
		"PORT":               "8080",
		"JWT_SECRET":         "a-production-access-secret-of-32b",
		"JWT_REFRESH_SECRET": "a-production-refresh-secret-of-32",
		"JWT_REFRESH_EXPIRY": "14d",
		"APP_ORIGIN":         "https://app.example.com",
		"METRICS_ENABLED":    "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)

	ec := cfg.EngineConfig()
	assert.True(t, ec.Security.ProductionMode)
	assert.True(t, ec.Metrics.Enabled)
	assert.Equal(t, []byte("a-production-access-secret-of-32b"), ec.JWT.AccessSecret)
	require.NoError(t, ec.Validate())
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BASE_PATH=/v2\n"), 0o600))
	t.Setenv("BASE_PATH", "")
	require.NoError(t, os.Unsetenv("BASE_PATH"))

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "/v2", cfg.BasePath)
}
