package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/captcha"
	"github.com/MrEthical07/nickauth/internal/config"
)

func TestOpenBackendMemoryInDevelopment(t *testing.T) {
	b, err := OpenBackend(context.Background(), &config.Config{Environment: "development"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, "memory", b.Kind)
	assert.NotNil(t, b.Redis)
	require.NoError(t, b.Store.Ping(context.Background()))
}

func TestOpenBackendRequiresStoreOutsideDevelopment(t *testing.T) {
	_, err := OpenBackend(context.Background(), &config.Config{Environment: "production"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenBackendRedisURL(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := OpenBackend(context.Background(), &config.Config{
		Environment: "production",
		RedisURL:    "redis://" + mr.Addr() + "/0",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, "redis", b.Kind)
	require.NoError(t, b.Store.Ping(context.Background()))

	_, err = OpenBackend(context.Background(), &config.Config{RedisURL: "://bad"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewCaptchaAndMailer(t *testing.T) {
	cfg := &config.Config{Environment: "development", AppOrigin: "http://localhost:5173"}

	v, err := NewCaptcha(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, captcha.DevVerifier{}, v)

	cfg.CaptchaEnabled = true
	_, err = NewCaptcha(cfg, zap.NewNop())
	assert.Error(t, err, "enabled captcha without a secret")

	d, err := NewMailer(cfg, zap.NewNop())
	require.NoError(t, err)
	d.Close()

	cfg.EmailEnabled = true
	_, err = NewMailer(cfg, zap.NewNop())
	assert.Error(t, err, "email enabled without SMTP host")
}
