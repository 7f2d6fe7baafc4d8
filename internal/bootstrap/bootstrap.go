// Package bootstrap wires process-level dependencies shared by the server
// and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/captcha"
	"github.com/MrEthical07/nickauth/internal/config"
	"github.com/MrEthical07/nickauth/mail"
	"github.com/MrEthical07/nickauth/store"
	pgstore "github.com/MrEthical07/nickauth/store/postgres"
	redisstore "github.com/MrEthical07/nickauth/store/redis"
)

// KeyPrefix namespaces every Redis key the process writes.
const KeyPrefix = "nickauth"

// Backend is an opened credential store plus the Redis client the rate
// limiters share, if any.
type Backend struct {
	Store store.Store
	// Redis is nil for a Postgres deployment without REDIS_URL.
	Redis redis.UniversalClient
	// Kind is "postgres", "redis" or "memory".
	Kind string

	closers []func() error
}

// Close releases every connection in reverse open order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenBackend picks Postgres when DATABASE_URL is set, then Redis when
// REDIS_URL is set, then an embedded miniredis in development.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.Store = pg
		b.Kind = "postgres"
		b.closers = append(b.closers, pg.Close)
	case b.Redis != nil:
		b.Store = redisstore.New(b.Redis, KeyPrefix)
		b.Kind = "redis"
	default:
		if !cfg.IsDevelopment() {
			return nil, errors.New("DATABASE_URL or REDIS_URL is required outside development")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Redis = client
		b.Store = redisstore.New(client, KeyPrefix)
		b.Kind = "memory"
		b.closers = append(b.closers, client.Close, func() error { mr.Close(); return nil })
		logger.Warn("using embedded in-memory redis; data is lost on exit", zap.String("addr", mr.Addr()))
	}

	logger.Info("credential store ready", zap.String("backend", b.Kind))
	return b, nil
}

// NewCaptcha returns the siteverify client when captcha is enabled and the
// accept-all development verifier otherwise.
func NewCaptcha(cfg *config.Config, logger *zap.Logger) (captcha.Verifier, error) {
	if !cfg.CaptchaEnabled {
		return captcha.DevVerifier{Logger: logger}, nil
	}
	return captcha.NewSiteVerifier(captcha.SiteConfig{
		Secret:     cfg.CaptchaSecret,
		VerifyURL:  cfg.CaptchaVerifyURL,
		MinScore:   cfg.CaptchaMinScore,
		RetryCount: 2,
	}, logger)
}

// NewMailer starts a dispatcher over SMTP when email is enabled, or over
// the log sender otherwise.
func NewMailer(cfg *config.Config, logger *zap.Logger) (*mail.Dispatcher, error) {
	var sender mail.Sender = mail.LogSender{Logger: logger}
	if cfg.EmailEnabled {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	}
	return mail.NewDispatcher(mail.DispatcherConfig{AppOrigin: cfg.AppOrigin}, sender, logger), nil
}
