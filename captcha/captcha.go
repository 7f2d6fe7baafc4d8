// Package captcha verifies human-verification tokens for registration.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrCaptchaFailed is returned for any token that did not verify.
var ErrCaptchaFailed = errors.New("captcha: verification failed")

// Verifier matches nickauth.CaptchaVerifier.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// DevVerifier accepts every token. Use it when captcha is switched off.
type DevVerifier struct {
	Logger *zap.Logger
}

func (v DevVerifier) Verify(_ context.Context, token, remoteIP string) error {
	if v.Logger != nil {
		v.Logger.Info("captcha auto-pass (dev mode)",
			zap.Bool("token_present", token != ""),
			zap.String("remote_ip", remoteIP),
		)
	}
	return nil
}

const (
	RecaptchaURL = "https://www.google.com/recaptcha/api/siteverify"
	HCaptchaURL  = "https://api.hcaptcha.com/siteverify"
)

// SiteConfig configures a siteverify endpoint.
type SiteConfig struct {
	Secret string
	// VerifyURL defaults to RecaptchaURL.
	VerifyURL string
	// MinScore rejects reCAPTCHA v3 answers scoring below it. Zero
	// disables the check.
	MinScore   float64
	Timeout    time.Duration
	RetryCount int
}

type siteResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// SiteVerifier checks tokens against a reCAPTCHA or hCaptcha compatible
// siteverify endpoint.
type SiteVerifier struct {
	client *resty.Client
	cfg    SiteConfig
	logger *zap.Logger
}

func NewSiteVerifier(cfg SiteConfig, logger *zap.Logger) (*SiteVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("captcha: secret is required")
	}
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = RecaptchaURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &SiteVerifier{
		client: client,
		cfg:    cfg,
		logger: logger.Named("captcha"),
	}, nil
}

func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token missing", ErrCaptchaFailed)
	}

	form := map[string]string{
		"secret":   v.cfg.Secret,
		"response": token,
	}
	if remoteIP != "" {
		form["remoteip"] = remoteIP
	}

	var out siteResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		Post(v.cfg.VerifyURL)
	if err != nil {
		v.logger.Warn("siteverify call failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	if resp.IsError() {
		v.logger.Warn("siteverify answered error status", zap.Int("status", resp.StatusCode()))
		return fmt.Errorf("%w: status %d", ErrCaptchaFailed, resp.StatusCode())
	}
	if !out.Success {
		v.logger.Info("captcha rejected", zap.Strings("error_codes", out.ErrorCodes))
		return fmt.Errorf("%w: %s", ErrCaptchaFailed, strings.Join(out.ErrorCodes, ","))
	}
	if v.cfg.MinScore > 0 && out.Score != nil && *out.Score < v.cfg.MinScore {
		v.logger.Info("captcha score below threshold", zap.Float64("score", *out.Score))
		return fmt.Errorf("%w: score %.2f", ErrCaptchaFailed, *out.Score)
	}
	return nil
}
