package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them. The body
// contains the reset link, so never use it in production.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email not sent (dev mode)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
		zap.String("html", msg.HTML),
	)
	return nil
}

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds dialing and each SMTP command. Defaults to 15s.
	Timeout time.Duration
}

// SMTPSender delivers through an SMTP relay with PLAIN auth. Port 465 uses
// implicit TLS; other ports require STARTTLS unless the relay is on
// localhost.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, msgs ...*gomail.Msg) error
	now     func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(tlsPolicy(cfg.Host)),
	}
	if cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, deliver: client.DialAndSendWithContext, now: time.Now}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return errors.New("mail: recipient is required")
	}
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("mail: send via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	return nil
}

// compose builds a multipart/alternative message when both bodies are set.
func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("mail: from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now())
	m.SetMessageID()

	hasText := strings.TrimSpace(msg.Text) != ""
	hasHTML := strings.TrimSpace(msg.HTML) != ""
	switch {
	case hasText && hasHTML:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case hasHTML:
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

func tlsPolicy(host string) gomail.TLSPolicy {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return gomail.TLSOpportunistic
	}
	return gomail.TLSMandatory
}
