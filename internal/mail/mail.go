// Package mail delivers transactional email for the auth flows.
package mail

import (
	"context"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/kimizuy/taskboard/internal/platform/config"
)

// Mailer sends a single HTML message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Config holds SMTP delivery settings.
type Config struct {
	Host     string `env:"TASKBOARD_SMTP_HOST"`
	Port     int    `env:"TASKBOARD_SMTP_PORT"     envDefault:"587"`
	Username string `env:"TASKBOARD_SMTP_USERNAME"`
	Password string `env:"TASKBOARD_SMTP_PASSWORD"`
	From     string `env:"TASKBOARD_SMTP_FROM"`
	SSL      bool   `env:"TASKBOARD_SMTP_SSL"`
}

// LoadConfigFromEnv reads SMTP configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse smtp env: %w", err)
	}
	return cfg, nil
}

// SMTPMailer delivers mail over an authenticated SMTP connection.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer builds a mailer from SMTP settings.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	options := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.SSL {
		options = append(options, gomail.WithSSLPort(true))
	}

	client, err := gomail.NewClient(cfg.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("new smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send composes and delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer is not configured")
	}

	msg, err := composeMessage(m.from, to, subject, htmlBody)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Close releases any open SMTP connection.
func (m *SMTPMailer) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	err := m.client.Close()
	if err != nil && err != gomail.ErrNoActiveConnection {
		return err
	}
	return nil
}

func composeMessage(from, to, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return msg, nil
}

var _ Mailer = (*SMTPMailer)(nil)
