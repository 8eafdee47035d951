package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"resume-revamp/internal/packaging"
)

// ErrMailerNotConfigured is returned when SMTP credentials are missing.
var ErrMailerNotConfigured = errors.New("smtp credentials not configured")

// Email is one outgoing message.
type Email struct {
	To          string
	Subject     string
	Body        string
	Attachments []packaging.File
}

// Sender delivers an Email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// MailerConfig holds SMTP settings. From doubles as the login user.
type MailerConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// Mailer sends email over SMTP with mandatory STARTTLS and PLAIN auth.
type Mailer struct {
	cfg MailerConfig
}

// NewMailer validates cfg and returns a Mailer.
func NewMailer(cfg MailerConfig) (*Mailer, error) {
	if strings.TrimSpace(cfg.From) == "" || cfg.Password == "" {
		return nil, ErrMailerNotConfigured
	}
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg}, nil
}

// Send dials the server and delivers e.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	msg, err := m.message(e)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.From),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *Mailer) message(e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Body)
	for _, f := range e.Attachments {
		if err := msg.AttachReader(f.Name, bytes.NewReader(f.Data), mail.WithFileContentType(mail.TypeAppOctetStream)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", f.Name, err)
		}
	}
	return msg, nil
}

var _ Sender = (*Mailer)(nil)
