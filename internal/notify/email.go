package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/gofancyever/dify/internal/observability/logger"
)

// SMTPConfig configura el sink de email.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	AdminEmail         string // destinatario de los avisos operativos
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool   // sólo dev
}

// EmailSink notifica por SMTP al admin cuando se crea un workspace.
type EmailSink struct {
	cfg SMTPConfig
}

func NewEmailSink(cfg SMTPConfig) *EmailSink {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &EmailSink{cfg: cfg}
}

func (s *EmailSink) Notify(ctx context.Context, ev Event) error {
	if s.cfg.Host == "" || s.cfg.AdminEmail == "" {
		return nil
	}

	var subject, body string
	switch ev.Type {
	case EventTenantCreated:
		subject = "New workspace created"
		body = fmt.Sprintf("Workspace %q (%s) was created for account %s.",
			ev.TenantName, ev.TenantID, ev.AccountID)
	case EventAccountRegistered:
		subject = "New account registered"
		body = fmt.Sprintf("Account %s (%s) registered via external identity.",
			ev.AccountID, ev.Email)
	default:
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.AdminEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	}
	if s.cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: s.cfg.Host}
	}

	if err := d.DialAndSend(m); err != nil {
		return err
	}
	logger.From(ctx).Debug("notification email sent",
		logger.String("event", ev.Type),
		logger.String("to", s.cfg.AdminEmail),
	)
	return nil
}
