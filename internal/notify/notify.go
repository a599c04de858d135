// Package notify turns domain events into renter receipts and owner emails.
// Delivery is best-effort: a failed email never blocks or undoes
// the booking mutation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers notifications.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// ConsoleNotifier logs notifications instead of sending them. Used in
// development and as the fallback when SMTP is not configured.
type ConsoleNotifier struct {
	logger *slog.Logger
}

// NewConsoleNotifier creates a console notifier.
func NewConsoleNotifier(logger *slog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

// Send logs the message.
func (n *ConsoleNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// SMTPConfig holds mail delivery configuration.
type SMTPConfig struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM" default:"bookings@rentals.example"`
	OwnerTo  string `envconfig:"OWNER_EMAIL"`
}

// Configured reports whether SMTP delivery can be used.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPNotifier delivers notifications over SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

// Send delivers the message.
func (n *SMTPNotifier) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}

	n.logger.Debug("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
