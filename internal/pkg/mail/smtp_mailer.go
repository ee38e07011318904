package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/internal/pkg/env"
)

// DefaultSender is used when no valid sender address is configured.
const DefaultSender = "no-reply@localhost"

// Mailer delivers a single message. Implementations must return within a
// bounded time or fail.
type Mailer interface {
	Send(to string, subject string, htmlBody string, headers []string) error
}

// SMTPMailer sends emails via SMTP
type SMTPMailer struct{}

// NewSMTPMailer creates the default SMTP-backed mailer
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

// Send delivers one HTML mail over SMTP. Extra headers are written after the
// defaults, so callers can add e.g. Reply-To or List-Unsubscribe lines.
func (m *SMTPMailer) Send(to string, subject string, htmlBody string, headers []string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := SenderAddress()

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	for _, h := range headers {
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			continue
		}
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	err := smtp.SendMail(addr, auth, sender, []string{to}, []byte(b.String()))
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SenderAddress resolves the From address: the configured sender when it is
// a valid email, otherwise the system default.
func SenderAddress() string {
	sender := models.GetAppSettings().GetSenderEmail()
	if sender == "" {
		sender = env.GetEnv("SMTP_SENDER", "")
	}
	if sender == "" {
		return DefaultSender
	}
	if err := validator.New().Var(sender, "email"); err != nil {
		log.Printf("Configured sender %q is not a valid email, using default sender: %s", sender, DefaultSender)
		return DefaultSender
	}
	return sender
}

// SendMail keeps the package-level convenience used by callers that do not
// inject a Mailer.
func SendMail(to string, subject string, body string) error {
	return NewSMTPMailer().Send(to, subject, body, nil)
}
