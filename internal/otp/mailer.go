package otp

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"sync"
)

// Mailer dispatches a single message. The SMTP implementation backs
// production; RecordingMailer backs tests and test mode.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through a plain-auth SMTP relay with STARTTLS.
type SMTPMailer struct {
	Host     string
	Port     string
	From     string
	Password string
}

// SMTPMailerFromEnv builds a mailer from SMTP_* env vars. Returns nil when
// no host is configured; the caller decides what to fall back to.
func SMTPMailerFromEnv() *SMTPMailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		From:     os.Getenv("SMTP_FROM"),
		Password: os.Getenv("SMTP_PASSWORD"),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.From, to, subject, body)
	auth := smtp.PlainAuth("", m.From, m.Password, m.Host)
	// smtp.SendMail negotiates STARTTLS when the server offers it
	return smtp.SendMail(m.Host+":"+m.Port, auth, m.From, []string{to}, []byte(msg))
}

// RecordingMailer captures outgoing messages instead of sending them.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []RecordedMessage
	Err  error // returned from Send when non-nil
}

type RecordedMessage struct {
	To      string
	Subject string
	Body    string
}

func (m *RecordingMailer) Send(_ context.Context, to, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.sent = append(m.sent, RecordedMessage{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of everything captured so far.
func (m *RecordingMailer) Sent() []RecordedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedMessage(nil), m.sent...)
}
