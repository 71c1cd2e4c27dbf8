// Package notify delivers payslips to employees after a payroll run.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Attachment is a file carried with an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer sends a single message. Implementations are safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string, attachments ...Attachment) error
}

// SMTPConfig carries the mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool
	From     string
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, to, subject, body string, attachments ...Attachment) error {
	return nil
}

// NewMailer returns an SMTP mailer, or a no-op one when no host is
// configured so callers never need to branch.
func NewMailer(cfg SMTPConfig) Mailer {
	if cfg.Host == "" {
		return noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

type smtpMailer struct {
	cfg SMTPConfig
}

func (s *smtpMailer) Send(ctx context.Context, to, subject, body string, attachments ...Attachment) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := buildMessage(s.cfg.From, to, subject, body, attachments)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}
	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

const mimeBoundary = "payroll-mime-boundary"

func buildMessage(from, to, subject, body string, attachments []Attachment) []byte {
	var b strings.Builder
	write := func(lines ...string) {
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\r\n")
		}
	}
	write(
		"From: "+from,
		"To: "+to,
		"Subject: "+subject,
		"MIME-Version: 1.0",
	)
	if len(attachments) == 0 {
		write(`Content-Type: text/plain; charset="UTF-8"`, "")
		b.WriteString(body)
		return []byte(b.String())
	}
	write(
		`Content-Type: multipart/mixed; boundary="`+mimeBoundary+`"`,
		"",
		"--"+mimeBoundary,
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		body,
	)
	for _, att := range attachments {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		write(
			"--"+mimeBoundary,
			"Content-Type: "+att.ContentType,
			"Content-Transfer-Encoding: base64",
			`Content-Disposition: attachment; filename="`+att.Filename+`"`,
			"",
		)
		// RFC 2045 line length limit.
		for len(encoded) > 76 {
			write(encoded[:76])
			encoded = encoded[76:]
		}
		write(encoded)
	}
	write("--" + mimeBoundary + "--")
	return []byte(b.String())
}
