package dispatch

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// SMTPConfig identifies the outgoing mail account.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers follow-up emails over SMTP with a multipart
// text+HTML body.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send delivers the email. The context deadline is honored only up to the
// blocking SendMail call; SMTP itself has no cancellation hook.
func (s *SMTPSender) Send(ctx context.Context, p *types.EmailPayload) error {
	if p.To == "" {
		return fmt.Errorf("email has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fromName := p.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}
	msg := buildMessage(s.cfg.From, fromName, p)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{p.To}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

const mimeBoundary = "=_autopilot_alt"

func buildMessage(fromAddr, fromName string, p *types.EmailPayload) []byte {
	var b strings.Builder

	from := fromAddr
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", p.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", p.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	text := p.BodyText
	if text == "" {
		text = p.Body
	}

	if p.BodyHTML != "" {
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary)
		fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(text)
		fmt.Fprintf(&b, "\r\n--%s\r\n", mimeBoundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(p.BodyHTML)
		fmt.Fprintf(&b, "\r\n--%s--\r\n", mimeBoundary)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(text)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
