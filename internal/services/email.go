package services

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAlerter mails flagged snapshot reviews to recruiters. Without SMTP
// credentials it runs in dev mode and only logs the message.
type EmailAlerter struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	to       []string
	devMode  bool
	sendMail sendMailFunc
}

func NewEmailAlerter(host, port, user, pass, from string, to []string) *EmailAlerter {
	devMode := host == "" || user == ""
	if devMode {
		log.Warn().Msg("email alerts running in dev mode (logging only)")
	}
	return &EmailAlerter{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		from:     from,
		to:       to,
		devMode:  devMode,
		sendMail: smtp.SendMail,
	}
}

func (s *EmailAlerter) SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("Snapshot flagged in session %s", ev.SessionID)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; padding: 32px;">
    <h2 style="margin: 0 0 16px; font-size: 20px; color: #1e293b;">Proctoring alert</h2>
    <p style="color: #64748b; font-size: 14px; line-height: 1.6;">%s</p>
  </div>
</body>
</html>`, strings.ReplaceAll(html.EscapeString(formatFlaggedAlert(ev)), "\n", "<br>"))

	return s.sendHTML(subject, body)
}

func (s *EmailAlerter) sendHTML(subject, htmlBody string) error {
	if s.devMode {
		log.Info().Strs("to", s.to).Str("subject", subject).Msg("dev email")
		return nil
	}
	if len(s.to) == 0 {
		return fmt.Errorf("no alert recipients configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", strings.Join(s.to, ", ")),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := s.sendMail(addr, auth, s.from, s.to, []byte(message)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	log.Debug().Strs("to", s.to).Str("subject", subject).Msg("alert email sent")
	return nil
}
