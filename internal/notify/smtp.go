package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stormsignal/weather-notify/internal/config"
)

// SMTPSender delivers email over a plain SMTP relay and doubles as the
// SMS transport by addressing the carrier's email-to-SMS gateway, the
// same path the upstream relay exposes for short texts.
type SMTPSender struct {
	addr       string
	from       string
	auth       smtp.Auth
	smsGateway string

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:       cfg.From,
		auth:       auth,
		smsGateway: cfg.SMSGateway,
		send:       smtp.SendMail,
	}
}

func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.from, to, subject, body)
	if err := s.send(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// SendSMS routes the text through the carrier email gateway. The E.164
// prefix is stripped because gateways address by bare 10-digit number.
func (s *SMTPSender) SendSMS(ctx context.Context, toNumber, text string) error {
	number := strings.TrimPrefix(toNumber, "+1")
	gatewayAddr := fmt.Sprintf("%s@%s", number, s.smsGateway)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\n\r\n%s", s.from, gatewayAddr, text)
	if err := s.send(s.addr, s.auth, s.from, []string{gatewayAddr}, []byte(msg)); err != nil {
		return fmt.Errorf("sms gateway send to %s: %w", gatewayAddr, err)
	}
	return nil
}
