package notify

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/stormsignal/weather-notify/internal/models"
)

// EmailSender delivers one email. Implementations are black boxes to
// the dispatcher: ok or error, nothing else.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one text message to an E.164 number.
type SMSSender interface {
	SendSMS(ctx context.Context, toNumber, text string) error
}

// Outcome reports which channels were attempted and whether each
// succeeded. It exists for logging and metrics only; send failures
// never propagate to the caller.
type Outcome struct {
	EmailAttempted bool
	EmailOK        bool
	SMSAttempted   bool
	SMSOK          bool
}

// Notifier fans one digest out to a subscriber's channels.
type Notifier struct {
	email EmailSender
	sms   SMSSender
}

func NewNotifier(email EmailSender, sms SMSSender) *Notifier {
	return &Notifier{email: email, sms: sms}
}

// Send attempts email and SMS independently. A failure on one channel
// never blocks the other, and neither failure reaches the caller: a
// failed attempt still counts as attempted, so the delivery record is
// written either way and we never retry-storm a permanently bad
// address.
func (n *Notifier) Send(ctx context.Context, sub *models.Subscription, d Digest) Outcome {
	var out Outcome

	if sub.UserEmail != "" {
		out.EmailAttempted = true
		if err := n.email.SendEmail(ctx, sub.UserEmail, d.Subject, d.EmailBody); err != nil {
			slog.Warn("email send failed", "subscription", sub.ID, "error", err)
		} else {
			out.EmailOK = true
		}
	}

	if sub.PhoneNumber != "" {
		if number, ok := NormalizePhone(sub.PhoneNumber); ok {
			out.SMSAttempted = true
			if err := n.sms.SendSMS(ctx, number, d.SMSBody); err != nil {
				slog.Warn("sms send failed", "subscription", sub.ID, "error", err)
			} else {
				out.SMSOK = true
			}
		} else {
			slog.Warn("unusable phone number, skipping sms", "subscription", sub.ID)
		}
	}

	return out
}

// NormalizePhone converts a US phone number to E.164. Ten digits get a
// +1 prefix; numbers already in +1 form pass through unchanged.
// Anything else is not sendable.
func NormalizePhone(s string) (string, bool) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "+1") {
		digits := stripNonDigits(s[2:])
		if len(digits) == 10 {
			return "+1" + digits, true
		}
		return "", false
	}

	digits := stripNonDigits(s)
	switch len(digits) {
	case 10:
		return "+1" + digits, true
	case 11:
		if digits[0] == '1' {
			return "+" + digits, true
		}
	}
	return "", false
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
