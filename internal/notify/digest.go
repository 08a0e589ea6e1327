package notify

import (
	"fmt"
	"strings"

	"github.com/stormsignal/weather-notify/internal/models"
)

// Digest is one combined notification covering every alert in a
// subscriber's batch for one cycle. A single county can produce dozens
// of simultaneous alerts; one message per cycle keeps that from
// turning into a notification storm.
type Digest struct {
	Subject   string
	EmailBody string
	SMSBody   string
}

func kindHeading(kind models.Kind, n int) string {
	switch kind {
	case models.KindUpdate:
		return fmt.Sprintf("%d weather alert(s) for your area have been updated.", n)
	case models.KindExpires:
		return fmt.Sprintf("%d weather alert(s) for your area are expiring soon.", n)
	default:
		return fmt.Sprintf("%d new weather alert(s) have been issued for your area.", n)
	}
}

func kindSubject(kind models.Kind, n int) string {
	switch kind {
	case models.KindUpdate:
		return fmt.Sprintf("Weather Alert Update (%d)", n)
	case models.KindExpires:
		return fmt.Sprintf("Weather Alerts Expiring Soon (%d)", n)
	default:
		return fmt.Sprintf("New Weather Alerts (%d)", n)
	}
}

func kindWord(kind models.Kind) string {
	switch kind {
	case models.KindUpdate:
		return "updated"
	case models.KindExpires:
		return "expiring"
	default:
		return "new"
	}
}

// BuildDigest renders the combined email and SMS bodies for one batch.
// The email lists every alert; the SMS is a fixed short summary because
// carriers truncate long messages, so it never embeds per-alert detail.
func BuildDigest(alerts []models.Alert, kind models.Kind, link string) Digest {
	var b strings.Builder
	b.WriteString(kindHeading(kind, len(alerts)))
	b.WriteString("\n\n")

	for _, a := range alerts {
		expires := "unknown"
		if a.Expires != nil {
			expires = a.Expires.Format("Mon Jan 2 15:04 MST")
		}
		fmt.Fprintf(&b, "Alert Type: %s\n", a.Event)
		fmt.Fprintf(&b, "Area: %s\n", a.AreaDesc)
		fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
		fmt.Fprintf(&b, "Expires: %s\n", expires)
		fmt.Fprintf(&b, "Details: %s\n\n", link)
	}

	sms := fmt.Sprintf("You have %d %s weather alert(s). View here: %s",
		len(alerts), kindWord(kind), link)

	return Digest{
		Subject:   kindSubject(kind, len(alerts)),
		EmailBody: b.String(),
		SMSBody:   sms,
	}
}
