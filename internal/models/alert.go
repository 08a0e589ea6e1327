package models

import "time"

// Kind classifies why a notification goes out for an alert.
type Kind string

const (
	KindNew     Kind = "new"
	KindUpdate  Kind = "update"
	KindExpires Kind = "expires"
)

// Alert is one normalized record from the active-alerts feed, keyed by
// the feed's stable ID. Re-ingesting the same ID overwrites fields in
// place; rows are never deleted, they just age out past Expires.
type Alert struct {
	ID          string // stable ID from the feed, primary key
	Event       string
	Headline    string
	Description string
	Instruction string
	Response    string
	SenderName  string
	AreaDesc    string
	Status      string
	MessageType string
	Category    string
	Severity    string
	Certainty   string
	Urgency     string

	// Geocodes holds the feed's SAME codes for the affected areas.
	// Entries may carry a leading pad digit; matching always compares
	// the last five characters.
	Geocodes   []string
	Parameters map[string][]string

	// Feed timestamps. nil means the feed omitted the field or sent
	// text that did not parse.
	Sent      *time.Time
	Effective *time.Time
	Onset     *time.Time
	Expires   *time.Time
	Ends      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the alert's expiry has passed. Alerts with
// no expiry never report expired.
func (a *Alert) Expired(now time.Time) bool {
	return a.Expires != nil && a.Expires.Before(now)
}
