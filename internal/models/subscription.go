package models

import "time"

// NotificationType is a subscriber's lifecycle preference. "all"
// receives every kind.
const (
	NotifyNew     = "new"
	NotifyUpdate  = "update"
	NotifyExpires = "expires"
	NotifyAll     = "all"
)

// ValidNotificationType reports whether s is an accepted preference.
func ValidNotificationType(s string) bool {
	switch s {
	case NotifyNew, NotifyUpdate, NotifyExpires, NotifyAll:
		return true
	}
	return false
}

// Subscription ties a user's contact details to one (state, county)
// area. A subscription whose area cannot be resolved to a reference
// code is skipped during matching, never treated as an error.
type Subscription struct {
	ID               string // uuid
	UserEmail        string
	PhoneNumber      string // optional; normalized to E.164 at send time
	State            string
	County           string
	NotificationType string
	CreatedAt        time.Time
}

// WantsKind reports whether this subscription should receive
// notifications of the given kind.
func (s *Subscription) WantsKind(k Kind) bool {
	return s.NotificationType == NotifyAll || s.NotificationType == string(k)
}

// DeliveryRecord marks one attempted notification. The
// (SubscriptionID, AlertID, Kind) triple is the deduplication key: at
// most one record ever exists per triple, and a failed send still
// counts as attempted.
type DeliveryRecord struct {
	SubscriptionID string
	AlertID        string
	Kind           Kind
	SentAt         time.Time
}

// AreaReference maps a (state, county) pair to its 5-digit area code
// (2-digit state FIPS + 3-digit county FIPS). Read-only outside the
// bulk importer.
type AreaReference struct {
	State      string
	County     string
	StateCode  string
	CountyCode string
	AreaCode   string
}

// StormEvent is one historical storm event row from the bulk import,
// used for the county-history endpoints.
type StormEvent struct {
	EventID    int64
	EventType  string
	State      string
	County     string
	BeginYear  int
	BeginMonth int
	EndYear    int
	EndMonth   int
}
