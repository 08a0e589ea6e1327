package repository

import (
	"context"
	"time"

	"github.com/stormsignal/weather-notify/internal/feed"
	"github.com/stormsignal/weather-notify/internal/models"
)

// ActiveFilter narrows ListActive results. Zero values mean "no
// filter"; Limit <= 0 falls back to a default.
type ActiveFilter struct {
	Area     string // substring match on area_desc
	Severity string // exact, case-insensitive
	Urgency  string // exact, case-insensitive
	Limit    int
}

// YearCount is the number of historical storm events in one year.
type YearCount struct {
	Year  int `json:"year"`
	Total int `json:"total"`
}

// TypeCount is the number of historical storm events of one type.
type TypeCount struct {
	EventType string `json:"event_type"`
	Total     int    `json:"total"`
}

type AlertRepository interface {
	// Upsert stores one raw alert keyed by its stable feed ID. It
	// returns isNew=true only on first sight of that ID; any later
	// call with the same ID updates fields in place and returns
	// isNew=false.
	Upsert(ctx context.Context, raw feed.RawAlert) (*models.Alert, bool, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	// ListActive returns unexpired, non-test alerts, newest first.
	ListActive(ctx context.Context, now time.Time, f ActiveFilter) ([]models.Alert, error)
	// ListExpiring returns alerts whose expiry falls in (from, to].
	ListExpiring(ctx context.Context, from, to time.Time) ([]models.Alert, error)
}

type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	ListSubscriptionsByEmail(ctx context.Context, email string) ([]models.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// DeliveryRepository is the deduplication gate. The composite primary
// key on (subscription, alert, kind) is what keeps two overlapping
// cycles from double-sending.
type DeliveryRepository interface {
	AlreadySent(ctx context.Context, subID, alertID string, kind models.Kind) (bool, error)
	// Claim atomically inserts the delivery marker and reports whether
	// this caller won the triple. Exactly one caller ever wins; losers
	// get false, never an error.
	Claim(ctx context.Context, rec models.DeliveryRecord) (bool, error)
}

type AreaRepository interface {
	// ResolveArea looks up the reference row for a (state, county)
	// pair, case-insensitively. ok=false means no row exists and the
	// pair is unresolvable.
	ResolveArea(ctx context.Context, state, county string) (models.AreaReference, bool, error)
	UpsertAreaRef(ctx context.Context, ref models.AreaReference) error
	UpsertStormEvents(ctx context.Context, events []models.StormEvent) (int64, error)
	ListCounties(ctx context.Context, state string) ([]string, error)
	EventsPerYear(ctx context.Context, state, county string) ([]YearCount, error)
	EventsPerType(ctx context.Context, state, county string) ([]TypeCount, error)
}
