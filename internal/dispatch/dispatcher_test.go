package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormsignal/weather-notify/internal/config"
	"github.com/stormsignal/weather-notify/internal/feed"
	"github.com/stormsignal/weather-notify/internal/geo"
	"github.com/stormsignal/weather-notify/internal/models"
	"github.com/stormsignal/weather-notify/internal/notify"
	"github.com/stormsignal/weather-notify/internal/repository"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	alerts []feed.RawAlert
	err    error
}

func (f *fakeFeed) FetchActiveAlerts(ctx context.Context) ([]feed.RawAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts, nil
}

type sentDigest struct {
	subID  string
	digest notify.Digest
}

type fakeSender struct {
	mu    sync.Mutex
	delay time.Duration // widens race windows in concurrency tests
	sends []sentDigest
}

func (f *fakeSender) Send(_ context.Context, sub *models.Subscription, d notify.Digest) notify.Outcome {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentDigest{subID: sub.ID, digest: d})
	return notify.Outcome{EmailAttempted: true, EmailOK: true}
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type harness struct {
	dispatcher *Dispatcher
	db         *repository.SQLiteDB
	feed       *fakeFeed
	sender     *fakeSender
	clock      *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertAreaRef(ctx, models.AreaReference{
		State: "TX", County: "Randall", StateCode: "48", CountyCode: "381", AreaCode: "48381",
	}))
	require.NoError(t, db.UpsertAreaRef(ctx, models.AreaReference{
		State: "TX", County: "Potter", StateCode: "48", CountyCode: "375", AreaCode: "48375",
	}))

	ff := &fakeFeed{}
	fs := &fakeSender{}
	clock := clockwork.NewFakeClockAt(baseTime)

	d := NewDispatcher(
		ff, db, geo.NewMatcher(db), fs, clock,
		NewMetrics(prometheus.NewRegistry()),
		config.DispatchConfig{
			ExpiryLookahead: 30 * time.Minute,
			AlertsURL:       "https://example.com/alerts",
		},
		config.WorkerConfig{Count: 2, BufferSize: 16},
	)

	return &harness{dispatcher: d, db: db, feed: ff, sender: fs, clock: clock}
}

func (h *harness) addSubscription(t *testing.T, id, state, county, notifType string) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:               id,
		UserEmail:        id + "@example.com",
		State:            state,
		County:           county,
		NotificationType: notifType,
		CreatedAt:        baseTime,
	}
	require.NoError(t, h.db.CreateSubscription(context.Background(), sub))
	return sub
}

func rawAlert(id, event string, geocodes []string, expires time.Time) feed.RawAlert {
	return feed.RawAlert{
		ID:       id,
		Event:    event,
		AreaDesc: "Randall, TX",
		Severity: "Severe",
		Geocodes: geocodes,
		Sent:     baseTime.Format(time.RFC3339),
		Expires:  expires.Format(time.RFC3339),
	}
}

func TestRunCycle_NewAlertDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub := h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyNew)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))

	require.Equal(t, 1, h.sender.count())
	assert.Equal(t, sub.ID, h.sender.sends[0].subID)
	assert.Contains(t, h.sender.sends[0].digest.EmailBody, "Flood Warning")

	sent, err := h.db.AlreadySent(ctx, sub.ID, "alert-1", models.KindNew)
	require.NoError(t, err)
	assert.True(t, sent)

	// Second identical cycle: the alert is now an update, the
	// subscriber only wants "new", so nothing more goes out.
	require.NoError(t, h.dispatcher.RunCycle(ctx))
	assert.Equal(t, 1, h.sender.count(), "second identical cycle must not re-send")
}

func TestRunCycle_GeocodeLastFiveNormalization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyAll)
	h.feed.alerts = []feed.RawAlert{
		// Six-digit padded code for Randall (48381): must match.
		rawAlert("alert-padded", "Flood Warning", []string{"048381"}, baseTime.Add(time.Hour)),
		// Neighboring county: must not match.
		rawAlert("alert-other", "Flood Warning", []string{"048382"}, baseTime.Add(time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))

	require.Equal(t, 1, h.sender.count())
	d := h.sender.sends[0].digest
	assert.Contains(t, d.Subject, "(1)")

	sent, err := h.db.AlreadySent(ctx, "sub-randall", "alert-other", models.KindNew)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestRunCycle_FetchFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyAll)
	h.feed.err = &feed.FetchError{URL: "x", Err: errors.New("connection refused")}

	err := h.dispatcher.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, h.sender.count(), "no partial sends on fetch failure")
}

func TestRunCycle_TestAlertNeverDelivered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub := h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyAll)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-test", "Required Monthly TEST", []string{"048381"}, baseTime.Add(time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))

	assert.Equal(t, 0, h.sender.count())
	sent, err := h.db.AlreadySent(ctx, sub.ID, "alert-test", models.KindNew)
	require.NoError(t, err)
	assert.False(t, sent, "test alerts must never produce a delivery record")
}

func TestRunCycle_UpdateKindSentOncePerAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyAll)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx)) // kind=new
	require.NoError(t, h.dispatcher.RunCycle(ctx)) // kind=update, first time
	require.NoError(t, h.dispatcher.RunCycle(ctx)) // kind=update, already sent

	assert.Equal(t, 2, h.sender.count(), "one new digest and one update digest, never more")

	sentUpdate, err := h.db.AlreadySent(ctx, "sub-randall", "alert-1", models.KindUpdate)
	require.NoError(t, err)
	assert.True(t, sentUpdate)
}

func TestRunCycle_BatchesMultipleAlertsIntoOneDigest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyNew)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(time.Hour)),
		rawAlert("alert-2", "Tornado Watch", []string{"048381"}, baseTime.Add(2*time.Hour)),
		rawAlert("alert-3", "Severe Thunderstorm Warning", []string{"048381"}, baseTime.Add(time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))

	require.Equal(t, 1, h.sender.count(), "all matching alerts batch into one digest per cycle")
	d := h.sender.sends[0].digest
	assert.Contains(t, d.Subject, "(3)")
	assert.Contains(t, d.EmailBody, "Tornado Watch")
	assert.Contains(t, d.SMSBody, "You have 3 new weather alert(s).")
}

func TestRunCycle_UnresolvableSubscriptionSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// No reference row exists for this county.
	h.addSubscription(t, "sub-nowhere", "TX", "Atlantis", models.NotifyAll)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx), "unresolvable area is a skip, not an error")
	assert.Equal(t, 0, h.sender.count())
}

func TestRunCycle_KindPreferenceFiltering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-updates-only", "TX", "Randall", models.NotifyUpdate)
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))
	assert.Equal(t, 0, h.sender.count(), "update-only subscriber ignores new alerts")

	require.NoError(t, h.dispatcher.RunCycle(ctx))
	assert.Equal(t, 1, h.sender.count(), "re-ingestion classifies as update")
	assert.Contains(t, h.sender.sends[0].digest.Subject, "Update")
}

func TestRunExpirySweep_WindowBoundaries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyExpires)

	// Seed alerts through the store: one expiring inside the 30-minute
	// window, one outside, one already expired.
	for _, raw := range []feed.RawAlert{
		rawAlert("alert-soon", "Flood Warning", []string{"048381"}, baseTime.Add(20*time.Minute)),
		rawAlert("alert-later", "Flood Warning", []string{"048381"}, baseTime.Add(40*time.Minute)),
		rawAlert("alert-past", "Flood Warning", []string{"048381"}, baseTime.Add(-10*time.Minute)),
	} {
		_, _, err := h.db.Upsert(ctx, raw)
		require.NoError(t, err)
	}

	require.NoError(t, h.dispatcher.RunExpirySweep(ctx))

	require.Equal(t, 1, h.sender.count())
	d := h.sender.sends[0].digest
	assert.Contains(t, d.Subject, "Expiring")
	assert.Contains(t, d.Subject, "(1)")

	sent, err := h.db.AlreadySent(ctx, "sub-randall", "alert-soon", models.KindExpires)
	require.NoError(t, err)
	assert.True(t, sent)

	for _, id := range []string{"alert-later", "alert-past"} {
		sent, err := h.db.AlreadySent(ctx, "sub-randall", id, models.KindExpires)
		require.NoError(t, err)
		assert.False(t, sent, "alert %s must stay outside the sweep window", id)
	}

	// Re-running the sweep stays quiet thanks to the dedup gate.
	require.NoError(t, h.dispatcher.RunExpirySweep(ctx))
	assert.Equal(t, 1, h.sender.count())
}

func TestOverlappingDeliveriesSendOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.db.Upsert(ctx, rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)))
	require.NoError(t, err)
	sub := h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyNew)

	// Two units of work race for the same (subscriber, alert, new)
	// triple, as when a startup cycle overlaps a backfill. The slow
	// sender keeps both in flight at once; the claim must still admit
	// exactly one.
	h.sender.delay = 20 * time.Millisecond
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.dispatcher.BackfillSubscription(ctx, sub)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.sender.count(), "racing deliveries must collapse to one send per triple")

	sent, err := h.db.AlreadySent(ctx, sub.ID, "alert-1", models.KindNew)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestRunCycle_ExpiredAlertNotDelivered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSubscription(t, "sub-randall", "TX", "Randall", models.NotifyAll)
	h.feed.alerts = []feed.RawAlert{
		// Still present in the feed but already past expiry.
		rawAlert("alert-dead", "Flood Warning", []string{"048381"}, baseTime.Add(-10*time.Minute)),
	}

	require.NoError(t, h.dispatcher.RunCycle(ctx))
	assert.Equal(t, 0, h.sender.count(), "expired alerts never go out")
}

func TestBackfillSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.db.Upsert(ctx, rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)))
	require.NoError(t, err)

	sub := h.addSubscription(t, "sub-late", "TX", "Randall", models.NotifyNew)
	h.dispatcher.BackfillSubscription(ctx, sub)

	require.Equal(t, 1, h.sender.count(), "new subscriber gets currently-active alerts as new")
	sent, err := h.db.AlreadySent(ctx, sub.ID, "alert-1", models.KindNew)
	require.NoError(t, err)
	assert.True(t, sent)

	// The next regular cycle re-ingests the same alert as an update;
	// a new-only subscriber hears nothing further.
	h.feed.alerts = []feed.RawAlert{
		rawAlert("alert-1", "Flood Warning", []string{"048381"}, baseTime.Add(6*time.Hour)),
	}
	require.NoError(t, h.dispatcher.RunCycle(ctx))
	assert.Equal(t, 1, h.sender.count())
}
