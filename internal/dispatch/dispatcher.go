package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/stormsignal/weather-notify/internal/config"
	"github.com/stormsignal/weather-notify/internal/feed"
	"github.com/stormsignal/weather-notify/internal/geo"
	"github.com/stormsignal/weather-notify/internal/models"
	"github.com/stormsignal/weather-notify/internal/notify"
	"github.com/stormsignal/weather-notify/internal/repository"
	"github.com/stormsignal/weather-notify/internal/worker"
)

// FeedClient is the slice of the feed client the dispatcher needs.
type FeedClient interface {
	FetchActiveAlerts(ctx context.Context) ([]feed.RawAlert, error)
}

// Sender is the slice of the notifier the dispatcher needs.
type Sender interface {
	Send(ctx context.Context, sub *models.Subscription, d notify.Digest) notify.Outcome
}

// Store bundles the persistence the dispatcher touches.
type Store interface {
	repository.AlertRepository
	repository.SubscriptionRepository
	repository.DeliveryRepository
}

// Dispatcher runs the fetch -> upsert -> match -> dedupe -> notify
// cycle and the expiry sweep. Cycles are independent units of work:
// each runs to completion or is abandoned whole, and the only shared
// mutable state between overlapping cycles is the delivery table,
// whose unique constraint is the double-send guard.
type Dispatcher struct {
	feed     FeedClient
	store    Store
	matcher  *geo.Matcher
	notifier Sender
	clock    clockwork.Clock
	metrics  *Metrics
	cfg      config.DispatchConfig
	workers  config.WorkerConfig
}

func NewDispatcher(
	feedClient FeedClient,
	store Store,
	matcher *geo.Matcher,
	notifier Sender,
	clock clockwork.Clock,
	metrics *Metrics,
	cfg config.DispatchConfig,
	workers config.WorkerConfig,
) *Dispatcher {
	return &Dispatcher{
		feed:     feedClient,
		store:    store,
		matcher:  matcher,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		cfg:      cfg,
		workers:  workers,
	}
}

// RunCycle executes one dispatch cycle. A fetch failure aborts the
// whole cycle with nothing committed; the next scheduled run is the
// retry. Everything past the fetch recovers locally: a bad alert or a
// failed send never takes the batch down.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	start := d.clock.Now()
	d.metrics.CyclesTotal.Inc()

	raws, err := d.feed.FetchActiveAlerts(ctx)
	if err != nil {
		d.metrics.FetchErrors.Inc()
		slog.Error("dispatch cycle aborted, feed fetch failed", "error", err)
		return err
	}

	batches := map[models.Kind][]models.Alert{}
	for _, raw := range raws {
		alert, isNew, err := d.store.Upsert(ctx, raw)
		if err != nil {
			slog.Error("alert upsert failed", "id", raw.ID, "error", err)
			continue
		}
		if isNew {
			d.metrics.AlertsIngested.WithLabelValues("new").Inc()
			batches[models.KindNew] = append(batches[models.KindNew], *alert)
		} else {
			d.metrics.AlertsIngested.WithLabelValues("updated").Inc()
			batches[models.KindUpdate] = append(batches[models.KindUpdate], *alert)
		}
	}

	if err := d.notifyAll(ctx, batches); err != nil {
		return err
	}

	d.metrics.CycleDuration.Observe(d.clock.Since(start).Seconds())
	slog.Info("dispatch cycle complete",
		"fetched", len(raws),
		"new", len(batches[models.KindNew]),
		"updated", len(batches[models.KindUpdate]),
		"duration", d.clock.Since(start))
	return nil
}

// RunExpirySweep notifies subscribers about alerts expiring within the
// configured lookahead window. Alerts already past expiry are not
// included.
func (d *Dispatcher) RunExpirySweep(ctx context.Context) error {
	now := d.clock.Now()
	expiring, err := d.store.ListExpiring(ctx, now, now.Add(d.cfg.ExpiryLookahead))
	if err != nil {
		slog.Error("expiry sweep aborted", "error", err)
		return err
	}
	if len(expiring) == 0 {
		return nil
	}

	slog.Info("expiry sweep", "expiring", len(expiring), "lookahead", d.cfg.ExpiryLookahead)
	return d.notifyAll(ctx, map[models.Kind][]models.Alert{
		models.KindExpires: expiring,
	})
}

// BackfillSubscription delivers currently-active matching alerts to a
// freshly created subscription as "new", so new subscribers see the
// alerts already in flight instead of waiting for the next feed change.
func (d *Dispatcher) BackfillSubscription(ctx context.Context, sub *models.Subscription) {
	active, err := d.store.ListActive(ctx, d.clock.Now(), repository.ActiveFilter{Limit: 500})
	if err != nil {
		slog.Error("backfill failed to list active alerts", "subscription", sub.ID, "error", err)
		return
	}
	if len(active) == 0 {
		return
	}
	d.notifySubscription(ctx, *sub, map[models.Kind][]models.Alert{
		models.KindNew: active,
	})
}

// notifyAll fans the cycle's batches out to every subscription, one
// pool job per subscriber so a hang or panic in one send path cannot
// stall the rest.
func (d *Dispatcher) notifyAll(ctx context.Context, batches map[models.Kind][]models.Alert) error {
	if len(batches[models.KindNew])+len(batches[models.KindUpdate])+len(batches[models.KindExpires]) == 0 {
		return nil
	}

	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("failed to list subscriptions", "error", err)
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	pool := worker.NewPool(d.workers.Count, d.workers.BufferSize, func(ctx context.Context, sub models.Subscription) {
		d.notifySubscription(ctx, sub, batches)
	})
	pool.Start(ctx)
	for _, sub := range subs {
		pool.Submit(sub)
	}
	pool.Drain()
	return nil
}

// kindOrder fixes the per-subscriber processing order so a cycle's new
// and update batches go out deterministically.
var kindOrder = []models.Kind{models.KindNew, models.KindUpdate, models.KindExpires}

func (d *Dispatcher) notifySubscription(ctx context.Context, sub models.Subscription, batches map[models.Kind][]models.Alert) {
	areaCode, ok, err := d.matcher.ResolveAreaCode(ctx, sub.State, sub.County)
	if err != nil {
		slog.Error("area resolution failed", "subscription", sub.ID, "error", err)
		return
	}
	if !ok {
		// Unresolvable area is a quiet skip: the subscription simply
		// cannot match anything yet.
		d.metrics.SubsUnresolved.Inc()
		slog.Debug("subscription area unresolvable",
			"subscription", sub.ID, "state", sub.State, "county", sub.County)
		return
	}

	for _, kind := range kindOrder {
		alerts := batches[kind]
		if len(alerts) == 0 || !sub.WantsKind(kind) {
			continue
		}

		claimed := d.claimAlerts(ctx, &sub, alerts, areaCode, kind)
		if len(claimed) == 0 {
			continue
		}

		digest := notify.BuildDigest(claimed, kind, d.cfg.AlertsURL)
		outcome := d.notifier.Send(ctx, &sub, digest)
		d.observeOutcome(outcome, kind, len(claimed))
	}
}

// claimAlerts filters one kind's batch down to the alerts this
// subscriber should receive and claims each (subscriber, alert, kind)
// triple before anything is sent. Claiming first is what makes delivery
// at-most-once: when two overlapping units of work race for the same
// triple, only one wins the insert and the loser drops the alert from
// its digest. A claimed alert whose send later fails is not retried;
// the failure is logged and counted instead.
func (d *Dispatcher) claimAlerts(ctx context.Context, sub *models.Subscription, alerts []models.Alert, areaCode string, kind models.Kind) []models.Alert {
	now := d.clock.Now()
	var claimed []models.Alert
	for _, a := range alerts {
		if !geo.Matches(&a, areaCode) {
			continue
		}
		// An alert can age out between ingestion and delivery; a dead
		// alert never goes out, whatever kind the batch carries.
		if a.Expired(now) {
			continue
		}
		won, err := d.store.Claim(ctx, models.DeliveryRecord{
			SubscriptionID: sub.ID,
			AlertID:        a.ID,
			Kind:           kind,
			SentAt:         now,
		})
		if err != nil {
			slog.Error("delivery claim failed",
				"subscription", sub.ID, "alert", a.ID, "kind", kind, "error", err)
			continue
		}
		if !won {
			continue
		}
		claimed = append(claimed, a)
	}
	return claimed
}

func (d *Dispatcher) observeOutcome(out notify.Outcome, kind models.Kind, size int) {
	d.metrics.DigestsSent.WithLabelValues(string(kind)).Inc()
	d.metrics.DigestSize.Observe(float64(size))
	if out.EmailAttempted && !out.EmailOK {
		d.metrics.SendFailures.WithLabelValues("email").Inc()
	}
	if out.SMSAttempted && !out.SMSOK {
		d.metrics.SendFailures.WithLabelValues("sms").Inc()
	}
}

// Interval helpers for the cron registration in main.
func (d *Dispatcher) PollInterval() time.Duration  { return d.cfg.PollInterval }
func (d *Dispatcher) SweepInterval() time.Duration { return d.cfg.SweepInterval }
