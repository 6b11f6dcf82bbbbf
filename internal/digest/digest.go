// Package digest implements the Digest Worker (C9): a second loop,
// independent of the Scheduler but sharing its Store, that turns
// persisted observations into dispatched emails on two triggers — a
// once-daily digest and a ten-minute incremental scan.
package digest

import (
	"context"
	"time"

	"github.com/edevardHvide/golf-availability-bot/internal/events"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/matcher"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

// store is the subset of *store.Store the worker needs.
type store interface {
	AllActivePreferences(ctx context.Context) ([]models.UserPreferences, error)
	LatestObservationsFor(ctx context.Context, prefs models.UserPreferences, daysAhead int) ([]models.Observation, error)
	NewObservationsFor(ctx context.Context, prefs models.UserPreferences, hoursBack int) ([]models.Observation, error)
}

// dispatcher is the subset of *notifier.Notifier the worker needs.
type dispatcher interface {
	Dispatch(ctx context.Context, user models.UserPreferences, matches []models.Observation, kind models.NotificationKind) error
}

const (
	dailyHour                = 7
	dailyMinuteWindow        = 9
	incrementalStep          = 10
	incrementalLookbackHours = 24
	errorBackoff             = 5 * time.Minute
)

// Worker runs the daily/incremental dispatch loop.
type Worker struct {
	store      store
	notifier   dispatcher
	subscriber *events.Subscriber
	log        *logging.Logger

	clock func() time.Time

	lastDaily   time.Time
	pausedUntil time.Time
}

// New builds a Worker. subscriber may be nil, in which case the loop
// relies solely on the 10-minute ticker for incremental scans.
func New(store store, notifier dispatcher, subscriber *events.Subscriber, log *logging.Logger) *Worker {
	return &Worker{store: store, notifier: notifier, subscriber: subscriber, log: log, clock: time.Now}
}

// Run blocks until ctx is cancelled, ticking once a minute and
// additionally waking on pub/sub availability events.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var wakeups <-chan events.DiffSummary
	if w.subscriber != nil {
		wakeups = w.subscriber.Channel(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx)
		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			if w.paused() {
				continue
			}
			if err := w.runIncremental(ctx); err != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.paused() {
		return
	}

	now := w.clock()

	if w.shouldRunDaily(now) {
		if err := w.runDaily(ctx); err != nil {
			w.onError(err)
			return
		}
		w.lastDaily = now
	}

	if now.Minute()%incrementalStep == 0 {
		if err := w.runIncremental(ctx); err != nil {
			w.onError(err)
		}
	}
}

func (w *Worker) paused() bool {
	return w.clock().Before(w.pausedUntil)
}

func (w *Worker) onError(err error) {
	w.log.Error("digest loop error, pausing before retry", map[string]interface{}{"error": err.Error()})
	w.pausedUntil = w.clock().Add(errorBackoff)
}

// shouldRunDaily reports whether the daily digest is due: local hour
// 07, minute <= 09, and not already sent today.
func (w *Worker) shouldRunDaily(now time.Time) bool {
	if now.Hour() != dailyHour || now.Minute() > dailyMinuteWindow {
		return false
	}
	return w.lastDaily.IsZero() || !sameDate(w.lastDaily, now)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// runDaily sends the full daily digest to every active user. lastDaily
// guards against running twice in one process, but Dispatch's own
// sent-notifications check is what makes a restart inside the daily
// window safe: it drops any slot already recorded as sent with kind
// daily (on any day, not only today) instead of re-sending the whole
// digest.
func (w *Worker) runDaily(ctx context.Context) error {
	users, err := w.store.AllActivePreferences(ctx)
	if err != nil {
		return err
	}

	now := w.clock()
	for _, user := range users {
		obs, err := w.store.LatestObservationsFor(ctx, user, user.DaysAhead)
		if err != nil {
			w.log.Warn("skipping daily digest for user after store error", map[string]interface{}{
				"user_email": user.Email, "error": err.Error(),
			})
			continue
		}

		matched := matcher.MatchAll(user, obs, now)
		if err := w.notifier.Dispatch(ctx, user, matched, models.KindDaily); err != nil {
			w.log.Warn("daily dispatch failed for user", map[string]interface{}{
				"user_email": user.Email, "error": err.Error(),
			})
		}
	}

	return nil
}

func (w *Worker) runIncremental(ctx context.Context) error {
	users, err := w.store.AllActivePreferences(ctx)
	if err != nil {
		return err
	}

	now := w.clock()
	for _, user := range users {
		obs, err := w.store.NewObservationsFor(ctx, user, incrementalLookbackHours)
		if err != nil {
			w.log.Warn("skipping incremental scan for user after store error", map[string]interface{}{
				"user_email": user.Email, "error": err.Error(),
			})
			continue
		}

		matched := matcher.MatchAll(user, obs, now)
		if err := w.notifier.Dispatch(ctx, user, matched, models.KindIncremental); err != nil {
			w.log.Warn("incremental dispatch failed for user", map[string]interface{}{
				"user_email": user.Email, "error": err.Error(),
			})
		}
	}

	return nil
}
