// Package scheduler implements the Scheduler (C7): the central cycle
// loop that drives every other component. Each cycle enumerates the
// monitored (club, date) pairs, fetches and parses their booking
// grids, records observations, diffs against the previous cycle,
// matches against every user's preferences, and dispatches digests —
// then sleeps a jittered interval before the next cycle.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/changedetector"
	"github.com/edevardHvide/golf-availability-bot/internal/errs"
	"github.com/edevardHvide/golf-availability-bot/internal/events"
	"github.com/edevardHvide/golf-availability-bot/internal/gridparser"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/matcher"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

const maxBackoffMultiplier = 4

// browserSession is the subset of *browser.Session the Scheduler needs.
type browserSession interface {
	EnsureLoggedIn(ctx context.Context) error
	Fetch(ctx context.Context, url string) (string, error)
}

// store is the subset of *store.Store the Scheduler needs.
type store interface {
	AllActivePreferences(ctx context.Context) ([]models.UserPreferences, error)
	SaveObservations(ctx context.Context, batch []models.Observation) error
	RecordCycle(ctx context.Context, summary models.CycleSummary) error
}

// dispatcher is the subset of *notifier.Notifier the Scheduler needs.
type dispatcher interface {
	Dispatch(ctx context.Context, user models.UserPreferences, matches []models.Observation, kind models.NotificationKind) error
}

// Config holds the tunables read from the environment.
type Config struct {
	CheckInterval time.Duration
	JitterSeconds int
	DaysAhead     int
}

// Scheduler is the central cycle loop.
type Scheduler struct {
	catalog   *catalog.Catalog
	browser   browserSession
	store     store
	detector  *changedetector.Detector
	publisher *events.Publisher // optional; nil disables the wakeup channel
	notifier  dispatcher
	log       *logging.Logger
	cfg       Config

	clock func() time.Time

	runMu sync.Mutex // serializes runCycle against concurrent TriggerNow calls

	backoffMu           sync.Mutex
	consecutiveFailures int
	backoffMultiplier   int
}

// New builds a Scheduler.
func New(cat *catalog.Catalog, browser browserSession, store store, notifier dispatcher, publisher *events.Publisher, cfg Config, log *logging.Logger) *Scheduler {
	return &Scheduler{
		catalog:           cat,
		browser:           browser,
		store:             store,
		detector:          changedetector.New(),
		publisher:         publisher,
		notifier:          notifier,
		cfg:               cfg,
		log:               log,
		clock:             time.Now,
		backoffMultiplier: 1,
	}
}

// Run blocks, executing one cycle, sleeping a jittered interval, and
// repeating until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx, "scheduled"); err != nil {
			s.log.Error("cycle failed", map[string]interface{}{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.nextSleep()):
		}
	}
}

// TriggerNow runs exactly one cycle outside the regular tick, honoring
// every invariant the ticked path does (dedup, backoff bookkeeping,
// cancellation). It serializes against a concurrently running
// ticked cycle rather than racing it.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.runCycle(ctx, "immediate")
}

func (s *Scheduler) runCycle(ctx context.Context, kind string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := s.clock()

	if err := s.browser.EnsureLoggedIn(ctx); err != nil {
		s.recordFailure(ctx, kind, start, err)
		return fmt.Errorf("ensuring login: %w", err)
	}

	courses, err := s.monitoredCourses(ctx)
	if err != nil {
		s.recordFailure(ctx, kind, start, err)
		return fmt.Errorf("deriving monitored courses: %w", err)
	}

	dates := dateRange(s.clock(), s.cfg.DaysAhead)

	var (
		allObservations []models.Observation
		attempted       int
		failed          int
	)

	for _, key := range courses {
		club, err := s.catalog.Lookup(key)
		if err != nil {
			s.log.Warn("monitored course not in catalog, skipping", map[string]interface{}{"course_key": key})
			continue
		}

		for _, date := range dates {
			attempted++
			dateStr := date.Format("2006-01-02")

			obs, err := s.fetchOne(ctx, club, date, dateStr)
			if err != nil {
				failed++
				s.log.Warn("skipping course-date after fetch/parse failure", map[string]interface{}{
					"course_key": key, "date": dateStr, "error": err.Error(),
				})
				continue
			}

			allObservations = append(allObservations, obs...)

			seats := make(map[string]int, len(obs))
			for _, o := range obs {
				seats[o.HHMM] = o.SeatsAvailable
			}
			s.detector.Ingest(key, dateStr, seats)

			if err := s.store.SaveObservations(ctx, obs); err != nil {
				s.log.Warn("failed to persist observations", map[string]interface{}{
					"course_key": key, "date": dateStr, "error": err.Error(),
				})
			}
		}
	}

	diffs := s.detector.Diff()
	newSlots := 0
	for key, diff := range diffs {
		newSlots += len(diff.Added) + len(diff.Increased)
		if s.publisher != nil {
			s.publisher.Publish(ctx, events.DiffSummary{
				CourseKey: key.CourseKey,
				Date:      key.Date,
				Added:     len(diff.Added),
				Removed:   len(diff.Removed),
				Increased: len(diff.Increased),
			})
		}
	}

	if err := s.dispatchToUsers(ctx, allObservations); err != nil {
		s.log.Warn("dispatch pass failed", map[string]interface{}{"error": err.Error()})
	}

	summary := models.CycleSummary{
		CheckKind:       kind,
		CoursesChecked:  len(courses),
		DateStart:       formatOrEmpty(dates, 0),
		DateEnd:         formatOrEmpty(dates, len(dates)-1),
		TotalSlots:      len(allObservations),
		NewSlots:        newSlots,
		DurationSeconds: s.clock().Sub(start).Seconds(),
		Success:         attempted == 0 || failed < attempted,
		CheckTimestamp:  s.clock(),
	}
	if err := s.store.RecordCycle(ctx, summary); err != nil {
		s.log.Warn("failed to record cycle summary", map[string]interface{}{"error": err.Error()})
	}

	s.detector.Commit()

	if attempted > 0 && failed == attempted {
		s.onCycleFailure()
	} else {
		s.resetBackoff()
	}

	return nil
}

func (s *Scheduler) fetchOne(ctx context.Context, club catalog.Club, date time.Time, dateStr string) ([]models.Observation, error) {
	url, err := s.catalog.MaterializeURL(club, date, "")
	if err != nil {
		return nil, fmt.Errorf("materializing url: %w", err)
	}

	html, err := s.browser.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	seats, err := gridparser.Parse(html)
	if err != nil {
		return nil, errs.Parse(fmt.Errorf("parsing grid for %s on %s: %w", club.Key, dateStr, err))
	}

	now := s.clock()
	out := make([]models.Observation, 0, len(seats))
	for hhmm, n := range seats {
		out = append(out, models.Observation{
			CourseKey:      club.Key,
			Date:           dateStr,
			HHMM:           hhmm,
			SeatsAvailable: n,
			ObservedAt:     now,
		})
	}
	return out, nil
}

// dispatchToUsers matches every active user's preferences against the
// observations gathered this cycle (both newly changed and still
// standing) and dispatches a digest for any user with non-empty
// matches. Matching the same standing slot across repeated cycles is
// expected here; Dispatch itself drops any (course, date, hhmm) tuple
// already present in the sent-notifications ledger, so only genuinely
// new matches ever reach an email.
func (s *Scheduler) dispatchToUsers(ctx context.Context, observations []models.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	users, err := s.store.AllActivePreferences(ctx)
	if err != nil {
		return fmt.Errorf("loading active preferences: %w", err)
	}

	now := s.clock()
	for _, user := range users {
		matched := matcher.MatchAll(user, observations, now)
		if len(matched) == 0 {
			continue
		}
		if err := s.notifier.Dispatch(ctx, user, matched, models.KindIncremental); err != nil {
			s.log.Warn("dispatch failed for user", map[string]interface{}{
				"user_email": user.Email, "error": err.Error(),
			})
		}
	}

	return nil
}

// monitoredCourses is the union of every active user's selected
// courses, or every catalog entry if no user has selected any.
func (s *Scheduler) monitoredCourses(ctx context.Context) ([]string, error) {
	users, err := s.store.AllActivePreferences(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var keys []string
	for _, user := range users {
		for _, key := range user.SelectedCourses {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	if len(keys) == 0 {
		return s.catalog.Keys(), nil
	}
	return keys, nil
}

func (s *Scheduler) recordFailure(ctx context.Context, kind string, start time.Time, cause error) {
	summary := models.CycleSummary{
		CheckKind:       kind,
		DurationSeconds: s.clock().Sub(start).Seconds(),
		Success:         false,
		Error:           cause.Error(),
		CheckTimestamp:  s.clock(),
	}
	if err := s.store.RecordCycle(ctx, summary); err != nil {
		s.log.Warn("failed to record failed cycle summary", map[string]interface{}{"error": err.Error()})
	}
	s.onCycleFailure()
}

func (s *Scheduler) onCycleFailure() {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()

	s.consecutiveFailures++
	if s.consecutiveFailures >= 3 && s.backoffMultiplier < maxBackoffMultiplier {
		s.backoffMultiplier *= 2
		if s.backoffMultiplier > maxBackoffMultiplier {
			s.backoffMultiplier = maxBackoffMultiplier
		}
		s.consecutiveFailures = 0
	}
}

func (s *Scheduler) resetBackoff() {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()

	s.consecutiveFailures = 0
	s.backoffMultiplier = 1
}

// nextSleep applies the configured jitter to the (possibly
// backed-off) check interval: check_interval ± uniform(-jitter/2, +jitter).
func (s *Scheduler) nextSleep() time.Duration {
	s.backoffMu.Lock()
	multiplier := s.backoffMultiplier
	s.backoffMu.Unlock()

	base := s.cfg.CheckInterval * time.Duration(multiplier)

	jitter := float64(s.cfg.JitterSeconds)
	delta := -jitter/2 + rand.Float64()*jitter*1.5
	offset := time.Duration(delta * float64(time.Second))

	sleep := base + offset
	if sleep < 0 {
		sleep = 0
	}
	return sleep
}

// dateRange returns daysAhead consecutive dates starting today,
// matching the half-open [today, today+daysAhead) window used
// throughout matching.
func dateRange(today time.Time, daysAhead int) []time.Time {
	if daysAhead <= 0 {
		daysAhead = 1
	}
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	out := make([]time.Time, daysAhead)
	for i := 0; i < daysAhead; i++ {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func formatOrEmpty(dates []time.Time, idx int) string {
	if idx < 0 || idx >= len(dates) {
		return ""
	}
	return dates[idx].Format("2006-01-02")
}
