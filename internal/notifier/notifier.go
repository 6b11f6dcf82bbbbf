// Package notifier implements the Notifier (C8): formats and dispatches
// digest emails, gated by per-user rate limits and the
// already-sent ledger in the Store.
package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

// EmailSender abstracts the transport used to deliver a digest: either
// of the two implementations below selected at construction by
// whether a SendGrid API key is configured.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// recordStore is the subset of *store.Store the Notifier depends on,
// kept narrow so tests can supply a fake.
type recordStore interface {
	CountSentSince(ctx context.Context, email string, since time.Time) (int, error)
	RecordSent(ctx context.Context, email string, obs models.Observation, kind models.NotificationKind) error
	AlreadySent(ctx context.Context, email string, obs models.Observation, kind models.NotificationKind) (bool, error)
}

// Notifier dispatches digest emails to users whose preferences matched
// new or existing availability.
type Notifier struct {
	sender  EmailSender
	store   recordStore
	catalog *catalog.Catalog
	log     *logging.Logger
}

// New builds a Notifier. catalog may be nil, in which case course
// display names fall back to their raw keys.
func New(sender EmailSender, store recordStore, cat *catalog.Catalog, log *logging.Logger) *Notifier {
	return &Notifier{sender: sender, store: store, catalog: cat, log: log}
}

// group is one (course, date) bucket of matched slots, used to shape
// the body into club/date sections instead of one line per slot.
type group struct {
	courseKey string
	date      string
	slots     []models.Observation
}

// Dispatch sends one digest email to user covering matches, unless the
// user is over their alert rate limit. Before sending, it drops any
// (course, date, hhmm) tuple already present in sent_notifications for
// this kind, so repeating the same matches across cycles — or across a
// process restart — never sends the same email twice. Every tuple it
// successfully sends for is then recorded in the store.
func (n *Notifier) Dispatch(ctx context.Context, user models.UserPreferences, matches []models.Observation, kind models.NotificationKind) error {
	if len(matches) == 0 {
		return nil
	}

	limited, err := n.isRateLimited(ctx, user)
	if err != nil {
		return fmt.Errorf("checking rate limit for %s: %w", user.Email, err)
	}
	if limited {
		n.log.Debug("suppressing dispatch, user over alert rate limit", map[string]interface{}{
			"user_email": user.Email,
			"kind":       string(kind),
		})
		return nil
	}

	unsent := make([]models.Observation, 0, len(matches))
	for _, obs := range matches {
		sent, err := n.store.AlreadySent(ctx, user.Email, obs, kind)
		if err != nil {
			return fmt.Errorf("checking sent status for %s: %w", user.Email, err)
		}
		if !sent {
			unsent = append(unsent, obs)
		}
	}
	if len(unsent) == 0 {
		return nil
	}
	matches = unsent

	groups := n.groupByCourseDate(matches)
	subject := n.subject(user, kind, len(matches))
	body := n.body(groups)

	if err := n.sender.Send(ctx, user.Email, subject, body); err != nil {
		n.log.Error("failed to send digest, not recording sent rows so the next cycle retries", map[string]interface{}{
			"user_email": user.Email,
			"error":      err.Error(),
		})
		return fmt.Errorf("sending digest to %s: %w", user.Email, err)
	}

	for _, obs := range matches {
		if err := n.store.RecordSent(ctx, user.Email, obs, kind); err != nil {
			n.log.Warn("digest sent but failed to record sent row, may re-send next cycle", map[string]interface{}{
				"user_email": user.Email,
				"course_key": obs.CourseKey,
				"date":       obs.Date,
				"hhmm":       obs.HHMM,
				"error":      err.Error(),
			})
		}
	}

	return nil
}

func (n *Notifier) isRateLimited(ctx context.Context, user models.UserPreferences) (bool, error) {
	now := time.Now()

	if user.MaxAlertsPerHour > 0 {
		count, err := n.store.CountSentSince(ctx, user.Email, now.Add(-time.Hour))
		if err != nil {
			return false, err
		}
		if count >= user.MaxAlertsPerHour {
			return true, nil
		}
	}

	if user.MaxAlertsPerDay > 0 {
		count, err := n.store.CountSentSince(ctx, user.Email, now.Add(-24*time.Hour))
		if err != nil {
			return false, err
		}
		if count >= user.MaxAlertsPerDay {
			return true, nil
		}
	}

	return false, nil
}

func (n *Notifier) groupByCourseDate(matches []models.Observation) []group {
	index := map[string]int{}
	var groups []group

	for _, obs := range matches {
		key := obs.CourseKey + "|" + obs.Date
		if i, ok := index[key]; ok {
			groups[i].slots = append(groups[i].slots, obs)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, group{courseKey: obs.CourseKey, date: obs.Date, slots: []models.Observation{obs}})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].date != groups[j].date {
			return groups[i].date < groups[j].date
		}
		return groups[i].courseKey < groups[j].courseKey
	})
	for _, g := range groups {
		sort.SliceStable(g.slots, func(i, j int) bool { return g.slots[i].HHMM < g.slots[j].HHMM })
	}

	return groups
}

func (n *Notifier) displayName(courseKey string) string {
	if n.catalog == nil {
		return courseKey
	}
	club, err := n.catalog.Lookup(courseKey)
	if err != nil {
		return courseKey
	}
	return club.DisplayName
}

func (n *Notifier) subject(user models.UserPreferences, kind models.NotificationKind, slotCount int) string {
	label := "Nye starttider"
	if kind == models.KindDaily {
		label = "Dagens starttider"
	}
	return fmt.Sprintf("⛳ %s for %s — %d ledige", label, user.Name, slotCount)
}

func (n *Notifier) body(groups []group) string {
	var b strings.Builder
	b.WriteString("Hei,\n\n")
	b.WriteString("Her er ledige starttider som matcher dine preferanser:\n\n")

	for _, g := range groups {
		fmt.Fprintf(&b, "%s — %s\n", n.displayName(g.courseKey), g.date)
		for _, obs := range g.slots {
			fmt.Fprintf(&b, "  %s  (%d ledige plasser)\n", obs.HHMM, obs.SeatsAvailable)
		}
		b.WriteString("\n")
	}

	b.WriteString("Lykke til med bookingen!\n")
	return b.String()
}
