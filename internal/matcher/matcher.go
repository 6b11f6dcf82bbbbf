// Package matcher implements the Matcher (C6): a stateless predicate
// deciding whether one observation qualifies for one user's
// preferences, plus the batch helper the Scheduler and Digest Worker
// use to build a sorted match list.
package matcher

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

// elapsedBufferMinutes mirrors the original monitor's 15-minute
// booking buffer: a time today counts as "already passed" slightly
// before the clock actually reaches it, since a booking can't be made
// in the last few minutes before the tee time.
const elapsedBufferMinutes = 15

// Matches reports whether obs qualifies under prefs, evaluated as of
// now (injected for testability).
func Matches(prefs models.UserPreferences, obs models.Observation, now time.Time) bool {
	if !prefs.HasCourse(obs.CourseKey) {
		return false
	}
	if obs.SeatsAvailable < prefs.MinSeats {
		return false
	}

	date, err := time.ParseInLocation("2006-01-02", obs.Date, now.Location())
	if err != nil {
		return false
	}
	today := truncateToDay(now)
	horizon := today.AddDate(0, 0, prefs.DaysAhead)
	if date.Before(today) || !date.Before(horizon) {
		return false
	}

	minuteOfDay, ok := parseHHMM(obs.HHMM)
	if !ok {
		return false
	}

	windows := prefs.TimePreferences.WindowsFor(date)
	if !inAnyWindow(minuteOfDay, windows) {
		return false
	}

	if timeHasPassed(date, minuteOfDay, now) {
		return false
	}

	return true
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseHHMM(hhmm string) (int, bool) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}

func inAnyWindow(minuteOfDay int, windows []models.TimeWindow) bool {
	for _, w := range windows {
		if w.Contains(minuteOfDay) {
			return true
		}
	}
	return false
}

// timeHasPassed reports whether minuteOfDay on date has already
// elapsed, with a 15-minute buffer, relative to now. Only applies to
// today; future dates never count as passed.
func timeHasPassed(date time.Time, minuteOfDay int, now time.Time) bool {
	if !truncateToDay(date).Equal(truncateToDay(now)) {
		return false
	}
	currentMinutes := now.Hour()*60 + now.Minute()
	return minuteOfDay <= currentMinutes+elapsedBufferMinutes
}

// MatchAll filters observations against prefs and returns the
// qualifying ones stable-sorted by (date, hhmm, course_key).
func MatchAll(prefs models.UserPreferences, observations []models.Observation, now time.Time) []models.Observation {
	out := make([]models.Observation, 0, len(observations))
	for _, obs := range observations {
		if Matches(prefs, obs, now) {
			out = append(out, obs)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.HHMM != b.HHMM {
			return a.HHMM < b.HHMM
		}
		return a.CourseKey < b.CourseKey
	})
	return out
}
