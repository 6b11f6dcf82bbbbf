package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

func samplePrefs() models.UserPreferences {
	return models.UserPreferences{
		Email:           "a@b.com",
		SelectedCourses: []string{"oslo_golfklubb"},
		MinSeats:        2,
		DaysAhead:       4,
		TimePreferences: models.TimePreferences{
			Same: []models.TimeWindow{{StartMinute: 8 * 60, EndMinute: 17 * 60}},
		},
	}
}

func TestMatchesRejectsUnselectedCourse(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "other_club", Date: "2026-08-02", HHMM: "09:00", SeatsAvailable: 4}
	assert.False(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesRejectsTooFewSeats(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-02", HHMM: "09:00", SeatsAvailable: 1}
	assert.False(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesRejectsOutsideHorizon(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-10", HHMM: "09:00", SeatsAvailable: 4}
	assert.False(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesRejectsOutsideTimeWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-02", HHMM: "18:00", SeatsAvailable: 4}
	assert.False(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesRejectsElapsedTimeToday(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-01", HHMM: "09:55", SeatsAvailable: 4}
	assert.False(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesAcceptsFutureTimeToday(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-01", HHMM: "10:30", SeatsAvailable: 4}
	assert.True(t, Matches(samplePrefs(), obs, now))
}

func TestMatchesAcceptsValidFutureDate(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	obs := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-03", HHMM: "09:00", SeatsAvailable: 2}
	assert.True(t, Matches(samplePrefs(), obs, now))
}

func TestMatchAllSortsByDateThenHHMMThenCourse(t *testing.T) {
	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	prefs := samplePrefs()
	prefs.SelectedCourses = []string{"oslo_golfklubb", "baerum_gk"}

	observations := []models.Observation{
		{CourseKey: "baerum_gk", Date: "2026-08-02", HHMM: "09:00", SeatsAvailable: 4},
		{CourseKey: "oslo_golfklubb", Date: "2026-08-02", HHMM: "09:00", SeatsAvailable: 4},
		{CourseKey: "oslo_golfklubb", Date: "2026-08-02", HHMM: "08:00", SeatsAvailable: 4},
	}

	matched := MatchAll(prefs, observations, now)
	assert := assert.New(t)
	assert.Len(matched, 3)
	assert.Equal("08:00", matched[0].HHMM)
	assert.Equal("baerum_gk", matched[1].CourseKey)
	assert.Equal("oslo_golfklubb", matched[2].CourseKey)
}

func TestWeekendWeekdaySplitIsHonored(t *testing.T) {
	prefs := samplePrefs()
	prefs.TimePreferences = models.TimePreferences{
		Weekdays: []models.TimeWindow{{StartMinute: 16 * 60, EndMinute: 20 * 60}},
		Weekends: []models.TimeWindow{{StartMinute: 7 * 60, EndMinute: 12 * 60}},
	}

	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	saturday := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-01", HHMM: "09:00", SeatsAvailable: 4}
	monday := models.Observation{CourseKey: "oslo_golfklubb", Date: "2026-08-03", HHMM: "09:00", SeatsAvailable: 4}

	assert.True(t, Matches(prefs, saturday, now))
	assert.False(t, Matches(prefs, monday, now))
}
