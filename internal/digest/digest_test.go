package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

type fakeStore struct {
	users    []models.UserPreferences
	latest   []models.Observation
	fresh    []models.Observation
	callsErr error
}

func (f *fakeStore) AllActivePreferences(context.Context) ([]models.UserPreferences, error) {
	return f.users, f.callsErr
}

func (f *fakeStore) LatestObservationsFor(context.Context, models.UserPreferences, int) ([]models.Observation, error) {
	return f.latest, f.callsErr
}

func (f *fakeStore) NewObservationsFor(context.Context, models.UserPreferences, int) ([]models.Observation, error) {
	return f.fresh, f.callsErr
}

type fakeDispatcher struct {
	calls []models.NotificationKind
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ models.UserPreferences, _ []models.Observation, kind models.NotificationKind) error {
	f.calls = append(f.calls, kind)
	return nil
}

func sampleUser() models.UserPreferences {
	return models.UserPreferences{
		Email:           "kari@example.com",
		SelectedCourses: []string{"oslo_golfklubb"},
		MinSeats:        1,
		DaysAhead:       4,
	}
}

func TestShouldRunDailyWithinWindowAndNotYetSentToday(t *testing.T) {
	w := New(&fakeStore{}, &fakeDispatcher{}, nil, logging.New("test"))
	now := time.Date(2026, 8, 15, 7, 3, 0, 0, time.UTC)

	assert.True(t, w.shouldRunDaily(now))
}

func TestShouldRunDailyFalseOutsideMinuteWindow(t *testing.T) {
	w := New(&fakeStore{}, &fakeDispatcher{}, nil, logging.New("test"))
	now := time.Date(2026, 8, 15, 7, 45, 0, 0, time.UTC)

	assert.False(t, w.shouldRunDaily(now))
}

func TestShouldRunDailyFalseAfterAlreadySentToday(t *testing.T) {
	w := New(&fakeStore{}, &fakeDispatcher{}, nil, logging.New("test"))
	w.lastDaily = time.Date(2026, 8, 15, 7, 5, 0, 0, time.UTC)
	now := time.Date(2026, 8, 15, 7, 8, 0, 0, time.UTC)

	assert.False(t, w.shouldRunDaily(now))
}

func TestShouldRunDailyTrueOnNewDay(t *testing.T) {
	w := New(&fakeStore{}, &fakeDispatcher{}, nil, logging.New("test"))
	w.lastDaily = time.Date(2026, 8, 15, 7, 5, 0, 0, time.UTC)
	now := time.Date(2026, 8, 16, 7, 2, 0, 0, time.UTC)

	assert.True(t, w.shouldRunDaily(now))
}

func TestTickRunsDailyAndMarksSent(t *testing.T) {
	disp := &fakeDispatcher{}
	st := &fakeStore{users: []models.UserPreferences{sampleUser()}}
	w := New(st, disp, nil, logging.New("test"))
	w.clock = func() time.Time { return time.Date(2026, 8, 15, 7, 1, 0, 0, time.UTC) }

	w.tick(context.Background())

	require.Contains(t, disp.calls, models.KindDaily)
	assert.False(t, w.lastDaily.IsZero())
}

func TestTickRunsIncrementalOnTenMinuteBoundary(t *testing.T) {
	disp := &fakeDispatcher{}
	st := &fakeStore{users: []models.UserPreferences{sampleUser()}}
	w := New(st, disp, nil, logging.New("test"))
	w.clock = func() time.Time { return time.Date(2026, 8, 15, 12, 20, 0, 0, time.UTC) }

	w.tick(context.Background())

	assert.Contains(t, disp.calls, models.KindIncremental)
	assert.NotContains(t, disp.calls, models.KindDaily)
}

func TestTickSkipsWorkWhilePaused(t *testing.T) {
	disp := &fakeDispatcher{}
	st := &fakeStore{users: []models.UserPreferences{sampleUser()}}
	w := New(st, disp, nil, logging.New("test"))
	w.clock = func() time.Time { return time.Date(2026, 8, 15, 12, 20, 0, 0, time.UTC) }
	w.pausedUntil = time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC)

	w.tick(context.Background())

	assert.Empty(t, disp.calls)
}

func TestOnErrorSetsPause(t *testing.T) {
	w := New(&fakeStore{}, &fakeDispatcher{}, nil, logging.New("test"))
	fixed := time.Date(2026, 8, 15, 12, 20, 0, 0, time.UTC)
	w.clock = func() time.Time { return fixed }

	w.onError(assertErr{})

	assert.Equal(t, fixed.Add(errorBackoff), w.pausedUntil)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
