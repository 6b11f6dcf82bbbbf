package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

type fakeBrowser struct {
	loginErr error
	html     string
	fetchErr error
}

func (f *fakeBrowser) EnsureLoggedIn(context.Context) error { return f.loginErr }
func (f *fakeBrowser) Fetch(context.Context, string) (string, error) {
	return f.html, f.fetchErr
}

type fakeStore struct {
	users     []models.UserPreferences
	saved     []models.Observation
	cycles    []models.CycleSummary
	usersErr  error
	saveErr   error
	recordErr error
}

func (f *fakeStore) AllActivePreferences(context.Context) ([]models.UserPreferences, error) {
	return f.users, f.usersErr
}
func (f *fakeStore) SaveObservations(_ context.Context, batch []models.Observation) error {
	f.saved = append(f.saved, batch...)
	return f.saveErr
}
func (f *fakeStore) RecordCycle(_ context.Context, summary models.CycleSummary) error {
	f.cycles = append(f.cycles, summary)
	return f.recordErr
}

type fakeDispatcher struct {
	dispatched int
}

func (f *fakeDispatcher) Dispatch(context.Context, models.UserPreferences, []models.Observation, models.NotificationKind) error {
	f.dispatched++
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Club{
		{Key: "oslo_golfklubb", DisplayName: "Oslo Golfklubb", ResourceID: "r1", ClubID: "c1", Host: "oslo.golfbox.no", DefaultOpenTime: "07:00:00"},
	})
}

const sampleTableHTML = `<table><tr><td>08:00</td><td class="available">Book</td></tr></table>`

func TestDateRangeProducesHalfOpenWindow(t *testing.T) {
	today := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	dates := dateRange(today, 3)

	require.Len(t, dates, 3)
	assert.Equal(t, "2026-08-15", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2026-08-17", dates[2].Format("2006-01-02"))
}

func TestMonitoredCoursesFallsBackToCatalogWhenNoUsers(t *testing.T) {
	s := New(testCatalog(), &fakeBrowser{}, &fakeStore{}, &fakeDispatcher{}, nil, Config{DaysAhead: 1}, logging.New("test"))

	keys, err := s.monitoredCourses(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"oslo_golfklubb"}, keys)
}

func TestMonitoredCoursesUsesUnionOfUserSelections(t *testing.T) {
	st := &fakeStore{users: []models.UserPreferences{
		{Email: "a@example.com", SelectedCourses: []string{"oslo_golfklubb"}},
		{Email: "b@example.com", SelectedCourses: []string{"oslo_golfklubb", "bergen_golfklubb"}},
	}}
	s := New(testCatalog(), &fakeBrowser{}, st, &fakeDispatcher{}, nil, Config{DaysAhead: 1}, logging.New("test"))

	keys, err := s.monitoredCourses(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"oslo_golfklubb", "bergen_golfklubb"}, keys)
}

func TestOnCycleFailureDoublesIntervalAfterThreeFailures(t *testing.T) {
	s := New(testCatalog(), &fakeBrowser{}, &fakeStore{}, &fakeDispatcher{}, nil, Config{}, logging.New("test"))

	s.onCycleFailure()
	s.onCycleFailure()
	assert.Equal(t, 1, s.backoffMultiplier)

	s.onCycleFailure()
	assert.Equal(t, 2, s.backoffMultiplier)
}

func TestResetBackoffClearsMultiplier(t *testing.T) {
	s := New(testCatalog(), &fakeBrowser{}, &fakeStore{}, &fakeDispatcher{}, nil, Config{}, logging.New("test"))
	s.backoffMultiplier = 4
	s.consecutiveFailures = 5

	s.resetBackoff()

	assert.Equal(t, 1, s.backoffMultiplier)
	assert.Equal(t, 0, s.consecutiveFailures)
}

func TestRunCycleStopsEarlyOnLoginFailure(t *testing.T) {
	browser := &fakeBrowser{loginErr: errors.New("auth failed")}
	st := &fakeStore{}
	s := New(testCatalog(), browser, st, &fakeDispatcher{}, nil, Config{DaysAhead: 1}, logging.New("test"))

	err := s.runCycle(context.Background(), "scheduled")

	require.Error(t, err)
	require.Len(t, st.cycles, 1)
	assert.False(t, st.cycles[0].Success)
}

func TestRunCycleSavesObservationsAndRecordsSuccess(t *testing.T) {
	browser := &fakeBrowser{html: sampleTableHTML}
	st := &fakeStore{users: []models.UserPreferences{
		{Email: "a@example.com", SelectedCourses: []string{"oslo_golfklubb"}, MinSeats: 1, DaysAhead: 3},
	}}
	disp := &fakeDispatcher{}
	s := New(testCatalog(), browser, st, disp, nil, Config{DaysAhead: 1}, logging.New("test"))

	err := s.runCycle(context.Background(), "scheduled")

	require.NoError(t, err)
	assert.NotEmpty(t, st.saved)
	require.Len(t, st.cycles, 1)
	assert.True(t, st.cycles[0].Success)
}

func TestNextSleepStaysWithinJitterBounds(t *testing.T) {
	s := New(testCatalog(), &fakeBrowser{}, &fakeStore{}, &fakeDispatcher{}, nil, Config{CheckInterval: 300 * time.Second, JitterSeconds: 20}, logging.New("test"))

	sleep := s.nextSleep()

	assert.GreaterOrEqual(t, sleep, 290*time.Second)
	assert.LessOrEqual(t, sleep, 330*time.Second)
}
