package prefsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

type fakeStore struct {
	byEmail map[string]models.UserPreferences
	saved   models.UserPreferences
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: map[string]models.UserPreferences{}}
}

func (f *fakeStore) GetPreferences(_ context.Context, email string) (models.UserPreferences, error) {
	return f.byEmail[email], nil
}

func (f *fakeStore) UpsertPreferences(_ context.Context, prefs models.UserPreferences) error {
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = time.Now()
	}
	f.byEmail[prefs.Email] = prefs
	f.saved = prefs
	return nil
}

func (f *fakeStore) AllActivePreferences(context.Context) ([]models.UserPreferences, error) {
	out := make([]models.UserPreferences, 0, len(f.byEmail))
	for _, p := range f.byEmail {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) DeletePreferences(_ context.Context, email string) error {
	delete(f.byEmail, email)
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Club{
		{Key: "oslo_golfklubb", DisplayName: "Oslo Golfklubb", ResourceID: "r1", ClubID: "c1", Host: "oslo.golfbox.no", DefaultOpenTime: "07:00:00"},
	})
}

func newTestServer() (*Server, *fakeStore) {
	st := newFakeStore()
	return New(st, testCatalog(), logging.New("test")), st
}

func TestHealthReturnsHealthy(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestGetPreferencesNotFound(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/preferences/missing@example.com", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertPreferencesRejectsUnknownCourse(t *testing.T) {
	s, _ := newTestServer()
	body := `{"email":"a@example.com","selected_courses":["nonexistent"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/preferences", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertPreferencesRejectsBadTimeWindow(t *testing.T) {
	s, _ := newTestServer()
	body := `{"email":"a@example.com","selected_courses":["oslo_golfklubb"],"time_preferences":{"same":[{"start_minute":600,"end_minute":500}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/preferences", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertPreferencesNormalizesSameIntoWeekdaysAndWeekends(t *testing.T) {
	s, st := newTestServer()
	body := `{"email":"a@example.com","selected_courses":["oslo_golfklubb"],"time_preferences":{"same":[{"start_minute":420,"end_minute":600}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/preferences", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, st.saved.TimePreferences.Weekdays)
	assert.NotNil(t, st.saved.TimePreferences.Weekends)
	assert.Nil(t, st.saved.TimePreferences.Same)
}

func TestDeletePreferencesNotFound(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/api/preferences/missing@example.com", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCoursesReturnsCatalog(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decoded map[string][]catalog.Club
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Len(t, decoded["courses"], 1)
}
