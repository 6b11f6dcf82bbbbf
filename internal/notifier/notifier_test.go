package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject+"|"+body)
	return nil
}

type fakeStore struct {
	sentSince   int
	countErr    error
	recorded    []models.Observation
	recordErr   error
	alreadySent map[string]bool
	alreadyErr  error
}

func (f *fakeStore) CountSentSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.sentSince, f.countErr
}

func (f *fakeStore) RecordSent(_ context.Context, _ string, obs models.Observation, _ models.NotificationKind) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, obs)
	return nil
}

func (f *fakeStore) AlreadySent(_ context.Context, email string, obs models.Observation, kind models.NotificationKind) (bool, error) {
	if f.alreadyErr != nil {
		return false, f.alreadyErr
	}
	key := email + "|" + obs.CourseKey + "|" + obs.Date + "|" + obs.HHMM + "|" + string(kind)
	return f.alreadySent[key], nil
}

func sampleUser() models.UserPreferences {
	return models.UserPreferences{
		Name:             "Kari",
		Email:            "kari@example.com",
		SelectedCourses:  []string{"oslo_golfklubb"},
		MinSeats:         1,
		MaxAlertsPerHour: 10,
		MaxAlertsPerDay:  50,
	}
}

func sampleMatches() []models.Observation {
	return []models.Observation{
		{CourseKey: "oslo_golfklubb", Date: "2026-08-15", HHMM: "09:00", SeatsAvailable: 2},
		{CourseKey: "oslo_golfklubb", Date: "2026-08-15", HHMM: "08:00", SeatsAvailable: 4},
	}
}

func TestDispatchSendsAndRecords(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), sampleMatches(), models.KindIncremental)

	require.NoError(t, err)
	assert.Len(t, sender.sent, 1)
	assert.Len(t, store.recorded, 2)
}

func TestDispatchSkipsAlreadySentObservations(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{alreadySent: map[string]bool{
		"kari@example.com|oslo_golfklubb|2026-08-15|09:00|incremental": true,
		"kari@example.com|oslo_golfklubb|2026-08-15|08:00|incremental": true,
	}}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), sampleMatches(), models.KindIncremental)

	require.NoError(t, err)
	assert.Empty(t, sender.sent, "repeating an already-sent cycle must not send a second email")
	assert.Empty(t, store.recorded)
}

func TestDispatchSendsOnlyUnsentObservations(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{alreadySent: map[string]bool{
		"kari@example.com|oslo_golfklubb|2026-08-15|08:00|incremental": true,
	}}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), sampleMatches(), models.KindIncremental)

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Len(t, store.recorded, 1)
	assert.Equal(t, "09:00", store.recorded[0].HHMM)
}

func TestDispatchSkipsWhenHourlyLimitReached(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{sentSince: 10}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), sampleMatches(), models.KindIncremental)

	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	assert.Empty(t, store.recorded)
}

func TestDispatchDoesNotRecordOnSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	store := &fakeStore{}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), sampleMatches(), models.KindIncremental)

	require.Error(t, err)
	assert.Empty(t, store.recorded)
}

func TestDispatchWithNoMatchesIsNoop(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	n := New(sender, store, nil, logging.New("test"))

	err := n.Dispatch(context.Background(), sampleUser(), nil, models.KindDaily)

	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestGroupByCourseDateSortsWithinAndAcrossGroups(t *testing.T) {
	n := New(&fakeSender{}, &fakeStore{}, nil, logging.New("test"))
	matches := []models.Observation{
		{CourseKey: "b_klubb", Date: "2026-08-15", HHMM: "10:00", SeatsAvailable: 1},
		{CourseKey: "a_klubb", Date: "2026-08-15", HHMM: "09:00", SeatsAvailable: 1},
		{CourseKey: "a_klubb", Date: "2026-08-14", HHMM: "09:00", SeatsAvailable: 1},
	}

	groups := n.groupByCourseDate(matches)

	require.Len(t, groups, 3)
	assert.Equal(t, "2026-08-14", groups[0].date)
	assert.Equal(t, "a_klubb", groups[1].courseKey)
	assert.Equal(t, "b_klubb", groups[2].courseKey)
}

func TestSubjectUsesKindLabel(t *testing.T) {
	n := New(&fakeSender{}, &fakeStore{}, nil, logging.New("test"))
	subject := n.subject(sampleUser(), models.KindDaily, 3)
	assert.Contains(t, subject, "Kari")
	assert.Contains(t, subject, "3")
}
