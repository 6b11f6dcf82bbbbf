// Package store implements the Store (C4): MongoDB-backed persistence
// for preferences, scraped observations, sent-notification dedup
// records, and per-cycle audit rows.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/edevardHvide/golf-availability-bot/internal/errs"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

const (
	collPreferences   = "user_preferences"
	collObservations  = "scraped_times"
	collNotifications = "sent_notifications"
	collCycles        = "cached_cycle"
)

// Store wraps a MongoDB database handle with the operations C4 needs.
type Store struct {
	db *mongo.Database
}

// New wraps an already-connected database handle.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials MongoDB at uri and returns a Store bound to database.
func Connect(ctx context.Context, uri, database string) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, errs.Transient(fmt.Errorf("connecting to store: %w", err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, errs.Transient(fmt.Errorf("pinging store: %w", err))
	}
	return New(client.Database(database)), client, nil
}

// EnsureIndexes creates the composite/unique indexes the operations
// below rely on. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collObservations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "course_key", Value: 1},
			{Key: "date", Value: 1},
			{Key: "hhmm", Value: 1},
			{Key: "observed_at", Value: -1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating observations index: %w", err)
	}

	_, err = s.db.Collection(collNotifications).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_email", Value: 1},
			{Key: "course_key", Value: 1},
			{Key: "date", Value: 1},
			{Key: "hhmm", Value: 1},
			{Key: "kind", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating sent_notifications index: %w", err)
	}

	_, err = s.db.Collection(collPreferences).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating user_preferences index: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Preferences
// ---------------------------------------------------------------------

// GetPreferences returns the user's preferences, or a set of freshly
// defaulted ones when none exist yet — mirroring the teacher's
// PreferenceService.GetUserPreferences not-found fallback. The defaulted
// set carries zero CreatedAt/UpdatedAt, which is how callers tell it
// apart from a stored row.
func (s *Store) GetPreferences(ctx context.Context, email string) (models.UserPreferences, error) {
	var prefs models.UserPreferences
	err := s.db.Collection(collPreferences).FindOne(ctx, bson.M{"email": email}).Decode(&prefs)
	if err == nil {
		return prefs, nil
	}
	if err == mongo.ErrNoDocuments {
		defaults := models.DefaultPreferences(email, "")
		defaults.CreatedAt, defaults.UpdatedAt = time.Time{}, time.Time{}
		return defaults, nil
	}
	return models.UserPreferences{}, errs.Transient(fmt.Errorf("get preferences for %s: %w", email, err))
}

// UpsertPreferences writes prefs, stamping UpdatedAt and preserving
// CreatedAt on first insert.
func (s *Store) UpsertPreferences(ctx context.Context, prefs models.UserPreferences) error {
	now := time.Now()
	prefs.UpdatedAt = now

	filter := bson.M{"email": prefs.Email}
	update := bson.M{
		"$set": bson.M{
			"name":                prefs.Name,
			"selected_courses":    prefs.SelectedCourses,
			"min_seats":           prefs.MinSeats,
			"days_ahead":          prefs.DaysAhead,
			"time_preferences":    prefs.TimePreferences,
			"max_alerts_per_hour": prefs.MaxAlertsPerHour,
			"max_alerts_per_day":  prefs.MaxAlertsPerDay,
			"unsubscribed":        prefs.Unsubscribed,
			"updated_at":          now,
		},
		"$setOnInsert": bson.M{
			"email":      prefs.Email,
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collPreferences).UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return errs.Transient(fmt.Errorf("upsert preferences for %s: %w", prefs.Email, err))
	}
	return nil
}

// AllActivePreferences returns every non-unsubscribed user's
// preferences, used by the Scheduler to derive its monitored set.
func (s *Store) AllActivePreferences(ctx context.Context) ([]models.UserPreferences, error) {
	cur, err := s.db.Collection(collPreferences).Find(ctx, bson.M{"unsubscribed": bson.M{"$ne": true}})
	if err != nil {
		return nil, errs.Transient(fmt.Errorf("listing active preferences: %w", err))
	}
	defer cur.Close(ctx)

	var out []models.UserPreferences
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Transient(fmt.Errorf("decoding active preferences: %w", err))
	}
	return out, nil
}

// DeletePreferences removes a user's preferences entirely.
func (s *Store) DeletePreferences(ctx context.Context, email string) error {
	_, err := s.db.Collection(collPreferences).DeleteOne(ctx, bson.M{"email": email})
	if err != nil {
		return errs.Transient(fmt.Errorf("delete preferences for %s: %w", email, err))
	}
	return nil
}

// ---------------------------------------------------------------------
// Observations
// ---------------------------------------------------------------------

// SaveObservations bulk-inserts batch, silently skipping rows that
// collide on the composite (course_key, date, hhmm, observed_at) key —
// grounded in the teacher's unique-index-plus-ignore dedup pattern.
func (s *Store) SaveObservations(ctx context.Context, batch []models.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	docs := make([]interface{}, len(batch))
	for i, o := range batch {
		docs[i] = o
	}

	opts := options.InsertMany().SetOrdered(false)
	_, err := s.db.Collection(collObservations).InsertMany(ctx, docs, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return errs.Transient(fmt.Errorf("saving observations: %w", err))
	}
	return nil
}

// LatestObservationsFor returns, for each (course, date, hhmm) selected
// by the user, the single most recent row within [today, today+daysAhead).
func (s *Store) LatestObservationsFor(ctx context.Context, prefs models.UserPreferences, daysAhead int) ([]models.Observation, error) {
	today := time.Now().Truncate(24 * time.Hour)
	dateStart := today.Format("2006-01-02")
	dateEnd := today.AddDate(0, 0, daysAhead).Format("2006-01-02")

	filter := bson.M{
		"course_key": bson.M{"$in": prefs.SelectedCourses},
		"date":       bson.M{"$gte": dateStart, "$lt": dateEnd},
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "observed_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  bson.M{"course_key": "$course_key", "date": "$date", "hhmm": "$hhmm"},
			"doc":  bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
	}

	cur, err := s.db.Collection(collObservations).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.Transient(fmt.Errorf("latest observations for %s: %w", prefs.Email, err))
	}
	defer cur.Close(ctx)

	var out []models.Observation
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Transient(fmt.Errorf("decoding latest observations: %w", err))
	}
	return out, nil
}

// NewObservationsFor returns observations from the last hoursBack hours
// that have not already been recorded as sent with kind=incremental.
func (s *Store) NewObservationsFor(ctx context.Context, prefs models.UserPreferences, hoursBack int) ([]models.Observation, error) {
	since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	cur, err := s.db.Collection(collObservations).Find(ctx, bson.M{
		"course_key":  bson.M{"$in": prefs.SelectedCourses},
		"observed_at": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, errs.Transient(fmt.Errorf("new observations for %s: %w", prefs.Email, err))
	}
	defer cur.Close(ctx)

	var candidates []models.Observation
	if err := cur.All(ctx, &candidates); err != nil {
		return nil, errs.Transient(fmt.Errorf("decoding new observations: %w", err))
	}

	out := make([]models.Observation, 0, len(candidates))
	for _, obs := range candidates {
		sent, err := s.AlreadySent(ctx, prefs.Email, obs, models.KindIncremental)
		if err != nil {
			return nil, err
		}
		if !sent {
			out = append(out, obs)
		}
	}
	return out, nil
}

// AlreadySent reports whether (email, observation, kind) already has a
// row in sent_notifications, so callers can filter a notification out
// before sending rather than only after.
func (s *Store) AlreadySent(ctx context.Context, email string, obs models.Observation, kind models.NotificationKind) (bool, error) {
	count, err := s.db.Collection(collNotifications).CountDocuments(ctx, bson.M{
		"user_email": email,
		"course_key": obs.CourseKey,
		"date":       obs.Date,
		"hhmm":       obs.HHMM,
		"kind":       kind,
	})
	if err != nil {
		return false, errs.Transient(fmt.Errorf("checking sent status: %w", err))
	}
	return count > 0, nil
}

// RecordSent marks (user, observation, kind) as sent. Idempotent: a
// duplicate insert (same unique key) is treated as already-recorded.
func (s *Store) RecordSent(ctx context.Context, email string, obs models.Observation, kind models.NotificationKind) error {
	_, err := s.db.Collection(collNotifications).InsertOne(ctx, models.SentNotification{
		UserEmail: email,
		CourseKey: obs.CourseKey,
		Date:      obs.Date,
		HHMM:      obs.HHMM,
		Kind:      kind,
		SentAt:    time.Now(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return errs.Transient(fmt.Errorf("recording sent notification: %w", err))
	}
	return nil
}

// CountSentSince counts how many notifications a user has received
// since `since`, for the Notifier's rate-limit gate.
func (s *Store) CountSentSince(ctx context.Context, email string, since time.Time) (int, error) {
	count, err := s.db.Collection(collNotifications).CountDocuments(ctx, bson.M{
		"user_email": email,
		"sent_at":    bson.M{"$gte": since},
	})
	if err != nil {
		return 0, errs.Transient(fmt.Errorf("counting sent notifications: %w", err))
	}
	return int(count), nil
}

// ---------------------------------------------------------------------
// Cycle audit
// ---------------------------------------------------------------------

// RecordCycle persists a CycleSummary row.
func (s *Store) RecordCycle(ctx context.Context, summary models.CycleSummary) error {
	_, err := s.db.Collection(collCycles).InsertOne(ctx, summary)
	if err != nil {
		return errs.Transient(fmt.Errorf("recording cycle summary: %w", err))
	}
	return nil
}

// ---------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------

// ReapResult reports how many rows were deleted per collection.
type ReapResult struct {
	ObservationsDeleted int64
	CyclesDeleted       int64
}

// Reap deletes scraped_times and cached_cycle rows older than
// olderThanDays, unconditionally on age — the simplified variant of the
// teacher's retention cycle (no preference-matching gate; see DESIGN.md).
func (s *Store) Reap(ctx context.Context, olderThanDays int) (ReapResult, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	obsRes, err := s.db.Collection(collObservations).DeleteMany(ctx, bson.M{"observed_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return ReapResult{}, errs.Transient(fmt.Errorf("reaping observations: %w", err))
	}

	cycleRes, err := s.db.Collection(collCycles).DeleteMany(ctx, bson.M{"check_timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return ReapResult{}, errs.Transient(fmt.Errorf("reaping cycle summaries: %w", err))
	}

	return ReapResult{ObservationsDeleted: obsRes.DeletedCount, CyclesDeleted: cycleRes.DeletedCount}, nil
}

// WithTransaction runs fn inside a session-scoped transaction, used by
// callers that need several of the writes above to commit atomically
// (e.g. RecordSent + a preference update). Requires a replica-set
// deployment; every individual write above is already atomic on its
// own, so callers that don't need cross-collection atomicity can skip
// this and call the operations directly.
func (s *Store) WithTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return errs.Transient(fmt.Errorf("starting session: %w", err))
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}, options.Transaction().SetWriteConcern(writeconcern.Majority()))
	return err
}
