// Package models holds the shared, engine-agnostic types that flow
// between the Store, Matcher, Notifier, and Preferences API.
package models

import "time"

// TimeWindow is a half-open range of minutes-since-midnight, start < end.
type TimeWindow struct {
	StartMinute int `bson:"start_minute" json:"start_minute"`
	EndMinute   int `bson:"end_minute" json:"end_minute"`
}

// Contains reports whether minute-of-day m falls in [start, end).
func (w TimeWindow) Contains(m int) bool {
	return m >= w.StartMinute && m < w.EndMinute
}

// TimePreferences is either one set of windows applied to every day, or
// a weekday/weekend split. When Weekdays and Weekends are both nil,
// Same is used for every day.
type TimePreferences struct {
	Same     []TimeWindow `bson:"same,omitempty" json:"same,omitempty"`
	Weekdays []TimeWindow `bson:"weekdays,omitempty" json:"weekdays,omitempty"`
	Weekends []TimeWindow `bson:"weekends,omitempty" json:"weekends,omitempty"`
}

// WindowsFor returns the applicable window set for the given date.
func (p TimePreferences) WindowsFor(date time.Time) []TimeWindow {
	if p.Weekdays == nil && p.Weekends == nil {
		return p.Same
	}
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return p.Weekends
	}
	return p.Weekdays
}

// UserPreferences is keyed by Email and describes what a user wants to
// be alerted about.
type UserPreferences struct {
	Name             string          `bson:"name" json:"name"`
	Email            string          `bson:"email" json:"email"`
	SelectedCourses  []string        `bson:"selected_courses" json:"selected_courses"`
	MinSeats         int             `bson:"min_seats" json:"min_seats"`
	DaysAhead        int             `bson:"days_ahead" json:"days_ahead"`
	TimePreferences  TimePreferences `bson:"time_preferences" json:"time_preferences"`
	MaxAlertsPerHour int             `bson:"max_alerts_per_hour" json:"max_alerts_per_hour"`
	MaxAlertsPerDay  int             `bson:"max_alerts_per_day" json:"max_alerts_per_day"`
	Unsubscribed     bool            `bson:"unsubscribed" json:"unsubscribed"`
	CreatedAt        time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at" json:"updated_at"`
}

// DefaultPreferences returns the zero-value preferences a brand new
// user gets before any customization, mirroring the teacher's
// PreferenceService default-on-not-found behavior.
func DefaultPreferences(email, name string) UserPreferences {
	now := time.Now()
	return UserPreferences{
		Name:             name,
		Email:            email,
		SelectedCourses:  []string{},
		MinSeats:         1,
		DaysAhead:        4,
		TimePreferences:  TimePreferences{Same: []TimeWindow{{StartMinute: 7 * 60, EndMinute: 17 * 60}}},
		MaxAlertsPerHour: 10,
		MaxAlertsPerDay:  50,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// HasCourse reports whether key is among the user's selected courses.
func (p UserPreferences) HasCourse(key string) bool {
	for _, c := range p.SelectedCourses {
		if c == key {
			return true
		}
	}
	return false
}

// Observation is one row per scrape outcome: a tee time's seat count as
// of a point in time.
type Observation struct {
	CourseKey      string    `bson:"course_key" json:"course_key"`
	Date           string    `bson:"date" json:"date"` // YYYY-MM-DD
	HHMM           string    `bson:"hhmm" json:"hhmm"`
	SeatsAvailable int       `bson:"seats_available" json:"seats_available"`
	ObservedAt     time.Time `bson:"observed_at" json:"observed_at"`
}

// NotificationKind distinguishes the two dispatch paths the Digest
// Worker and Scheduler use, each with its own deduplication lane.
type NotificationKind string

const (
	KindDaily       NotificationKind = "daily"
	KindIncremental NotificationKind = "incremental"
)

// SentNotification records that a (user, observation, kind) tuple was
// already emailed, so it is never sent twice.
type SentNotification struct {
	UserEmail string           `bson:"user_email" json:"user_email"`
	CourseKey string           `bson:"course_key" json:"course_key"`
	Date      string           `bson:"date" json:"date"`
	HHMM      string           `bson:"hhmm" json:"hhmm"`
	Kind      NotificationKind `bson:"kind" json:"kind"`
	SentAt    time.Time        `bson:"sent_at" json:"sent_at"`
}

// CycleSummary is the per-run audit row persisted by the Scheduler.
type CycleSummary struct {
	CheckKind       string    `bson:"check_kind" json:"check_kind"`
	UserEmail       string    `bson:"user_email,omitempty" json:"user_email,omitempty"`
	CoursesChecked  int       `bson:"courses_checked" json:"courses_checked"`
	DateStart       string    `bson:"date_start" json:"date_start"`
	DateEnd         string    `bson:"date_end" json:"date_end"`
	TotalSlots      int       `bson:"total_slots" json:"total_slots"`
	NewSlots        int       `bson:"new_slots" json:"new_slots"`
	DurationSeconds float64   `bson:"duration_seconds" json:"duration_seconds"`
	Success         bool      `bson:"success" json:"success"`
	Error           string    `bson:"error,omitempty" json:"error,omitempty"`
	CheckTimestamp  time.Time `bson:"check_timestamp" json:"check_timestamp"`
}
