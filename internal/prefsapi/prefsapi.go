// Package prefsapi implements the Preferences API (C10): a thin,
// unauthenticated chi HTTP surface over the Store. Authentication is
// explicitly out of scope here; deployments needing it place this
// behind the excluded UI-facing facade or a reverse proxy.
package prefsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/errs"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
)

var startTime = time.Now()

// Version is overridable at build time via -ldflags.
var Version = "dev"

// store is the subset of *store.Store the API needs.
type store interface {
	GetPreferences(ctx context.Context, email string) (models.UserPreferences, error)
	UpsertPreferences(ctx context.Context, prefs models.UserPreferences) error
	AllActivePreferences(ctx context.Context) ([]models.UserPreferences, error)
	DeletePreferences(ctx context.Context, email string) error
}

// Server holds the dependencies every handler needs.
type Server struct {
	store   store
	catalog *catalog.Catalog
	log     *logging.Logger
}

// New builds a Server.
func New(store store, cat *catalog.Catalog, log *logging.Logger) *Server {
	return &Server{store: store, catalog: cat, log: log}
}

// Router builds the chi mux: CORS, then the routes in §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.health)
	r.Get("/api/status", s.status)
	r.Get("/api/courses", s.listCourses)
	r.Get("/api/preferences", s.listPreferences)
	r.Get("/api/preferences/{email}", s.getPreferences)
	r.Post("/api/preferences", s.upsertPreferences)
	r.Delete("/api/preferences/{email}", s.deletePreferences)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.AllActivePreferences(r.Context())
	if err != nil {
		s.log.Error("status: failed to count users", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_count":   len(users),
		"storage_type": "mongodb",
		"version":      Version,
		"uptime":       time.Since(startTime).String(),
	})
}

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"courses": s.catalog.All(),
	})
}

func (s *Server) listPreferences(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.AllActivePreferences(r.Context())
	if err != nil {
		s.log.Error("listPreferences: store error", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}

	byEmail := make(map[string]models.UserPreferences, len(users))
	for _, u := range users {
		byEmail[u.Email] = u
	}
	writeJSON(w, http.StatusOK, byEmail)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	prefs, err := s.store.GetPreferences(r.Context(), email)
	if err != nil {
		s.log.Error("getPreferences: store error", map[string]interface{}{"email": email, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if prefs.CreatedAt.IsZero() {
		writeError(w, http.StatusNotFound, "no preferences for "+email)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) upsertPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.UserPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := s.validate(prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs.TimePreferences = normalizeTimePreferences(prefs.TimePreferences)

	if err := s.store.UpsertPreferences(r.Context(), prefs); err != nil {
		s.log.Error("upsertPreferences: store error", map[string]interface{}{"email": prefs.Email, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "preferences saved"})
}

func (s *Server) deletePreferences(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	existing, err := s.store.GetPreferences(r.Context(), email)
	if err != nil {
		s.log.Error("deletePreferences: store error", map[string]interface{}{"email": email, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to delete preferences")
		return
	}
	if existing.CreatedAt.IsZero() {
		writeError(w, http.StatusNotFound, "no preferences for "+email)
		return
	}

	if err := s.store.DeletePreferences(r.Context(), email); err != nil {
		s.log.Error("deletePreferences: store error", map[string]interface{}{"email": email, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to delete preferences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "preferences deleted"})
}

// validate rejects malformed input before it ever reaches the
// Scheduler: unknown course keys, and time windows with end <= start.
func (s *Server) validate(prefs models.UserPreferences) error {
	if prefs.Email == "" {
		return errs.InvalidConfig(errors.New("email is required"))
	}

	for _, key := range prefs.SelectedCourses {
		if club, err := s.catalog.Lookup(key); err != nil || club.Key != key {
			return errs.InvalidConfig(errors.New("unknown course key: " + key))
		}
	}

	for _, windows := range [][]models.TimeWindow{
		prefs.TimePreferences.Same,
		prefs.TimePreferences.Weekdays,
		prefs.TimePreferences.Weekends,
	} {
		for _, w := range windows {
			if w.EndMinute <= w.StartMinute {
				return errs.InvalidConfig(errors.New("time window end must be after start"))
			}
		}
	}

	return nil
}

// normalizeTimePreferences expands a "Same" shorthand into the
// canonical weekday/weekend two-bucket form so every downstream
// reader (the Matcher) only ever has to branch on Weekdays/Weekends.
func normalizeTimePreferences(tp models.TimePreferences) models.TimePreferences {
	if tp.Weekdays == nil && tp.Weekends == nil && tp.Same != nil {
		return models.TimePreferences{Weekdays: tp.Same, Weekends: tp.Same}
	}
	return tp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
