package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/edevardHvide/golf-availability-bot/internal/browser"
	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/config"
	"github.com/edevardHvide/golf-availability-bot/internal/events"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/models"
	"github.com/edevardHvide/golf-availability-bot/internal/notifier"
	"github.com/edevardHvide/golf-availability-bot/internal/scheduler"
	"github.com/edevardHvide/golf-availability-bot/internal/store"
	"github.com/edevardHvide/golf-availability-bot/internal/vault"
)

const vaultSecretsPath = "secret/golf"

func main() {
	timeWindow := flag.String("time-window", "", "Global filter window HH:MM-HH:MM")
	interval := flag.Int("interval", 0, "Cycle period in seconds")
	players := flag.Int("players", 0, "Minimum seats")
	days := flag.Int("days", 0, "Horizon in days")
	local := flag.Bool("local", false, "Skip the Preferences API; drive a single flag-derived user")
	flag.Parse()

	log := logging.New("scheduler")

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, using process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", map[string]interface{}{"error": err.Error()})
	}
	applyFlagOverrides(cfg, *timeWindow, *interval, *players, *days, *local)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secrets, err := vault.NewResolver(cfg.Vault.Address, cfg.Vault.Token, map[string]string{
		"GOLFBOX_USER": cfg.Browser.Username,
		"GOLFBOX_PASS": cfg.Browser.Password,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize secrets resolver", map[string]interface{}{"error": err.Error()})
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("failed to load club catalog", map[string]interface{}{"error": err.Error()})
	}

	db, client, err := store.Connect(ctx, cfg.Store.URI, cfg.Store.Database)
	if err != nil {
		log.Fatal("failed to connect to store", map[string]interface{}{"error": err.Error()})
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure store indexes", map[string]interface{}{"error": err.Error()})
	}

	browserSession := browser.New(browser.Config{
		Username:            secrets.Get(vaultSecretsPath, "GOLFBOX_USER"),
		Password:            secrets.Get(vaultSecretsPath, "GOLFBOX_PASS"),
		Headless:            cfg.Browser.Headless,
		CookieJarPath:       cfg.Browser.CookieJarDir + "/cookies.json",
		LoginURL:            cfg.Browser.LoginURL,
		NavigationTimeoutMs: 15000,
	}, log)

	if err := browserSession.Start(ctx); err != nil {
		log.Error("failed to start browser session", map[string]interface{}{"error": err.Error()})
		os.Exit(2)
	}
	defer browserSession.Close()

	if err := browserSession.EnsureLoggedIn(ctx); err != nil {
		log.Error("could not establish an authenticated session", map[string]interface{}{"error": err.Error()})
		os.Exit(2)
	}

	sender := notifier.NewEmailSender(cfg.Email)
	notify := notifier.New(sender, db, cat, log)

	var publisher *events.Publisher
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, running without the availability wakeup channel", map[string]interface{}{"error": err.Error()})
	} else {
		publisher = events.NewPublisher(redisClient, log)
		defer redisClient.Close()
	}

	schedCfg := scheduler.Config{
		CheckInterval: cfg.Scheduler.CheckInterval,
		JitterSeconds: cfg.Scheduler.JitterSeconds,
		DaysAhead:     cfg.Scheduler.DaysAhead,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Local {
		sched = scheduler.New(cat, browserSession, &localPrefsStore{Store: db, user: localUser(cfg, cat)}, notify, publisher, schedCfg, log)
	} else {
		sched = scheduler.New(cat, browserSession, db, notify, publisher, schedCfg, log)
	}

	log.Info("scheduler starting", map[string]interface{}{
		"check_interval": cfg.Scheduler.CheckInterval.String(),
		"days_ahead":     cfg.Scheduler.DaysAhead,
		"local_mode":     cfg.Scheduler.Local,
	})

	if err := sched.Run(ctx); err != nil {
		log.Error("scheduler exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	log.Info("scheduler stopped gracefully")
}

func applyFlagOverrides(cfg *config.Config, timeWindow string, interval, players, days int, local bool) {
	if timeWindow != "" {
		cfg.Scheduler.TimeWindow = timeWindow
	}
	if interval > 0 {
		cfg.Scheduler.CheckInterval = time.Duration(interval) * time.Second
	}
	if players > 0 {
		cfg.Scheduler.MinSeats = players
	}
	if days > 0 {
		cfg.Scheduler.DaysAhead = days
	}
	if local {
		cfg.Scheduler.Local = true
	}
}

// localPrefsStore overrides AllActivePreferences with a single
// flag-derived user, for single-operator deployments that have no
// Preferences API running in front of the Store.
type localPrefsStore struct {
	*store.Store
	user models.UserPreferences
}

func (l *localPrefsStore) AllActivePreferences(context.Context) ([]models.UserPreferences, error) {
	return []models.UserPreferences{l.user}, nil
}

func localUser(cfg *config.Config, cat *catalog.Catalog) models.UserPreferences {
	window := parseTimeWindow(cfg.Scheduler.TimeWindow)
	now := time.Now()
	return models.UserPreferences{
		Name:             "local",
		Email:            "local@localhost",
		SelectedCourses:  cat.Keys(),
		MinSeats:         cfg.Scheduler.MinSeats,
		DaysAhead:        cfg.Scheduler.DaysAhead,
		TimePreferences:  models.TimePreferences{Weekdays: []models.TimeWindow{window}, Weekends: []models.TimeWindow{window}},
		MaxAlertsPerHour: 0,
		MaxAlertsPerDay:  0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// parseTimeWindow parses "HH:MM-HH:MM" into minute-of-day bounds,
// falling back to 08:00-17:00 on any malformed input.
func parseTimeWindow(raw string) models.TimeWindow {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) == 2 {
		start, okStart := parseHHMMToMinutes(parts[0])
		end, okEnd := parseHHMMToMinutes(parts[1])
		if okStart && okEnd && end > start {
			return models.TimeWindow{StartMinute: start, EndMinute: end}
		}
	}
	return models.TimeWindow{StartMinute: 8 * 60, EndMinute: 17 * 60}
}

func parseHHMMToMinutes(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return hh*60 + mm, true
}
