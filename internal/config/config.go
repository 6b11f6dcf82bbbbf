// Package config assembles the process-wide Config from environment
// variables at startup. There is no package-level mutable instance —
// every component receives the slice of Config it needs at
// construction, per the dependency-injection rule that replaces the
// source's global AppConfig pointer.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the monitor.
type Config struct {
	Store     StoreConfig
	Redis     RedisConfig
	Vault     VaultConfig
	Browser   BrowserConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Catalog   CatalogConfig
	Server    ServerConfig
}

// StoreConfig configures the MongoDB-backed Store (C4).
type StoreConfig struct {
	URI      string
	Database string
}

// RedisConfig configures the pub/sub event channel (§2.2).
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// VaultConfig configures ambient secrets resolution.
type VaultConfig struct {
	Address string
	Token   string
	Enabled bool
}

// BrowserConfig configures the headless Browser Session (C3).
type BrowserConfig struct {
	Username     string
	Password     string
	Headless     bool
	CookieJarDir string
	LoginURL     string
}

// EmailConfig configures the Notifier (C8).
type EmailConfig struct {
	Enabled        bool
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPassword   string
	SMTPUseSSL     bool
	FromEmail      string
	ToEmails       string
	SendGridAPIKey string
}

// SchedulerConfig configures the Scheduler (C7) and Digest Worker (C9).
type SchedulerConfig struct {
	CheckInterval time.Duration
	JitterSeconds int
	DaysAhead     int
	TimeWindow    string
	MinSeats      int
	TeeCapacity   int
	Local         bool
}

// CatalogConfig configures the Club Catalog (C1) load path.
type CatalogConfig struct {
	Path string
}

// ServerConfig configures the Preferences API (C10) HTTP listener.
type ServerConfig struct {
	Port string
}

// Load assembles Config from the environment. Callers in cmd/ are
// expected to call godotenv.Load() before this, when a .env file
// should be honored.
func Load() (*Config, error) {
	return &Config{
		Store:     storeConfigFromEnv(),
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Vault: VaultConfig{
			Address: getEnv("VAULT_ADDR", ""),
			Token:   getEnv("VAULT_TOKEN", ""),
			Enabled: getEnv("VAULT_ADDR", "") != "",
		},
		Browser: BrowserConfig{
			Username:     getEnv("GOLFBOX_USER", ""),
			Password:     getEnv("GOLFBOX_PASS", ""),
			Headless:     getEnvAsBool("HEADLESS", true),
			CookieJarDir: getEnv("COOKIE_JAR_DIR", ".cookies"),
			LoginURL:     getEnv("GOLFBOX_LOGIN_URL", "https://golfbox.golf/"),
		},
		Email: EmailConfig{
			Enabled:        getEnvAsBool("EMAIL_ENABLED", true),
			SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUser:       getEnv("SMTP_USER", ""),
			SMTPPassword:   getEnv("SMTP_PASS", ""),
			SMTPUseSSL:     getEnvAsBool("SMTP_SSL", false),
			FromEmail:      getEnv("EMAIL_FROM", ""),
			ToEmails:       getEnv("EMAIL_TO", ""),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			CheckInterval: time.Duration(getEnvAsInt("CHECK_INTERVAL_SECONDS", 300)) * time.Second,
			JitterSeconds: getEnvAsInt("JITTER_SECONDS", 20),
			DaysAhead:     getEnvAsInt("DAYS_AHEAD", 4),
			TimeWindow:    getEnv("TIME_WINDOW", "08:00-17:00"),
			MinSeats:      getEnvAsInt("MIN_SEATS", 1),
			TeeCapacity:   getEnvAsInt("TEE_CAPACITY", 4),
			Local:         getEnvAsBool("LOCAL", false),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", "catalog.json"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
		},
	}, nil
}

// Validate checks the fields required to run the Scheduler. Called
// explicitly by cmd/ entrypoints rather than implicitly inside Load,
// so tests can construct partial configs without tripping it.
func (c *Config) Validate() error {
	if c.Store.URI == "" {
		return fmt.Errorf("store.uri is required")
	}
	if c.Store.Database == "" {
		return fmt.Errorf("store.database is required")
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("scheduler.checkInterval must be positive")
	}
	if c.Scheduler.DaysAhead <= 0 || c.Scheduler.DaysAhead > 14 {
		return fmt.Errorf("scheduler.daysAhead must be in [1, 14]")
	}
	if c.Scheduler.MinSeats <= 0 {
		return fmt.Errorf("scheduler.minSeats must be positive")
	}
	return nil
}

// storeConfigFromEnv builds the Store (C4) connection settings.
// DATABASE_URL, when set, is the documented single connection string
// and wins outright; its path segment (if any) supplies the database
// name. MONGO_URI/DB_NAME remain supported as the unbundled form for
// deployments that set the URI and database name separately.
func storeConfigFromEnv() StoreConfig {
	if raw := getEnv("DATABASE_URL", ""); raw != "" {
		cfg := StoreConfig{URI: raw, Database: getEnv("DB_NAME", "golf_availability")}
		if name := databaseNameFromURI(raw); name != "" {
			cfg.Database = name
		}
		return cfg
	}
	return StoreConfig{
		URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database: getEnv("DB_NAME", "golf_availability"),
	}
}

// databaseNameFromURI extracts the database name from a Mongo
// connection string's path component, e.g. the "golf" in
// "mongodb://host:27017/golf?retryWrites=true".
func databaseNameFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.Trim(parsed.Path, "/")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// splitRecipients parses a comma-separated recipient list, trimming
// whitespace and dropping empties.
func splitRecipients(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToEmailList returns the parsed EMAIL_TO recipients.
func (e EmailConfig) ToEmailList() []string {
	return splitRecipients(e.ToEmails)
}
