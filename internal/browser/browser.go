// Package browser implements the Browser Session (C3): a headless,
// cookie-persisting Chrome session used to fetch booking-grid pages
// that require an authenticated cookie jar. Login is attempted through
// a small chain of strategies, the first of which (heuristic form
// detection) covers the vast majority of booking portals seen in
// practice.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/edevardHvide/golf-availability-bot/internal/errs"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
)

// ErrLoginFailed is returned when every login strategy has been
// exhausted without verification succeeding.
var ErrLoginFailed = errors.New("all login strategies failed")

// Config configures a Session.
type Config struct {
	Username            string
	Password            string
	Headless            bool
	NavigationTimeoutMs int
	CookieJarPath       string
	LoginURL            string
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Session owns one launched Chrome instance and the single page used to
// drive it. It is not safe for concurrent use by multiple goroutines —
// callers that need concurrent fetches should open multiple Sessions.
type Session struct {
	cfg        Config
	log        *logging.Logger
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// New constructs a Session but does not launch Chrome yet; call Start.
func New(cfg Config, log *logging.Logger) *Session {
	return &Session{cfg: cfg, log: log}
}

// Start launches (or reconnects to) Chrome, opens a page, and restores
// any persisted cookie jar.
func (s *Session) Start(ctx context.Context) error {
	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		_ = s.browser.Close()
		s.browser = nil
	}

	controlURL, err := launcher.New().Headless(s.cfg.Headless).Launch()
	if err != nil {
		return errs.Transient(fmt.Errorf("launch chrome: %w", err))
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return errs.Transient(fmt.Errorf("connect to chrome: %w", err))
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return errs.Transient(fmt.Errorf("open page: %w", err))
	}

	s.browser = browser
	s.controlURL = controlURL
	s.page = page

	if err := s.restoreCookies(); err != nil {
		s.log.Warn("failed to restore cookie jar", map[string]any{"error": err.Error()})
	}

	return nil
}

// Close shuts down the browser and persists the cookie jar.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	if err := s.persistCookies(); err != nil {
		s.log.Warn("failed to persist cookie jar", map[string]any{"error": err.Error()})
	}
	err := s.browser.Close()
	s.browser = nil
	s.page = nil
	return err
}

// EnsureLoggedIn navigates to the configured login URL (if one is set
// and the session isn't already authenticated) and runs the login
// strategy chain. It is idempotent: a session that already carries a
// valid cookie jar will verify as logged in without filling any form.
func (s *Session) EnsureLoggedIn(ctx context.Context) error {
	if s.cfg.LoginURL == "" {
		return nil
	}
	if err := s.page.Context(ctx).Timeout(s.cfg.navigationTimeout()).Navigate(s.cfg.LoginURL); err != nil {
		return errs.Transient(fmt.Errorf("navigate to login page: %w", err))
	}
	_ = s.page.WaitLoad()

	if verifyLoginSuccess(s.page) {
		return nil
	}

	for _, strategy := range []loginStrategy{heuristicStrategy{}} {
		ok, message := strategy.attemptLogin(s.page, s.cfg.Username, s.cfg.Password)
		s.log.Debug("login strategy result", map[string]any{"strategy": strategy.name(), "ok": ok, "message": message})
		if !ok {
			continue
		}
		time.Sleep(2 * time.Second)
		if verifyLoginSuccess(s.page) {
			return nil
		}
	}

	return errs.Auth(ErrLoginFailed)
}

// Fetch navigates to url and returns the rendered HTML. It retries
// transient navigation failures up to 3 times with exponential backoff
// between attempts. If the page that comes back looks like a login
// form — the session's cookie jar expired mid-run — it re-authenticates
// once via EnsureLoggedIn and retries the fetch once more.
func (s *Session) Fetch(ctx context.Context, url string) (string, error) {
	html, err := s.fetchWithRetry(ctx, url)
	if err != nil {
		return "", err
	}

	if isLoginPage(html) {
		s.log.Debug("fetch landed on a login page, re-authenticating", map[string]any{"url": url})
		if err := s.EnsureLoggedIn(ctx); err != nil {
			return "", err
		}
		html, err = s.fetchWithRetry(ctx, url)
		if err != nil {
			return "", err
		}
	}

	return html, nil
}

func (s *Session) fetchWithRetry(ctx context.Context, url string) (string, error) {
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if err := s.page.Context(ctx).Timeout(s.cfg.navigationTimeout()).Navigate(url); err != nil {
			lastErr = err
			continue
		}
		_ = s.page.WaitLoad()
		html, err := s.page.HTML()
		if err != nil {
			lastErr = err
			continue
		}
		return html, nil
	}
	return "", errs.Transient(fmt.Errorf("fetch %s: %w", url, lastErr))
}

// ---------------------------------------------------------------------
// Cookie jar persistence
// ---------------------------------------------------------------------

func (s *Session) persistCookies() error {
	if s.cfg.CookieJarPath == "" || s.page == nil {
		return nil
	}
	cookies, err := s.page.Cookies(nil)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.CookieJarPath), 0o755); err != nil {
		return err
	}
	// Write to a temp file and rename so a crash never leaves a torn jar.
	tmp := s.cfg.CookieJarPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.cfg.CookieJarPath)
}

func (s *Session) restoreCookies() error {
	if s.cfg.CookieJarPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.cfg.CookieJarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
	if len(params) == 0 {
		return nil
	}
	return s.page.SetCookies(params)
}

// ---------------------------------------------------------------------
// Login strategies
// ---------------------------------------------------------------------

type loginStrategy interface {
	name() string
	attemptLogin(page *rod.Page, username, password string) (ok bool, message string)
}

type heuristicStrategy struct{}

func (heuristicStrategy) name() string { return "heuristic" }

var usernameKeywords = []string{"user", "email", "login", "brukernavn"}
var passwordKeywords = []string{"pass", "pwd"}
var submitKeywords = []string{"login", "sign in", "logg inn", "submit"}

func (heuristicStrategy) attemptLogin(page *rod.Page, username, password string) (bool, string) {
	inputs, err := page.Elements("input")
	if err != nil {
		return false, fmt.Sprintf("listing inputs: %v", err)
	}

	var userField, passField *rod.Element
	for _, in := range inputs {
		visible, _ := in.Visible()
		if !visible {
			continue
		}
		inputType, _ := in.Attribute("type")
		name, _ := in.Attribute("name")
		id, _ := in.Attribute("id")
		placeholder, _ := in.Attribute("placeholder")

		if userField == nil && isUsernameCandidate(inputType, name, id, placeholder) {
			userField = in
		}
		if passField == nil && isPasswordCandidate(inputType, name, id, placeholder) {
			passField = in
		}
	}

	if userField == nil || passField == nil {
		return false, "could not identify username/password fields"
	}

	if err := userField.Input(username); err != nil {
		return false, fmt.Sprintf("filling username: %v", err)
	}
	if err := passField.Input(password); err != nil {
		return false, fmt.Sprintf("filling password: %v", err)
	}

	if submit := findSubmitButton(page); submit != nil {
		if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, fmt.Sprintf("clicking submit: %v", err)
		}
	} else if err := passField.Type(input.Enter); err != nil {
		return false, fmt.Sprintf("pressing enter: %v", err)
	}

	return true, "heuristic analysis successful"
}

func isUsernameCandidate(inputType, name, id, placeholder *string) bool {
	t := deref(inputType)
	if t == "email" {
		return true
	}
	if t == "text" || t == "" {
		if containsAny(deref(name), usernameKeywords) || containsAny(deref(id), usernameKeywords) || containsAny(deref(placeholder), usernameKeywords) {
			return true
		}
	}
	return false
}

func isPasswordCandidate(inputType, name, id, placeholder *string) bool {
	if deref(inputType) == "password" {
		return true
	}
	return containsAny(deref(name), passwordKeywords) || containsAny(deref(id), passwordKeywords) || containsAny(deref(placeholder), passwordKeywords)
}

func findSubmitButton(page *rod.Page) *rod.Element {
	buttons, err := page.Elements("button, input[type='submit']")
	if err != nil {
		return nil
	}
	for _, b := range buttons {
		text, _ := b.Text()
		btnType, _ := b.Attribute("type")
		if deref(btnType) == "submit" || containsAny(text, submitKeywords) {
			return b
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func containsAny(haystack string, needles []string) bool {
	lowered := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lowered, n) {
			return true
		}
	}
	return false
}

var successURLMarkers = []string{"dashboard", "profile", "booking", "starttid"}
var successContentMarkers = []string{"logout", "logg ut", "min side", "velkommen", "profile"}
var failureContentMarkers = []string{"invalid", "feil passord", "wrong password"}
var loginFormMarkers = []string{"logg inn", "login", "sign in", "password"}

// isLoginPage reports whether html looks like a login form, used by
// Fetch to notice a session that expired mid-run.
func isLoginPage(html string) bool {
	return containsAny(strings.ToLower(html), loginFormMarkers)
}

func verifyLoginSuccess(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return true
	}
	url := strings.ToLower(info.URL)
	html, err := page.HTML()
	if err != nil {
		return true
	}
	content := strings.ToLower(html)

	for _, m := range failureContentMarkers {
		if strings.Contains(content, m) {
			return false
		}
	}
	for _, m := range successURLMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	for _, m := range successContentMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}

	for _, m := range loginFormMarkers {
		if strings.Contains(content, m) {
			return false
		}
	}
	return true
}
