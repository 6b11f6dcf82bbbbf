// Package catalog implements the Club Catalog (C1): a static, read-only
// registry of golf clubs loaded once at startup, plus the URL
// materialization/rewrite logic needed to drive the scraping loop.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Lookup when no club matches.
var ErrNotFound = errors.New("club not found")

// Location is an optional lat/lng pair for a club.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Club is an immutable catalog entry.
type Club struct {
	Key             string    `json:"key"`
	DisplayName     string    `json:"display_name"`
	ResourceID      string    `json:"resource_id"`
	ClubID          string    `json:"club_id"`
	Host            string    `json:"host"`
	DefaultOpenTime string    `json:"default_open_time"` // HH:MM:SS local
	Location        *Location `json:"location,omitempty"`
}

// Catalog is the read-only club registry.
type Catalog struct {
	clubs map[string]Club
	keys  []string // sorted, for deterministic substring-match iteration
}

// Load reads the catalog from a JSON file shaped as a list of Club
// entries.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %q: %w", path, err)
	}

	var clubs []Club
	if err := json.Unmarshal(data, &clubs); err != nil {
		return nil, fmt.Errorf("parsing catalog file %q: %w", path, err)
	}

	return New(clubs), nil
}

// New builds a Catalog from an in-memory list of clubs; Load uses it
// after decoding the file, and tests call it directly.
func New(clubs []Club) *Catalog {
	c := &Catalog{clubs: make(map[string]Club, len(clubs))}
	for _, club := range clubs {
		c.clubs[club.Key] = club
	}
	c.keys = make([]string, 0, len(c.clubs))
	for k := range c.clubs {
		c.keys = append(c.keys, k)
	}
	sort.Strings(c.keys)
	return c
}

// Lookup finds a club by key first, then case-insensitive exact
// display-name match, then case-insensitive substring match (first hit
// in sorted-key order, per the spec's documented ambiguity).
func (c *Catalog) Lookup(key string) (Club, error) {
	if club, ok := c.clubs[key]; ok {
		return club, nil
	}

	lowered := strings.ToLower(key)
	for _, k := range c.keys {
		club := c.clubs[k]
		if strings.ToLower(club.DisplayName) == lowered {
			return club, nil
		}
	}
	for _, k := range c.keys {
		club := c.clubs[k]
		if strings.Contains(strings.ToLower(club.DisplayName), lowered) {
			return club, nil
		}
	}

	return Club{}, ErrNotFound
}

// Keys returns all club keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// All returns every club, in sorted-key order.
func (c *Catalog) All() []Club {
	out := make([]Club, 0, len(c.clubs))
	for _, k := range c.keys {
		out = append(out, c.clubs[k])
	}
	return out
}

// MaterializeURL composes the booking-grid URL for club on date,
// defaulting the start time to the club's DefaultOpenTime when
// startHHMM is empty.
func (c *Catalog) MaterializeURL(club Club, date time.Time, startHHMM string) (string, error) {
	hh, mm, ss, err := splitOpenTime(club.DefaultOpenTime, startHHMM)
	if err != nil {
		return "", err
	}

	booking := fmt.Sprintf("%sT%02d%02d%02d", date.Format("20060102"), hh, mm, ss)

	u := fmt.Sprintf(
		"https://%s/grid.asp?Ressource_GUID={%s}&Club_GUID=%s&Booking_Start=%s",
		club.Host, club.ResourceID, club.ClubID, booking,
	)
	return u, nil
}

// RewriteDate returns rawURL with its Booking_Start date component
// replaced by date, preserving the time-of-day portion.
func RewriteDate(rawURL string, date time.Time) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	q := parsed.Query()
	current := q.Get("Booking_Start")
	if len(current) < 15 {
		return "", fmt.Errorf("unexpected Booking_Start format %q", current)
	}

	// Format: YYYYMMDDThhmmss — keep everything from "T" onward.
	timePortion := current[8:] // "Thhmmss"
	q.Set("Booking_Start", date.Format("20060102")+timePortion)
	parsed.RawQuery = q.Encode()

	return decodeBraces(parsed.String()), nil
}

// decodeBraces undoes url.Values.Encode()'s percent-escaping of the
// literal "{" "}" around Ressource_GUID, which the observed URL format
// requires verbatim.
func decodeBraces(s string) string {
	s = strings.ReplaceAll(s, "%7B", "{")
	s = strings.ReplaceAll(s, "%7D", "}")
	return s
}

func splitOpenTime(defaultOpenTime, override string) (hh, mm, ss int, err error) {
	spec := defaultOpenTime
	if override != "" {
		// override is HH:MM; seconds default to 00.
		spec = override + ":00"
	}

	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed time %q, expected HH:MM:SS", spec)
	}

	hh, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed hour in %q: %w", spec, err)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed minute in %q: %w", spec, err)
	}
	ss, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed second in %q: %w", spec, err)
	}
	return hh, mm, ss, nil
}
