// catalog-refresh regenerates catalog.json from a GolfBox club listing
// page. It is an offline operator tool, run by hand whenever a club
// opens, closes, or rotates its GUIDs — never on the Scheduler's hot
// path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
)

var (
	resourceGUIDPattern = regexp.MustCompile(`Ressource_GUID=\{([A-F0-9-]+)\}`)
	clubGUIDPattern     = regexp.MustCompile(`Club_GUID=([A-F0-9-]+)`)
	replacer            = strings.NewReplacer(" ", "_", "æ", "ae", "ø", "o", "å", "aa", "Æ", "ae", "Ø", "o", "Å", "aa")
	nonKeyChars         = regexp.MustCompile(`[^a-z0-9_]`)
)

func main() {
	listingURL := flag.String("listing-url", "https://www.golfbox.no/site/my_golfbox/ressources/search/club_search.asp", "club directory page to scrape")
	outPath := flag.String("out", "catalog.json", "output catalog.json path")
	existingPath := flag.String("merge", "", "existing catalog.json to merge into, preserving hand-entered locations")
	flag.Parse()

	existing := map[string]catalog.Club{}
	if *existingPath != "" {
		cat, err := catalog.Load(*existingPath)
		if err != nil {
			log.Fatalf("loading existing catalog %q: %v", *existingPath, err)
		}
		for _, club := range cat.All() {
			existing[club.Key] = club
		}
	}

	clubs := make(map[string]catalog.Club)

	c := colly.NewCollector(colly.MaxDepth(1))
	c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2, Delay: time.Second})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if !strings.Contains(href, "Ressource_GUID") || !strings.Contains(href, "Club_GUID") {
			return
		}

		name := strings.TrimSpace(e.Text)
		if name == "" {
			return
		}

		resourceMatch := resourceGUIDPattern.FindStringSubmatch(href)
		clubMatch := clubGUIDPattern.FindStringSubmatch(href)
		if resourceMatch == nil || clubMatch == nil {
			return
		}

		host := e.Request.URL.Host
		if parsed, err := url.Parse(href); err == nil && parsed.Host != "" {
			host = parsed.Host
		}

		key := slugify(name)
		club := catalog.Club{
			Key:             key,
			DisplayName:     name,
			ResourceID:      resourceMatch[1],
			ClubID:          clubMatch[1],
			Host:            host,
			DefaultOpenTime: "07:00:00",
		}
		if prior, ok := existing[key]; ok {
			club.Location = prior.Location
			if prior.DefaultOpenTime != "" {
				club.DefaultOpenTime = prior.DefaultOpenTime
			}
		}
		clubs[key] = club
	})

	c.OnError(func(_ *colly.Response, err error) {
		log.Printf("scrape error: %v", err)
	})

	if err := c.Visit(*listingURL); err != nil {
		log.Fatalf("visiting %q: %v", *listingURL, err)
	}
	c.Wait()

	for key, club := range existing {
		if _, found := clubs[key]; !found {
			clubs[key] = club
		}
	}

	out := make([]catalog.Club, 0, len(clubs))
	for _, club := range clubs {
		out = append(out, club)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("encoding catalog: %v", err)
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		log.Fatalf("writing %q: %v", *outPath, err)
	}

	fmt.Printf("wrote %d clubs to %s\n", len(out), *outPath)
}

// slugify mirrors the key derivation used to hand-curate the original
// club list: lowercase, spaces to underscores, Norwegian letters
// transliterated, everything else stripped.
func slugify(name string) string {
	key := strings.ToLower(name)
	key = replacer.Replace(key)
	key = nonKeyChars.ReplaceAllString(key, "")
	return key
}
