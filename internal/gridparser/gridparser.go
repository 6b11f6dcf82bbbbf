// Package gridparser implements the Grid Parser (C2): a pure function
// turning a booking-grid HTML page into {HH:MM -> available seats}. It
// handles the two known grid layouts — a legacy table grid and a
// tile/card grid — trying the table layout first and falling back to
// tiles only when the table yields nothing.
package gridparser

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTeeCapacity is the fallback capacity per tee-time when no
// other signal (explicit attribute, row count) is available, and no
// TEE_CAPACITY override is set in the environment.
const DefaultTeeCapacity = 4

var timeRe = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
var isoTimeRe = regexp.MustCompile(`T(\d{2})(\d{2})`)
var spotCountRe = regexp.MustCompile(`(\d+)\s+spot`)

var nonAvailableMarkers = []string{"partfree", "partial", "full", "occupied", "taken"}
var availableMarkers = []string{"ledig", "available", "free", "bookable", "open", "åpen"}
var bookActionMarkers = []string{"book", "bestill", "reserver", "reserve"}

// Parse extracts {HH:MM -> seats available} from a booking-grid HTML
// document. It tries the table layout first; if that yields no rows,
// it falls back to the tile layout. Deterministic, no I/O.
func Parse(html string) (map[string]int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing grid html: %w", err)
	}

	if table := parseTableLayout(doc); len(table) > 0 {
		return table, nil
	}

	return parseTileLayout(doc), nil
}

// ---------------------------------------------------------------------
// Layout A: table grid
// ---------------------------------------------------------------------

func parseTableLayout(doc *goquery.Document) map[string]int {
	table := doc.Find("table").First()
	root := doc.Selection
	if table.Length() > 0 {
		root = table
	}

	var headerLabels []string
	thead := root.Find("thead").First()
	if thead.Length() > 0 {
		thead.Find("th,td").Each(func(i int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if text == "" {
				text = fmt.Sprintf("Tee %d", i)
			}
			headerLabels = append(headerLabels, text)
		})
	}

	result := map[string]int{}

	var rows *goquery.Selection
	tbody := root.Find("tbody").First()
	if tbody.Length() > 0 {
		rows = tbody.Find("tr")
	} else {
		rows = root.Find("tr")
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th,td")
		if cells.Length() == 0 {
			return
		}

		timeLabel := ""
		firstText := strings.TrimSpace(cells.First().Text())
		if m := timeRe.FindString(firstText); m != "" {
			timeLabel = m
		} else if m := timeRe.FindString(strings.TrimSpace(row.Text())); m != "" {
			timeLabel = m
		}
		if timeLabel == "" {
			return
		}

		cells.Each(func(colIdx int, cell *goquery.Selection) {
			if colIdx == 0 {
				return
			}
			if !isAvailableCell(cell) {
				return
			}
			result[timeLabel]++
			_ = colLabel(headerLabels, colIdx) // label computed for parity with the source; capacity counting drives the contract
		})
	})

	return result
}

func colLabel(headerLabels []string, colIdx int) string {
	if colIdx < len(headerLabels) {
		return headerLabels[colIdx]
	}
	return fmt.Sprintf("Tee %d", colIdx)
}

func isAvailableCell(cell *goquery.Selection) bool {
	class := strings.ToLower(classAttr(cell))
	text := strings.ToLower(strings.TrimSpace(cell.Text()))

	for _, k := range nonAvailableMarkers {
		if strings.Contains(class, k) || strings.Contains(text, k) {
			return false
		}
	}
	for _, k := range availableMarkers {
		if strings.Contains(class, k) || strings.Contains(text, k) {
			return true
		}
	}

	found := false
	cell.Find("a,button").Each(func(_ int, a *goquery.Selection) {
		if found {
			return
		}
		actionText := strings.ToLower(strings.TrimSpace(a.Text()))
		if actionText == "" {
			return
		}
		for _, k := range bookActionMarkers {
			if strings.Contains(actionText, k) {
				found = true
				return
			}
		}
	})
	return found
}

// ---------------------------------------------------------------------
// Layout B: tile grid
// ---------------------------------------------------------------------

func parseTileLayout(doc *goquery.Document) map[string]int {
	capacity := envCapacity()
	totals := map[string]int{}

	doc.Find("div.hour, .booking-slot, .time-slot").Each(func(_ int, tile *goquery.Selection) {
		class := strings.ToLower(classAttr(tile))
		if strings.Contains(class, "tournament") || strings.Contains(class, "expired") {
			return
		}
		if grouping, ok := tile.Attr("data-grouping"); ok && grouping != "" {
			timeDiv := findByClassWord(tile, "time")
			if timeDiv == nil || strings.Contains(class, "tournament") {
				return
			}
		}

		timeText := tileTime(tile)
		if timeText == "" {
			return
		}

		available := tileAvailability(tile, class, capacity)
		if available > 0 {
			if current, ok := totals[timeText]; !ok || available > current {
				totals[timeText] = available
			}
		}
	})

	return totals
}

func tileTime(tile *goquery.Selection) string {
	if timeDiv := findByClassWord(tile, "time"); timeDiv != nil {
		if m := timeRe.FindString(strings.TrimSpace(timeDiv.Text())); m != "" {
			return m
		}
	}
	if m := timeRe.FindString(strings.TrimSpace(tile.Text())); m != "" {
		return m
	}
	if onclick, ok := tile.Attr("onclick"); ok {
		if m := isoTimeRe.FindStringSubmatch(onclick); len(m) == 3 {
			return m[1] + ":" + m[2]
		}
	}
	return ""
}

func tileAvailability(tile *goquery.Selection, class string, envCap int) int {
	players, totalRows := countPlayers(tile)
	capacity := resolveCapacity(tile, totalRows, players, envCap)

	switch {
	case strings.Contains(class, "expired"), strings.Contains(class, "portalclosed"):
		return 0
	case strings.Contains(class, "blocking21") && strings.Contains(class, "hour"):
		return blocking21Availability(tile, capacity)
	case strings.Contains(class, "full"):
		return 0
	case strings.Contains(class, "free") && players == 0:
		return capacity
	case strings.Contains(class, "partfree"):
		return maxInt(0, capacity-players)
	default:
		return 0
	}
}

func blocking21Availability(tile *goquery.Selection, capacity int) int {
	item := findByClassWord(tile, "item")
	if item == nil {
		onclick, _ := tile.Attr("onclick")
		if strings.Contains(onclick, "click_gbDefault") {
			return capacity
		}
		return 0
	}

	bookedPlayers := item.Find("img").Length()
	itemText := strings.TrimSpace(item.Text())
	onclick, _ := tile.Attr("onclick")
	clickable := strings.Contains(onclick, "click_gbDefault")

	switch {
	case clickable && bookedPlayers == 0 && itemText == "":
		return capacity
	case bookedPlayers > 0:
		return maxInt(0, capacity-bookedPlayers)
	default:
		return 0
	}
}

func countPlayers(tile *goquery.Selection) (players, totalRows int) {
	flight := findByClassWord(tile, "time-players")
	if flight != nil {
		flight.Children().Each(func(_ int, row *goquery.Selection) {
			class := strings.ToLower(classAttr(row))
			if strings.Contains(class, "d-flex") && strings.Contains(class, "align-items-center") &&
				strings.Contains(class, "row") && strings.Contains(class, "flex-nowrap") {
				totalRows++
				if nameCell := findByClassWord(row, "fw-bold"); nameCell != nil && strings.TrimSpace(nameCell.Text()) != "" {
					players++
				}
			}
		})
		return players, totalRows
	}

	if item := findByClassWord(tile, "item"); item != nil {
		players = item.Find("img").Length()
	}
	if players == 0 {
		players = tile.Find("img[src*='bookinggrid/greenfee']").Length()
	}
	return players, 0
}

func resolveCapacity(tile *goquery.Selection, totalRows, players, envCap int) int {
	if cap := capacityAttr(tile); cap > 0 {
		return cap
	}
	if flight := findByClassWord(tile, "time-players"); flight != nil {
		if cap := capacityAttr(flight); cap > 0 {
			return cap
		}
	}
	if item := findByClassWord(tile, "item"); item != nil {
		if cap := capacityAttr(item); cap > 0 {
			return cap
		}
	}
	if totalRows > 0 && totalRows > players {
		return totalRows
	}
	return envCap
}

func capacityAttr(sel *goquery.Selection) int {
	if sel == nil {
		return 0
	}
	for _, key := range []string{"data-capacity", "data-slots", "data_capacity", "data_slots"} {
		if val, ok := sel.Attr(key); ok {
			if n := firstInt(val); n > 0 {
				return n
			}
		}
	}
	return 0
}

var intRe = regexp.MustCompile(`\d+`)

func firstInt(s string) int {
	m := intRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func findByClassWord(sel *goquery.Selection, word string) *goquery.Selection {
	var found *goquery.Selection
	sel.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasClassWord(s, word) {
			found = s
			return false
		}
		return true
	})
	return found
}

func hasClassWord(sel *goquery.Selection, word string) bool {
	class, ok := sel.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(class) {
		if strings.EqualFold(c, word) {
			return true
		}
	}
	return false
}

func classAttr(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	return class
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func envCapacity() int {
	if v := os.Getenv("TEE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultTeeCapacity
}

// FormatLabel renders a seat count in the textual "N spot(s) available"
// bridge format, the form ParseLabel reads back. Parse itself returns
// integer counts and does not use it.
func FormatLabel(seats int) string {
	if seats == 1 {
		return "1 spot available"
	}
	return fmt.Sprintf("%d spots available", seats)
}

// ParseLabel parses the "N spot(s) available" textual form back into
// an integer, mirroring the source's regex bridge.
func ParseLabel(label string) (int, bool) {
	m := spotCountRe.FindStringSubmatch(label)
	if len(m) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
