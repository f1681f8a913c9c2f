package listing

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe  = regexp.MustCompile(`€\s*([\d.,]+)`)
	areaRe   = regexp.MustCompile(`(\d+)\s*(?:m²|m2|sq\.?\s?m)`)
	roomsRe  = regexp.MustCompile(`(\d+)\s*(?:rooms?|kamers?|zimmer)`)
	postalRe = regexp.MustCompile(`(\d{4}\s*[A-Z]{2})`)
	digitsRe = regexp.MustCompile(`\d+`)
	weekRe   = regexp.MustCompile(`(?i)per\s+week|p/?w\b|/\s*week|p\.w\.`)
)

// ParsePrice extracts a euro amount from free text and reports whether
// it is quoted per week. Both European ("1.250,50") and US ("1,250.50")
// separator conventions appear across the portals; a sole comma or dot
// followed by exactly two digits is a decimal separator, anything else
// groups thousands.
func ParsePrice(text string) (int, PricePeriod) {
	period := PeriodMonth
	if weekRe.MatchString(text) {
		period = PeriodWeek
	}
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, period
	}
	raw := m[1]
	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastDot < lastComma:
		// European: 1.234,56
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		// US: 1,234.56
		raw = strings.ReplaceAll(raw, ",", "")
	case lastComma >= 0:
		if len(raw)-lastComma-1 == 2 {
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case lastDot >= 0:
		if len(raw)-lastDot-1 != 2 {
			raw = strings.ReplaceAll(raw, ".", "")
		}
	}
	val, err := strconv.ParseFloat(strings.TrimSuffix(raw, "."), 64)
	if err != nil {
		return 0, period
	}
	return int(val), period
}

// ParseArea extracts a square-meter value ("75 m²", "75m2", "75 sq.m").
func ParseArea(text string) int {
	m := areaRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseRooms extracts a room count ("3 kamers", "3 rooms").
func ParseRooms(text string) int {
	m := roomsRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseIntLoose returns the first run of digits in text, 0 when none.
func ParseIntLoose(text string) int {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

// ExtractPostalCode finds a Dutch postal code ("1234 AB" or "1234AB")
// in text and returns it normalized, or "" when absent.
func ExtractPostalCode(text string) string {
	m := postalRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return NormalizePostalCode(m[1])
}
