package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rangeSep joins the two halves of a day range.
const rangeSep = `\s*[-–—]\s*`

// Both day patterns try "left - right" first and fall back to a single date.
// Groups 1-3 are the left day, month, and year, 4-6 the right half, and 7-9
// the single date. Left month and year may be omitted.
var (
	isoDateRe     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	numericDateRe = regexp.MustCompile(
		`(\d{1,2})(?:[./](\d{1,2})(?:[./](\d{4}))?)?` + rangeSep + `(\d{1,2})[./](\d{1,2})[./](\d{4})` +
			`|(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	monthDateRe = regexp.MustCompile(
		`(\d{1,2})(?:\s+(\p{L}+)(?:\s+(\d{4}))?)?` + rangeSep + `(\d{1,2})\s+(\p{L}+)\s+(\d{4})` +
			`|(\d{1,2})\s+(\p{L}+)\s+(\d{4})`)
)

// maxRangeSpan bounds a day range; anything longer is read as two dates.
const maxRangeSpan = 31 * 24 * time.Hour

// Polish genitive month names as printed in dates, plus their ASCII spellings.
var polishMonths = map[string]time.Month{
	"stycznia":     time.January,
	"lutego":       time.February,
	"marca":        time.March,
	"kwietnia":     time.April,
	"maja":         time.May,
	"czerwca":      time.June,
	"lipca":        time.July,
	"sierpnia":     time.August,
	"września":     time.September,
	"wrzesnia":     time.September,
	"października": time.October,
	"pazdziernika": time.October,
	"listopada":    time.November,
	"grudnia":      time.December,
}

// DateMatch is a date found inside free text.
type DateMatch struct {
	Start time.Time
	End   time.Time
	Text  string
	Index int
}

// FindDate returns the earliest valid date in text. A day range such as
// "12-13.05.2025", "31.05-01.06.2025", or "30 czerwca – 2 lipca 2025" sets
// End. A match never starts or ends inside a longer number.
func FindDate(text string) (DateMatch, bool) {
	best := DateMatch{Index: -1}
	consider := func(m DateMatch) {
		if best.Index < 0 || m.Index < best.Index {
			best = m
		}
	}

	for _, loc := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		if !startsCleanly(text, loc[0]) || !endsCleanly(text, loc[1]) {
			continue
		}
		y, mo, d := atoi(text, loc, 1), atoi(text, loc, 2), atoi(text, loc, 3)
		if start, ok := makeDate(y, time.Month(mo), d); ok {
			consider(DateMatch{Start: start, Text: text[loc[0]:loc[1]], Index: loc[0]})
			break
		}
	}
	numericMonth := func(loc []int, group int) int {
		if loc[2*group] < 0 {
			return 0
		}
		return atoi(text, loc, group)
	}
	for _, loc := range numericDateRe.FindAllStringSubmatchIndex(text, -1) {
		if m, ok := spanMatch(text, loc, numericMonth); ok {
			consider(m)
			break
		}
	}
	namedMonth := func(loc []int, group int) int {
		if loc[2*group] < 0 {
			return 0
		}
		month, known := polishMonths[strings.ToLower(text[loc[2*group]:loc[2*group+1]])]
		if !known {
			return -1
		}
		return int(month)
	}
	for _, loc := range monthDateRe.FindAllStringSubmatchIndex(text, -1) {
		if m, ok := spanMatch(text, loc, namedMonth); ok {
			consider(m)
			break
		}
	}
	return best, best.Index >= 0
}

// ParseDate parses text that should carry a date, such as a table cell.
func ParseDate(text string) (time.Time, time.Time, bool) {
	m, ok := FindDate(text)
	return m.Start, m.End, ok
}

// spanMatch builds a DateMatch from a range-or-single match. month returns 0
// for an absent month group and -1 for an unrecognized one. When the left
// half of a range is not a clean date before the right half, the right half
// is returned alone.
func spanMatch(text string, loc []int, month func(loc []int, group int) int) (DateMatch, bool) {
	if !endsCleanly(text, loc[1]) {
		return DateMatch{}, false
	}
	if loc[14] >= 0 {
		if !startsCleanly(text, loc[0]) {
			return DateMatch{}, false
		}
		start, ok := makeDate(atoi(text, loc, 9), time.Month(month(loc, 8)), atoi(text, loc, 7))
		if !ok {
			return DateMatch{}, false
		}
		return DateMatch{Start: start, Text: text[loc[0]:loc[1]], Index: loc[0]}, true
	}

	endYear, endMonth := atoi(text, loc, 6), month(loc, 5)
	end, ok := makeDate(endYear, time.Month(endMonth), atoi(text, loc, 4))
	if !ok {
		return DateMatch{}, false
	}
	right := DateMatch{Start: end, Text: text[loc[8]:loc[1]], Index: loc[8]}

	startMonth := month(loc, 2)
	switch {
	case startMonth < 0 || !startsCleanly(text, loc[0]):
		return right, true
	case startMonth == 0:
		startMonth = endMonth
	}
	startYear, explicitYear := atoi(text, loc, 3), loc[6] >= 0
	if !explicitYear {
		startYear = endYear
	}
	day := atoi(text, loc, 1)
	start, ok := makeDate(startYear, time.Month(startMonth), day)
	if ok && !explicitYear && start.After(end) {
		start, ok = makeDate(startYear-1, time.Month(startMonth), day)
	}
	if !ok || !start.Before(end) || end.Sub(start) > maxRangeSpan {
		return right, true
	}
	return DateMatch{Start: start, End: end, Text: text[loc[0]:loc[1]], Index: loc[0]}, true
}

// startsCleanly reports whether a match at start is not the tail of a longer
// number or of another date, such as "05" in "31.05".
func startsCleanly(text string, start int) bool {
	if start == 0 {
		return true
	}
	prev := text[start-1]
	if isDigit(prev) {
		return false
	}
	return !((prev == '.' || prev == '/') && start > 1 && isDigit(text[start-2]))
}

func endsCleanly(text string, end int) bool {
	return end >= len(text) || !isDigit(text[end])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(text string, loc []int, group int) int {
	start, end := loc[2*group], loc[2*group+1]
	if start < 0 {
		return 0
	}
	n, err := strconv.Atoi(text[start:end])
	if err != nil {
		return 0
	}
	return n
}
