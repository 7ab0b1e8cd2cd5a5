package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
	"github.com/JakeFAU/racecal-crawler/internal/distance"
	"github.com/JakeFAU/racecal-crawler/internal/slug"
)

var (
	segmentSepRe = regexp.MustCompile(`\s+[|–—-]\s+|\s*[|•·;]\s*`)
	adminHintRe  = regexp.MustCompile(`(?i)(?:^|[\s,(])(?:woj\.|województwo|wojewodztwo|pow\.|powiat|gm\.|gmina)(?:\s|$)`)
	parenRe      = regexp.MustCompile(`^(.+?)\s*\(([^)]*)\)\s*$`)
)

// Voivodeship adjectives, folded to ASCII.
var voivodeships = map[string]bool{
	"dolnoslaskie": true, "kujawsko-pomorskie": true, "lubelskie": true, "lubuskie": true,
	"lodzkie": true, "malopolskie": true, "mazowieckie": true, "opolskie": true,
	"podkarpackie": true, "podlaskie": true, "pomorskie": true, "slaskie": true,
	"swietokrzyskie": true, "warminsko-mazurskie": true, "wielkopolskie": true, "zachodniopomorskie": true,
}

const blockSelector = "li, p, div"

// BlockStrategy scans leaf list items, paragraphs, and divs for a date and
// splits the rest of the text into name, city, and distance segments. A leaf
// holding nothing but the date stands for its nearest enclosing block that
// carries the rest of the entry.
type BlockStrategy struct{}

// Name implements Strategy.
func (BlockStrategy) Name() string { return "block" }

// Extract implements Strategy.
func (BlockStrategy) Extract(doc *goquery.Document, base *url.URL) []crawler.RawEntry {
	var (
		out  []crawler.RawEntry
		done []*goquery.Selection
	)
	doc.Find(blockSelector).Each(func(_ int, leaf *goquery.Selection) {
		if leaf.Find(blockSelector).Length() > 0 {
			return
		}
		text := crawler.NormalizeSpace(leaf.Text())
		match, ok := FindDate(text)
		if !ok {
			return
		}
		sel := leaf
		if onlyDate(text, match) {
			sel, text = entryBlock(leaf, text)
			if match, ok = FindDate(text); !ok {
				return
			}
		}
		for _, prev := range done {
			if sel.IsSelection(prev) {
				return
			}
		}
		done = append(done, sel)
		entry := crawler.RawEntry{Date: match.Start, EndDate: match.End, RowText: text}

		rest := strings.Replace(text, match.Text, " | ", 1)
		var segments []string
		for _, s := range segmentSepRe.Split(rest, -1) {
			s = strings.Trim(crawler.NormalizeSpace(s), " ,:-–—")
			if s != "" {
				segments = append(segments, s)
			}
		}

		used := make(map[int]bool)
		if a := sel.Find("a[href]").First(); a.Length() > 0 {
			if name := crawler.NormalizeSpace(a.Text()); name != "" && !strings.Contains(name, match.Text) {
				entry.Name = name
				entry.DetailURL = resolveLink(base, a.AttrOr("href", ""))
				for i, s := range segments {
					if strings.Contains(s, name) {
						used[i] = true
						break
					}
				}
			}
		}
		for i, s := range segments {
			if used[i] {
				continue
			}
			if city, ok := cityFromSegment(s); ok {
				entry.City = city
				used[i] = true
				break
			}
		}
		if entry.Name == "" {
			for i, s := range segments {
				if used[i] || hasKilometres(s) {
					continue
				}
				if _, isDate := FindDate(s); isDate {
					continue
				}
				entry.Name = s
				used[i] = true
				break
			}
		}
		var dist []string
		for i, s := range segments {
			if !used[i] {
				dist = append(dist, s)
			}
		}
		entry.DistanceText = strings.Join(dist, " ")
		out = append(out, entry)
	})
	return out
}

// entryBlock climbs from a date-only leaf to the nearest block ancestor that
// holds more than the date, stopping before one that holds a second date.
func entryBlock(leaf *goquery.Selection, leafText string) (*goquery.Selection, string) {
	for p := leaf.Parent(); p.Length() > 0 && !p.Is("body"); p = p.Parent() {
		if !p.Is(blockSelector) {
			continue
		}
		text := segmentedText(p)
		if dateCount(text) != 1 {
			break
		}
		if m, ok := FindDate(text); ok && !onlyDate(text, m) {
			return p, text
		}
	}
	return leaf, leafText
}

// segmentedText joins the texts of sel's children with a segment separator,
// so sibling cells such as <div>date</div><div>name</div> stay apart.
func segmentedText(sel *goquery.Selection) string {
	var parts []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if t := crawler.NormalizeSpace(c.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " | ")
}

func onlyDate(text string, m DateMatch) bool {
	rest := strings.Replace(text, m.Text, "", 1)
	return strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0
}

func dateCount(text string) int {
	n := 0
	for {
		m, ok := FindDate(text)
		if !ok {
			return n
		}
		n++
		text = text[m.Index+len(m.Text):]
	}
}

// cityFromSegment recognizes "Kraków (woj. małopolskie)", "Kraków, pow.
// krakowski", "gm. Kraków", and "Kraków (małopolskie)".
func cityFromSegment(s string) (string, bool) {
	if m := parenRe.FindStringSubmatch(s); m != nil {
		region := strings.ToLower(slug.Fold(strings.TrimSpace(m[2])))
		if adminHintRe.MatchString(" "+m[2]) || voivodeships[region] {
			return strings.TrimSpace(m[1]), true
		}
	}
	loc := adminHintRe.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	before := strings.Trim(s[:loc[0]], " ,(")
	if before != "" {
		return before, true
	}
	after := strings.TrimSpace(s[loc[1]:])
	if i := strings.IndexAny(after, ",("); i >= 0 {
		after = strings.TrimSpace(after[:i])
	}
	return after, after != ""
}

func hasKilometres(s string) bool {
	return len(distance.Kilometres(s)) > 0
}

func looksLikeDistance(s string) bool {
	return len(distance.Normalize(s)) > 0
}
