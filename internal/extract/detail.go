package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

var (
	cityLabelRe  = regexp.MustCompile(`(?i)^\s*(?:miejsce|miasto|miejscowość|miejscowosc)\s*:?\s*$`)
	cityInlineRe = regexp.MustCompile(`(?i)\b(?:miejsce|miasto|miejscowość|miejscowosc)\s*:\s*([^,;|\n]+)`)
	titleSepRe   = regexp.MustCompile(`\s+[|–—-]\s+`)
)

// ParseDetail reads the event name from the first heading or the title, the
// city from a labeled field, and hands back the full page text for distance
// scanning.
func (e *Extractor) ParseDetail(body []byte) (crawler.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Detail{}, fmt.Errorf("parse detail html: %w", err)
	}
	return crawler.Detail{
		Name:         detailName(doc),
		City:         detailCity(doc),
		DistanceText: crawler.NormalizeSpace(doc.Find("body").Text()),
	}, nil
}

func detailName(doc *goquery.Document) string {
	for _, sel := range []string{"h1", "h2"} {
		if name := crawler.NormalizeSpace(doc.Find(sel).First().Text()); name != "" {
			return name
		}
	}
	title := crawler.NormalizeSpace(doc.Find("title").First().Text())
	if parts := titleSepRe.Split(title, 2); len(parts) > 0 {
		return strings.TrimSpace(parts[0])
	}
	return title
}

func detailCity(doc *goquery.Document) string {
	var city string
	// Definition lists and two-column tables: the label cell is followed by
	// its value.
	doc.Find("dt, th, td").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		if !cityLabelRe.MatchString(label.Text()) {
			return true
		}
		value := label.Next()
		if value.Length() == 0 {
			return true
		}
		city = firstField(value.Text())
		return city == ""
	})
	if city != "" {
		return city
	}
	doc.Find("p, li, div, span, dd, td").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.Find("p, li, div, dd, td").Length() > 0 {
			return true
		}
		if m := cityInlineRe.FindStringSubmatch(crawler.NormalizeSpace(sel.Text())); m != nil {
			city = firstField(m[1])
		}
		return city == ""
	})
	return city
}

func firstField(s string) string {
	s = crawler.NormalizeSpace(s)
	if i := strings.IndexAny(s, ",;|("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
