// Package extract parses calendar list pages and event detail pages into
// crawler candidates. List pages go through an ordered chain of strategies and
// the first one that yields rows wins.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

// Strategy pulls candidate rows out of a parsed list page.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, base *url.URL) []crawler.RawEntry
}

// Extractor implements crawler.Extractor and crawler.DetailParser.
type Extractor struct {
	strategies []Strategy
	detailBase *url.URL
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default table-then-block chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithDetailBase resolves relative detail links against base instead of the
// list page URL.
func WithDetailBase(base string) Option {
	return func(e *Extractor) {
		if base == "" {
			return
		}
		if u, err := url.Parse(base); err == nil {
			e.detailBase = u
		}
	}
}

// New returns an Extractor using TableStrategy then BlockStrategy.
func New(opts ...Option) *Extractor {
	e := &Extractor{strategies: []Strategy{TableStrategy{}, BlockStrategy{}}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the rows of the first strategy that finds any, sorted by
// date. Rows without a parseable date never leave a strategy.
func (e *Extractor) Extract(body []byte, pageURL string) ([]crawler.RawEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base := e.detailBase
	if base == nil && pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			base = u
		}
	}
	for _, s := range e.strategies {
		rows := s.Extract(doc, base)
		if len(rows) == 0 {
			continue
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Date.Before(rows[j].Date)
		})
		return rows, nil
	}
	return nil, nil
}

// TableStrategy reads structured tr/td rows.
type TableStrategy struct{}

// Name implements Strategy.
func (TableStrategy) Name() string { return "table" }

// Extract implements Strategy.
func (TableStrategy) Extract(doc *goquery.Document, base *url.URL) []crawler.RawEntry {
	var out []crawler.RawEntry
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td,th")
		if cells.Length() < 2 {
			return
		}
		texts := make([]string, cells.Length())
		dateIdx := -1
		var match DateMatch
		cells.Each(func(i int, c *goquery.Selection) {
			texts[i] = crawler.NormalizeSpace(c.Text())
			if dateIdx < 0 {
				if m, ok := FindDate(texts[i]); ok {
					dateIdx, match = i, m
				}
			}
		})
		if dateIdx < 0 {
			return
		}

		entry := crawler.RawEntry{
			Date:    match.Start,
			EndDate: match.End,
			RowText: strings.Join(nonEmpty(texts), " "),
		}
		var rest []int
		for i := range texts {
			if i != dateIdx && texts[i] != "" {
				rest = append(rest, i)
			}
		}

		nameIdx, cityIdx := -1, -1
		for _, i := range rest {
			if a := cells.Eq(i).Find("a[href]").First(); a.Length() > 0 {
				nameIdx = i
				entry.Name = crawler.NormalizeSpace(a.Text())
				if entry.Name == "" {
					entry.Name = texts[i]
				}
				entry.DetailURL = resolveLink(base, a.AttrOr("href", ""))
				break
			}
		}
		switch {
		case nameIdx >= 0:
			cityIdx = cityAround(rest, nameIdx, texts)
		case len(rest) >= 2 && !hasKilometres(texts[rest[1]]):
			cityIdx, nameIdx = rest[0], rest[1]
			entry.Name = texts[nameIdx]
		case len(rest) >= 1:
			nameIdx = rest[0]
			entry.Name = texts[nameIdx]
		}
		if cityIdx >= 0 {
			entry.City = texts[cityIdx]
		}

		var dist []string
		for _, i := range rest {
			if i != nameIdx && i != cityIdx {
				dist = append(dist, texts[i])
			}
		}
		entry.DistanceText = strings.Join(dist, " ")
		out = append(out, entry)
	})
	return out
}

// cityAround picks the cell just before the name cell, or the one just after
// when the name comes first. Cells that read as distances are skipped.
func cityAround(rest []int, nameIdx int, texts []string) int {
	pos := -1
	for p, i := range rest {
		if i == nameIdx {
			pos = p
		}
	}
	if pos > 0 && !looksLikeDistance(texts[rest[pos-1]]) {
		return rest[pos-1]
	}
	if pos >= 0 && pos+1 < len(rest) && !looksLikeDistance(texts[rest[pos+1]]) {
		return rest[pos+1]
	}
	return -1
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
