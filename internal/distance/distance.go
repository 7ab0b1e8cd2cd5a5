// Package distance maps free-text race distance mentions to canonical labels.
package distance

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Canonical labels.
const (
	Marathon      = "Maraton"
	HalfMarathon  = "Półmaraton"
	UltraMarathon = "Ultramaraton"
)

const (
	marathonKm     = 42.195
	halfMarathonKm = 21.0975

	marathonTolerance     = 0.3
	halfMarathonTolerance = 0.2
)

var (
	ultraRe     = regexp.MustCompile(`(?i)ultra`)
	ultraWordRe = regexp.MustCompile(`(?i)ultra[\s-]*(?:maraton|marathon)`)
	halfRe      = regexp.MustCompile(`(?i)p[oó][lł][\s-]*maraton|half[\s-]*marathon`)
	marathonRe  = regexp.MustCompile(`(?i)mara(?:t|th)on`)
	numberRe    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	// A number, or a slash-separated list of numbers, followed by a km unit.
	kmRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?(?:\s*/\s*\d+(?:[.,]\d+)?)*)\s*km(?:[^\p{L}]|$)`)
)

// Normalize returns the deduplicated, order-stable canonical labels found in
// text. Ultra and half-marathon qualifiers are checked before numeric
// mentions. Once ultra is present, numbers that are not a marathon or half
// marathon are not emitted as km labels.
func Normalize(text string) []string {
	var out labels
	ultra := ultraRe.MatchString(text)
	if ultra {
		out.add(UltraMarathon)
	}
	if halfRe.MatchString(text) {
		out.add(HalfMarathon)
	}

	kms := Kilometres(text)
	for _, km := range kms {
		switch label := Label(km); label {
		case Marathon, HalfMarathon:
			out.add(label)
		default:
			if !ultra {
				out.add(label)
			}
		}
	}

	if len(kms) == 0 {
		rest := ultraWordRe.ReplaceAllString(text, " ")
		rest = halfRe.ReplaceAllString(rest, " ")
		if marathonRe.MatchString(rest) {
			out.add(Marathon)
		}
	}
	return out.list()
}

// Kilometres returns every numeric km mention in order of appearance.
func Kilometres(text string) []float64 {
	var out []float64
	for _, m := range kmRe.FindAllStringSubmatch(text, -1) {
		for _, num := range numberRe.FindAllString(m[1], -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
			if err != nil || v <= 0 {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

// Label maps a distance in kilometres to its canonical label.
func Label(km float64) string {
	switch {
	case math.Abs(km-marathonKm) <= marathonTolerance:
		return Marathon
	case math.Abs(km-halfMarathonKm) <= halfMarathonTolerance:
		return HalfMarathon
	default:
		return strconv.FormatFloat(km, 'f', -1, 64) + " km"
	}
}

// Merge unions b into a keeping first-seen order.
func Merge(a, b []string) []string {
	var out labels
	for _, l := range a {
		out.add(l)
	}
	for _, l := range b {
		out.add(l)
	}
	return out.list()
}

type labels struct {
	seen  map[string]struct{}
	items []string
}

func (l *labels) add(label string) {
	if label == "" {
		return
	}
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[label]; ok {
		return
	}
	l.seen[label] = struct{}{}
	l.items = append(l.items, label)
}

func (l *labels) list() []string {
	if l.items == nil {
		return []string{}
	}
	return l.items
}
