package crawler

import (
	"strings"
	"time"
)

// Position classifies a date against a DateRange.
type Position int

// Range positions.
const (
	BeforeRange Position = iota - 1
	InRange
	AfterRange
)

func (p Position) String() string {
	switch p {
	case BeforeRange:
		return "before"
	case AfterRange:
		return "after"
	default:
		return "in_range"
	}
}

// DateRange is an inclusive window of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange parses two YYYY-MM-DD bounds.
func ParseDateRange(from, to string) (DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return DateRange{}, &InvalidRangeError{Reason: "from and to are required"}
	}
	f, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return DateRange{}, &InvalidRangeError{Reason: "from must be YYYY-MM-DD"}
	}
	t, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return DateRange{}, &InvalidRangeError{Reason: "to must be YYYY-MM-DD"}
	}
	r := DateRange{From: f, To: t}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate rejects zero or inverted bounds.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return &InvalidRangeError{Reason: "from and to are required"}
	}
	if dateOnly(r.From).After(dateOnly(r.To)) {
		return &InvalidRangeError{Reason: "from is after to"}
	}
	return nil
}

// Classify compares the calendar date of d against the window.
func (r DateRange) Classify(d time.Time) Position {
	day := dateOnly(d)
	switch {
	case day.Before(dateOnly(r.From)):
		return BeforeRange
	case day.After(dateOnly(r.To)):
		return AfterRange
	default:
		return InRange
	}
}

// Months splits the window into calendar-month sub-windows.
func (r DateRange) Months() []DateRange {
	var out []DateRange
	start, end := dateOnly(r.From), dateOnly(r.To)
	for !start.After(end) {
		monthEnd := time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		if monthEnd.After(end) {
			monthEnd = end
		}
		out = append(out, DateRange{From: start, To: monthEnd})
		start = monthEnd.AddDate(0, 0, 1)
	}
	return out
}

// FromString formats the lower bound as YYYY-MM-DD.
func (r DateRange) FromString() string { return r.From.Format(time.DateOnly) }

// ToString formats the upper bound as YYYY-MM-DD.
func (r DateRange) ToString() string { return r.To.Format(time.DateOnly) }

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
