package crawler

import (
	"strings"
	"time"
)

// Event is a race series identified independently of year.
// Empty strings stand for NULL columns.
type Event struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	City        string `json:"city,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	SportType   string `json:"sport_type,omitempty"`
}

// Edition is one year's instance of an Event. Zero dates stand for NULL.
type Edition struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Distances []string  `json:"distances"`
}

// RawEntry is one candidate row produced by an extraction strategy.
type RawEntry struct {
	Date         time.Time
	EndDate      time.Time
	Name         string
	City         string
	DistanceText string
	RowText      string
	DetailURL    string
}

// Detail holds the fields recovered from an event detail page.
type Detail struct {
	Name         string
	City         string
	DistanceText string
}

// Entry is a normalized candidate ready for range filtering and resolution.
type Entry struct {
	Date      time.Time
	EndDate   time.Time
	Name      string
	City      string
	Distances []string
	DetailURL string
}

// Signature returns the dedup key date|name|city with whitespace collapsed and
// case folded.
func (e Entry) Signature() string {
	return e.Date.Format(time.DateOnly) + "|" + foldKey(e.Name) + "|" + foldKey(e.City)
}

// NeedsDetail reports whether the row is incomplete and a detail link exists.
func (e Entry) NeedsDetail() bool {
	if e.DetailURL == "" {
		return false
	}
	return e.Name == "" || e.City == "" || len(e.Distances) == 0
}

// EventInput carries the fields the resolver may write for an event.
type EventInput struct {
	Name        string
	City        string
	CountryCode string
	SportType   string
}

// EventRef identifies a resolved event.
type EventRef struct {
	ID      int64
	Slug    string
	Created bool
	Updated bool
}

// EditionInput carries the fields the resolver may write for an edition.
type EditionInput struct {
	EventID   int64
	Year      int
	StartDate time.Time
	EndDate   time.Time
	Distances []string
}

// EditionAction reports what EnsureEdition did.
type EditionAction string

// Edition actions.
const (
	EditionInserted EditionAction = "inserted"
	EditionUpdated  EditionAction = "updated"
	EditionSkipped  EditionAction = "skipped"
)

// EditionResult identifies a resolved edition and the write it caused.
type EditionResult struct {
	ID     int64
	Action EditionAction
}

// ChunkRequest describes one bounded crawl invocation.
type ChunkRequest struct {
	Range  DateRange
	Cursor int
	Budget time.Duration
}

// ChunkResult is the resumable outcome of a chunk.
type ChunkResult struct {
	RunID    string
	Range    DateRange
	Seen     int
	Inserted int
	Updated  int
	Pages    int
	Cursor   int
	Done     bool
}

// Run is the journal row recorded for every chunk.
type Run struct {
	ID          string     `json:"id"`
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	StartCursor int        `json:"start_cursor"`
	NextCursor  int        `json:"next_cursor"`
	Seen        int        `json:"seen"`
	Inserted    int        `json:"inserted"`
	Pages       int        `json:"pages"`
	Done        bool       `json:"done"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// EditionNotice is published for every newly inserted edition.
type EditionNotice struct {
	EventID   int64    `json:"event_id"`
	EditionID int64    `json:"edition_id"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	City      string   `json:"city,omitempty"`
	Year      int      `json:"year"`
	StartDate string   `json:"start_date"`
	Distances []string `json:"distances"`
}

// NormalizeSpace replaces non-breaking spaces and collapses whitespace runs.
func NormalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func foldKey(s string) string {
	return strings.ToLower(NormalizeSpace(s))
}
