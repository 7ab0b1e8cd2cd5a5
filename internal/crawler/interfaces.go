package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a page body. Implementations fail with *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns one list page into date-sorted candidates.
type Extractor interface {
	Extract(body []byte, pageURL string) ([]RawEntry, error)
}

// DetailParser reads an event detail page.
type DetailParser interface {
	ParseDetail(body []byte) (Detail, error)
}

// Pacer blocks until the next request to url may be sent.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context, url string) error

// Wait calls f.
func (f PacerFunc) Wait(ctx context.Context, url string) error { return f(ctx, url) }

// NoDelay is a Pacer that never waits.
var NoDelay = PacerFunc(func(context.Context, string) error { return nil })

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Resolver performs the idempotent upserts for one entry.
type Resolver interface {
	EnsureEvent(ctx context.Context, in EventInput) (EventRef, error)
	EnsureEdition(ctx context.Context, in EditionInput) (EditionResult, error)
}

// Store persists events and editions. Implementations map unique-constraint
// violations to ErrSlugTaken and ErrDuplicate, and lost optimistic updates to
// ErrConflict.
type Store interface {
	// FindEventsByName returns every event whose name matches case-insensitively.
	FindEventsByName(ctx context.Context, name string) ([]Event, error)
	// InsertEvent creates an event and returns its id.
	InsertEvent(ctx context.Context, ev Event) (int64, error)
	// FillEvent sets city, country code, and sport type where they are NULL.
	FillEvent(ctx context.Context, ev Event) error
	// FindEdition returns ErrNotFound when no edition exists for (eventID, year).
	FindEdition(ctx context.Context, eventID int64, year int) (Edition, error)
	// InsertEdition creates an edition and returns its id.
	InsertEdition(ctx context.Context, ed Edition) (int64, error)
	// UpdateEdition writes distances and fills NULL dates, provided the stored
	// distances still equal expected.
	UpdateEdition(ctx context.Context, ed Edition, expected []string) error
}

// RunStore journals chunk runs.
type RunStore interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes edition notices to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
