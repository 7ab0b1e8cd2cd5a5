package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Store sentinels.
var (
	ErrNotFound  = errors.New("record not found")
	ErrSlugTaken = errors.New("slug already taken")
	ErrDuplicate = errors.New("duplicate record")
	ErrConflict  = errors.New("concurrent update")
)

// ErrUnauthorized rejects a trigger with a missing or wrong shared secret.
var ErrUnauthorized = errors.New("unauthorized")

// FetchError reports a timeout or a non-2xx answer from the source site.
type FetchError struct {
	URL     string
	Status  int
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timeout", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError classifies err for url. A zero status means no response.
func NewFetchError(url string, status int, err error) *FetchError {
	fe := &FetchError{URL: url, Status: status, Err: err}
	if status == 0 && isTimeout(err) {
		fe.Timeout = true
	}
	return fe
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// InvalidRangeError rejects a missing, unparsable, or inverted window.
type InvalidRangeError struct {
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return "invalid range: " + e.Reason
}

// PersistenceError wraps a store failure with the entry that triggered it.
type PersistenceError struct {
	Op   string
	Name string
	City string
	Date time.Time
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q (%s, %s): %v", e.Op, e.Name, e.City, e.Date.Format(time.DateOnly), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
