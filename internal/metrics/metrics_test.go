package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pagesTotal
	Init()
	if pagesTotal != first || pagesTotal == nil {
		t.Fatal("Init() should create collectors exactly once")
	}
}

func TestCrawlCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(pagesTotal.WithLabelValues("ok"))
	ObservePage("ok")
	if got := testutil.ToFloat64(pagesTotal.WithLabelValues("ok")) - before; got != 1 {
		t.Errorf("pages delta = %f, want 1", got)
	}

	before = testutil.ToFloat64(entriesTotal.WithLabelValues("duplicate"))
	ObserveEntry("duplicate")
	ObserveEntry("duplicate")
	if got := testutil.ToFloat64(entriesTotal.WithLabelValues("duplicate")) - before; got != 2 {
		t.Errorf("entries delta = %f, want 2", got)
	}

	before = testutil.ToFloat64(editionsTotal.WithLabelValues("inserted"))
	ObserveEdition("inserted")
	if got := testutil.ToFloat64(editionsTotal.WithLabelValues("inserted")) - before; got != 1 {
		t.Errorf("editions delta = %f, want 1", got)
	}

	before = testutil.ToFloat64(eventsTotal.WithLabelValues("created"))
	ObserveEvent("created")
	if got := testutil.ToFloat64(eventsTotal.WithLabelValues("created")) - before; got != 1 {
		t.Errorf("events delta = %f, want 1", got)
	}

	before = testutil.ToFloat64(chunksTotal.WithLabelValues("done"))
	ObserveChunk("done", 2*time.Second)
	if got := testutil.ToFloat64(chunksTotal.WithLabelValues("done")) - before; got != 1 {
		t.Errorf("chunks delta = %f, want 1", got)
	}

	ObservePolitenessDelay("example.com", 800*time.Millisecond)
	if n := testutil.CollectAndCount(politenessDelaySeconds); n < 1 {
		t.Errorf("expected politeness histogram series, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
