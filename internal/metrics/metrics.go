// Package metrics exposes Prometheus collectors for the race calendar crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	entriesTotal               *prometheus.CounterVec
	editionsTotal              *prometheus.CounterVec
	eventsTotal                *prometheus.CounterVec
	chunksTotal                *prometheus.CounterVec
	chunkDurationSeconds       prometheus.Histogram
	politenessDelaySeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_pages_total",
				Help: "Total number of calendar pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		entriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_entries_total",
				Help: "Total number of extracted entries, labeled by classification.",
			},
			[]string{"class"},
		)

		editionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_editions_total",
				Help: "Total number of edition upserts, labeled by action.",
			},
			[]string{"action"},
		)

		eventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_events_total",
				Help: "Total number of event resolutions, labeled by action.",
			},
			[]string{"action"},
		)

		chunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "racecal_chunks_total",
				Help: "Total number of crawl chunks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		chunkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "racecal_chunk_duration_seconds",
				Help:    "Histogram of crawl chunk wall-clock durations.",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90},
			},
		)

		politenessDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "racecal_politeness_delay_seconds",
				Help:    "Histogram of inter-request delays, labeled by domain.",
				Buckets: []float64{0.1, 0.25, 0.5, 0.8, 1, 2, 5},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one list page fetch.
func ObservePage(status string) {
	Init()
	pagesTotal.WithLabelValues(status).Inc()
}

// ObserveEntry counts one extracted entry by its classification.
func ObserveEntry(class string) {
	Init()
	entriesTotal.WithLabelValues(class).Inc()
}

// ObserveEdition counts one edition upsert.
func ObserveEdition(action string) {
	Init()
	editionsTotal.WithLabelValues(action).Inc()
}

// ObserveEvent counts one event resolution.
func ObserveEvent(action string) {
	Init()
	eventsTotal.WithLabelValues(action).Inc()
}

// ObserveChunk records a finished chunk.
func ObserveChunk(outcome string, duration time.Duration) {
	Init()
	chunksTotal.WithLabelValues(outcome).Inc()
	chunkDurationSeconds.Observe(duration.Seconds())
}

// ObservePolitenessDelay records the duration of an inter-request wait.
func ObservePolitenessDelay(domain string, duration time.Duration) {
	Init()
	politenessDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
