// Package crawler implements the calendar ingestion engine: the page loop, range
// filter and stop detector, signature deduplication, detail enrichment, and the
// chunk controller that turns one bounded invocation into a resumable cursor.
//
// Concrete fetchers, extractors, and stores live in sibling packages and are
// wired in through the interfaces declared here.
package crawler
