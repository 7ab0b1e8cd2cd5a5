// Package api hosts the HTTP trigger for chunked crawls. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET or POST /v1/crawl to run one chunk of a date window.
//   - GET /v1/runs to list recent chunk runs.
//
// The /v1 routes require the shared secret as a key parameter or an
// X-API-Key header.
package api
