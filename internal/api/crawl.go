package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

type crawlParams struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Cursor   json.Number `json:"cursor"`
	BudgetMs json.Number `json:"budgetMs"`
	Key      string      `json:"key"`
}

type crawlResponse struct {
	OK       bool   `json:"ok"`
	RunID    string `json:"runId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Seen     int    `json:"seen"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Cursor   int    `json:"cursor"`
	Done     bool   `json:"done"`
}

type runsResponse struct {
	OK   bool          `json:"ok"`
	Runs []crawler.Run `json:"runs"`
}

// errBadRequest marks parameter errors that are safe to echo back.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

// crawl authorizes from the query or X-API-Key header before reading the
// body. A key carried only in the body is checked once the body is decoded,
// and an unreadable body without a key elsewhere is unauthorized.
func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	authorized := false
	if key := keyFrom(r, r.URL.Query().Get("key")); key != "" {
		if err := s.authorize(key); err != nil {
			s.fail(w, r, err)
			return
		}
		authorized = true
	}
	params, err := readCrawlParams(r)
	if err != nil {
		if !authorized {
			err = crawler.ErrUnauthorized
		}
		s.fail(w, r, err)
		return
	}
	if !authorized {
		if err := s.authorize(params.Key); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	req, err := s.chunkRequest(params)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.runner.RunChunk(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		OK:       true,
		RunID:    res.RunID,
		From:     res.Range.FromString(),
		To:       res.Range.ToString(),
		Seen:     res.Seen,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Cursor:   res.Cursor,
		Done:     res.Done,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.authorize(keyFrom(r, q.Get("key"))); err != nil {
		s.fail(w, r, err)
		return
	}
	limit := defaultRunsLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, errBadRequest{"limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, fmt.Errorf("list runs: %w", err))
		return
	}
	if runs == nil {
		runs = []crawler.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{OK: true, Runs: runs})
}

func (s *Server) chunkRequest(p crawlParams) (crawler.ChunkRequest, error) {
	rng, err := crawler.ParseDateRange(p.From, p.To)
	if err != nil {
		return crawler.ChunkRequest{}, err
	}
	cursor, err := nonNegative("cursor", p.Cursor)
	if err != nil {
		return crawler.ChunkRequest{}, err
	}
	budgetMs, err := nonNegative("budgetMs", p.BudgetMs)
	if err != nil {
		return crawler.ChunkRequest{}, err
	}
	// Cap before converting so huge values cannot overflow time.Duration.
	if maxMs := s.cfg.Crawler.MaxBudget.Milliseconds(); maxMs > 0 && int64(budgetMs) > maxMs {
		budgetMs = int(maxMs)
	}
	return crawler.ChunkRequest{
		Range:  rng,
		Cursor: cursor,
		Budget: s.cfg.ClampBudget(time.Duration(budgetMs) * time.Millisecond),
	}, nil
}

// fail maps an error to a status code and a message that never carries
// internal details.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rangeErr *crawler.InvalidRangeError
		badReq   errBadRequest
		fetchErr *crawler.FetchError
		persist  *crawler.PersistenceError
	)
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, crawler.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &rangeErr):
		status, msg = http.StatusBadRequest, rangeErr.Error()
	case errors.As(err, &badReq):
		status, msg = http.StatusBadRequest, badReq.msg
	case errors.As(err, &fetchErr):
		msg = "source fetch failed"
	case errors.As(err, &persist):
		msg = "persistence failed"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}

func readCrawlParams(r *http.Request) (crawlParams, error) {
	if r.Method == http.MethodPost && isJSON(r.Header.Get("Content-Type")) {
		var p crawlParams
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&p); err != nil {
			return crawlParams{}, errBadRequest{"invalid JSON body"}
		}
		// Query parameters fill fields the body leaves out.
		q := r.URL.Query()
		p.From = firstNonEmpty(p.From, q.Get("from"))
		p.To = firstNonEmpty(p.To, q.Get("to"))
		p.Key = firstNonEmpty(p.Key, q.Get("key"))
		if p.Cursor == "" {
			p.Cursor = json.Number(q.Get("cursor"))
		}
		if p.BudgetMs == "" {
			p.BudgetMs = json.Number(q.Get("budgetMs"))
		}
		return p, nil
	}
	if err := r.ParseForm(); err != nil {
		return crawlParams{}, errBadRequest{"invalid form body"}
	}
	return crawlParams{
		From:     r.Form.Get("from"),
		To:       r.Form.Get("to"),
		Cursor:   json.Number(r.Form.Get("cursor")),
		BudgetMs: json.Number(r.Form.Get("budgetMs")),
		Key:      r.Form.Get("key"),
	}, nil
}

func keyFrom(r *http.Request, param string) string {
	if param != "" {
		return param
	}
	return r.Header.Get("X-API-Key")
}

func nonNegative(name string, n json.Number) (int, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errBadRequest{name + " must be a non-negative integer"}
	}
	return v, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
