package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/racecal-crawler/internal/distance"
	idgen "github.com/JakeFAU/racecal-crawler/internal/id/uuid"
	"github.com/JakeFAU/racecal-crawler/internal/metrics"
)

// Cursor units.
const (
	CursorUnitPage = "page"
	CursorUnitRow  = "row"
)

const defaultBudget = 45 * time.Second

// Options configures an Engine.
type Options struct {
	// ListURL is the list page template. {cursor}, {from}, {to}, and {year}
	// are substituted per page.
	ListURL string
	// CursorUnit is CursorUnitPage or CursorUnitRow.
	CursorUnit string
	// PageStep is the cursor increment per page in page mode.
	PageStep int
	// DefaultBudget applies when a request carries no budget.
	DefaultBudget time.Duration
	// MaxPagesPerChunk ends a chunk early once reached. Zero means unlimited.
	MaxPagesPerChunk int
	// ResumeBeforePages stops a chunk resumed at a non-zero cursor after this
	// many consecutive pages entirely before the range, even though the chunk
	// itself has seen nothing in range. Zero disables it.
	ResumeBeforePages int
	CountryCode      string
	SportType        string
	// ArchivePrefix is the blob path prefix for archived list pages.
	ArchivePrefix string
	// NotifyTopic receives an EditionNotice per inserted edition.
	NotifyTopic string
}

// Deps are the collaborators of an Engine. Runs, Archive, and Notifier are
// optional.
type Deps struct {
	Fetcher     Fetcher
	Extractor   Extractor
	Details     DetailParser
	Resolver    Resolver
	PagePacer   Pacer
	DetailPacer Pacer
	Clock       Clock
	IDs         IDGenerator
	Runs        RunStore
	Archive     BlobStore
	Notifier    Publisher
	Logger      *zap.Logger
}

// Engine runs bounded crawl chunks. It holds no per-run state, so one Engine
// can serve concurrent invocations.
type Engine struct {
	opts Options
	deps Deps
}

// NewEngine validates deps and fills option defaults.
func NewEngine(opts Options, deps Deps) (*Engine, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case strings.TrimSpace(opts.ListURL) == "":
		return nil, errors.New("list url is required")
	}
	if opts.CursorUnit == "" {
		opts.CursorUnit = CursorUnitPage
	}
	if opts.CursorUnit != CursorUnitPage && opts.CursorUnit != CursorUnitRow {
		return nil, fmt.Errorf("unknown cursor unit %q", opts.CursorUnit)
	}
	if opts.PageStep <= 0 {
		opts.PageStep = 1
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = defaultBudget
	}
	if deps.PagePacer == nil {
		deps.PagePacer = NoDelay
	}
	if deps.DetailPacer == nil {
		deps.DetailPacer = NoDelay
	}
	if deps.IDs == nil {
		deps.IDs = idgen.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()
	return &Engine{opts: opts, deps: deps}, nil
}

// chunk is the private state of one invocation.
type chunk struct {
	id         string
	req        ChunkRequest
	logger     *zap.Logger
	pages      *PageCache
	enricher   *Enricher
	signatures map[string]struct{}
	sawInRange bool
	// beforeStreak counts consecutive pages entirely before the range.
	beforeStreak int
	res          ChunkResult
}

// RunChunk crawls from req.Cursor until the source runs out, the stop
// detector fires, the budget elapses, or the page cap is hit. The budget is
// checked only before a page fetch, so the returned cursor always names the
// next unprocessed page. Fetch and persistence failures abort the chunk with
// the cursor left on the failing page.
func (e *Engine) RunChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error) {
	if err := req.Range.Validate(); err != nil {
		return ChunkResult{}, err
	}
	if req.Cursor < 0 {
		req.Cursor = 0
	}
	if req.Budget <= 0 {
		req.Budget = e.opts.DefaultBudget
	}

	id, err := e.deps.IDs.NewID()
	if err != nil {
		return ChunkResult{}, fmt.Errorf("run id: %w", err)
	}
	logger := e.deps.Logger.With(
		zap.String("run_id", id),
		zap.String("from", req.Range.FromString()),
		zap.String("to", req.Range.ToString()),
	)
	pages := NewPageCache(e.deps.Fetcher)
	c := &chunk{
		id:         id,
		req:        req,
		logger:     logger,
		pages:      pages,
		enricher:   NewEnricher(pages, e.deps.Details, e.deps.DetailPacer, distance.Normalize, logger),
		signatures: make(map[string]struct{}),
		res:        ChunkResult{RunID: id, Range: req.Range, Cursor: req.Cursor},
	}

	started := e.deps.Clock.Now()
	logger.Info("chunk started", zap.Int("cursor", req.Cursor), zap.Duration("budget", req.Budget))
	err = e.loop(ctx, c, started)
	e.finish(ctx, c, started, err)
	if err != nil {
		return c.res, err
	}
	return c.res, nil
}

func (e *Engine) loop(ctx context.Context, c *chunk, started time.Time) error {
	for {
		if e.deps.Clock.Now().Sub(started) >= c.req.Budget {
			c.logger.Info("budget exhausted", zap.Int("cursor", c.res.Cursor))
			return nil
		}
		if e.opts.MaxPagesPerChunk > 0 && c.res.Pages >= e.opts.MaxPagesPerChunk {
			c.logger.Info("page cap reached", zap.Int("cursor", c.res.Cursor))
			return nil
		}

		pageURL := e.pageURL(c.req.Range, c.res.Cursor)
		if err := e.deps.PagePacer.Wait(ctx, pageURL); err != nil {
			return fmt.Errorf("page delay: %w", err)
		}
		body, err := c.pages.Fetch(ctx, pageURL)
		if err != nil {
			metrics.ObservePage("error")
			fields := []zap.Field{zap.String("url", pageURL), zap.Error(err)}
			var fe *FetchError
			if errors.As(err, &fe) {
				fields = append(fields, zap.Int("status", fe.Status), zap.Bool("timeout", fe.Timeout))
			}
			c.logger.Error("page fetch failed", fields...)
			return err
		}
		metrics.ObservePage("ok")
		c.res.Pages++
		e.archive(ctx, c, body)

		rows, err := e.deps.Extractor.Extract(body, pageURL)
		if err != nil {
			return fmt.Errorf("extract %s: %w", pageURL, err)
		}
		if len(rows) == 0 {
			c.logger.Info("page yielded no rows", zap.String("url", pageURL))
			c.res.Done = true
			return nil
		}

		stop, err := e.processPage(ctx, c, rows)
		if err != nil {
			return err
		}
		c.res.Cursor = e.advance(c.res.Cursor, len(rows))
		if stop {
			c.res.Done = true
			return nil
		}
	}
}

// processPage handles one page of date-sorted rows and reports whether
// pagination should stop.
func (e *Engine) processPage(ctx context.Context, c *chunk, rows []RawEntry) (bool, error) {
	sawInRangeBefore := c.sawInRange
	fresh, before := 0, 0

	for _, raw := range rows {
		entry := toEntry(raw)
		if c.req.Range.Classify(entry.Date) == BeforeRange {
			before++
		}

		sig := entry.Signature()
		if _, dup := c.signatures[sig]; dup {
			metrics.ObserveEntry("duplicate")
			continue
		}
		c.signatures[sig] = struct{}{}
		fresh++

		pos := c.req.Range.Classify(entry.Date)
		metrics.ObserveEntry(pos.String())
		if pos != InRange {
			continue
		}
		c.sawInRange = true
		c.res.Seen++

		entry = c.enricher.Enrich(ctx, entry)
		if entry.Name == "" {
			c.logger.Warn("entry without name skipped",
				zap.String("date", entry.Date.Format(time.DateOnly)),
				zap.String("city", entry.City))
			metrics.ObserveEntry("unnamed")
			continue
		}
		if err := e.resolve(ctx, c, entry); err != nil {
			return false, err
		}
	}

	if before == len(rows) {
		c.beforeStreak++
	} else {
		c.beforeStreak = 0
	}

	switch {
	case fresh == 0:
		c.logger.Info("page yielded no new entries, stopping")
		return true, nil
	case before == len(rows) && sawInRangeBefore:
		c.logger.Info("page entirely before range, stopping")
		return true, nil
	case c.req.Cursor > 0 && e.opts.ResumeBeforePages > 0 && c.beforeStreak >= e.opts.ResumeBeforePages:
		c.logger.Info("resumed chunk passed the range, stopping", zap.Int("pages_before_range", c.beforeStreak))
		return true, nil
	}
	return false, nil
}

func (e *Engine) resolve(ctx context.Context, c *chunk, entry Entry) error {
	ref, err := e.deps.Resolver.EnsureEvent(ctx, EventInput{
		Name:        entry.Name,
		City:        entry.City,
		CountryCode: e.opts.CountryCode,
		SportType:   e.opts.SportType,
	})
	if err != nil {
		return e.persistenceError(c, "ensure event", entry, err)
	}
	switch {
	case ref.Created:
		metrics.ObserveEvent("created")
	case ref.Updated:
		metrics.ObserveEvent("updated")
	default:
		metrics.ObserveEvent("matched")
	}

	ed, err := e.deps.Resolver.EnsureEdition(ctx, EditionInput{
		EventID:   ref.ID,
		Year:      entry.Date.Year(),
		StartDate: entry.Date,
		EndDate:   entry.EndDate,
		Distances: entry.Distances,
	})
	if err != nil {
		return e.persistenceError(c, "ensure edition", entry, err)
	}
	metrics.ObserveEdition(string(ed.Action))
	switch ed.Action {
	case EditionInserted:
		c.res.Inserted++
		e.notify(ctx, c, entry, ref, ed)
	case EditionUpdated:
		c.res.Updated++
	}
	return nil
}

func (e *Engine) persistenceError(c *chunk, op string, entry Entry, err error) error {
	c.logger.Error("persistence failed",
		zap.String("op", op),
		zap.String("name", entry.Name),
		zap.String("city", entry.City),
		zap.String("date", entry.Date.Format(time.DateOnly)),
		zap.Error(err))
	return &PersistenceError{Op: op, Name: entry.Name, City: entry.City, Date: entry.Date, Err: err}
}

func (e *Engine) notify(ctx context.Context, c *chunk, entry Entry, ref EventRef, ed EditionResult) {
	if e.deps.Notifier == nil || e.opts.NotifyTopic == "" {
		return
	}
	notice := EditionNotice{
		EventID:   ref.ID,
		EditionID: ed.ID,
		Slug:      ref.Slug,
		Name:      entry.Name,
		City:      entry.City,
		Year:      entry.Date.Year(),
		StartDate: entry.Date.Format(time.DateOnly),
		Distances: entry.Distances,
	}
	if _, err := e.deps.Notifier.Publish(ctx, e.opts.NotifyTopic, notice); err != nil {
		c.logger.Warn("edition notice not published", zap.Int64("edition_id", ed.ID), zap.Error(err))
	}
}

func (e *Engine) archive(ctx context.Context, c *chunk, body []byte) {
	if e.deps.Archive == nil {
		return
	}
	p := path.Join(e.opts.ArchivePrefix, c.id, fmt.Sprintf("page-%d.html", c.res.Cursor))
	if _, err := e.deps.Archive.PutObject(ctx, p, "text/html; charset=utf-8", bytes.NewReader(body)); err != nil {
		c.logger.Warn("page archive failed", zap.String("path", p), zap.Error(err))
	}
}

func (e *Engine) finish(ctx context.Context, c *chunk, started time.Time, runErr error) {
	finished := e.deps.Clock.Now()
	outcome := "partial"
	switch {
	case runErr != nil:
		outcome = "failed"
	case c.res.Done:
		outcome = "done"
	}
	metrics.ObserveChunk(outcome, finished.Sub(started))
	c.logger.Info("chunk finished",
		zap.String("outcome", outcome),
		zap.Int("seen", c.res.Seen),
		zap.Int("inserted", c.res.Inserted),
		zap.Int("updated", c.res.Updated),
		zap.Int("pages", c.res.Pages),
		zap.Int("cache_hits", c.pages.hitCount()),
		zap.Int("cursor", c.res.Cursor),
		zap.Bool("done", c.res.Done))

	if e.deps.Runs == nil {
		return
	}
	run := Run{
		ID:          c.id,
		From:        c.req.Range.From,
		To:          c.req.Range.To,
		StartCursor: c.req.Cursor,
		NextCursor:  c.res.Cursor,
		Seen:        c.res.Seen,
		Inserted:    c.res.Inserted,
		Pages:       c.res.Pages,
		Done:        c.res.Done,
		StartedAt:   started,
		FinishedAt:  &finished,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := e.deps.Runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("run journal write failed", zap.Error(err))
	}
}

func (e *Engine) pageURL(r DateRange, cursor int) string {
	return strings.NewReplacer(
		"{cursor}", strconv.Itoa(cursor),
		"{from}", r.FromString(),
		"{to}", r.ToString(),
		"{year}", strconv.Itoa(r.From.Year()),
	).Replace(e.opts.ListURL)
}

func (e *Engine) advance(cursor, rows int) int {
	if e.opts.CursorUnit == CursorUnitRow {
		return cursor + rows
	}
	return cursor + e.opts.PageStep
}

func toEntry(raw RawEntry) Entry {
	dists := distance.Normalize(raw.DistanceText)
	if len(dists) == 0 {
		dists = distance.Normalize(raw.RowText)
	}
	return Entry{
		Date:      raw.Date,
		EndDate:   raw.EndDate,
		Name:      NormalizeSpace(raw.Name),
		City:      NormalizeSpace(raw.City),
		Distances: dists,
		DetailURL: raw.DetailURL,
	}
}

