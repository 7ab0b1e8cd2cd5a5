package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
	"github.com/JakeFAU/racecal-crawler/internal/extract"
	idgen "github.com/JakeFAU/racecal-crawler/internal/id/uuid"
	publishermemory "github.com/JakeFAU/racecal-crawler/internal/publisher/memory"
	"github.com/JakeFAU/racecal-crawler/internal/resolver"
	"github.com/JakeFAU/racecal-crawler/internal/storage/memory"
)

const listURL = "https://kalendarz.example/biegi?strona={cursor}"

func pageURL(cursor int) string {
	return strings.ReplaceAll(listURL, "{cursor}", fmt.Sprint(cursor))
}

// row renders one calendar table row: date, city, linked name, distances.
func row(date, city, name, dist string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td><a href="/e/%s">%s</a></td><td>%s</td></tr>`,
		date, city, strings.ToLower(strings.ReplaceAll(name, " ", "-")), name, dist)
}

func page(rows ...string) string {
	return `<html><body><table><tr><th>Data</th><th>Miasto</th><th>Impreza</th><th>Dystans</th></tr>` +
		strings.Join(rows, "") + `</table></body></html>`
}

var june = crawler.DateRange{
	From: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC),
}

// twoPageSite has three in-range entries on page 0 and only older entries on
// page 1. Anything past page 1 must never be requested.
func twoPageSite() map[string]string {
	return map[string]string{
		pageURL(0): page(
			row("05.07.2025", "Opole", "Bieg Lipcowy", "10 km"),
			row("14.06.2025", "Kraków", "Bieg Smoka", "5 km / 10 km"),
			row("01.06.2025", "Warszawa", "Maraton Warszawski", "42,195 km"),
			row("21.06.2025", "Gdańsk", "Nocny Półmaraton", "21,1 km"),
			row("14.06.2025", "kraków", "Bieg   SMOKA", "10 km"),
		),
		pageURL(1): page(
			row("10.05.2025", "Łódź", "Bieg Majowy", "10 km"),
			row("03.05.2025", "Poznań", "Bieg Konstytucji", "5 km"),
		),
		pageURL(2): page(
			row("12.06.2025", "Toruń", "Spóźniony Bieg", "10 km"),
		),
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// siteFetcher serves fixture pages. Unknown URLs answer with an empty page.
type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
	clock *fakeClock
	cost  time.Duration
}

func (f *siteFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.clock != nil {
		f.clock.Advance(f.cost)
	}
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return []byte(`<html><body><p>Brak wyników</p></body></html>`), nil
	}
	return []byte(body), nil
}

func (f *siteFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	store   *memory.EventStore
	fetcher *siteFetcher
	clock   *fakeClock
	engine  *crawler.Engine
}

func newHarness(t *testing.T, site map[string]string, opts crawler.Options, mutate ...func(*crawler.Deps)) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewEventStore(),
		clock: newFakeClock(),
	}
	h.fetcher = &siteFetcher{pages: site, clock: h.clock, cost: time.Second}
	if opts.ListURL == "" {
		opts.ListURL = listURL
	}
	ex := extract.New()
	deps := crawler.Deps{
		Fetcher:   h.fetcher,
		Extractor: ex,
		Details:   ex,
		Resolver:  resolver.New(h.store, resolver.Config{}, zap.NewNop()),
		Clock:     h.clock,
		Runs:      h.store,
		Logger:    zap.NewNop(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	engine, err := crawler.NewEngine(opts, deps)
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) run(t *testing.T, cursor int, budget time.Duration) crawler.ChunkResult {
	t.Helper()
	res, err := h.engine.RunChunk(context.Background(), crawler.ChunkRequest{Range: june, Cursor: cursor, Budget: budget})
	require.NoError(t, err)
	return res
}

// snapshot renders store contents without surrogate IDs.
func snapshot(s *memory.EventStore) []string {
	var out []string
	for _, ev := range s.Events() {
		out = append(out, fmt.Sprintf("event %s|%s|%s", ev.Name, ev.City, ev.Slug))
	}
	for _, ed := range s.Editions() {
		out = append(out, fmt.Sprintf("edition %d|%s|%v", ed.Year, ed.StartDate.Format(time.DateOnly), ed.Distances))
	}
	return out
}

func TestRunChunkTwoPageScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{})

	first := h.run(t, 0, time.Minute)
	assert.True(t, first.Done)
	assert.Equal(t, 3, first.Seen)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 2, first.Pages)
	assert.Equal(t, []string{pageURL(0), pageURL(1)}, h.fetcher.Calls())

	second := h.run(t, 0, time.Minute)
	assert.True(t, second.Done)
	assert.Equal(t, 3, second.Seen)
	assert.Equal(t, 0, second.Inserted)

	assert.Len(t, h.store.Events(), 3)
	assert.Len(t, h.store.Editions(), 3)
	assert.Contains(t, snapshot(h.store), "event Bieg Smoka|Kraków|bieg-smoka")
	assert.Contains(t, snapshot(h.store), "edition 2025|2025-06-14|[5 km 10 km]")
	assert.Contains(t, snapshot(h.store), "edition 2025|2025-06-01|[Maraton]")
	assert.Contains(t, snapshot(h.store), "edition 2025|2025-06-21|[Półmaraton]")
}

func TestRunChunkDeduplicatesWhitespaceAndCase(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(
			row("14.06.2025", "Kraków", "Bieg Smoka", "10 km"),
			row("14.06.2025", " KRAKÓW ", "bieg&nbsp;&nbsp;smoka", "10 km"),
		),
		pageURL(1): page(
			row("14.06.2025", "kraków", "BIEG SMOKA", "10 km"),
			row("15.06.2025", "Kraków", "Bieg Smoka Junior", "1 km"),
		),
	}
	h := newHarness(t, site, crawler.Options{})

	res := h.run(t, 0, time.Minute)
	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 2, res.Inserted)
	assert.Len(t, h.store.Events(), 2)
}

func TestRunChunkStopsWhenPageHasNothingNew(t *testing.T) {
	t.Parallel()
	repeated := page(row("14.06.2025", "Kraków", "Bieg Smoka", "10 km"))
	site := map[string]string{pageURL(0): repeated, pageURL(1): repeated, pageURL(2): repeated}
	h := newHarness(t, site, crawler.Options{})

	res := h.run(t, 0, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 1, res.Seen)
	assert.Equal(t, []string{pageURL(0), pageURL(1)}, h.fetcher.Calls())
}

func TestRunChunkRangeBoundsAreInclusive(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(
			row("31.05.2025", "A", "Dzień Przed", "5 km"),
			row("01.06.2025", "B", "Pierwszy Dzień", "5 km"),
			row("30.06.2025", "C", "Ostatni Dzień", "5 km"),
			row("01.07.2025", "D", "Dzień Po", "5 km"),
		),
	}
	h := newHarness(t, site, crawler.Options{})

	res := h.run(t, 0, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 2, res.Inserted)

	var names []string
	for _, ev := range h.store.Events() {
		names = append(names, ev.Name)
	}
	assert.ElementsMatch(t, []string{"Pierwszy Dzień", "Ostatni Dzień"}, names)
}

func TestRunChunkBeforeRangeNeedsPriorInRangeHit(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(row("20.05.2025", "A", "Wcześniejszy", "5 km")),
		pageURL(1): page(row("10.06.2025", "B", "W Zakresie", "5 km")),
		pageURL(2): page(row("01.05.2025", "C", "Jeszcze Wcześniej", "5 km")),
		pageURL(3): page(row("11.06.2025", "D", "Za Daleko", "5 km")),
	}
	h := newHarness(t, site, crawler.Options{})

	res := h.run(t, 0, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 1, res.Seen)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Cursor)
}

func TestRunChunkResumedPastRangeStopsAfterBeforePages(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(row("10.06.2025", "A", "W Zakresie", "5 km")),
		pageURL(1): page(row("20.05.2025", "B", "Maj Pierwszy", "5 km")),
		pageURL(2): page(row("10.05.2025", "C", "Maj Drugi", "5 km")),
		pageURL(3): page(row("20.04.2025", "D", "Kwiecień Pierwszy", "5 km")),
		pageURL(4): page(row("10.04.2025", "E", "Kwiecień Drugi", "5 km")),
	}

	capped := newHarness(t, site, crawler.Options{ResumeBeforePages: 2})
	res := capped.run(t, 1, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, res.Cursor)
	assert.Equal(t, []string{pageURL(1), pageURL(2)}, capped.fetcher.Calls())

	uncapped := newHarness(t, site, crawler.Options{})
	res = uncapped.run(t, 1, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 5, res.Pages, "reads until the empty page")

	fresh := newHarness(t, site, crawler.Options{ResumeBeforePages: 1})
	res = fresh.run(t, 0, time.Minute)
	assert.Equal(t, 2, res.Pages, "a chunk from cursor 0 relies on its own in-range hit")
	assert.Equal(t, 1, res.Seen)
}

func TestRunChunkResumptionMatchesSingleRun(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(row("28.06.2025", "A", "Bieg A", "5 km"), row("27.06.2025", "B", "Bieg B", "10 km")),
		pageURL(1): page(row("20.06.2025", "C", "Bieg C", "21,1 km"), row("19.06.2025", "D", "Bieg D", "5 km")),
		pageURL(2): page(row("10.06.2025", "E", "Bieg E", "42,195 km")),
		pageURL(3): page(row("02.06.2025", "F", "Bieg F", "Ultramaraton 100 km")),
	}

	single := newHarness(t, site, crawler.Options{})
	full := single.run(t, 0, time.Hour)
	require.True(t, full.Done)

	chunked := newHarness(t, site, crawler.Options{})
	cursor, calls := 0, 0
	for {
		calls++
		require.Less(t, calls, 20, "chunking did not converge")
		res := chunked.run(t, cursor, 1500*time.Millisecond)
		if res.Done {
			break
		}
		assert.Greater(t, res.Cursor, cursor)
		cursor = res.Cursor
	}

	assert.Greater(t, calls, 1)
	assert.Equal(t, snapshot(single.store), snapshot(chunked.store))
	assert.Equal(t, single.fetcher.Calls(), dedupe(chunked.fetcher.Calls()))
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestRunChunkBudgetLeavesCursorOnNextPage(t *testing.T) {
	t.Parallel()
	site := twoPageSite()
	delete(site, pageURL(2))
	h := newHarness(t, site, crawler.Options{})

	res := h.run(t, 0, time.Second)
	assert.False(t, res.Done)
	assert.Equal(t, 1, res.Cursor)
	assert.Equal(t, 1, res.Pages)

	res = h.run(t, res.Cursor, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, 0, res.Seen)
}

func TestRunChunkPageCap(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{MaxPagesPerChunk: 1})

	res := h.run(t, 0, time.Hour)
	assert.False(t, res.Done)
	assert.Equal(t, 1, res.Cursor)
	assert.Equal(t, 3, res.Inserted)
}

func TestRunChunkRowCursor(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(row("14.06.2025", "A", "Bieg A", "5 km"), row("15.06.2025", "B", "Bieg B", "5 km")),
	}
	h := newHarness(t, site, crawler.Options{CursorUnit: crawler.CursorUnitRow, MaxPagesPerChunk: 1})

	res := h.run(t, 0, time.Hour)
	assert.Equal(t, 2, res.Cursor)
	assert.False(t, res.Done)
}

func TestRunChunkFetchErrorAborts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{})
	h.fetcher.fail = map[string]error{
		pageURL(1): &crawler.FetchError{URL: pageURL(1), Status: 503},
	}

	res, err := h.engine.RunChunk(context.Background(), crawler.ChunkRequest{Range: june, Budget: time.Minute})
	require.Error(t, err)
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.Status)
	assert.False(t, res.Done)
	assert.Equal(t, 1, res.Cursor)
	assert.Equal(t, 3, res.Inserted)

	runs, err := h.store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "503")
}

// flakyResolver fails EnsureEvent for one name.
type flakyResolver struct {
	crawler.Resolver
	failName string
}

func (r flakyResolver) EnsureEvent(ctx context.Context, in crawler.EventInput) (crawler.EventRef, error) {
	if in.Name == r.failName {
		return crawler.EventRef{}, errors.New("connection reset")
	}
	return r.Resolver.EnsureEvent(ctx, in)
}

func TestRunChunkPersistenceFailureAbortsAndRerunConverges(t *testing.T) {
	t.Parallel()
	clean := newHarness(t, twoPageSite(), crawler.Options{})
	clean.run(t, 0, time.Minute)

	h := newHarness(t, twoPageSite(), crawler.Options{})
	base := resolver.New(h.store, resolver.Config{}, zap.NewNop())
	failing, err := crawler.NewEngine(crawler.Options{ListURL: listURL}, crawler.Deps{
		Fetcher:   h.fetcher,
		Extractor: extract.New(),
		Resolver:  flakyResolver{Resolver: base, failName: "Bieg Smoka"},
		Clock:     h.clock,
	})
	require.NoError(t, err)

	res, err := failing.RunChunk(context.Background(), crawler.ChunkRequest{Range: june, Budget: time.Minute})
	var pe *crawler.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Bieg Smoka", pe.Name)
	assert.Equal(t, "Kraków", pe.City)
	assert.Equal(t, "2025-06-14", pe.Date.Format(time.DateOnly))
	assert.Equal(t, 0, res.Cursor)
	assert.Equal(t, 1, res.Inserted)
	assert.Len(t, h.store.Editions(), 1)

	rerun := h.run(t, res.Cursor, time.Minute)
	assert.True(t, rerun.Done)
	assert.Equal(t, 2, rerun.Inserted)
	assert.Equal(t, snapshot(clean.store), snapshot(h.store))
}

func TestRunChunkEnrichesFromDetailPageOnce(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(
			`<tr><td>10.06.2025</td><td></td><td><a href="/e/parkrun">Parkrun</a></td><td>5 km</td></tr>`,
			`<tr><td>17.06.2025</td><td></td><td><a href="/e/parkrun">Parkrun</a></td><td>5 km</td></tr>`,
		),
		"https://kalendarz.example/e/parkrun": `<html><body><h1>Parkrun Nad Wisłą</h1><p>Miasto: Toruń</p></body></html>`,
	}
	var waits []string
	h := newHarness(t, site, crawler.Options{}, func(d *crawler.Deps) {
		d.DetailPacer = crawler.PacerFunc(func(_ context.Context, url string) error {
			waits = append(waits, url)
			return nil
		})
	})

	res := h.run(t, 0, time.Minute)
	assert.Equal(t, 2, res.Seen)
	assert.Equal(t, 1, res.Inserted)

	detailCalls := 0
	for _, c := range h.fetcher.Calls() {
		if strings.HasSuffix(c, "/e/parkrun") {
			detailCalls++
		}
	}
	assert.Equal(t, 1, detailCalls)
	assert.Equal(t, []string{"https://kalendarz.example/e/parkrun"}, waits)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Parkrun", events[0].Name)
	assert.Equal(t, "Toruń", events[0].City)
}

func TestRunChunkDetailFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	site := map[string]string{
		pageURL(0): page(`<tr><td>10.06.2025</td><td></td><td><a href="/e/x">Bieg X</a></td><td>5 km</td></tr>`),
	}
	h := newHarness(t, site, crawler.Options{})
	h.fetcher.fail = map[string]error{"https://kalendarz.example/e/x": &crawler.FetchError{Status: 404}}

	res := h.run(t, 0, time.Minute)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, "", h.store.Events()[0].City)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

func TestRunChunkArchivesAndNotifies(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	pub := publishermemory.New()
	h := newHarness(t, twoPageSite(), crawler.Options{ArchivePrefix: "pages", NotifyTopic: "editions", CountryCode: "PL", SportType: "running"},
		func(d *crawler.Deps) {
			d.Archive = blobs
			d.Notifier = pub
			d.IDs = idgen.NewSequence("run-a")
		})

	res := h.run(t, 0, time.Minute)
	assert.Equal(t, "run-a", res.RunID)
	assert.Equal(t, []string{"pages/run-a/page-0.html", "pages/run-a/page-1.html"}, blobs.Paths())

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	notice, ok := msgs[0].Payload.(crawler.EditionNotice)
	require.True(t, ok)
	assert.Equal(t, "editions", msgs[0].Topic)
	assert.Equal(t, "Maraton Warszawski", notice.Name)
	assert.Equal(t, "maraton-warszawski", notice.Slug)
	assert.Equal(t, "2025-06-01", notice.StartDate)
	assert.Equal(t, []string{"Maraton"}, notice.Distances)

	ev := h.store.Events()[0]
	assert.Equal(t, "PL", ev.CountryCode)
	assert.Equal(t, "running", ev.SportType)
}

func TestRunChunkPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "editions", mock.Anything).Return("", errors.New("topic gone"))
	h := newHarness(t, twoPageSite(), crawler.Options{NotifyTopic: "editions"}, func(d *crawler.Deps) {
		d.Notifier = pub
	})

	res := h.run(t, 0, time.Minute)
	assert.Equal(t, 3, res.Inserted)
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestRunChunkIDFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{}, func(d *crawler.Deps) {
		d.IDs = idgen.NewSequence()
	})

	_, err := h.engine.RunChunk(context.Background(), crawler.ChunkRequest{Range: june})
	require.Error(t, err)
	assert.Empty(t, h.fetcher.Calls())
}

func TestRunChunkJournalsRuns(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{})

	res := h.run(t, 0, time.Minute)
	runs, err := h.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Inserted)
	assert.True(t, runs[0].Done)
	assert.Equal(t, 2, runs[0].NextCursor)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestRunChunkPacesEveryListPage(t *testing.T) {
	t.Parallel()
	var waits []string
	h := newHarness(t, twoPageSite(), crawler.Options{}, func(d *crawler.Deps) {
		d.PagePacer = crawler.PacerFunc(func(_ context.Context, url string) error {
			waits = append(waits, url)
			return nil
		})
	})

	h.run(t, 0, time.Minute)
	assert.Equal(t, []string{pageURL(0), pageURL(1)}, waits)
}

func TestRunChunkRejectsInvalidRange(t *testing.T) {
	t.Parallel()
	h := newHarness(t, twoPageSite(), crawler.Options{})

	_, err := h.engine.RunChunk(context.Background(), crawler.ChunkRequest{
		Range: crawler.DateRange{From: june.To, To: june.From},
	})
	var ire *crawler.InvalidRangeError
	require.ErrorAs(t, err, &ire)
	assert.Empty(t, h.fetcher.Calls())
}

func TestNewEngineValidates(t *testing.T) {
	t.Parallel()

	_, err := crawler.NewEngine(crawler.Options{ListURL: listURL}, crawler.Deps{})
	assert.Error(t, err)

	_, err = crawler.NewEngine(crawler.Options{ListURL: listURL, CursorUnit: "week"}, crawler.Deps{
		Fetcher:   &siteFetcher{},
		Extractor: extract.New(),
		Resolver:  resolver.New(memory.NewEventStore(), resolver.Config{}, nil),
		Clock:     newFakeClock(),
	})
	assert.Error(t, err)
}

func TestRunChunkLogsCacheHits(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	// The detail link points back at the list page, which is already cached.
	site := map[string]string{
		pageURL(0): page(fmt.Sprintf(`<tr><td>14.06.2025</td><td>Opole</td><td><a href="%s">Bieg Powrotny</a></td><td></td></tr>`, pageURL(0))),
	}
	h := newHarness(t, site, crawler.Options{}, func(d *crawler.Deps) { d.Logger = zap.New(core) })

	res := h.run(t, 0, time.Minute)
	assert.True(t, res.Done)
	assert.Equal(t, []string{pageURL(0), pageURL(1)}, h.fetcher.Calls())

	finished := logs.FilterMessage("chunk finished").All()
	require.Len(t, finished, 1)
	assert.EqualValues(t, 1, finished[0].ContextMap()["cache_hits"])
}
