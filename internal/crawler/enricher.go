package crawler

import (
	"context"

	"go.uber.org/zap"
)

// Enricher fills gaps in list rows from event detail pages. Results are
// memoized per detail URL for the life of the Enricher.
type Enricher struct {
	fetcher   Fetcher
	parser    DetailParser
	pacer     Pacer
	normalize func(string) []string
	logger    *zap.Logger

	memo map[string]Detail
}

// NewEnricher builds an Enricher. A nil pacer means no delay.
func NewEnricher(fetcher Fetcher, parser DetailParser, pacer Pacer, normalize func(string) []string, logger *zap.Logger) *Enricher {
	if pacer == nil {
		pacer = NoDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		fetcher:   fetcher,
		parser:    parser,
		pacer:     pacer,
		normalize: normalize,
		logger:    logger,
		memo:      make(map[string]Detail),
	}
}

// Enrich returns entry with missing name, city, or distances taken from its
// detail page. Present fields are never replaced. Fetch and parse failures
// leave the entry as it was.
func (e *Enricher) Enrich(ctx context.Context, entry Entry) Entry {
	if !entry.NeedsDetail() || e.fetcher == nil || e.parser == nil {
		return entry
	}
	detail, ok := e.memo[entry.DetailURL]
	if !ok {
		detail = e.load(ctx, entry.DetailURL)
		e.memo[entry.DetailURL] = detail
	}
	if entry.Name == "" {
		entry.Name = detail.Name
	}
	if entry.City == "" {
		entry.City = detail.City
	}
	if len(entry.Distances) == 0 && detail.DistanceText != "" && e.normalize != nil {
		entry.Distances = e.normalize(detail.DistanceText)
	}
	return entry
}

func (e *Enricher) load(ctx context.Context, url string) Detail {
	if err := e.pacer.Wait(ctx, url); err != nil {
		e.logger.Warn("detail delay interrupted", zap.String("url", url), zap.Error(err))
		return Detail{}
	}
	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		e.logger.Warn("detail fetch failed", zap.String("url", url), zap.Error(err))
		return Detail{}
	}
	detail, err := e.parser.ParseDetail(body)
	if err != nil {
		e.logger.Warn("detail parse failed", zap.String("url", url), zap.Error(err))
		return Detail{}
	}
	return Detail{
		Name:         NormalizeSpace(detail.Name),
		City:         NormalizeSpace(detail.City),
		DistanceText: detail.DistanceText,
	}
}
