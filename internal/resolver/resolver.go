// Package resolver turns normalized calendar entries into idempotent event and
// edition upserts. Writes only fill NULL fields or union distance lists, so
// overlapping runs converge on the same rows.
package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
	"github.com/JakeFAU/racecal-crawler/internal/distance"
	"github.com/JakeFAU/racecal-crawler/internal/slug"
)

const (
	defaultMaxSlugAttempts = 20
	defaultMaxRetries      = 3
)

// Config tunes slug generation and race retries.
type Config struct {
	// SlugWithCity appends the city to the base slug.
	SlugWithCity bool
	// MaxSlugAttempts bounds the -2, -3, ... suffixes tried on collision.
	MaxSlugAttempts int
	// MaxRetries bounds re-reads after losing a race to another writer.
	MaxRetries int
}

// Resolver implements crawler.Resolver on top of a crawler.Store.
type Resolver struct {
	store  crawler.Store
	cfg    Config
	logger *zap.Logger
}

// New constructs a Resolver.
func New(store crawler.Store, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.MaxSlugAttempts <= 0 {
		cfg.MaxSlugAttempts = defaultMaxSlugAttempts
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, cfg: cfg, logger: logger}
}

// EnsureEvent finds the event for (name, city) case-insensitively or creates
// it. A matched event only gets its NULL city, country code, and sport type
// filled.
func (r *Resolver) EnsureEvent(ctx context.Context, in crawler.EventInput) (crawler.EventRef, error) {
	in.Name = crawler.NormalizeSpace(in.Name)
	in.City = crawler.NormalizeSpace(in.City)
	if in.Name == "" {
		return crawler.EventRef{}, errors.New("event name is required")
	}

	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		candidates, err := r.store.FindEventsByName(ctx, in.Name)
		if err != nil {
			return crawler.EventRef{}, fmt.Errorf("find events: %w", err)
		}
		if ev, ok := matchEvent(candidates, in.City); ok {
			updated, err := r.fillEvent(ctx, ev, in)
			if errors.Is(err, crawler.ErrDuplicate) {
				continue
			}
			if err != nil {
				return crawler.EventRef{}, err
			}
			return crawler.EventRef{ID: ev.ID, Slug: ev.Slug, Updated: updated}, nil
		}

		ref, err := r.createEvent(ctx, in)
		if errors.Is(err, crawler.ErrDuplicate) {
			r.logger.Debug("event created concurrently, re-reading",
				zap.String("name", in.Name), zap.String("city", in.City))
			continue
		}
		if err != nil {
			return crawler.EventRef{}, err
		}
		return ref, nil
	}
	return crawler.EventRef{}, fmt.Errorf("ensure event %q: %w", in.Name, crawler.ErrConflict)
}

// matchEvent prefers an exact city, then an event whose city is still NULL.
// Without a city it takes the NULL-city event, then the oldest one.
func matchEvent(candidates []crawler.Event, city string) (crawler.Event, bool) {
	if len(candidates) == 0 {
		return crawler.Event{}, false
	}
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b crawler.Event) int { return cmp.Compare(a.ID, b.ID) })

	var nullCity *crawler.Event
	for i := range sorted {
		if sorted[i].City == "" && nullCity == nil {
			nullCity = &sorted[i]
		}
		if city != "" && strings.EqualFold(sorted[i].City, city) {
			return sorted[i], true
		}
	}
	if nullCity != nil {
		return *nullCity, true
	}
	if city == "" {
		return sorted[0], true
	}
	return crawler.Event{}, false
}

func (r *Resolver) fillEvent(ctx context.Context, ev crawler.Event, in crawler.EventInput) (bool, error) {
	patch := crawler.Event{ID: ev.ID}
	if ev.City == "" {
		patch.City = in.City
	}
	if ev.CountryCode == "" {
		patch.CountryCode = in.CountryCode
	}
	if ev.SportType == "" {
		patch.SportType = in.SportType
	}
	if patch.City == "" && patch.CountryCode == "" && patch.SportType == "" {
		return false, nil
	}
	if err := r.store.FillEvent(ctx, patch); err != nil {
		return false, fmt.Errorf("fill event %d: %w", ev.ID, err)
	}
	return true, nil
}

func (r *Resolver) createEvent(ctx context.Context, in crawler.EventInput) (crawler.EventRef, error) {
	base := slug.Make(in.Name)
	if r.cfg.SlugWithCity {
		base = slug.Make(in.Name, in.City)
	}
	for n := 1; n <= r.cfg.MaxSlugAttempts; n++ {
		candidate := slug.WithSuffix(base, n)
		id, err := r.store.InsertEvent(ctx, crawler.Event{
			Name:        in.Name,
			Slug:        candidate,
			City:        in.City,
			CountryCode: in.CountryCode,
			SportType:   in.SportType,
		})
		if errors.Is(err, crawler.ErrSlugTaken) {
			r.logger.Info("slug collision",
				zap.String("slug", candidate),
				zap.String("name", in.Name),
				zap.String("city", in.City),
				zap.Int("attempt", n))
			continue
		}
		if err != nil {
			return crawler.EventRef{}, fmt.Errorf("insert event: %w", err)
		}
		return crawler.EventRef{ID: id, Slug: candidate, Created: true}, nil
	}
	return crawler.EventRef{}, fmt.Errorf("allocate slug for %q: %w", in.Name, crawler.ErrSlugTaken)
}

// EnsureEdition inserts the (event, year) edition or merges into it. Nothing is
// written when the merge changes nothing.
func (r *Resolver) EnsureEdition(ctx context.Context, in crawler.EditionInput) (crawler.EditionResult, error) {
	if in.EventID == 0 || in.Year == 0 {
		return crawler.EditionResult{}, errors.New("edition needs an event id and a year")
	}
	in.Distances = distance.Merge(nil, in.Distances)

	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		existing, err := r.store.FindEdition(ctx, in.EventID, in.Year)
		if errors.Is(err, crawler.ErrNotFound) {
			id, err := r.store.InsertEdition(ctx, crawler.Edition{
				EventID:   in.EventID,
				Year:      in.Year,
				StartDate: in.StartDate,
				EndDate:   in.EndDate,
				Distances: in.Distances,
			})
			if errors.Is(err, crawler.ErrDuplicate) {
				continue
			}
			if err != nil {
				return crawler.EditionResult{}, fmt.Errorf("insert edition: %w", err)
			}
			return crawler.EditionResult{ID: id, Action: crawler.EditionInserted}, nil
		}
		if err != nil {
			return crawler.EditionResult{}, fmt.Errorf("find edition: %w", err)
		}

		merged, changed := mergeEdition(existing, in)
		if !changed {
			return crawler.EditionResult{ID: existing.ID, Action: crawler.EditionSkipped}, nil
		}
		err = r.store.UpdateEdition(ctx, merged, existing.Distances)
		if errors.Is(err, crawler.ErrConflict) {
			continue
		}
		if err != nil {
			return crawler.EditionResult{}, fmt.Errorf("update edition %d: %w", existing.ID, err)
		}
		return crawler.EditionResult{ID: existing.ID, Action: crawler.EditionUpdated}, nil
	}
	return crawler.EditionResult{}, fmt.Errorf("ensure edition %d/%d: %w", in.EventID, in.Year, crawler.ErrConflict)
}

func mergeEdition(existing crawler.Edition, in crawler.EditionInput) (crawler.Edition, bool) {
	merged := existing
	changed := false
	if merged.StartDate.IsZero() && !in.StartDate.IsZero() {
		merged.StartDate = in.StartDate
		changed = true
	}
	if merged.EndDate.IsZero() && !in.EndDate.IsZero() {
		merged.EndDate = in.EndDate
		changed = true
	}
	merged.Distances = distance.Merge(existing.Distances, in.Distances)
	if len(merged.Distances) != len(distance.Merge(nil, existing.Distances)) {
		changed = true
	}
	return merged, changed
}
