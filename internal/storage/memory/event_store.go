package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

// EventStore is an in-memory crawler.Store and crawler.RunStore that enforces
// the same unique constraints as the Postgres schema.
type EventStore struct {
	mu       sync.RWMutex
	nextID   int64
	events   map[int64]crawler.Event
	editions map[int64]crawler.Edition
	runs     []crawler.Run
}

// NewEventStore constructs an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		events:   make(map[int64]crawler.Event),
		editions: make(map[int64]crawler.Edition),
	}
}

// FindEventsByName returns events whose name matches case-insensitively.
func (s *EventStore) FindEventsByName(_ context.Context, name string) ([]crawler.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Event
	for _, ev := range s.events {
		if strings.EqualFold(ev.Name, name) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertEvent stores a new event.
func (s *EventStore) InsertEvent(_ context.Context, ev crawler.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.Slug == ev.Slug {
			return 0, crawler.ErrSlugTaken
		}
		if sameEventKey(existing, ev.Name, ev.City) {
			return 0, crawler.ErrDuplicate
		}
	}
	s.nextID++
	ev.ID = s.nextID
	s.events[ev.ID] = ev
	return ev.ID, nil
}

// FillEvent sets the NULL fields of an event from ev.
func (s *EventStore) FillEvent(_ context.Context, ev crawler.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.events[ev.ID]
	if !ok {
		return crawler.ErrNotFound
	}
	if current.City == "" && ev.City != "" {
		for id, other := range s.events {
			if id != ev.ID && sameEventKey(other, current.Name, ev.City) {
				return crawler.ErrDuplicate
			}
		}
		current.City = ev.City
	}
	if current.CountryCode == "" {
		current.CountryCode = ev.CountryCode
	}
	if current.SportType == "" {
		current.SportType = ev.SportType
	}
	s.events[ev.ID] = current
	return nil
}

// FindEdition returns the edition for (eventID, year).
func (s *EventStore) FindEdition(_ context.Context, eventID int64, year int) (crawler.Edition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ed := range s.editions {
		if ed.EventID == eventID && ed.Year == year {
			ed.Distances = slices.Clone(ed.Distances)
			return ed, nil
		}
	}
	return crawler.Edition{}, crawler.ErrNotFound
}

// InsertEdition stores a new edition.
func (s *EventStore) InsertEdition(_ context.Context, ed crawler.Edition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ed.EventID]; !ok {
		return 0, crawler.ErrNotFound
	}
	for _, existing := range s.editions {
		if existing.EventID == ed.EventID && existing.Year == ed.Year {
			return 0, crawler.ErrDuplicate
		}
	}
	s.nextID++
	ed.ID = s.nextID
	ed.Distances = slices.Clone(ed.Distances)
	s.editions[ed.ID] = ed
	return ed.ID, nil
}

// UpdateEdition writes distances and fills NULL dates when the stored
// distances still equal expected.
func (s *EventStore) UpdateEdition(_ context.Context, ed crawler.Edition, expected []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.editions[ed.ID]
	if !ok || !slices.Equal(current.Distances, expected) {
		return crawler.ErrConflict
	}
	if current.StartDate.IsZero() {
		current.StartDate = ed.StartDate
	}
	if current.EndDate.IsZero() {
		current.EndDate = ed.EndDate
	}
	current.Distances = slices.Clone(ed.Distances)
	s.editions[ed.ID] = current
	return nil
}

// RecordRun appends a journal row, replacing one with the same ID.
func (s *EventStore) RecordRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns the newest runs first.
func (s *EventStore) ListRuns(_ context.Context, limit int) ([]crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.runs[i])
	}
	return out, nil
}

// Events returns a snapshot of all events ordered by ID.
func (s *EventStore) Events() []crawler.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Editions returns a snapshot of all editions ordered by ID.
func (s *EventStore) Editions() []crawler.Edition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Edition, 0, len(s.editions))
	for _, ed := range s.editions {
		ed.Distances = slices.Clone(ed.Distances)
		out = append(out, ed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameEventKey(ev crawler.Event, name, city string) bool {
	return strings.EqualFold(ev.Name, name) && strings.EqualFold(ev.City, city)
}
