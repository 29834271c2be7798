package harvest

import (
	"context"
	"errors"
	"sync"

	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store. Sessions stage their writes and apply them on Commit.
type memStore struct {
	mu          sync.Mutex
	games       map[string]*models.Game
	events      []*models.Event
	competitors []*models.Competitor
	matches     []*models.Match
	nextID      int
	commits     int

	failCreateMatch bool
}

func newMemStore(games ...*models.Game) *memStore {
	s := &memStore{games: make(map[string]*models.Game), nextID: 1}
	for _, g := range games {
		s.games[g.Code] = g
	}
	return s
}

func (s *memStore) Begin(ctx context.Context) (Session, error) {
	return &memSession{store: s, formats: make(map[int]models.EventFormat)}, nil
}

func (s *memStore) id() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

type memSession struct {
	store       *memStore
	events      []*models.Event
	competitors []*models.Competitor
	matches     []*models.Match
	formats     map[int]models.EventFormat
	done        bool
}

func (m *memSession) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	return m.store.games[code], nil
}

func (m *memSession) allEvents() []*models.Event {
	return append(append([]*models.Event{}, m.store.events...), m.events...)
}

func (m *memSession) ExistingEventKeys(ctx context.Context, keys []models.EventKey) (map[models.EventKey]bool, error) {
	want := make(map[models.EventKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	found := make(map[models.EventKey]bool)
	for _, e := range m.allEvents() {
		if want[e.Key()] {
			found[e.Key()] = true
		}
	}
	return found, nil
}

func (m *memSession) CreateEvent(ctx context.Context, e *models.Event) error {
	e.ID = m.store.id()
	m.events = append(m.events, e)
	return nil
}

func (m *memSession) EventHasMatches(ctx context.Context, eventID int) (bool, error) {
	for _, match := range append(append([]*models.Match{}, m.store.matches...), m.matches...) {
		if match.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memSession) UpdateEventFormat(ctx context.Context, eventID int, format models.EventFormat) error {
	m.formats[eventID] = format
	return nil
}

func (m *memSession) ExistingMatchIDs(ctx context.Context, remoteIDs []int64) (map[int64]bool, error) {
	found := make(map[int64]bool)
	for _, match := range append(append([]*models.Match{}, m.store.matches...), m.matches...) {
		for _, id := range remoteIDs {
			if match.RemoteID == id {
				found[id] = true
			}
		}
	}
	return found, nil
}

func (m *memSession) CreateMatch(ctx context.Context, match *models.Match) error {
	if m.store.failCreateMatch {
		return errInjected
	}
	match.ID = m.store.id()
	m.matches = append(m.matches, match)
	return nil
}

func (m *memSession) CompetitorByRemoteID(ctx context.Context, remoteID int64) (*models.Competitor, error) {
	for _, c := range append(append([]*models.Competitor{}, m.store.competitors...), m.competitors...) {
		if c.RemoteID.Valid && c.RemoteID.Int64 == remoteID {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memSession) CreateCompetitor(ctx context.Context, c *models.Competitor) error {
	c.ID = m.store.id()
	m.competitors = append(m.competitors, c)
	return nil
}

func (m *memSession) Commit(ctx context.Context) error {
	if m.done {
		return errors.New("session already closed")
	}
	m.done = true

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, m.events...)
	s.competitors = append(s.competitors, m.competitors...)
	s.matches = append(s.matches, m.matches...)
	for id, f := range m.formats {
		for _, e := range s.events {
			if e.ID == id {
				e.Format = f
			}
		}
	}
	s.commits++
	return nil
}

func (m *memSession) Rollback(ctx context.Context) error {
	m.done = true
	return nil
}

// stubProvider serves canned records
type stubProvider struct {
	tournaments map[string][]provider.Tournament // By country
	brackets    map[int64]*provider.Bracket
	listErr     map[string]error
	queries     []provider.EventQuery
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ListEvents(ctx context.Context, q provider.EventQuery) ([]provider.Tournament, error) {
	p.queries = append(p.queries, q)
	if err := p.listErr[q.Country]; err != nil {
		return nil, err
	}
	return p.tournaments[q.Country], nil
}

func (p *stubProvider) ListMatches(ctx context.Context, eventID int64) (*provider.Bracket, error) {
	b, ok := p.brackets[eventID]
	if !ok {
		return nil, errors.New("no such event")
	}
	return b, nil
}

func ptr[T any](v T) *T { return &v }

func eventNode(id int64, entrants int) provider.EventNode {
	return provider.EventNode{
		ID:          provider.RemoteID(id),
		Name:        "Ultimate Singles",
		State:       "COMPLETED",
		Type:        1,
		NumEntrants: ptr(entrants),
		Videogame:   &provider.Videogame{ID: 1386},
	}
}

func slot(placement int, score float64, tag string, userID int64, verified bool) provider.Slot {
	p := provider.Participant{GamerTag: tag, Verified: verified}
	if userID != 0 {
		p.User = &provider.User{ID: provider.RemoteID(userID)}
	}
	return provider.Slot{
		Standing: &provider.Standing{
			Placement: ptr(placement),
			Stats:     &provider.StandingStats{Score: &provider.Score{Value: ptr(score)}},
		},
		Entrant: &provider.Entrant{Participants: []provider.Participant{p}},
	}
}

func newSet(id, startedAt int64, slots ...provider.Slot) provider.Set {
	s := provider.Set{ID: provider.RemoteID(id), Slots: slots}
	if startedAt != 0 {
		s.StartedAt = ptr(startedAt)
	}
	return s
}
