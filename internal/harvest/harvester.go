// Package harvest turns provider records into stored events, matches and
// competitors.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/metrics"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMinEntrants is the smallest event worth rating
const DefaultMinEntrants = 10

const completedState = "COMPLETED"

// eventTypes maps remote event type codes to structural types
var eventTypes = map[int]models.EventType{
	1: models.EventTypeSingles,
	5: models.EventTypeDoubles,
}

// Harvester retrieves new events and their matches from a provider into a store
type Harvester struct {
	provider    provider.Provider
	store       Store
	minEntrants int
	now         func() time.Time
}

// New creates a harvester. minEntrants <= 0 selects DefaultMinEntrants.
func New(p provider.Provider, store Store, minEntrants int) *Harvester {
	if minEntrants <= 0 {
		minEntrants = DefaultMinEntrants
	}
	return &Harvester{
		provider:    p,
		store:       store,
		minEntrants: minEntrants,
		now:         time.Now,
	}
}

// FetchEvents stores every eligible event of the game that ended in [from, to)
// and is not stored yet, and returns the new events.
//
// A zero to means now. An empty countries list runs a single unfiltered pass.
// A failed country batch does not stop the others: the events of the remaining
// batches are committed and returned together with an error wrapping ErrIncomplete
// and every batch error. Store failures abort the call and nothing is committed.
func (h *Harvester) FetchEvents(ctx context.Context, gameCode string, from, to time.Time, countries []string) ([]*models.Event, error) {
	start := time.Now()
	if to.IsZero() {
		to = h.now()
	}
	if len(countries) == 0 {
		countries = []string{""}
	}

	session, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	defer session.Rollback(ctx)

	game, err := session.GameByCode(ctx, gameCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load game %q: %w", gameCode, err)
	}
	if game == nil || !game.RemoteID.Valid {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameCode)
	}

	var candidates []*models.Event
	var batchErrs []error
	seen := make(map[models.EventKey]bool)
	for _, country := range countries {
		batch, err := h.fetchBatch(ctx, game, country, from, to)
		if err != nil {
			metrics.RecordError("harvester", "fetch_batch")
			batchErrs = append(batchErrs, fmt.Errorf("country %q: %w", country, err))
			log.Error().
				Err(err).
				Str("game", game.Code).
				Str("country", country).
				Msg("Failed to retrieve tournaments, skipping batch")
			continue
		}
		for _, e := range batch {
			if seen[e.Key()] {
				continue
			}
			seen[e.Key()] = true
			candidates = append(candidates, e)
		}
	}

	events, err := h.storeNewEvents(ctx, session, candidates)
	if err != nil {
		metrics.RecordSync("fetch_events", "error", time.Since(start).Seconds())
		return nil, err
	}
	if err := session.Commit(ctx); err != nil {
		metrics.RecordSync("fetch_events", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}

	status := "success"
	if len(batchErrs) > 0 {
		status = "partial"
	}
	metrics.RecordEventsCreated(game.Code, len(events))
	metrics.RecordSync("fetch_events", status, time.Since(start).Seconds())
	log.Info().
		Str("game", game.Code).
		Int("candidates", len(candidates)).
		Int("created", len(events)).
		Int("failed_batches", len(batchErrs)).
		Dur("duration", time.Since(start)).
		Msg("Fetched events")

	if len(batchErrs) > 0 {
		return events, fmt.Errorf("%w: %d of %d batches failed: %w",
			ErrIncomplete, len(batchErrs), len(countries), errors.Join(batchErrs...))
	}
	return events, nil
}

// fetchBatch retrieves and filters the tournaments of one country filter
func (h *Harvester) fetchBatch(ctx context.Context, game *models.Game, country string, from, to time.Time) ([]*models.Event, error) {
	tournaments, err := h.provider.ListEvents(ctx, provider.EventQuery{
		GameID:  game.RemoteID.Int64,
		Country: country,
		From:    from,
		To:      to,
	})
	if err != nil {
		return nil, err
	}

	ids := make(map[provider.RemoteID]struct{}, len(tournaments))
	for _, t := range tournaments {
		ids[t.ID] = struct{}{}
	}
	if len(ids) < len(tournaments) {
		metrics.RecordError("harvester", "duplicate_page")
		log.Error().
			Str("game", game.Code).
			Str("country", country).
			Int("records", len(tournaments)).
			Int("unique", len(ids)).
			Msg("Duplicate tournament ids across pages, discarding batch")
		return nil, errDuplicatePage
	}

	var events []*models.Event
	for i := range tournaments {
		t := &tournaments[i]
		for j := range t.Events {
			if e := h.candidate(game, t, &t.Events[j]); e != nil {
				events = append(events, e)
			}
		}
	}
	return events, nil
}

// candidate builds an Event from an eligible event node, nil otherwise
func (h *Harvester) candidate(game *models.Game, t *provider.Tournament, node *provider.EventNode) *models.Event {
	logger := log.With().
		Int64("tournament_id", int64(t.ID)).
		Int64("event_id", int64(node.ID)).
		Logger()

	switch {
	case !t.ID.Valid() || !node.ID.Valid():
		metrics.RecordSkip("invalid_id")
		logger.Debug().Msg("Skipping event without numeric id")
		return nil
	case node.State != completedState:
		metrics.RecordSkip("not_completed")
		logger.Debug().Str("state", node.State).Msg("Skipping event - not completed")
		return nil
	case node.IsOnline:
		metrics.RecordSkip("online")
		logger.Debug().Msg("Skipping event - online")
		return nil
	case node.Videogame == nil || int64(node.Videogame.ID) != game.RemoteID.Int64:
		metrics.RecordSkip("wrong_game")
		logger.Debug().Msg("Skipping event - different game")
		return nil
	case node.NumEntrants == nil || *node.NumEntrants < h.minEntrants:
		metrics.RecordSkip("too_few_entrants")
		logger.Debug().Msg("Skipping event - too few entrants")
		return nil
	}

	e := &models.Event{
		RemoteTournamentID: int64(t.ID),
		RemoteEventID:      int64(node.ID),
		GameID:             game.ID,
		Name:               fmt.Sprintf("%s | %s", t.Name, node.Name),
		EndDate:            time.Unix(t.EndAt, 0).UTC(),
		NumEntrants:        *node.NumEntrants,
		Type:               eventTypes[node.Type],
		Format:             models.EventFormatUnknown,
		State:              models.EventStateUnverified,
	}
	e.Note.String, e.Note.Valid = fmt.Sprintf("Added by %s harvester", h.provider.Name()), true
	if t.CountryCode != nil && *t.CountryCode != "" {
		e.Country.String, e.Country.Valid = *t.CountryCode, true
	}
	return e
}

func (h *Harvester) storeNewEvents(ctx context.Context, session Session, candidates []*models.Event) ([]*models.Event, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	keys := make([]models.EventKey, 0, len(candidates))
	for _, e := range candidates {
		keys = append(keys, e.Key())
	}
	known, err := session.ExistingEventKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing events: %w", err)
	}

	var created []*models.Event
	for _, e := range candidates {
		if known[e.Key()] {
			metrics.RecordSkip("known_event")
			continue
		}
		if err := session.CreateEvent(ctx, e); err != nil {
			return nil, fmt.Errorf("failed to create event %d/%d: %w", e.RemoteTournamentID, e.RemoteEventID, err)
		}
		log.Debug().
			Int("id", e.ID).
			Str("name", e.Name).
			Int("entrants", e.NumEntrants).
			Msg("Event created")
		created = append(created, e)
	}
	return created, nil
}

// PopulateEvent retrieves and stores the matches of a singles event.
//
// Events that already have matches, and events that are not singles, are
// skipped with a warning and yield nil, nil. The event's format is updated
// in the same transaction as its matches.
func (h *Harvester) PopulateEvent(ctx context.Context, event *models.Event) ([]*models.Match, error) {
	start := time.Now()
	logger := log.With().
		Str("run_id", uuid.NewString()).
		Int("event", event.ID).
		Str("name", event.Name).
		Logger()

	if event.Type != models.EventTypeSingles {
		logger.Warn().Str("type", event.Type.String()).Msg("Only singles events can be populated, skipping")
		return nil, nil
	}

	session, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	defer session.Rollback(ctx)

	populated, err := session.EventHasMatches(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check matches of event %d: %w", event.ID, err)
	}
	if populated {
		logger.Warn().Msg("Event already has matches, skipping")
		return nil, nil
	}

	bracket, err := h.provider.ListMatches(ctx, event.RemoteEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve matches of event %d: %w", event.ID, err)
	}

	format := ClassifyFormat(bracket.Phases)
	if format == models.EventFormatUnknown {
		logger.Warn().Int("phases", len(bracket.Phases)).Msg("Could not determine event format")
	}

	sets := make([]provider.Set, 0, len(bracket.Sets))
	for i := range bracket.Sets {
		set := &bracket.Sets[i]
		switch {
		case !set.ID.Valid():
			metrics.RecordSkip("invalid_id")
			logger.Debug().Msg("Skipping set without numeric id")
		case IsDisqualification(set):
			metrics.RecordSkip("disqualification")
			logger.Debug().Int64("set_id", int64(set.ID)).Msg("Skipping set - disqualification")
		default:
			sets = append(sets, *set)
		}
	}
	SortByStart(sets)

	remoteIDs := make([]int64, 0, len(sets))
	for i := range sets {
		remoteIDs = append(remoteIDs, int64(sets[i].ID))
	}
	known, err := session.ExistingMatchIDs(ctx, remoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing matches: %w", err)
	}

	resolver := NewResolver(session, logger)
	var matches []*models.Match
	for i := range sets {
		set := &sets[i]
		if known[int64(set.ID)] {
			continue
		}
		known[int64(set.ID)] = true

		m, err := h.buildMatch(ctx, resolver, event, set, i+1)
		if err != nil {
			return nil, err
		}
		if m == nil {
			metrics.RecordSkip("malformed_set")
			logger.Debug().Int64("set_id", int64(set.ID)).Msg("Skipping set - not a decided 1v1")
			continue
		}
		if err := session.CreateMatch(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to create match %d: %w", m.RemoteID, err)
		}
		matches = append(matches, m)
	}

	if err := session.UpdateEventFormat(ctx, event.ID, format); err != nil {
		return nil, fmt.Errorf("failed to update format of event %d: %w", event.ID, err)
	}
	if err := session.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit matches of event %d: %w", event.ID, err)
	}
	event.Format = format

	metrics.RecordMatchesCreated(len(matches))
	metrics.RecordSync("populate_event", "success", time.Since(start).Seconds())
	logger.Info().
		Str("format", format.String()).
		Int("sets", len(bracket.Sets)).
		Int("created", len(matches)).
		Dur("duration", time.Since(start)).
		Msg("Populated event")

	return matches, nil
}

// buildMatch resolves both sides of a set. It returns nil when the set is not
// a 1v1 with a decided winner.
func (h *Harvester) buildMatch(ctx context.Context, resolver *Resolver, event *models.Event, set *provider.Set, order int) (*models.Match, error) {
	if len(set.Slots) != 2 {
		return nil, nil
	}
	for i := range set.Slots {
		if set.Slots[i].Entrant == nil || len(set.Slots[i].Entrant.Participants) != 1 {
			return nil, nil
		}
	}

	w, l := winnerIndex(set.Slots)
	if w < 0 {
		return nil, nil
	}
	winnerSlot, loserSlot := &set.Slots[w], &set.Slots[l]
	winnerP := &winnerSlot.Entrant.Participants[0]
	loserP := &loserSlot.Entrant.Participants[0]

	winner, err := resolver.Resolve(ctx, winnerP)
	if err != nil {
		return nil, err
	}
	loser, err := resolver.Resolve(ctx, loserP)
	if err != nil {
		return nil, err
	}
	if winner == loser {
		return nil, nil
	}

	winnerScore, _ := winnerSlot.ScoreValue()
	loserScore, _ := loserSlot.ScoreValue()
	return &models.Match{
		RemoteID:       int64(set.ID),
		EventID:        event.ID,
		Order:          order,
		WinnerID:       winner.ID,
		WinnerScore:    int(math.Round(winnerScore)),
		WinnerVerified: winnerP.Verified,
		LoserID:        loser.ID,
		LoserScore:     int(math.Round(loserScore)),
		LoserVerified:  loserP.Verified,
	}, nil
}

// winnerIndex picks the slot placed first, falling back to the higher score.
// It returns -1, -1 when the set has no decided winner.
func winnerIndex(slots []provider.Slot) (int, int) {
	p0, p1 := slots[0].Placement(), slots[1].Placement()
	switch {
	case p0 == 1 && p1 != 1:
		return 0, 1
	case p1 == 1 && p0 != 1:
		return 1, 0
	}

	s0, _ := slots[0].ScoreValue()
	s1, _ := slots[1].ScoreValue()
	switch {
	case s0 > s1:
		return 0, 1
	case s1 > s0:
		return 1, 0
	}
	return -1, -1
}
