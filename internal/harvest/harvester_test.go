package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/client"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"
	"github.com/odysseycaravels/ranking-scraper/internal/provider/smashgg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ultimate() *models.Game {
	g := &models.Game{ID: 1, Code: "smash-ultimate", DisplayName: "Super Smash Bros. Ultimate"}
	g.RemoteID.Int64, g.RemoteID.Valid = 1386, true
	return g
}

func knownEvent(tournamentID, eventID int64) *models.Event {
	return &models.Event{ID: 900, RemoteTournamentID: tournamentID, RemoteEventID: eventID, GameID: 1}
}

func TestFetchEvents_TwoPagesOneKnownTournament(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		query := body.Variables["query"].(map[string]any)
		filter := query["filter"].(map[string]any)
		assert.Equal(t, "BE", filter["countryCode"])
		assert.Equal(t, []any{float64(1386)}, filter["videogameIds"])

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(body.Query, "TournamentsPaging"):
			requests = append(requests, "paging")
			_, _ = w.Write([]byte(`{"data":{"tournaments":{"pageInfo":{"totalPages":2,"perPage":1}}}}`))
		case query["page"] == float64(1):
			requests = append(requests, "page 1")
			_, _ = w.Write([]byte(`{"data":{"tournaments":{"nodes":[{"id":5001,"name":"Known Open","countryCode":"BE","endAt":1600000000,"events":[
				{"id":77,"name":"Ultimate Singles","isOnline":false,"numEntrants":48,"state":"COMPLETED","type":1,"videogame":{"id":1386}}]}]}}}`))
		default:
			requests = append(requests, "page 2")
			_, _ = w.Write([]byte(`{"data":{"tournaments":{"nodes":[{"id":5002,"name":"New Cup","countryCode":"BE","endAt":1600600000,"events":[
				{"id":78,"name":"Ultimate Singles","isOnline":false,"numEntrants":24,"state":"COMPLETED","type":1,"videogame":{"id":1386}}]}]}}}`))
		}
	}))
	defer server.Close()

	c := client.NewClient(client.Config{Endpoint: server.URL, Token: "token", Timeout: 5 * time.Second, Retry: client.DefaultRetryPolicy()})
	store := newMemStore(ultimate())
	store.events = append(store.events, knownEvent(5001, 77))
	h := New(smashgg.New(c, 1, 40), store, DefaultMinEntrants)

	events, err := h.FetchEvents(context.Background(), "smash-ultimate",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}, []string{"BE"})
	require.NoError(t, err)

	assert.Equal(t, []string{"paging", "page 1", "page 2"}, requests)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, int64(5002), e.RemoteTournamentID)
	assert.Equal(t, int64(78), e.RemoteEventID)
	assert.Equal(t, "New Cup | Ultimate Singles", e.Name)
	assert.Equal(t, "BE", e.Country.String)
	assert.Equal(t, "Added by smashgg harvester", e.Note.String)
	assert.Equal(t, 24, e.NumEntrants)
	assert.Equal(t, models.EventTypeSingles, e.Type)
	assert.Equal(t, models.EventStateUnverified, e.State)
	assert.Equal(t, time.Unix(1600600000, 0).UTC(), e.EndDate)
	assert.Len(t, store.events, 2)
}

func TestFetchEvents_Idempotent(t *testing.T) {
	stub := &stubProvider{tournaments: map[string][]provider.Tournament{
		"": {
			{ID: 1, Name: "Weekly", EndAt: 1600000000, Events: []provider.EventNode{eventNode(10, 16), eventNode(11, 12)}},
		},
	}}
	store := newMemStore(ultimate())
	h := New(stub, store, DefaultMinEntrants)
	ctx := context.Background()

	first, err := h.FetchEvents(ctx, "smash-ultimate", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := h.FetchEvents(ctx, "smash-ultimate", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, store.events, 2)

	// No country filter means a single unfiltered pass
	require.Len(t, stub.queries, 2)
	assert.Equal(t, "", stub.queries[0].Country)
	assert.Equal(t, int64(1386), stub.queries[0].GameID)
	assert.False(t, stub.queries[0].To.IsZero(), "upper bound defaults to now")
}

func TestFetchEvents_EligibilityFilters(t *testing.T) {
	online := eventNode(2, 64)
	online.IsOnline = true
	pending := eventNode(3, 64)
	pending.State = "ACTIVE"
	melee := eventNode(4, 64)
	melee.Videogame = &provider.Videogame{ID: 1}
	noGame := eventNode(5, 64)
	noGame.Videogame = nil
	small := eventNode(6, 9)
	unknownCount := eventNode(7, 0)
	unknownCount.NumEntrants = nil
	doubles := eventNode(8, 10)
	doubles.Type = 5
	exotic := eventNode(9, 10)
	exotic.Type = 3

	stub := &stubProvider{tournaments: map[string][]provider.Tournament{
		"": {{ID: 1, Name: "Major", EndAt: 1600000000, Events: []provider.EventNode{
			eventNode(1, 10), online, pending, melee, noGame, small, unknownCount, doubles, exotic,
		}}},
	}}
	h := New(stub, newMemStore(ultimate()), DefaultMinEntrants)

	events, err := h.FetchEvents(context.Background(), "smash-ultimate", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)

	types := make(map[int64]models.EventType)
	for _, e := range events {
		types[e.RemoteEventID] = e.Type
	}
	assert.Equal(t, map[int64]models.EventType{
		1: models.EventTypeSingles,
		8: models.EventTypeDoubles,
		9: models.EventTypeUnknown,
	}, types)
}

func TestFetchEvents_DuplicatePageGuard(t *testing.T) {
	stub := &stubProvider{tournaments: map[string][]provider.Tournament{
		"BE": {
			{ID: 1, Name: "A", Events: []provider.EventNode{eventNode(10, 32)}},
			{ID: 1, Name: "A", Events: []provider.EventNode{eventNode(10, 32)}},
		},
		"NL": {
			{ID: 2, Name: "B", Events: []provider.EventNode{eventNode(20, 32)}},
		},
	}}
	h := New(stub, newMemStore(ultimate()), DefaultMinEntrants)

	events, err := h.FetchEvents(context.Background(), "smash-ultimate", time.Time{}, time.Time{}, []string{"BE", "NL"})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, errDuplicatePage)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].RemoteTournamentID)
}

func TestFetchEvents_FailedBatchDoesNotAbortRun(t *testing.T) {
	stub := &stubProvider{
		tournaments: map[string][]provider.Tournament{
			"NL": {{ID: 2, Name: "B", Events: []provider.EventNode{eventNode(20, 32)}}},
		},
		listErr: map[string]error{"BE": client.ErrProtocol},
	}
	store := newMemStore(ultimate())
	h := New(stub, store, DefaultMinEntrants)

	events, err := h.FetchEvents(context.Background(), "smash-ultimate", time.Time{}, time.Time{}, []string{"BE", "NL"})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, client.ErrProtocol)
	assert.Len(t, events, 1, "events of the other batches are returned")
	assert.Len(t, store.events, 1, "and committed")
}

func TestFetchEvents_AllBatchesFailed(t *testing.T) {
	stub := &stubProvider{listErr: map[string]error{"": client.ErrProtocol}}
	store := newMemStore(ultimate())
	h := New(stub, store, DefaultMinEntrants)

	events, err := h.FetchEvents(context.Background(), "smash-ultimate", time.Time{}, time.Time{}, nil)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, events)
	assert.Empty(t, store.events)
}

func TestFetchEvents_UnknownGame(t *testing.T) {
	h := New(&stubProvider{}, newMemStore(ultimate()), DefaultMinEntrants)

	_, err := h.FetchEvents(context.Background(), "smash-64", time.Time{}, time.Time{}, nil)
	assert.ErrorIs(t, err, ErrUnknownGame)
}

func singlesEvent(store *memStore) *models.Event {
	e := &models.Event{ID: 50, RemoteEventID: 777, GameID: 1, Name: "Cup | Singles", Type: models.EventTypeSingles}
	store.events = append(store.events, e)
	return e
}

func TestPopulateEvent(t *testing.T) {
	store := newMemStore(ultimate())
	event := singlesEvent(store)

	preview := newSet(0, 50, slot(1, 2, "a", 1, true), slot(2, 0, "b", 2, true))
	stub := &stubProvider{brackets: map[int64]*provider.Bracket{
		777: {
			Phases: phases("ROUND_ROBIN", "DOUBLE_ELIMINATION"),
			Sets: []provider.Set{
				newSet(103, 300, slot(2, 1, "Alpha", 1, true), slot(1, 3, "Beta", 2, true)),
				newSet(101, 100, slot(1, 2, "Alpha", 1, true), slot(2, 0, "Guest", 0, false)),
				newSet(102, 200, slot(1, 2, "Beta", 2, true), slot(2, -1, "Guest", 0, false)),
				preview,
				newSet(104, 400, slot(1, 2, "Guest", 0, false), slot(2, 1, "Alpha", 1, true)),
			},
		},
	}}
	h := New(stub, store, DefaultMinEntrants)

	matches, err := h.PopulateEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, []int64{101, 103, 104}, []int64{matches[0].RemoteID, matches[1].RemoteID, matches[2].RemoteID})
	assert.Less(t, matches[0].Order, matches[1].Order)
	assert.Less(t, matches[1].Order, matches[2].Order)

	byName := make(map[string]*models.Competitor)
	for _, c := range store.competitors {
		byName[c.Name] = c
	}
	require.Len(t, byName, 3)

	upset := matches[1]
	assert.Equal(t, byName["Beta"].ID, upset.WinnerID)
	assert.Equal(t, 3, upset.WinnerScore)
	assert.Equal(t, byName["Alpha"].ID, upset.LoserID)
	assert.Equal(t, 1, upset.LoserScore)
	assert.True(t, upset.IsFullyVerified(byName["Beta"], byName["Alpha"]))

	// The guest appears twice and resolves to one anonymous competitor
	assert.Equal(t, matches[0].LoserID, matches[2].WinnerID)
	assert.True(t, byName["Guest"].IsAnonymous())
	assert.False(t, matches[2].IsFullyVerified(byName["Guest"], byName["Alpha"]))

	assert.Equal(t, models.EventFormatElimination, event.Format)
	assert.Equal(t, 1, store.commits)
}

func TestPopulateEvent_SkipsMalformedSets(t *testing.T) {
	store := newMemStore(ultimate())
	event := singlesEvent(store)

	team := slot(1, 2, "Duo", 5, true)
	team.Entrant.Participants = append(team.Entrant.Participants, provider.Participant{GamerTag: "Partner"})
	stub := &stubProvider{brackets: map[int64]*provider.Bracket{
		777: {
			Phases: phases("MATCHMAKING"),
			Sets: []provider.Set{
				newSet(1, 10, slot(1, 2, "Solo", 6, true)),
				newSet(2, 20, team, slot(2, 0, "Solo", 6, true)),
				newSet(3, 30, slot(2, 1, "A", 7, true), slot(2, 1, "B", 8, true)),
				newSet(4, 40, slot(0, 2, "A", 7, true), slot(0, 1, "B", 8, true)),
			},
		},
	}}
	h := New(stub, store, DefaultMinEntrants)

	matches, err := h.PopulateEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(4), matches[0].RemoteID)
	assert.Equal(t, models.EventFormatLadder, event.Format)
}

func TestPopulateEvent_Preconditions(t *testing.T) {
	t.Run("not singles", func(t *testing.T) {
		store := newMemStore(ultimate())
		event := singlesEvent(store)
		event.Type = models.EventTypeDoubles
		h := New(&stubProvider{}, store, DefaultMinEntrants)

		matches, err := h.PopulateEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Nil(t, matches)
	})

	t.Run("already populated", func(t *testing.T) {
		store := newMemStore(ultimate())
		event := singlesEvent(store)
		store.matches = append(store.matches, &models.Match{ID: 1, RemoteID: 9, EventID: event.ID})
		h := New(&stubProvider{}, store, DefaultMinEntrants)

		matches, err := h.PopulateEvent(context.Background(), event)
		require.NoError(t, err)
		assert.Nil(t, matches)
		assert.Equal(t, 0, store.commits)
	})
}

func TestPopulateEvent_StoreFailureCommitsNothing(t *testing.T) {
	store := newMemStore(ultimate())
	event := singlesEvent(store)
	store.failCreateMatch = true
	stub := &stubProvider{brackets: map[int64]*provider.Bracket{
		777: {
			Phases: phases("SINGLE_ELIMINATION"),
			Sets:   []provider.Set{newSet(1, 10, slot(1, 2, "A", 1, true), slot(2, 0, "B", 2, true))},
		},
	}}
	h := New(stub, store, DefaultMinEntrants)

	_, err := h.PopulateEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInjected))
	assert.Empty(t, store.competitors)
	assert.Equal(t, 0, store.commits)
	assert.Equal(t, models.EventFormatUnknown, event.Format)
}

func TestPopulateEvent_SkipsStoredSets(t *testing.T) {
	store := newMemStore(ultimate())
	event := singlesEvent(store)
	// Set 5 was stored under another event
	store.matches = append(store.matches, &models.Match{ID: 1, RemoteID: 5, EventID: 99})
	stub := &stubProvider{brackets: map[int64]*provider.Bracket{
		777: {
			Phases: phases("SINGLE_ELIMINATION"),
			Sets: []provider.Set{
				newSet(5, 10, slot(1, 2, "A", 1, true), slot(2, 0, "B", 2, true)),
				newSet(6, 20, slot(1, 2, "A", 1, true), slot(2, 1, "B", 2, true)),
			},
		},
	}}
	h := New(stub, store, DefaultMinEntrants)

	matches, err := h.PopulateEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(6), matches[0].RemoteID)
	assert.Len(t, store.matches, 2)
}

func TestPopulateEvent_RepeatedSetAcrossPhases(t *testing.T) {
	store := newMemStore(ultimate())
	event := singlesEvent(store)
	set := newSet(5, 10, slot(1, 2, "A", 1, true), slot(2, 0, "B", 2, true))
	stub := &stubProvider{brackets: map[int64]*provider.Bracket{
		777: {
			Phases: phases("ROUND_ROBIN", "DOUBLE_ELIMINATION"),
			Sets:   []provider.Set{set, set},
		},
	}}
	h := New(stub, store, DefaultMinEntrants)

	matches, err := h.PopulateEvent(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(5), matches[0].RemoteID)
	assert.Len(t, store.matches, 1)
	assert.Len(t, store.competitors, 2)
}
