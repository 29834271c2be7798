package smashgg

import (
	"github.com/odysseycaravels/ranking-scraper/internal/client"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"
)

const tournamentsPagingQuery = `
query TournamentsPaging($query: TournamentQuery!) {
  tournaments(query: $query) {
    pageInfo {
      totalPages
      perPage
    }
  }
}`

const tournamentsQuery = `
query TournamentsData($query: TournamentQuery!) {
  tournaments(query: $query) {
    nodes {
      id
      name
      countryCode
      endAt
      events {
        id
        name
        isOnline
        numEntrants
        state
        type
        videogame {
          id
        }
      }
    }
  }
}`

const eventPhasesQuery = `
query GetEventPhases($eventId: ID!) {
  event(id: $eventId) {
    phases {
      id
      name
      numSeeds
      bracketType
    }
  }
}`

// RECENT sorts sets in the order they were started
const phaseSetsPagingQuery = `
query GetPhaseSetsPaging($phaseId: ID!, $perPage: Int!) {
  phase(id: $phaseId) {
    id
    name
    sets(perPage: $perPage, sortType: RECENT) {
      pageInfo {
        totalPages
      }
    }
  }
}`

const phaseSetsQuery = `
query GetPhaseSets($phaseId: ID!, $page: Int!, $perPage: Int!) {
  phase(id: $phaseId) {
    sets(page: $page, perPage: $perPage, sortType: RECENT) {
      nodes {
        id
        startedAt
        slots {
          standing {
            placement
            stats {
              score {
                value
              }
            }
          }
          entrant {
            participants {
              gamerTag
              verified
              user {
                id
                location {
                  country
                }
              }
            }
          }
        }
      }
    }
  }
}`

// tournamentFilter builds the TournamentQuery variable. page 0 omits paging
// and is used for the page-count summary.
func tournamentFilter(q provider.EventQuery, page, perPage int) map[string]any {
	filter := map[string]any{
		"videogameIds": []int64{q.GameID},
		"upcoming":     false,
	}
	if q.Country != "" {
		filter["countryCode"] = q.Country
	}
	if !q.From.IsZero() {
		filter["afterDate"] = q.From.Unix()
	}
	if !q.To.IsZero() {
		filter["beforeDate"] = q.To.Unix()
	}

	query := map[string]any{
		"perPage": perPage,
		"sortBy":  "id asc",
		"filter":  filter,
	}
	if page > 0 {
		query["page"] = page
	}
	return query
}

func tournamentsPagingRequest(q provider.EventQuery, perPage int) client.Request {
	return client.Request{
		Name:      "TournamentsPaging",
		Query:     tournamentsPagingQuery,
		Variables: map[string]any{"query": tournamentFilter(q, 0, perPage)},
	}
}

func tournamentsRequest(q provider.EventQuery, page, perPage int) client.Request {
	return client.Request{
		Name:      "TournamentsData",
		Query:     tournamentsQuery,
		Variables: map[string]any{"query": tournamentFilter(q, page, perPage)},
	}
}

func eventPhasesRequest(eventID int64) client.Request {
	return client.Request{
		Name:      "GetEventPhases",
		Query:     eventPhasesQuery,
		Variables: map[string]any{"eventId": eventID},
	}
}

func phaseSetsPagingRequest(phaseID int64, perPage int) client.Request {
	return client.Request{
		Name:      "GetPhaseSetsPaging",
		Query:     phaseSetsPagingQuery,
		Variables: map[string]any{"phaseId": phaseID, "perPage": perPage},
	}
}

func phaseSetsRequest(phaseID int64, page, perPage int) client.Request {
	return client.Request{
		Name:      "GetPhaseSets",
		Query:     phaseSetsQuery,
		Variables: map[string]any{"phaseId": phaseID, "page": page, "perPage": perPage},
	}
}
