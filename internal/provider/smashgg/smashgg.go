// Package smashgg implements provider.Provider on top of the smash.gg
// (start.gg) GraphQL API.
package smashgg

import (
	"context"
	"fmt"

	"github.com/odysseycaravels/ranking-scraper/internal/client"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"

	"github.com/rs/zerolog/log"
)

// DefaultEndpoint is the public GraphQL endpoint
const DefaultEndpoint = "https://api.smash.gg/gql/alpha"

// EventTypeSingles and EventTypeTeams are smash.gg's event type codes
const (
	EventTypeSingles = 1
	EventTypeTeams   = 5
)

// Executor submits GraphQL requests; *client.Client satisfies it
type Executor interface {
	Execute(ctx context.Context, req client.Request, out any) error
}

// Provider retrieves tournaments and sets from smash.gg
type Provider struct {
	exec               Executor
	tournamentsPerPage int
	setsPerPage        int
}

// New creates a smash.gg provider
func New(exec Executor, tournamentsPerPage, setsPerPage int) *Provider {
	if tournamentsPerPage <= 0 {
		tournamentsPerPage = 25
	}
	if setsPerPage <= 0 {
		setsPerPage = 40
	}
	return &Provider{
		exec:               exec,
		tournamentsPerPage: tournamentsPerPage,
		setsPerPage:        setsPerPage,
	}
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "smashgg" }

type pageInfo struct {
	TotalPages int `json:"totalPages"`
	PerPage    int `json:"perPage"`
}

// ListEvents requests the page-count summary, then every page in ascending order
func (p *Provider) ListEvents(ctx context.Context, q provider.EventQuery) ([]provider.Tournament, error) {
	var paging struct {
		Tournaments *struct {
			PageInfo *pageInfo `json:"pageInfo"`
		} `json:"tournaments"`
	}
	if err := p.exec.Execute(ctx, tournamentsPagingRequest(q, p.tournamentsPerPage), &paging); err != nil {
		return nil, fmt.Errorf("failed to fetch tournament paging: %w", err)
	}
	if paging.Tournaments == nil || paging.Tournaments.PageInfo == nil {
		return nil, fmt.Errorf("tournament paging: %w: no pageInfo", client.ErrProtocol)
	}

	totalPages := paging.Tournaments.PageInfo.TotalPages
	var tournaments []provider.Tournament
	for page := 1; page <= totalPages; page++ {
		log.Info().
			Str("country", countryLabel(q.Country)).
			Int("page", page).
			Int("total_pages", totalPages).
			Msg("Retrieving tournament page")

		var data struct {
			Tournaments *struct {
				Nodes []provider.Tournament `json:"nodes"`
			} `json:"tournaments"`
		}
		if err := p.exec.Execute(ctx, tournamentsRequest(q, page, p.tournamentsPerPage), &data); err != nil {
			return nil, fmt.Errorf("failed to fetch tournament page %d: %w", page, err)
		}
		if data.Tournaments == nil {
			return nil, fmt.Errorf("tournament page %d: %w: no tournaments", page, client.ErrProtocol)
		}
		tournaments = append(tournaments, data.Tournaments.Nodes...)
	}

	return tournaments, nil
}

// ListMatches fetches an event's phases and then every set page of every phase
func (p *Provider) ListMatches(ctx context.Context, eventID int64) (*provider.Bracket, error) {
	var phases struct {
		Event *struct {
			Phases []provider.Phase `json:"phases"`
		} `json:"event"`
	}
	if err := p.exec.Execute(ctx, eventPhasesRequest(eventID), &phases); err != nil {
		return nil, fmt.Errorf("failed to fetch phases of event %d: %w", eventID, err)
	}
	if phases.Event == nil {
		return nil, fmt.Errorf("event %d: %w: no event", eventID, client.ErrProtocol)
	}

	bracket := &provider.Bracket{Phases: phases.Event.Phases}
	for _, phase := range bracket.Phases {
		sets, err := p.phaseSets(ctx, int64(phase.ID))
		if err != nil {
			return nil, err
		}
		bracket.Sets = append(bracket.Sets, sets...)
	}
	return bracket, nil
}

func (p *Provider) phaseSets(ctx context.Context, phaseID int64) ([]provider.Set, error) {
	var paging struct {
		Phase *struct {
			Sets *struct {
				PageInfo *pageInfo `json:"pageInfo"`
			} `json:"sets"`
		} `json:"phase"`
	}
	if err := p.exec.Execute(ctx, phaseSetsPagingRequest(phaseID, p.setsPerPage), &paging); err != nil {
		return nil, fmt.Errorf("failed to fetch set paging of phase %d: %w", phaseID, err)
	}
	if paging.Phase == nil || paging.Phase.Sets == nil || paging.Phase.Sets.PageInfo == nil {
		return nil, fmt.Errorf("phase %d: %w: no set pageInfo", phaseID, client.ErrProtocol)
	}

	totalPages := paging.Phase.Sets.PageInfo.TotalPages
	var sets []provider.Set
	for page := 1; page <= totalPages; page++ {
		log.Debug().
			Int64("phase_id", phaseID).
			Int("page", page).
			Int("total_pages", totalPages).
			Msg("Retrieving sets page")

		var data struct {
			Phase *struct {
				Sets *struct {
					Nodes []provider.Set `json:"nodes"`
				} `json:"sets"`
			} `json:"phase"`
		}
		if err := p.exec.Execute(ctx, phaseSetsRequest(phaseID, page, p.setsPerPage), &data); err != nil {
			return nil, fmt.Errorf("failed to fetch sets page %d of phase %d: %w", page, phaseID, err)
		}
		if data.Phase == nil || data.Phase.Sets == nil {
			return nil, fmt.Errorf("phase %d page %d: %w: no sets", phaseID, page, client.ErrProtocol)
		}
		sets = append(sets, data.Phase.Sets.Nodes...)
	}
	return sets, nil
}

func countryLabel(country string) string {
	if country == "" {
		return "all countries"
	}
	return country
}
