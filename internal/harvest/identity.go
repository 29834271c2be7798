package harvest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odysseycaravels/ranking-scraper/internal/metrics"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider"

	"github.com/rs/zerolog"
)

// Resolver maps participants to competitors for one PopulateEvent call.
//
// Anonymous participants are matched by display name only within the resolver's
// lifetime; a new Resolver never sees anonymous competitors of an earlier run.
// Existing competitors are never renamed or relocated.
type Resolver struct {
	store     CompetitorStore
	logger    zerolog.Logger
	verified  map[int64]*models.Competitor
	anonymous map[string]*models.Competitor
}

// NewResolver creates a resolver with an empty anonymous scope
func NewResolver(store CompetitorStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		logger:    logger,
		verified:  make(map[int64]*models.Competitor),
		anonymous: make(map[string]*models.Competitor),
	}
}

// Resolve returns the competitor for a participant, creating it when needed
func (r *Resolver) Resolve(ctx context.Context, p *provider.Participant) (*models.Competitor, error) {
	if p.User == nil || !p.User.ID.Valid() {
		return r.resolveAnonymous(ctx, p)
	}

	remoteID := int64(p.User.ID)
	if c, ok := r.verified[remoteID]; ok {
		return c, nil
	}

	c, err := r.store.CompetitorByRemoteID(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up competitor %d: %w", remoteID, err)
	}
	if c == nil {
		c = &models.Competitor{
			RemoteID: sql.NullInt64{Int64: remoteID, Valid: true},
			Name:     p.GamerTag,
			Country:  participantCountry(p),
		}
		if err := r.store.CreateCompetitor(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to create competitor %d: %w", remoteID, err)
		}
		metrics.RecordCompetitorCreated("verified")
		r.logger.Debug().
			Int64("remote_id", remoteID).
			Str("name", c.Name).
			Msg("Created competitor")
	}

	r.verified[remoteID] = c
	return c, nil
}

func (r *Resolver) resolveAnonymous(ctx context.Context, p *provider.Participant) (*models.Competitor, error) {
	if c, ok := r.anonymous[p.GamerTag]; ok {
		return c, nil
	}

	c := &models.Competitor{
		Name:    p.GamerTag,
		Country: participantCountry(p),
	}
	if err := r.store.CreateCompetitor(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create anonymous competitor %q: %w", p.GamerTag, err)
	}
	metrics.RecordCompetitorCreated("anonymous")
	r.logger.Debug().Str("name", c.Name).Msg("Created anonymous competitor")

	r.anonymous[p.GamerTag] = c
	return c, nil
}

func participantCountry(p *provider.Participant) sql.NullString {
	if p.User == nil || p.User.Location == nil || p.User.Location.Country == nil ||
		*p.User.Location.Country == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p.User.Location.Country, Valid: true}
}
