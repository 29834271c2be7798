package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/harvest"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/ranking"

	"github.com/jackc/pgx/v5"
)

// Session is one transaction with repositories bound to it.
// It implements harvest.Session and ranking.Session.
type Session struct {
	tx pgx.Tx

	Games       *GameRepository
	Events      *EventRepository
	Competitors *CompetitorRepository
	Matches     *MatchRepository
	Ratings     *RatingRepository
}

var (
	_ harvest.Session = (*Session)(nil)
	_ ranking.Session = (*Session)(nil)
)

// BeginSession starts a transaction
func (db *Database) BeginSession(ctx context.Context) (*Session, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{
		tx:          tx,
		Games:       &GameRepository{db: tx},
		Events:      &EventRepository{db: tx},
		Competitors: &CompetitorRepository{db: tx},
		Matches:     &MatchRepository{db: tx},
		Ratings:     &RatingRepository{db: tx},
	}, nil
}

// Begin implements harvest.Store
func (db *Database) Begin(ctx context.Context) (harvest.Session, error) {
	s, err := db.BeginSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// BeginRating implements ranking.Store
func (db *Database) BeginRating(ctx context.Context) (ranking.Session, error) {
	s, err := db.BeginSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

// Rollback aborts the transaction; it is a no-op after Commit
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (s *Session) GameByCode(ctx context.Context, code string) (*models.Game, error) {
	return s.Games.GetByCode(ctx, code)
}

func (s *Session) ExistingEventKeys(ctx context.Context, keys []models.EventKey) (map[models.EventKey]bool, error) {
	return s.Events.ExistingKeys(ctx, keys)
}

func (s *Session) CreateEvent(ctx context.Context, e *models.Event) error {
	return s.Events.Create(ctx, e)
}

func (s *Session) EventHasMatches(ctx context.Context, eventID int) (bool, error) {
	return s.Events.HasMatches(ctx, eventID)
}

func (s *Session) UpdateEventFormat(ctx context.Context, eventID int, format models.EventFormat) error {
	return s.Events.UpdateFormat(ctx, eventID, format)
}

func (s *Session) ExistingMatchIDs(ctx context.Context, remoteIDs []int64) (map[int64]bool, error) {
	return s.Matches.ExistingRemoteIDs(ctx, remoteIDs)
}

func (s *Session) CreateMatch(ctx context.Context, m *models.Match) error {
	return s.Matches.Create(ctx, m)
}

func (s *Session) CompetitorByRemoteID(ctx context.Context, remoteID int64) (*models.Competitor, error) {
	return s.Competitors.GetByRemoteID(ctx, remoteID)
}

func (s *Session) CreateCompetitor(ctx context.Context, c *models.Competitor) error {
	return s.Competitors.Create(ctx, c)
}

func (s *Session) LatestPeriod(ctx context.Context, gameID int) (*models.RatingPeriod, error) {
	return s.Ratings.LatestPeriod(ctx, gameID)
}

func (s *Session) PeriodRatings(ctx context.Context, periodID int) ([]models.CompetitorRating, error) {
	return s.Ratings.PeriodRatings(ctx, periodID)
}

func (s *Session) OutcomesBetween(ctx context.Context, gameID int, start, end time.Time) ([]models.MatchOutcome, error) {
	return s.Matches.OutcomesBetween(ctx, gameID, start, end)
}

func (s *Session) CreatePeriod(ctx context.Context, p *models.RatingPeriod) error {
	return s.Ratings.CreatePeriod(ctx, p)
}

func (s *Session) CreateRatings(ctx context.Context, ratings []models.CompetitorRating) error {
	return s.Ratings.CreateRatings(ctx, ratings)
}
