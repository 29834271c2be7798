package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"github.com/jackc/pgx/v5"
)

// EventRepository handles event database operations
type EventRepository struct {
	db DBTX
}

const eventColumns = `
	id, sgg_tournament_id, sgg_event_id, game_id, name, note, country,
	end_date, num_entrants, type_code, format_code, state_code, created_on
`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.RemoteTournamentID, &e.RemoteEventID, &e.GameID, &e.Name, &e.Note, &e.Country,
		&e.EndDate, &e.NumEntrants, &e.Type, &e.Format, &e.State, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			sgg_tournament_id, sgg_event_id, game_id, name, note, country,
			end_date, num_entrants, type_code, format_code, state_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_on
	`

	err := r.db.QueryRow(
		ctx, query,
		e.RemoteTournamentID, e.RemoteEventID, e.GameID, e.Name, e.Note, e.Country,
		e.EndDate, e.NumEntrants, e.Type, e.Format, e.State,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its database ID. It returns nil, nil when not found.
func (r *EventRepository) GetByID(ctx context.Context, id int) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	e, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ExistingKeys returns which of the remote keys are already stored, in one query
func (r *EventRepository) ExistingKeys(ctx context.Context, keys []models.EventKey) (map[models.EventKey]bool, error) {
	found := make(map[models.EventKey]bool)
	if len(keys) == 0 {
		return found, nil
	}

	tournamentIDs := make([]int64, len(keys))
	eventIDs := make([]int64, len(keys))
	for i, k := range keys {
		tournamentIDs[i] = k.TournamentID
		eventIDs[i] = k.EventID
	}

	query := `
		SELECT e.sgg_tournament_id, e.sgg_event_id
		FROM events e
		JOIN unnest($1::bigint[], $2::bigint[]) AS k(tournament_id, event_id)
		  ON e.sgg_tournament_id = k.tournament_id AND e.sgg_event_id = k.event_id
	`

	rows, err := r.db.Query(ctx, query, tournamentIDs, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k models.EventKey
		if err := rows.Scan(&k.TournamentID, &k.EventID); err != nil {
			return nil, fmt.Errorf("failed to scan event key: %w", err)
		}
		found[k] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event keys: %w", err)
	}

	return found, nil
}

// HasMatches reports whether any match references the event
func (r *EventRepository) HasMatches(ctx context.Context, eventID int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check matches of event %d: %w", eventID, err)
	}
	return exists, nil
}

// UpdateFormat sets the bracket format of an event
func (r *EventRepository) UpdateFormat(ctx context.Context, eventID int, format models.EventFormat) error {
	result, err := r.db.Exec(ctx, `UPDATE events SET format_code = $1 WHERE id = $2`, format, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event format: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: id=%d", eventID)
	}

	return nil
}

// UpdateState sets the verification state of an event
func (r *EventRepository) UpdateState(ctx context.Context, eventID int, state models.EventState) error {
	result, err := r.db.Exec(ctx, `UPDATE events SET state_code = $1 WHERE id = $2`, state, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: id=%d", eventID)
	}

	return nil
}

// ListUnpopulated returns the game's singles events that ended at or after
// since and have no matches yet, oldest first
func (r *EventRepository) ListUnpopulated(ctx context.Context, gameID int, since time.Time) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events e
		WHERE e.game_id = $1
		  AND e.end_date >= $2
		  AND e.type_code = $3
		  AND e.state_code <> $4
		  AND NOT EXISTS (SELECT 1 FROM matches m WHERE m.event_id = e.id)
		ORDER BY e.end_date, e.id
	`

	rows, err := r.db.Query(ctx, query, gameID, since, models.EventTypeSingles, models.EventStateIgnored)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpopulated events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// UnpopulatedEvents lists the unpopulated singles events of a game by code
func (db *Database) UnpopulatedEvents(ctx context.Context, gameCode string, since time.Time) ([]*models.Event, error) {
	game, err := db.Games.GetByCode(ctx, gameCode)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, fmt.Errorf("game not found: code=%s", gameCode)
	}
	return db.Events.ListUnpopulated(ctx, game.ID, since)
}
