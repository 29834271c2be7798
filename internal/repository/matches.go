package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/models"
)

// MatchRepository handles match database operations
type MatchRepository struct {
	db DBTX
}

// Create inserts a new match
func (r *MatchRepository) Create(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (
			sgg_id, event_id, match_order,
			winning_player_id, winning_score, winning_player_is_verified,
			losing_player_id, losing_score, losing_player_is_verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_on
	`

	err := r.db.QueryRow(
		ctx, query,
		m.RemoteID, m.EventID, m.Order,
		m.WinnerID, m.WinnerScore, m.WinnerVerified,
		m.LoserID, m.LoserScore, m.LoserVerified,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// ExistingRemoteIDs returns which of the remote ids are already stored, in one query
func (r *MatchRepository) ExistingRemoteIDs(ctx context.Context, remoteIDs []int64) (map[int64]bool, error) {
	found := make(map[int64]bool)
	if len(remoteIDs) == 0 {
		return found, nil
	}

	rows, err := r.db.Query(ctx, `SELECT sgg_id FROM matches WHERE sgg_id = ANY($1)`, remoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		found[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match ids: %w", err)
	}

	return found, nil
}

// VerifiedByEvent returns the event's matches where both players are
// verified and non-anonymous, in play order
func (r *MatchRepository) VerifiedByEvent(ctx context.Context, eventID int) ([]*models.Match, error) {
	query := `
		SELECT m.id, m.sgg_id, m.event_id, m.match_order,
		       m.winning_player_id, m.winning_score, m.winning_player_is_verified,
		       m.losing_player_id, m.losing_score, m.losing_player_is_verified,
		       m.created_on
		FROM matches m
		JOIN competitors w ON w.id = m.winning_player_id
		JOIN competitors l ON l.id = m.losing_player_id
		WHERE m.event_id = $1
		  AND m.winning_player_is_verified AND w.sgg_id IS NOT NULL
		  AND m.losing_player_is_verified AND l.sgg_id IS NOT NULL
		ORDER BY m.match_order
	`

	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verified matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(
			&m.ID, &m.RemoteID, &m.EventID, &m.Order,
			&m.WinnerID, &m.WinnerScore, &m.WinnerVerified,
			&m.LoserID, &m.LoserScore, &m.LoserVerified,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return matches, nil
}

// OutcomesBetween returns the outcomes of the game's matches in events that
// ended in [start, end), ordered by event end date then match order
func (r *MatchRepository) OutcomesBetween(ctx context.Context, gameID int, start, end time.Time) ([]models.MatchOutcome, error) {
	query := `
		SELECT m.winning_player_id, m.losing_player_id
		FROM matches m
		JOIN events e ON e.id = m.event_id
		WHERE e.game_id = $1
		  AND e.end_date >= $2
		  AND e.end_date < $3
		  AND e.state_code <> $4
		ORDER BY e.end_date, e.id, m.match_order
	`

	rows, err := r.db.Query(ctx, query, gameID, start, end, models.EventStateIgnored)
	if err != nil {
		return nil, fmt.Errorf("failed to query match outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.MatchOutcome
	for rows.Next() {
		var o models.MatchOutcome
		if err := rows.Scan(&o.WinnerID, &o.LoserID); err != nil {
			return nil, fmt.Errorf("failed to scan match outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match outcomes: %w", err)
	}

	return outcomes, nil
}
