package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// GameRepository handles game database operations
type GameRepository struct {
	db DBTX
}

// GetByCode retrieves a game by its code. It returns nil, nil when the code is unknown.
func (r *GameRepository) GetByCode(ctx context.Context, code string) (*models.Game, error) {
	query := `
		SELECT id, code, sgg_id, display_name, created_at, updated_at
		FROM games
		WHERE code = $1
	`

	var game models.Game
	err := r.db.QueryRow(ctx, query, code).Scan(
		&game.ID, &game.Code, &game.RemoteID, &game.DisplayName, &game.CreatedAt, &game.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &game, nil
}

// List returns all games ordered by code
func (r *GameRepository) List(ctx context.Context) ([]*models.Game, error) {
	query := `
		SELECT id, code, sgg_id, display_name, created_at, updated_at
		FROM games
		ORDER BY code
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var game models.Game
		if err := rows.Scan(
			&game.ID, &game.Code, &game.RemoteID, &game.DisplayName, &game.CreatedAt, &game.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

// Seed makes the games table reflect a code -> remote id mapping.
// Missing codes are created with the code as display name; existing codes get
// their remote id updated when it changed. Returns the number of games created
// and updated.
func (r *GameRepository) Seed(ctx context.Context, remoteIDs map[string]int64) (created, updated int, err error) {
	codes := make([]string, 0, len(remoteIDs))
	for code := range remoteIDs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		remoteID := remoteIDs[code]
		game, err := r.GetByCode(ctx, code)
		if err != nil {
			return created, updated, err
		}

		if game == nil {
			query := `
				INSERT INTO games (code, sgg_id, display_name)
				VALUES ($1, $2, $1)
			`
			if _, err := r.db.Exec(ctx, query, code, remoteID); err != nil {
				return created, updated, fmt.Errorf("failed to create game %q: %w", code, err)
			}
			log.Info().Str("code", code).Int64("sgg_id", remoteID).Msg("Game created")
			created++
			continue
		}

		if game.RemoteID.Valid && game.RemoteID.Int64 == remoteID {
			continue
		}
		query := `
			UPDATE games
			SET sgg_id = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, err := r.db.Exec(ctx, query, remoteID, game.ID); err != nil {
			return created, updated, fmt.Errorf("failed to update game %q: %w", code, err)
		}
		log.Info().
			Str("code", code).
			Int64("old_sgg_id", game.RemoteID.Int64).
			Int64("sgg_id", remoteID).
			Msg("Game remote id updated")
		updated++
	}

	return created, updated, nil
}
