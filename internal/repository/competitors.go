package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"github.com/jackc/pgx/v5"
)

// CompetitorRepository handles competitor database operations
type CompetitorRepository struct {
	db DBTX
}

// Create inserts a new competitor; anonymous competitors have a null sgg_id
func (r *CompetitorRepository) Create(ctx context.Context, c *models.Competitor) error {
	query := `
		INSERT INTO competitors (sgg_id, name, country)
		VALUES ($1, $2, $3)
		RETURNING id, created_on
	`

	if err := r.db.QueryRow(ctx, query, c.RemoteID, c.Name, c.Country).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("failed to create competitor: %w", err)
	}
	return nil
}

// GetByRemoteID returns the competitor with the given remote id, or nil, nil
func (r *CompetitorRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*models.Competitor, error) {
	query := `
		SELECT id, sgg_id, name, country, created_on
		FROM competitors
		WHERE sgg_id = $1
	`

	var c models.Competitor
	err := r.db.QueryRow(ctx, query, remoteID).Scan(&c.ID, &c.RemoteID, &c.Name, &c.Country, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get competitor: %w", err)
	}
	return &c, nil
}

// GetByIDs returns competitors keyed by id
func (r *CompetitorRepository) GetByIDs(ctx context.Context, ids []int) (map[int]*models.Competitor, error) {
	query := `
		SELECT id, sgg_id, name, country, created_on
		FROM competitors
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitors: %w", err)
	}
	defer rows.Close()

	competitors := make(map[int]*models.Competitor, len(ids))
	for rows.Next() {
		var c models.Competitor
		if err := rows.Scan(&c.ID, &c.RemoteID, &c.Name, &c.Country, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan competitor: %w", err)
		}
		competitors[c.ID] = &c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competitors: %w", err)
	}

	return competitors, nil
}
