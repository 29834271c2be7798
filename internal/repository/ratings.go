package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// RatingRepository handles rating period database operations
type RatingRepository struct {
	db DBTX
}

// LatestPeriod returns the game's most recent period, or nil, nil
func (r *RatingRepository) LatestPeriod(ctx context.Context, gameID int) (*models.RatingPeriod, error) {
	query := `
		SELECT id, game_id, name, start_date, end_date, previous_period_id, created_on
		FROM rating_periods
		WHERE game_id = $1
		ORDER BY end_date DESC, id DESC
		LIMIT 1
	`

	var p models.RatingPeriod
	err := r.db.QueryRow(ctx, query, gameID).Scan(
		&p.ID, &p.GameID, &p.Name, &p.StartDate, &p.EndDate, &p.PreviousID, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest rating period: %w", err)
	}
	return &p, nil
}

// CreatePeriod inserts a new rating period
func (r *RatingRepository) CreatePeriod(ctx context.Context, p *models.RatingPeriod) error {
	query := `
		INSERT INTO rating_periods (game_id, name, start_date, end_date, previous_period_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_on
	`

	err := r.db.QueryRow(ctx, query, p.GameID, p.Name, p.StartDate, p.EndDate, p.PreviousID).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rating period: %w", err)
	}
	return nil
}

// PeriodRatings returns every rating of a period
func (r *RatingRepository) PeriodRatings(ctx context.Context, periodID int) ([]models.CompetitorRating, error) {
	return r.queryRatings(ctx, `
		SELECT rating_period_id, competitor_id, rating, deviation
		FROM competitor_ratings
		WHERE rating_period_id = $1
		ORDER BY competitor_id
	`, periodID)
}

// TopRatings returns a period's highest ratings
func (r *RatingRepository) TopRatings(ctx context.Context, periodID, limit int) ([]models.CompetitorRating, error) {
	return r.queryRatings(ctx, `
		SELECT rating_period_id, competitor_id, rating, deviation
		FROM competitor_ratings
		WHERE rating_period_id = $1
		ORDER BY rating DESC, competitor_id
		LIMIT $2
	`, periodID, limit)
}

func (r *RatingRepository) queryRatings(ctx context.Context, query string, args ...any) ([]models.CompetitorRating, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []models.CompetitorRating
	for rows.Next() {
		var cr models.CompetitorRating
		if err := rows.Scan(&cr.PeriodID, &cr.CompetitorID, &cr.Rating, &cr.Deviation); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, cr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ratings: %w", err)
	}

	return ratings, nil
}

// CreateRatings bulk-inserts a period's ratings with COPY
func (r *RatingRepository) CreateRatings(ctx context.Context, ratings []models.CompetitorRating) error {
	if len(ratings) == 0 {
		return nil
	}

	n, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"competitor_ratings"},
		[]string{"rating_period_id", "competitor_id", "rating", "deviation"},
		pgx.CopyFromSlice(len(ratings), func(i int) ([]any, error) {
			cr := ratings[i]
			return []any{cr.PeriodID, cr.CompetitorID, cr.Rating, cr.Deviation}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy ratings: %w", err)
	}

	log.Debug().Int64("rows", n).Msg("Ratings stored")
	return nil
}
