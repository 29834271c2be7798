package models

import (
	"database/sql"
	"time"
)

// RatingPeriod is a rating snapshot at a point in time.
// Periods of one game form a chain through PreviousID.
type RatingPeriod struct {
	ID         int           `db:"id"`
	GameID     int           `db:"game_id"`
	Name       string        `db:"name"`
	StartDate  time.Time     `db:"start_date"`
	EndDate    time.Time     `db:"end_date"`
	PreviousID sql.NullInt64 `db:"previous_period_id"`
	CreatedAt  time.Time     `db:"created_on"`
}

// CompetitorRating is a competitor's rating within one period
type CompetitorRating struct {
	PeriodID     int     `db:"rating_period_id"`
	CompetitorID int     `db:"competitor_id"`
	Rating       float64 `db:"rating"`
	Deviation    float64 `db:"deviation"`
}

// MatchOutcome is the minimal (winner, loser) view of a match used for rating
type MatchOutcome struct {
	WinnerID int `db:"winning_player_id"`
	LoserID  int `db:"losing_player_id"`
}
