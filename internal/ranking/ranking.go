// Package ranking computes rating periods from stored matches.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/glicko"
	"github.com/odysseycaravels/ranking-scraper/internal/metrics"
	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"go.uber.org/zap"
)

// DefaultActiveMatches is the number of matches in one period that makes a
// competitor fully active
const DefaultActiveMatches = 10

// ErrNoStart is returned when neither the request nor a previous period
// provides a start date
var ErrNoStart = errors.New("rating period has no start date")

// Store opens one session per period computation
type Store interface {
	BeginRating(ctx context.Context) (Session, error)
}

// Session is the store transaction a period is computed and saved in
type Session interface {
	// LatestPeriod returns nil, nil when the game has no periods yet
	LatestPeriod(ctx context.Context, gameID int) (*models.RatingPeriod, error)
	PeriodRatings(ctx context.Context, periodID int) ([]models.CompetitorRating, error)

	// OutcomesBetween returns the matches of the game's events that ended in
	// [start, end), ordered by event end date then match order
	OutcomesBetween(ctx context.Context, gameID int, start, end time.Time) ([]models.MatchOutcome, error)

	CreatePeriod(ctx context.Context, p *models.RatingPeriod) error
	CreateRatings(ctx context.Context, ratings []models.CompetitorRating) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Request selects the period to compute. A zero Start continues from the end
// of the game's latest period; an empty Name is derived from the dates.
type Request struct {
	GameID int
	Name   string
	Start  time.Time
	End    time.Time
}

// Runner computes rating periods
type Runner struct {
	store         Store
	params        glicko.Params
	activeMatches int
	logger        *zap.Logger
}

// NewRunner creates a period runner
func NewRunner(store Store, params glicko.Params, activeMatches int, logger *zap.Logger) *Runner {
	if activeMatches <= 0 {
		activeMatches = DefaultActiveMatches
	}
	return &Runner{
		store:         store,
		params:        params,
		activeMatches: activeMatches,
		logger:        logger,
	}
}

// Run computes the next rating period of a game and saves it with one rating
// per competitor. Nothing is saved when any step fails.
func (r *Runner) Run(ctx context.Context, req Request) (*models.RatingPeriod, error) {
	start := time.Now()

	session, err := r.store.BeginRating(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	defer session.Rollback(ctx)

	previous, err := session.LatestPeriod(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest period: %w", err)
	}

	period := &models.RatingPeriod{
		GameID:    req.GameID,
		Name:      req.Name,
		StartDate: req.Start,
		EndDate:   req.End,
	}
	prior := make(map[int]glicko.Rating)
	if previous != nil {
		period.PreviousID.Int64, period.PreviousID.Valid = int64(previous.ID), true
		if period.StartDate.IsZero() {
			period.StartDate = previous.EndDate
		}

		rows, err := session.PeriodRatings(ctx, previous.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ratings of period %d: %w", previous.ID, err)
		}
		for _, row := range rows {
			prior[row.CompetitorID] = glicko.Rating{R: row.Rating, RD: row.Deviation}
		}
	}
	if period.StartDate.IsZero() {
		return nil, ErrNoStart
	}
	if !period.EndDate.After(period.StartDate) {
		return nil, fmt.Errorf("%w: period end %s is not after start %s",
			glicko.ErrInvalidArgument, period.EndDate.Format(time.RFC3339), period.StartDate.Format(time.RFC3339))
	}
	if period.Name == "" {
		period.Name = fmt.Sprintf("%s - %s", period.StartDate.Format("2006-01-02"), period.EndDate.Format("2006-01-02"))
	}

	outcomes, err := session.OutcomesBetween(ctx, req.GameID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	matches := make([]glicko.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		matches = append(matches, glicko.Outcome{WinnerID: o.WinnerID, LoserID: o.LoserID})
	}

	decayed, err := glicko.Decay(r.params, prior, ActivityFactors(matches, r.activeMatches))
	if err != nil {
		return nil, fmt.Errorf("failed to decay ratings: %w", err)
	}
	updated, err := glicko.Update(r.params, matches, decayed)
	if err != nil {
		return nil, fmt.Errorf("failed to update ratings: %w", err)
	}

	if err := session.CreatePeriod(ctx, period); err != nil {
		return nil, fmt.Errorf("failed to create period: %w", err)
	}
	if err := session.CreateRatings(ctx, snapshotRows(period.ID, updated)); err != nil {
		return nil, fmt.Errorf("failed to store ratings: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		metrics.RecordSync("rating_period", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to commit period: %w", err)
	}

	metrics.RecordSync("rating_period", "success", time.Since(start).Seconds())
	r.logger.Info("Rating period computed",
		zap.Int("period_id", period.ID),
		zap.String("name", period.Name),
		zap.Int("matches", len(matches)),
		zap.Int("competitors", len(updated)),
		zap.Duration("duration", time.Since(start)))

	return period, nil
}

// ActivityFactors returns the inactivity factor of every competitor that
// played in the period: 1 - matches/activeMatches, floored at 0.
// Competitors without matches are left out and decay fully.
func ActivityFactors(matches []glicko.Outcome, activeMatches int) map[int]float64 {
	counts := make(map[int]int)
	for _, m := range matches {
		counts[m.WinnerID]++
		counts[m.LoserID]++
	}

	factors := make(map[int]float64, len(counts))
	for id, n := range counts {
		factors[id] = math.Max(0, 1-float64(n)/float64(activeMatches))
	}
	return factors
}

func snapshotRows(periodID int, ratings map[int]glicko.Rating) []models.CompetitorRating {
	rows := make([]models.CompetitorRating, 0, len(ratings))
	for id, rating := range ratings {
		rows = append(rows, models.CompetitorRating{
			PeriodID:     periodID,
			CompetitorID: id,
			Rating:       rating.R,
			Deviation:    rating.RD,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CompetitorID < rows[j].CompetitorID })
	return rows
}
