// Command ratings computes Glicko rating periods from stored matches.
//
// It runs once and exits. Environment:
//
//	RATING_GAME           game code (default smash-ultimate)
//	RATING_PERIOD_END     end date YYYY-MM-DD, exclusive (default today)
//	RATING_PERIOD_START   start date (default end of the previous period)
//	RATING_PERIOD_NAME    period name (default derived from dates)
//	RATING_PERIOD_LENGTH  when set, e.g. "720h", periods of this length are chained
//	                      from the previous period up to RATING_PERIOD_END
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/config"
	"github.com/odysseycaravels/ranking-scraper/internal/glicko"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/ranking"
	"github.com/odysseycaravels/ranking-scraper/internal/repository"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	game := strings.ToLower(os.Getenv("RATING_GAME"))
	if game == "" {
		game = "smash-ultimate"
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if s := os.Getenv("RATING_PERIOD_END"); s != "" {
		if end, err = time.Parse(dateLayout, s); err != nil {
			logger.Fatal("Invalid RATING_PERIOD_END", zap.String("value", s), zap.Error(err))
		}
	}
	var start time.Time
	if s := os.Getenv("RATING_PERIOD_START"); s != "" {
		if start, err = time.Parse(dateLayout, s); err != nil {
			logger.Fatal("Invalid RATING_PERIOD_START", zap.String("value", s), zap.Error(err))
		}
	}
	var length time.Duration
	if s := os.Getenv("RATING_PERIOD_LENGTH"); s != "" {
		if length, err = time.ParseDuration(s); err != nil || length <= 0 {
			logger.Fatal("Invalid RATING_PERIOD_LENGTH", zap.String("value", s))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	g, err := db.Games.GetByCode(ctx, game)
	if err != nil {
		logger.Fatal("Failed to load game", zap.Error(err))
	}
	if g == nil {
		logger.Fatal("Unknown game", zap.String("game", game))
	}

	params := glicko.DefaultParams()
	params.C = cfg.GlickoC
	runner := ranking.NewRunner(db, params, cfg.GlickoActiveMatches, logger)

	logger.Info("Starting rating run",
		zap.String("game", game),
		zap.Time("end", end),
		zap.Duration("period_length", length))

	var last *models.RatingPeriod
	if length > 0 {
		last, err = backfill(ctx, db, runner, g.ID, start, end, length, logger)
	} else {
		last, err = runner.Run(ctx, ranking.Request{
			GameID: g.ID,
			Name:   os.Getenv("RATING_PERIOD_NAME"),
			Start:  start,
			End:    end,
		})
	}
	if err != nil {
		logger.Fatal("Rating run failed", zap.Error(err))
	}
	if last == nil {
		logger.Info("No rating period created")
		return
	}

	if err := printTop(ctx, db, last, 25); err != nil {
		logger.Fatal("Failed to read ratings", zap.Error(err))
	}
}

// backfill creates consecutive periods of the given length until end is reached.
// The first period starts at start, or at the end of the latest stored period.
func backfill(ctx context.Context, db *repository.Database, runner *ranking.Runner, gameID int, start, end time.Time, length time.Duration, logger *zap.Logger) (*models.RatingPeriod, error) {
	if start.IsZero() {
		latest, err := db.Ratings.LatestPeriod(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, ranking.ErrNoStart
		}
		start = latest.EndDate
	}

	var last *models.RatingPeriod
	for start.Before(end) {
		stop := start.Add(length)
		if stop.After(end) {
			stop = end
		}
		period, err := runner.Run(ctx, ranking.Request{GameID: gameID, Start: start, End: stop})
		if err != nil {
			return last, err
		}
		logger.Info("Backfill period created",
			zap.Int("period_id", period.ID),
			zap.String("name", period.Name))
		last = period
		start = stop
	}
	return last, nil
}

func printTop(ctx context.Context, db *repository.Database, period *models.RatingPeriod, limit int) error {
	ratings, err := db.Ratings.TopRatings(ctx, period.ID, limit)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(ratings))
	for _, r := range ratings {
		ids = append(ids, r.CompetitorID)
	}
	competitors, err := db.Competitors.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", period.Name)
	for i, r := range ratings {
		name := "?"
		if c, ok := competitors[r.CompetitorID]; ok {
			name = c.Name
		}
		lo, _ := glicko.Rating{R: r.Rating, RD: r.Deviation}.Interval95()
		fmt.Printf("%3d. %-24s %7.1f  ±%5.1f  (conservative %6.1f)\n", i+1, name, r.Rating, r.Deviation, lo)
	}
	return nil
}
