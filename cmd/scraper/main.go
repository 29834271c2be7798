// Command scraper is the ranking-scraper CLI.
//
// Usage:
//
//	scraper db migrate
//	scraper db seed-games
//	scraper fetch --game smash-ultimate --countries BE,NL --from 2021-01-01
//	scraper populate --game smash-ultimate --since 2021-01-01
//	scraper populate --event 42
//	scraper verified --event 42
//	scraper verify --event 42 --state ignored
//	scraper rate --game smash-ultimate --end 2021-03-01
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/client"
	"github.com/odysseycaravels/ranking-scraper/internal/config"
	"github.com/odysseycaravels/ranking-scraper/internal/glicko"
	"github.com/odysseycaravels/ranking-scraper/internal/harvest"
	"github.com/odysseycaravels/ranking-scraper/internal/models"
	"github.com/odysseycaravels/ranking-scraper/internal/provider/smashgg"
	"github.com/odysseycaravels/ranking-scraper/internal/ranking"
	"github.com/odysseycaravels/ranking-scraper/internal/repository"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dateFormats = []string{"2006-01-02", "20060102"}

func main() {
	var verbosity struct {
		debug, info, quiet bool
	}

	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Harvest tournament results and compute ratings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Errors and warnings only, unless asked otherwise
			level := zerolog.WarnLevel
			switch {
			case verbosity.debug:
				level = zerolog.DebugLevel
			case verbosity.info:
				level = zerolog.InfoLevel
			case verbosity.quiet:
				level = zerolog.ErrorLevel
			}
			setupLogger(level)
		},
	}
	root.PersistentFlags().BoolVar(&verbosity.debug, "debug", false, "Include all debugging messages")
	root.PersistentFlags().BoolVar(&verbosity.info, "info", false, "Include informational messages")
	root.PersistentFlags().BoolVar(&verbosity.quiet, "ignore-warnings", false, "Ignore warning messages")

	root.AddCommand(dbCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(populateCmd())
	root.AddCommand(verifiedCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(rateCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogger(level zerolog.Level) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
	zerolog.SetGlobalLevel(level)
}

// run loads configuration, connects to the database and runs fn.
// Interrupts cancel the context.
func run(fn func(ctx context.Context, cfg *config.Config, db *repository.Database) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	return fn(ctx, cfg, db)
}

func newHarvester(cfg *config.Config, db *repository.Database) *harvest.Harvester {
	c := client.NewClient(client.Config{
		Endpoint:          cfg.SmashggAPIURL,
		Token:             cfg.SmashggAPIToken,
		Timeout:           cfg.SmashggTimeout,
		RequestsPerMinute: cfg.SmashggRequestsPerMinute,
		Retry: client.RetryPolicy{
			MaxRetries:  cfg.SmashggMaxRetries,
			InitialWait: cfg.SmashggInitialWait,
			MaxWait:     cfg.SmashggMaxWait,
		},
	})
	p := smashgg.New(c, cfg.SmashggTournamentsPerPage, cfg.SmashggSetsPerPage)
	return harvest.New(p, db, cfg.MinEntrants)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or YYYYMMDD", s)
}

// optionalDate parses s, or returns the zero time when s is empty
func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseDate(s)
}

func splitCountries(s string) []string {
	var countries []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			countries = append(countries, c)
		}
	}
	sort.Strings(countries)
	return countries
}

// --------------------------------------------------------------------------
// db command
// --------------------------------------------------------------------------

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and seed games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				if err := db.Migrate(ctx); err != nil {
					return err
				}
				return seedGames(ctx, cfg, db)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed-games",
		Short: "Create or update games from GAME_IDS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(seedGames)
		},
	})
	return cmd
}

func seedGames(ctx context.Context, cfg *config.Config, db *repository.Database) error {
	ids, err := cfg.GameRemoteIDs()
	if err != nil {
		return err
	}
	created, updated, err := db.Games.Seed(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("games: %d created, %d updated\n", created, updated)
	return nil
}

// --------------------------------------------------------------------------
// fetch command
// --------------------------------------------------------------------------

func fetchCmd() *cobra.Command {
	var game, countries, from, to string
	var populate bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Store new completed events of a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromTime, err := optionalDate(from)
			if err != nil {
				return err
			}
			toTime, err := optionalDate(to)
			if err != nil {
				return err
			}

			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				h := newHarvester(cfg, db)
				// An incomplete fetch still stored the events of the other countries
				events, fetchErr := h.FetchEvents(ctx, strings.ToLower(game), fromTime, toTime, splitCountries(countries))
				if fetchErr != nil && !errors.Is(fetchErr, harvest.ErrIncomplete) {
					return fetchErr
				}
				fmt.Printf("%d new events\n", len(events))
				for _, e := range events {
					fmt.Printf("  %6d  %s  %-8s  %4d entrants  %s\n",
						e.ID, e.EndDate.Format("2006-01-02"), e.Type, e.NumEntrants, e.Name)
				}
				if populate {
					if err := populateAll(ctx, h, events); err != nil {
						return errors.Join(fetchErr, err)
					}
				}
				return fetchErr
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "smash-ultimate", "Game code, e.g. smash-ultimate")
	cmd.Flags().StringVar(&countries, "countries", "", `Comma-separated country codes, e.g. "BE,NL,FR"`)
	cmd.Flags().StringVar(&from, "from", "", "Start date, inclusive")
	cmd.Flags().StringVar(&to, "to", "", "End date, exclusive (default now)")
	cmd.Flags().BoolVar(&populate, "populate", false, "Also retrieve the matches of the new events")
	return cmd
}

// --------------------------------------------------------------------------
// populate command
// --------------------------------------------------------------------------

func populateCmd() *cobra.Command {
	var game, since string
	var eventID int
	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Retrieve matches of one event, or of every unpopulated event of a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime, err := optionalDate(since)
			if err != nil {
				return err
			}

			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				h := newHarvester(cfg, db)
				if eventID > 0 {
					event, err := db.Events.GetByID(ctx, eventID)
					if err != nil {
						return err
					}
					if event == nil {
						return fmt.Errorf("event %d not found", eventID)
					}
					return populateAll(ctx, h, []*models.Event{event})
				}

				events, err := db.UnpopulatedEvents(ctx, strings.ToLower(game), sinceTime)
				if err != nil {
					return err
				}
				return populateAll(ctx, h, events)
			})
		},
	}
	cmd.Flags().IntVar(&eventID, "event", 0, "Event id")
	cmd.Flags().StringVar(&game, "game", "smash-ultimate", "Game code, used without --event")
	cmd.Flags().StringVar(&since, "since", "", "Only events that ended on or after this date")
	return cmd
}

func populateAll(ctx context.Context, h *harvest.Harvester, events []*models.Event) error {
	failed := 0
	for _, e := range events {
		matches, err := h.PopulateEvent(ctx, e)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.Error().Err(err).Int("event", e.ID).Msg("Failed to populate event")
			continue
		}
		fmt.Printf("  %6d  %4d matches  %s (%s)\n", e.ID, len(matches), e.Name, e.Format)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d events failed", failed, len(events))
	}
	return nil
}

// --------------------------------------------------------------------------
// verified command
// --------------------------------------------------------------------------

func verifiedCmd() *cobra.Command {
	var eventID int
	cmd := &cobra.Command{
		Use:   "verified",
		Short: "List the fully verified matches of an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				matches, err := db.Matches.VerifiedByEvent(ctx, eventID)
				if err != nil {
					return err
				}

				ids := make([]int, 0, 2*len(matches))
				for _, m := range matches {
					ids = append(ids, m.WinnerID, m.LoserID)
				}
				competitors, err := db.Competitors.GetByIDs(ctx, ids)
				if err != nil {
					return err
				}

				for _, m := range matches {
					fmt.Printf("  %4d  %s %d - %d %s\n", m.Order,
						competitorName(competitors, m.WinnerID), m.WinnerScore,
						m.LoserScore, competitorName(competitors, m.LoserID))
				}
				fmt.Printf("%d verified matches\n", len(matches))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&eventID, "event", 0, "Event id")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// competitorName returns the name of competitor id, or "#<id>" when it was not loaded
func competitorName(competitors map[int]*models.Competitor, id int) string {
	if c, ok := competitors[id]; ok && c != nil {
		return c.Name
	}
	return fmt.Sprintf("#%d", id)
}

// --------------------------------------------------------------------------
// verify command
// --------------------------------------------------------------------------

func verifyCmd() *cobra.Command {
	var eventID int
	var state string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Set the verification state of an event",
		Long: "Set the verification state of an event. States: unverified, verified-incomplete,\n" +
			"verified-manual, verified-complete, ignored. Ignored events are left out of ratings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := models.ParseEventState(state)
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				if err := db.Events.UpdateState(ctx, eventID, s); err != nil {
					return err
				}
				fmt.Printf("event %d: %s\n", eventID, s)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&eventID, "event", 0, "Event id")
	cmd.Flags().StringVar(&state, "state", models.EventStateVerifiedComplete.String(), "Verification state")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// --------------------------------------------------------------------------
// rate command
// --------------------------------------------------------------------------

func rateCmd() *cobra.Command {
	var game, name, start, end string
	var top int
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Compute the next rating period of a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := optionalDate(start)
			if err != nil {
				return err
			}
			endTime, err := parseDate(end)
			if err != nil {
				return err
			}

			return run(func(ctx context.Context, cfg *config.Config, db *repository.Database) error {
				g, err := db.Games.GetByCode(ctx, strings.ToLower(game))
				if err != nil {
					return err
				}
				if g == nil {
					return fmt.Errorf("%w: %q", harvest.ErrUnknownGame, game)
				}

				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer logger.Sync()

				params := glicko.DefaultParams()
				params.C = cfg.GlickoC
				runner := ranking.NewRunner(db, params, cfg.GlickoActiveMatches, logger)
				period, err := runner.Run(ctx, ranking.Request{GameID: g.ID, Name: name, Start: startTime, End: endTime})
				if err != nil {
					return err
				}
				return printTop(ctx, db, period.ID, top)
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "smash-ultimate", "Game code")
	cmd.Flags().StringVar(&name, "name", "", "Period name (default derived from dates)")
	cmd.Flags().StringVar(&start, "start", "", "Start date (default end of the previous period)")
	cmd.Flags().StringVar(&end, "end", "", "End date, exclusive")
	cmd.Flags().IntVar(&top, "top", 20, "Number of top ratings to print")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func printTop(ctx context.Context, db *repository.Database, periodID, limit int) error {
	ratings, err := db.Ratings.TopRatings(ctx, periodID, limit)
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

	for i, r := range ratings {
		rating := glicko.Rating{R: r.Rating, RD: r.Deviation}
		lo, hi := rating.Interval95()
		fmt.Printf("%3d. %-24s %7.1f  ±%5.1f  [%6.1f, %6.1f]\n",
			i+1, competitorName(competitors, r.CompetitorID), rating.R, rating.RD, lo, hi)
	}
	return nil
}
