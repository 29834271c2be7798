package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/cache"
	"github.com/odysseycaravels/ranking-scraper/internal/client"
	"github.com/odysseycaravels/ranking-scraper/internal/config"
	"github.com/odysseycaravels/ranking-scraper/internal/harvest"
	"github.com/odysseycaravels/ranking-scraper/internal/metrics"
	"github.com/odysseycaravels/ranking-scraper/internal/provider/smashgg"
	"github.com/odysseycaravels/ranking-scraper/internal/repository"
	"github.com/odysseycaravels/ranking-scraper/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Setup logger
	setupLogger(cfg)

	log.Info().Msg("Starting ranking harvest worker")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Strs("games", cfg.HarvestGames).
		Msg("Configuration loaded")

	// Create context that is cancelled on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize smash.gg client
	gql := client.NewClient(client.Config{
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
	provider := smashgg.New(gql, cfg.SmashggTournamentsPerPage, cfg.SmashggSetsPerPage)
	log.Info().Str("endpoint", cfg.SmashggAPIURL).Msg("smash.gg client initialized")

	// Initialize database connection
	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}
	if ids, err := cfg.GameRemoteIDs(); err != nil {
		log.Fatal().Err(err).Msg("Invalid GAME_IDS")
	} else if _, _, err := db.Games.Seed(ctx, ids); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed games")
	}
	log.Info().Msg("Database connection established")

	// Redis holds the harvest locks and watermarks. Without it both live in memory.
	var state scheduler.State
	var redisHealth pinger
	redisCache, err := cache.NewRedisCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     strconv.Itoa(cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing with in-memory harvest state")
	} else {
		defer redisCache.Close()
		state = redisCache
		redisHealth = redisCache
		log.Info().Msg("Redis cache connected")
	}

	harvester := harvest.New(provider, db, cfg.MinEntrants)
	sched := scheduler.NewScheduler(scheduler.Config{
		Cron:      cfg.HarvestCron,
		Games:     cfg.HarvestGames,
		Countries: cfg.HarvestCountries,
		Lookback:  cfg.HarvestLookback,
	}, harvester, db, state)

	g, gctx := errgroup.WithContext(ctx)

	// Metrics and health server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           newRouter(db, redisHealth),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info().Int("port", cfg.MetricsPort).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Update system uptime metric
	startTime := time.Now()
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-gctx.Done():
				return nil
			}
		}
	})

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(gctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	} else {
		// One pass and exit
		g.Go(func() error {
			defer stop()
			return sched.RunOnce(gctx)
		})
	}

	err = g.Wait()

	// Graceful shutdown
	if cfg.EnableScheduler {
		sched.Stop()
	}
	if err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// pinger is a dependency the health endpoint checks
type pinger interface {
	Health(ctx context.Context) error
}

// poolPinger also reports connection pool statistics
type poolPinger interface {
	pinger
	PoolStats() map[string]interface{}
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database,omitempty"`
	Redis    string                 `json:"redis,omitempty"`
	Pool     map[string]interface{} `json:"pool"`
}

// newRouter serves /metrics and /health. redis may be nil.
func newRouter(db poolPinger, redis pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Pool: db.PoolStats()}
		if err := db.Health(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Database = err.Error()
		}
		if redis != nil {
			if err := redis.Health(r.Context()); err != nil {
				resp.Status = "unhealthy"
				resp.Redis = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Warn().Err(err).Msg("Failed to write health response")
		}
	})
	return r
}
