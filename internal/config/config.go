package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// smash.gg API
	SmashggAPIToken           string        `envconfig:"SMASHGG_API_TOKEN" required:"true"`
	SmashggAPIURL             string        `envconfig:"SMASHGG_API_URL" default:"https://api.smash.gg/gql/alpha"`
	SmashggTimeout            time.Duration `envconfig:"SMASHGG_TIMEOUT" default:"30s"`
	SmashggRequestsPerMinute  int           `envconfig:"SMASHGG_REQUESTS_PER_MINUTE" default:"80"`
	SmashggMaxRetries         int           `envconfig:"SMASHGG_MAX_RETRIES" default:"5"`
	SmashggInitialWait        time.Duration `envconfig:"SMASHGG_INITIAL_WAIT" default:"1.5s"`
	SmashggMaxWait            time.Duration `envconfig:"SMASHGG_MAX_WAIT" default:"60s"`
	SmashggTournamentsPerPage int           `envconfig:"SMASHGG_TOURNAMENTS_PER_PAGE" default:"25"`
	SmashggSetsPerPage        int           `envconfig:"SMASHGG_SETS_PER_PAGE" default:"40"`

	// Game code -> smash.gg videogame id, e.g. "smash-ultimate:1386,smash-melee:1"
	GameIDs string `envconfig:"GAME_IDS" default:"smash-ultimate:1386,smash-melee:1"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"ranking"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"ranking"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Harvesting
	MinEntrants      int           `envconfig:"MIN_ENTRANTS" default:"10"`
	EnableScheduler  bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	HarvestCron      string        `envconfig:"HARVEST_CRON" default:"0 3 * * *"`
	HarvestGames     []string      `envconfig:"HARVEST_GAMES" default:"smash-ultimate"`
	HarvestCountries []string      `envconfig:"HARVEST_COUNTRIES" default:""`
	HarvestLookback  time.Duration `envconfig:"HARVEST_LOOKBACK" default:"720h"`

	// Rating
	GlickoC             float64 `envconfig:"GLICKO_C" default:"100"`
	GlickoActiveMatches int     `envconfig:"GLICKO_ACTIVE_MATCHES" default:"10"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Monitoring
	MetricsPort int `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SmashggAPIToken == "" {
		return fmt.Errorf("SMASHGG_API_TOKEN is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if _, err := c.GameRemoteIDs(); err != nil {
		return err
	}

	if c.SmashggMaxRetries < 0 {
		return fmt.Errorf("SMASHGG_MAX_RETRIES must not be negative")
	}

	if c.SmashggInitialWait <= 0 || c.SmashggMaxWait < c.SmashggInitialWait {
		return fmt.Errorf("SMASHGG_INITIAL_WAIT must be positive and not above SMASHGG_MAX_WAIT")
	}

	if c.MinEntrants < 1 {
		return fmt.Errorf("MIN_ENTRANTS must be at least 1")
	}

	if c.GlickoC < 0 {
		return fmt.Errorf("GLICKO_C must not be negative")
	}

	if c.GlickoActiveMatches < 1 {
		return fmt.Errorf("GLICKO_ACTIVE_MATCHES must be at least 1")
	}

	return nil
}

// GameRemoteIDs parses GAME_IDS into a code -> remote id mapping
func (c *Config) GameRemoteIDs() (map[string]int64, error) {
	ids := make(map[string]int64)
	for _, pair := range strings.Split(c.GameIDs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		code, id, ok := strings.Cut(pair, ":")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("GAME_IDS entry %q must be code:id", pair)
		}
		if code != strings.ToLower(code) {
			return nil, fmt.Errorf("GAME_IDS code %q must be lowercase", code)
		}

		remoteID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || remoteID <= 0 {
			return nil, fmt.Errorf("GAME_IDS entry %q has an invalid id", pair)
		}
		ids[code] = remoteID
	}
	return ids, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
