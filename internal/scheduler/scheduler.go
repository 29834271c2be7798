package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/harvest"
	"github.com/odysseycaravels/ranking-scraper/internal/metrics"
	"github.com/odysseycaravels/ranking-scraper/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Harvester is the part of harvest.Harvester the scheduler drives
type Harvester interface {
	FetchEvents(ctx context.Context, gameCode string, from, to time.Time, countries []string) ([]*models.Event, error)
	PopulateEvent(ctx context.Context, event *models.Event) ([]*models.Match, error)
}

// Backlog lists stored events that still need their matches
type Backlog interface {
	UnpopulatedEvents(ctx context.Context, gameCode string, since time.Time) ([]*models.Event, error)
}

// State coordinates harvest runs; cache.RedisCache implements it
type State interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error)
	Watermark(ctx context.Context, gameCode string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, gameCode string, t time.Time) error
}

// Config holds scheduling settings
type Config struct {
	Cron      string
	Games     []string
	Countries []string
	Lookback  time.Duration // First window, and how far back unpopulated events are retried
	LockTTL   time.Duration
}

// Scheduler runs incremental harvests on a cron schedule.
// Games are harvested one after another; the remote rate limit is per account.
type Scheduler struct {
	cfg       Config
	harvester Harvester
	backlog   Backlog
	state     State
	cron      *cron.Cron
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance. A nil state keeps
// watermarks in memory and skips locking.
func NewScheduler(cfg Config, h Harvester, backlog Backlog, state State) *Scheduler {
	if state == nil {
		state = newMemoryState()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	return &Scheduler{
		cfg:       cfg,
		harvester: h,
		backlog:   backlog,
		state:     state,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:       time.Now,
	}
}

// Start schedules the harvest job
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.Cron, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled harvest failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule harvest: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.Cron).
		Strs("games", s.cfg.Games).
		Msg("Harvest scheduled")

	return nil
}

// Stop stops the scheduler and waits for a running harvest to finish
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

// RunOnce harvests every configured game. A failing game does not stop the others;
// the first error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, code := range s.cfg.Games {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.harvestGame(ctx, code); err != nil {
			metrics.RecordError("scheduler", "harvest")
			log.Error().Err(err).Str("game", code).Msg("Harvest failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Scheduler) harvestGame(ctx context.Context, code string) error {
	start := time.Now()

	release, ok, err := s.state.AcquireLock(ctx, "harvest:"+code, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Str("game", code).Msg("Another harvest is running, skipping")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("game", code).Msg("Failed to release harvest lock")
		}
	}()

	to := s.now().UTC()
	from, ok, err := s.state.Watermark(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		from = to.Add(-s.cfg.Lookback)
	}

	log.Info().
		Str("game", code).
		Time("from", from).
		Time("to", to).
		Msg("Harvesting events")

	// Events of an incomplete retrieval are stored, but its window is fetched again next run
	events, fetchErr := s.harvester.FetchEvents(ctx, code, from, to, s.cfg.Countries)
	switch {
	case errors.Is(fetchErr, harvest.ErrIncomplete):
		log.Warn().Err(fetchErr).Str("game", code).Time("watermark", from).Msg("Incomplete retrieval, keeping watermark")
		fetchErr = fmt.Errorf("failed to fetch events of %s: %w", code, fetchErr)
	case fetchErr != nil:
		metrics.RecordSync("harvest", "error", time.Since(start).Seconds())
		return fmt.Errorf("failed to fetch events of %s: %w", code, fetchErr)
	default:
		if err := s.state.SetWatermark(ctx, code, to); err != nil {
			return err
		}
	}

	pending, err := s.backlog.UnpopulatedEvents(ctx, code, to.Add(-s.cfg.Lookback))
	if err != nil {
		return fmt.Errorf("failed to list unpopulated events of %s: %w", code, err)
	}

	populated, failed := 0, 0
	for _, event := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.harvester.PopulateEvent(ctx, event); err != nil {
			failed++
			metrics.RecordError("scheduler", "populate")
			log.Error().Err(err).Int("event", event.ID).Str("name", event.Name).Msg("Failed to populate event")
			continue
		}
		populated++
	}

	status := "success"
	if failed > 0 || fetchErr != nil {
		status = "partial"
	}
	metrics.RecordSync("harvest", status, time.Since(start).Seconds())
	log.Info().
		Str("game", code).
		Int("new_events", len(events)).
		Int("populated", populated).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Harvest complete")

	return fetchErr
}

// memoryState is a process-local State used when Redis is unavailable
type memoryState struct {
	mu         sync.Mutex
	locks      map[string]bool
	watermarks map[string]time.Time
}

func newMemoryState() *memoryState {
	return &memoryState{
		locks:      make(map[string]bool),
		watermarks: make(map[string]time.Time),
	}
}

func (m *memoryState) AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] {
		return nil, false, nil
	}
	m.locks[name] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, name)
		return nil
	}, true, nil
}

func (m *memoryState) Watermark(ctx context.Context, gameCode string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.watermarks[gameCode]
	return t, ok, nil
}

func (m *memoryState) SetWatermark(ctx context.Context, gameCode string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[gameCode] = t
	return nil
}
