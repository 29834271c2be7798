package harvest

import (
	"context"
	"errors"

	"github.com/odysseycaravels/ranking-scraper/internal/models"
)

// ErrUnknownGame is returned when a game code has no seeded Game row
var ErrUnknownGame = errors.New("unknown game")

// ErrIncomplete is returned by FetchEvents, together with the events it did store,
// when at least one filter batch could not be retrieved
var ErrIncomplete = errors.New("incomplete retrieval")

// errDuplicatePage marks a filter batch whose pages overlapped
var errDuplicatePage = errors.New("duplicate tournament ids across pages")

// Store opens one session per top-level harvesting call
type Store interface {
	Begin(ctx context.Context) (Session, error)
}

// CompetitorStore is the part of a session the identity resolver needs
type CompetitorStore interface {
	// CompetitorByRemoteID returns nil, nil when no competitor carries the id
	CompetitorByRemoteID(ctx context.Context, remoteID int64) (*models.Competitor, error)
	CreateCompetitor(ctx context.Context, c *models.Competitor) error
}

// Session is a single store transaction. Writes become visible only after Commit;
// Rollback after Commit is a no-op.
type Session interface {
	CompetitorStore

	// GameByCode returns nil, nil when the code is not seeded
	GameByCode(ctx context.Context, code string) (*models.Game, error)

	// ExistingEventKeys returns the subset of keys already stored
	ExistingEventKeys(ctx context.Context, keys []models.EventKey) (map[models.EventKey]bool, error)
	CreateEvent(ctx context.Context, e *models.Event) error
	EventHasMatches(ctx context.Context, eventID int) (bool, error)
	UpdateEventFormat(ctx context.Context, eventID int, format models.EventFormat) error

	// ExistingMatchIDs returns the subset of remote match ids already stored
	ExistingMatchIDs(ctx context.Context, remoteIDs []int64) (map[int64]bool, error)
	CreateMatch(ctx context.Context, m *models.Match) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
