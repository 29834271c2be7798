package models

import (
	"database/sql"
	"fmt"
	"time"
)

// EventType is the structural type of an event
type EventType int

const (
	EventTypeUnknown EventType = 0
	EventTypeSingles EventType = 1
	EventTypeDoubles EventType = 2
)

func (t EventType) String() string {
	switch t {
	case EventTypeSingles:
		return "singles"
	case EventTypeDoubles:
		return "doubles"
	default:
		return "unknown"
	}
}

// EventFormat is the bracket format of an event
type EventFormat int

const (
	EventFormatUnknown     EventFormat = 0
	EventFormatElimination EventFormat = 1 // Single/double elimination, round robin, swiss
	EventFormatLadder      EventFormat = 2
)

func (f EventFormat) String() string {
	switch f {
	case EventFormatElimination:
		return "elimination"
	case EventFormatLadder:
		return "ladder"
	default:
		return "unknown"
	}
}

// EventState is the verification state of an event
type EventState int

const (
	EventStateUnverified         EventState = 0
	EventStateVerifiedIncomplete EventState = -1 // Some match or competitor data is missing
	EventStateVerifiedManual     EventState = 10
	EventStateVerifiedComplete   EventState = 100
	EventStateIgnored            EventState = -99
)

func (s EventState) String() string {
	switch s {
	case EventStateUnverified:
		return "unverified"
	case EventStateVerifiedIncomplete:
		return "verified-incomplete"
	case EventStateVerifiedManual:
		return "verified-manual"
	case EventStateVerifiedComplete:
		return "verified-complete"
	case EventStateIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}

// ParseEventState returns the state named by s, as printed by EventState.String
func ParseEventState(s string) (EventState, error) {
	for _, state := range []EventState{
		EventStateUnverified,
		EventStateVerifiedIncomplete,
		EventStateVerifiedManual,
		EventStateVerifiedComplete,
		EventStateIgnored,
	} {
		if state.String() == s {
			return state, nil
		}
	}
	return EventStateUnverified, fmt.Errorf("unknown event state %q", s)
}

// EventKey identifies an event on the remote provider.
// The pair is globally unique.
type EventKey struct {
	TournamentID int64
	EventID      int64
}

// Event is one completed tournament bracket for a game
type Event struct {
	ID                 int            `db:"id"`
	RemoteTournamentID int64          `db:"sgg_tournament_id"`
	RemoteEventID      int64          `db:"sgg_event_id"`
	GameID             int            `db:"game_id"`
	Name               string         `db:"name"`
	Note               sql.NullString `db:"note"`
	Country            sql.NullString `db:"country"`
	EndDate            time.Time      `db:"end_date"`
	NumEntrants        int            `db:"num_entrants"`
	Type               EventType      `db:"type_code"`
	Format             EventFormat    `db:"format_code"`
	State              EventState     `db:"state_code"`
	CreatedAt          time.Time      `db:"created_on"`
}

// Key returns the remote identity of the event
func (e *Event) Key() EventKey {
	return EventKey{TournamentID: e.RemoteTournamentID, EventID: e.RemoteEventID}
}
