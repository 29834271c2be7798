// Package provider defines the capability interface tournament-result
// sources implement, and the provider-neutral raw records they return.
//
// The harvester only depends on this package; adding a source means adding a
// Provider implementation, never touching dedup or classification.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Provider is a remote source of completed tournament results
type Provider interface {
	// Name identifies the provider in logs
	Name() string

	// ListEvents returns every tournament matching the query, across all pages
	ListEvents(ctx context.Context, q EventQuery) ([]Tournament, error)

	// ListMatches returns the phases and all sets of one event
	ListMatches(ctx context.Context, eventID int64) (*Bracket, error)
}

// EventQuery selects tournaments for one game in a time window
type EventQuery struct {
	GameID  int64
	Country string // Empty means no country filter
	From    time.Time
	To      time.Time
}

// RemoteID is an identifier assigned by the provider.
// GraphQL ID values arrive as JSON numbers or strings; a non-numeric value
// (e.g. a preview set) decodes to 0, which is never a valid id.
type RemoteID int64

func (id *RemoteID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*id = 0
			return nil
		}
		*id = RemoteID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*id = RemoteID(v)
	return nil
}

// Valid reports whether the id is a usable numeric id
func (id RemoteID) Valid() bool {
	return id > 0
}

// Tournament is a raw tournament record with its events
type Tournament struct {
	ID          RemoteID    `json:"id"`
	Name        string      `json:"name"`
	CountryCode *string     `json:"countryCode"`
	EndAt       int64       `json:"endAt"` // Unix seconds
	Events      []EventNode `json:"events"`
}

// EventNode is a raw event inside a tournament
type EventNode struct {
	ID          RemoteID   `json:"id"`
	Name        string     `json:"name"`
	IsOnline    bool       `json:"isOnline"`
	NumEntrants *int       `json:"numEntrants"`
	State       string     `json:"state"`
	Type        int        `json:"type"`
	Videogame   *Videogame `json:"videogame"`
}

// Videogame references the game an event is played in
type Videogame struct {
	ID RemoteID `json:"id"`
}

// Bracket is the complete match data of one event
type Bracket struct {
	Phases []Phase
	Sets   []Set
}

// Phase is a bracket stage within an event (pools, top 8, ...)
type Phase struct {
	ID          RemoteID `json:"id"`
	Name        string   `json:"name"`
	NumSeeds    int      `json:"numSeeds"`
	BracketType string   `json:"bracketType"`
}

// Set is one raw match
type Set struct {
	ID        RemoteID `json:"id"`
	StartedAt *int64   `json:"startedAt"` // Unix seconds
	Slots     []Slot   `json:"slots"`
}

// Slot is one side of a set
type Slot struct {
	Standing *Standing `json:"standing"`
	Entrant  *Entrant  `json:"entrant"`
}

// Standing is a slot's result
type Standing struct {
	Placement *int           `json:"placement"`
	Stats     *StandingStats `json:"stats"`
}

type StandingStats struct {
	Score *Score `json:"score"`
}

type Score struct {
	Value *float64 `json:"value"`
}

// Entrant is whoever filled a slot
type Entrant struct {
	Participants []Participant `json:"participants"`
}

// Participant is a person behind an entrant
type Participant struct {
	GamerTag string `json:"gamerTag"`
	Verified bool   `json:"verified"`
	User     *User  `json:"user"`
}

// User is the participant's account, absent for anonymous entries
type User struct {
	ID       RemoteID  `json:"id"`
	Location *Location `json:"location"`
}

type Location struct {
	Country *string `json:"country"`
}

// ScoreValue returns the slot's score and whether one was recorded
func (s *Slot) ScoreValue() (float64, bool) {
	if s.Standing == nil || s.Standing.Stats == nil || s.Standing.Stats.Score == nil ||
		s.Standing.Stats.Score.Value == nil {
		return 0, false
	}
	return *s.Standing.Stats.Score.Value, true
}

// Placement returns the slot's placement, 0 when unknown
func (s *Slot) Placement() int {
	if s.Standing == nil || s.Standing.Placement == nil {
		return 0
	}
	return *s.Standing.Placement
}
