package models

import "time"

// Match is one 1v1 result ("set") inside an event.
// A negative score denotes a disqualification; such matches are never stored.
type Match struct {
	ID             int       `db:"id"`
	RemoteID       int64     `db:"sgg_id"`
	EventID        int       `db:"event_id"`
	Order          int       `db:"match_order"`
	WinnerID       int       `db:"winning_player_id"`
	WinnerScore    int       `db:"winning_score"`
	WinnerVerified bool      `db:"winning_player_is_verified"`
	LoserID        int       `db:"losing_player_id"`
	LoserScore     int       `db:"losing_score"`
	LoserVerified  bool      `db:"losing_player_is_verified"`
	CreatedAt      time.Time `db:"created_on"`
}

// IsFullyVerified reports whether both participants are verified and non-anonymous.
// winner and loser must be the competitors referenced by the match.
func (m *Match) IsFullyVerified(winner, loser *Competitor) bool {
	return m.WinnerVerified && !winner.IsAnonymous() &&
		m.LoserVerified && !loser.IsAnonymous()
}
