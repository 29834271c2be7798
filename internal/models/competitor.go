package models

import (
	"database/sql"
	"time"
)

// Competitor is a participant in one or more events.
//
// A competitor without a remote id is anonymous: it was entered without a
// verified account and is only unique within the harvesting run that created it.
type Competitor struct {
	ID        int            `db:"id"`
	RemoteID  sql.NullInt64  `db:"sgg_id"`
	Name      string         `db:"name"`
	Country   sql.NullString `db:"country"`
	CreatedAt time.Time      `db:"created_on"`
}

// IsAnonymous reports whether the competitor has no external identity
func (c *Competitor) IsAnonymous() bool {
	return !c.RemoteID.Valid
}
