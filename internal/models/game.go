package models

import (
	"database/sql"
	"time"
)

// Game represents a trackable title (e.g. "smash-ultimate")
type Game struct {
	ID          int           `db:"id"`
	Code        string        `db:"code"`   // Unique, lowercase
	RemoteID    sql.NullInt64 `db:"sgg_id"` // smash.gg videogame id
	DisplayName string        `db:"display_name"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}
