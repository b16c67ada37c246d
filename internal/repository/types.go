package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

// Settings are per guild and shared by every identity of the pool.
type Settings struct {
	GuildID string
	// empty means the process default prefix
	Prefix                string
	PlaylistLimit         int
	SecondsWaitAfterEmpty int
	LeaveIfNoListeners    bool
	AutoAnnounceNext      bool
	DefaultVolume         int
	DefaultQueuePageSize  int
}

// Favorite is a named query saved for a guild.
type Favorite struct {
	ID      int64
	GuildID string
	Author  string
	Name    string
	Query   string
}
