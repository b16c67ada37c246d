package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	); err != nil {
		return nil, fmt.Errorf("insert settings: %w", err)
	}
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, prefix, playlist_limit, seconds_wait_after_empty, leave_if_no_listeners,
	       auto_announce_next_song, default_volume, default_queue_page_size
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var leave, announce int
	if err := row.Scan(
		&s.GuildID,
		&s.Prefix,
		&s.PlaylistLimit,
		&s.SecondsWaitAfterEmpty,
		&leave,
		&announce,
		&s.DefaultVolume,
		&s.DefaultQueuePageSize,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	s.LeaveIfNoListeners = leave != 0
	s.AutoAnnounceNext = announce != 0
	return &s, nil
}

// Settings returns the stored settings for guild, creating the defaults on first use.
func (r *Repo) Settings(ctx context.Context, guild string) (*Settings, error) {
	s, err := r.GetSettings(ctx, guild)
	if errors.Is(err, sql.ErrNoRows) {
		return r.UpsertSettings(ctx, guild)
	}
	return s, err
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  prefix=?,
		  playlist_limit=?,
		  seconds_wait_after_empty=?,
		  leave_if_no_listeners=?,
		  auto_announce_next_song=?,
		  default_volume=?,
		  default_queue_page_size=?
		WHERE guild_id=?`,
		s.Prefix, s.PlaylistLimit, s.SecondsWaitAfterEmpty, boolToInt(s.LeaveIfNoListeners),
		boolToInt(s.AutoAnnounceNext), s.DefaultVolume, s.DefaultQueuePageSize, s.GuildID,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
