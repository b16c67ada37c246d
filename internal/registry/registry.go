// Package registry records which voice channel each bot identity occupies per guild.
// Every identity writes only its own entries; the routing core reads all of them.
package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
)

type Entry struct {
	Identity  int       `json:"identity"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Registry interface {
	routing.SessionSource
	Publish(ctx context.Context, e Entry) error
	Remove(ctx context.Context, identity int, guildID string) error
	Close() error
}

// RunKeepalive republishes the entries returned by snapshot every interval until ctx ends.
// Backends with expiring records rely on it to drop sessions of crashed processes.
func RunKeepalive(ctx context.Context, reg Registry, interval time.Duration, snapshot func() []Entry, log zerolog.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, e := range snapshot() {
				if err := reg.Publish(ctx, e); err != nil {
					log.Warn().Err(err).Str("guildID", e.GuildID).Int("identity", e.Identity).Msg("session keepalive failed")
				}
			}
		}
	}
}
