package player

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

type LoadResult struct {
	Tracks   []Track
	Playlist *QueuedPlaylist
}

// Backend plays audio for the guilds of one identity.
type Backend interface {
	Load(ctx context.Context, identifier string) (LoadResult, error)
	Play(ctx context.Context, guildID string, t Track, volume int, from time.Duration) error
	SetPaused(ctx context.Context, guildID string, paused bool) error
	Seek(ctx context.Context, guildID string, pos time.Duration) error
	SetVolume(ctx context.Context, guildID string, volume int) error
	Stop(ctx context.Context, guildID string) error
	Position(guildID string) time.Duration
	Destroy(ctx context.Context, guildID string) error
}

// Voice moves the identity in and out of voice channels.
type Voice interface {
	Join(guildID, channelID string) error
	Leave(guildID string) error
}

type discordVoice struct {
	s *discordgo.Session
}

// NewDiscordVoice only sends the gateway voice state; the audio node does the connection.
func NewDiscordVoice(s *discordgo.Session) Voice {
	return &discordVoice{s: s}
}

func (v *discordVoice) Join(guildID, channelID string) error {
	return v.s.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (v *discordVoice) Leave(guildID string) error {
	return v.s.ChannelVoiceJoinManual(guildID, "", false, true)
}
