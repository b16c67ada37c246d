package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"
)

type NodeConfig struct {
	Name     string
	Address  string
	Password string
	Secure   bool
}

// TrackEndFunc receives the guild whose track ended and whether the queue may advance.
type TrackEndFunc func(guildID string, mayStartNext bool)

// Lavalink is the Backend for one identity, talking to a Lavalink node.
type Lavalink struct {
	client disgolink.Client
	log    zerolog.Logger
}

func NewLavalink(ctx context.Context, botUserID string, node NodeConfig, onEnd TrackEndFunc, log zerolog.Logger) (*Lavalink, error) {
	uid, err := snowflake.Parse(botUserID)
	if err != nil {
		return nil, fmt.Errorf("bot user id: %w", err)
	}
	l := &Lavalink{log: log}
	l.client = disgolink.New(uid,
		disgolink.WithListenerFunc(func(p disgolink.Player, e lavalink.TrackEndEvent) {
			if onEnd != nil {
				onEnd(p.GuildID().String(), e.Reason.MayStartNext())
			}
		}),
		disgolink.WithListenerFunc(func(p disgolink.Player, e lavalink.TrackExceptionEvent) {
			l.log.Warn().Str("guildID", p.GuildID().String()).Str("track", e.Track.Info.Title).
				Str("err", e.Exception.Message).Msg("track exception")
		}),
	)

	if _, err := l.client.AddNode(ctx, disgolink.NodeConfig{
		Name:     node.Name,
		Address:  node.Address,
		Password: node.Password,
		Secure:   node.Secure,
	}); err != nil {
		l.client.Close()
		return nil, fmt.Errorf("add lavalink node %s: %w", node.Address, err)
	}
	return l, nil
}

func (l *Lavalink) Close() { l.client.Close() }

func (l *Lavalink) OnVoiceStateUpdate(ctx context.Context, guildID, channelID, sessionID string) {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return
	}
	var cid *snowflake.ID
	if channelID != "" {
		if id, err := snowflake.Parse(channelID); err == nil {
			cid = &id
		}
	}
	l.client.OnVoiceStateUpdate(ctx, gid, cid, sessionID)
}

func (l *Lavalink) OnVoiceServerUpdate(ctx context.Context, guildID, token, endpoint string) {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return
	}
	l.client.OnVoiceServerUpdate(ctx, gid, token, endpoint)
}

func (l *Lavalink) Load(ctx context.Context, identifier string) (LoadResult, error) {
	node := l.client.BestNode()
	if node == nil {
		return LoadResult{}, ErrNoBackend
	}

	var (
		res     LoadResult
		loadErr error
	)
	node.LoadTracksHandler(ctx, identifier, disgolink.NewResultHandler(
		func(t lavalink.Track) {
			res.Tracks = []Track{fromLavalink(t)}
		},
		func(pl lavalink.Playlist) {
			res.Playlist = &QueuedPlaylist{Title: pl.Info.Name, Source: identifier}
			for _, t := range pl.Tracks {
				tr := fromLavalink(t)
				tr.Playlist = res.Playlist
				res.Tracks = append(res.Tracks, tr)
			}
		},
		func(ts []lavalink.Track) {
			if len(ts) > 0 {
				res.Tracks = []Track{fromLavalink(ts[0])}
			}
		},
		func() {},
		func(err error) {
			loadErr = err
		},
	))
	if loadErr != nil {
		return LoadResult{}, fmt.Errorf("load %q: %w", identifier, loadErr)
	}
	if len(res.Tracks) == 0 {
		return LoadResult{}, ErrNoMatches
	}
	return res, nil
}

func fromLavalink(t lavalink.Track) Track {
	out := Track{
		Title:    t.Info.Title,
		Author:   t.Info.Author,
		Length:   toDuration(t.Info.Length),
		IsStream: t.Info.IsStream,

		Identifier: t.Info.Identifier,
		SourceName: t.Info.SourceName,
		lt:         t,
	}
	if t.Info.URI != nil {
		out.URI = *t.Info.URI
	}
	if t.Info.ArtworkURL != nil {
		out.ArtworkURL = *t.Info.ArtworkURL
	}
	return out
}

func toDuration(d lavalink.Duration) time.Duration {
	return time.Duration(d) * time.Millisecond
}

func fromDuration(d time.Duration) lavalink.Duration {
	return lavalink.Duration(d.Milliseconds())
}

func (l *Lavalink) player(guildID string) (disgolink.Player, error) {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild id: %w", err)
	}
	return l.client.Player(gid), nil
}

func (l *Lavalink) Play(ctx context.Context, guildID string, t Track, volume int, from time.Duration) error {
	if t.lt.Encoded == "" {
		return errors.New("track was not loaded from the audio node")
	}
	p, err := l.player(guildID)
	if err != nil {
		return err
	}
	opts := []lavalink.PlayerUpdateOpt{
		lavalink.WithTrack(t.lt),
		lavalink.WithVolume(volume),
		lavalink.WithPosition(fromDuration(from)),
		lavalink.WithPaused(false),
	}
	if t.EndAt > 0 {
		opts = append(opts, lavalink.WithEndTime(fromDuration(t.EndAt)))
	}
	return p.Update(ctx, opts...)
}

func (l *Lavalink) SetPaused(ctx context.Context, guildID string, paused bool) error {
	p, err := l.player(guildID)
	if err != nil {
		return err
	}
	return p.Update(ctx, lavalink.WithPaused(paused))
}

func (l *Lavalink) Seek(ctx context.Context, guildID string, pos time.Duration) error {
	p, err := l.player(guildID)
	if err != nil {
		return err
	}
	return p.Update(ctx, lavalink.WithPosition(fromDuration(pos)))
}

func (l *Lavalink) SetVolume(ctx context.Context, guildID string, volume int) error {
	p, err := l.player(guildID)
	if err != nil {
		return err
	}
	return p.Update(ctx, lavalink.WithVolume(volume))
}

func (l *Lavalink) Stop(ctx context.Context, guildID string) error {
	p, err := l.player(guildID)
	if err != nil {
		return err
	}
	return p.Update(ctx, lavalink.WithNullTrack())
}

func (l *Lavalink) Position(guildID string) time.Duration {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return 0
	}
	p := l.client.ExistingPlayer(gid)
	if p == nil {
		return 0
	}
	return toDuration(p.Position())
}

func (l *Lavalink) Destroy(ctx context.Context, guildID string) error {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return err
	}
	p := l.client.ExistingPlayer(gid)
	if p == nil {
		return nil
	}
	err = p.Destroy(ctx)
	l.client.RemovePlayer(gid)
	return err
}
