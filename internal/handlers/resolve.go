package handlers

import (
	"context"
	"strings"

	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/spotify"
)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// resolve turns what the user typed into tracks, capped at limit.
// Plain text becomes a YouTube search and Spotify links become one search per track.
func (i *Instance) resolve(ctx context.Context, b player.Backend, query string, limit int) ([]player.Track, *player.QueuedPlaylist, error) {
	if spotify.IsLink(query) {
		return i.resolveSpotify(ctx, b, query, limit)
	}
	id := query
	if !isURL(query) {
		id = "ytsearch:" + query
	}
	lctx, cancel := context.WithTimeout(ctx, i.bot.cfg.SearchTimeout)
	defer cancel()
	res, err := b.Load(lctx, id)
	if err != nil {
		return nil, nil, err
	}
	tracks := res.Tracks
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	i.trim(ctx, tracks)
	return tracks, res.Playlist, nil
}

// trim skips the off-topic intro and outro of YouTube tracks when SponsorBlock is on.
func (i *Instance) trim(ctx context.Context, tracks []player.Track) {
	if i.bot.trimmer == nil {
		return
	}
	for idx := range tracks {
		t := &tracks[idx]
		if t.SourceName != "youtube" || t.IsStream {
			continue
		}
		tr, ok := i.bot.trimmer.Trim(ctx, t.Identifier, t.Length)
		if !ok {
			continue
		}
		t.StartAt, t.EndAt = tr.Start, tr.End
		i.log.Debug().Str("track", t.Title).Str("trim", tr.Note).Msg("sponsorblock applied")
	}
}

func (i *Instance) resolveSpotify(ctx context.Context, b player.Backend, link string, limit int) ([]player.Track, *player.QueuedPlaylist, error) {
	if i.bot.spotify == nil {
		return nil, nil, friendlyError("spotify links aren't enabled on this bot")
	}
	sctx, cancel := context.WithTimeout(ctx, i.bot.cfg.SearchTimeout)
	found, meta, err := i.bot.spotify.Resolve(sctx, link, limit)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	var pl *player.QueuedPlaylist
	if meta != nil {
		pl = &player.QueuedPlaylist{Title: meta.Title, Source: meta.Source}
	}
	out := make([]player.Track, 0, len(found))
	for _, st := range found {
		lctx, cancel := context.WithTimeout(ctx, i.bot.cfg.SearchTimeout)
		res, err := b.Load(lctx, st.SearchQuery())
		cancel()
		if err != nil {
			i.log.Debug().Err(err).Str("track", st.Name).Msg("no match for spotify track")
			continue
		}
		t := res.Tracks[0]
		t.Playlist = pl
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, nil, player.ErrNoMatches
	}
	i.trim(ctx, out)
	return out, pl, nil
}
