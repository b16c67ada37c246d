package spotify

import (
	"context"
	"fmt"
	"strings"
)

// searchPrefix makes the audio node search YouTube for the track instead of loading a URL.
const searchPrefix = "ytsearch:"

// IsLink reports whether raw points at Spotify rather than something the audio node can load.
func IsLink(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "spotify:") ||
		strings.Contains(raw, "open.spotify.com/")
}

func (t Track) SearchQuery() string {
	q := strings.TrimSpace(t.Name + " " + t.Artist)
	return searchPrefix + q
}

// Resolve expands a Spotify link into search queries, one per track, capped at limit.
// meta is nil for single tracks.
func (c *Client) Resolve(ctx context.Context, link string, limit int) ([]Track, *PlaylistMeta, error) {
	typ, id, err := ParseID(strings.TrimSpace(link))
	if err != nil {
		return nil, nil, err
	}
	switch typ {
	case "track":
		t, err := c.GetTrack(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("spotify track: %w", err)
		}
		return []Track{t}, nil, nil
	case "album":
		ts, meta, err := c.GetAlbum(ctx, id, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("spotify album: %w", err)
		}
		return ts, &meta, nil
	case "playlist":
		ts, meta, err := c.GetPlaylist(ctx, id, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("spotify playlist: %w", err)
		}
		return ts, &meta, nil
	case "artist":
		ts, err := c.GetArtistTop(ctx, id, "US", limit)
		if err != nil {
			return nil, nil, fmt.Errorf("spotify artist: %w", err)
		}
		return ts, &PlaylistMeta{Title: "Top tracks", Source: link}, nil
	}
	return nil, nil, fmt.Errorf("unsupported spotify type %q", typ)
}
