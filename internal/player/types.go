package player

import (
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
)

type QueuedPlaylist struct {
	Title  string
	Source string
}

type Track struct {
	Title       string
	Author      string
	URI         string
	ArtworkURL  string
	Length      time.Duration
	IsStream    bool
	Playlist    *QueuedPlaylist
	RequestedBy string
	AddedInChan string

	Identifier string
	SourceName string
	// StartAt and EndAt bound the played part; a zero EndAt plays to the end
	StartAt time.Duration
	EndAt   time.Duration

	// encoded form handed back to the Lavalink node; empty for tracks not loaded from one
	lt lavalink.Track
}

type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}
