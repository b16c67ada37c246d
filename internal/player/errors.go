package player

import "errors"

var (
	ErrNoBackend       = errors.New("audio node is not connected yet")
	ErrOtherChannel    = errors.New("already playing in another voice channel")
	ErrNotConnected    = errors.New("not connected")
	ErrNoMatches       = errors.New("no matching tracks")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrNotPlaying      = errors.New("not playing")
	ErrAlreadyPlaying  = errors.New("already playing")
	ErrNoPrevious      = errors.New("no previous song")
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrLiveSeek        = errors.New("can't seek in a livestream")
	ErrSeekPastEnd     = errors.New("can't seek past the end of the song")
	ErrVolumeRange     = errors.New("volume must be between 0 and 200")
	ErrPosition        = errors.New("position out of range")
	ErrNotEnoughToLoop = errors.New("not enough songs to loop a queue")
	ErrNothingToLoop   = errors.New("no songs to loop")
)
