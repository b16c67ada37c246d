package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
)

type fakeBackend struct {
	mu        sync.Mutex
	playing   map[string]string
	paused    map[string]bool
	volume    map[string]int
	position  map[string]time.Duration
	destroyed []string
	playErr   error
	results   map[string]LoadResult
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		playing:  map[string]string{},
		paused:   map[string]bool{},
		volume:   map[string]int{},
		position: map[string]time.Duration{},
		results:  map[string]LoadResult{},
	}
}

func (f *fakeBackend) Load(_ context.Context, id string) (LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[id]
	if !ok {
		return LoadResult{}, ErrNoMatches
	}
	return r, nil
}

func (f *fakeBackend) Play(_ context.Context, g string, t Track, vol int, from time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing[g] = t.Title
	f.paused[g] = false
	f.volume[g] = vol
	f.position[g] = from
	return nil
}

func (f *fakeBackend) SetPaused(_ context.Context, g string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[g] = paused
	return nil
}

func (f *fakeBackend) Seek(_ context.Context, g string, pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position[g] = pos
	return nil
}

func (f *fakeBackend) SetVolume(_ context.Context, g string, vol int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume[g] = vol
	return nil
}

func (f *fakeBackend) Stop(_ context.Context, g string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playing, g)
	return nil
}

func (f *fakeBackend) Position(g string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position[g]
}

func (f *fakeBackend) Destroy(_ context.Context, g string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playing, g)
	f.destroyed = append(f.destroyed, g)
	return nil
}

func (f *fakeBackend) nowPlaying(g string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing[g]
}

type fakeVoice struct {
	mu      sync.Mutex
	joined  map[string]string
	joinErr error
}

func newFakeVoice() *fakeVoice { return &fakeVoice{joined: map[string]string{}} }

func (v *fakeVoice) Join(g, c string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.joinErr != nil {
		return v.joinErr
	}
	v.joined[g] = c
	return nil
}

func (v *fakeVoice) Leave(g string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.joined, g)
	return nil
}

func (v *fakeVoice) channel(g string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.joined[g]
}

type fakeSettings struct {
	set *repository.Settings
	err error
}

func (f fakeSettings) Settings(_ context.Context, g string) (*repository.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.set == nil {
		return nil, errors.New("no settings")
	}
	s := *f.set
	s.GuildID = g
	return &s, nil
}

func track(title string) Track {
	return Track{Title: title, Length: 3 * time.Minute}
}
