package registry

import (
	"context"
	"sync"

	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
)

type memKey struct {
	identity int
	guildID  string
}

// Memory is the registry used when every identity runs in this process.
type Memory struct {
	mu      sync.RWMutex
	entries map[memKey]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[memKey]Entry)}
}

func (m *Memory) ActiveSession(_ context.Context, identity int, guildID string) (*routing.ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey{identity, guildID}]
	if !ok {
		return nil, nil
	}
	return &routing.ActiveSession{VoiceChannelID: e.ChannelID, SessionID: e.SessionID}, nil
}

func (m *Memory) Publish(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey{e.Identity, e.GuildID}] = e
	return nil
}

func (m *Memory) Remove(_ context.Context, identity int, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey{identity, guildID})
	return nil
}

func (m *Memory) Close() error { return nil }
