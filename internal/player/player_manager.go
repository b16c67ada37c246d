package player

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/registry"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
)

type SettingsSource interface {
	Settings(ctx context.Context, guildID string) (*repository.Settings, error)
}

// Manager owns the sessions of a single identity and is the only writer
// of that identity's registry entries.
type Manager struct {
	identity int
	reg      registry.Registry
	voice    Voice
	settings SettingsSource
	log      zerolog.Logger

	mu      sync.Mutex
	backend Backend
	players map[string]*Player
	// guilds left on request whose voice state echo has not come back yet
	leaving map[string]bool
}

func NewManager(identity int, reg registry.Registry, voice Voice, settings SettingsSource, log zerolog.Logger) *Manager {
	return &Manager{
		identity: identity,
		reg:      reg,
		voice:    voice,
		settings: settings,
		log:      log,
		players:  make(map[string]*Player),
		leaving:  make(map[string]bool),
	}
}

// Attach sets the audio backend once the identity knows its user ID.
func (m *Manager) Attach(b Backend) {
	m.mu.Lock()
	m.backend = b
	m.mu.Unlock()
}

func (m *Manager) Backend() Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

func (m *Manager) Peek(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[guildID]
}

func (m *Manager) Players() []*Player {
	m.mu.Lock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].guildID < out[j].guildID })
	return out
}

// Connect returns the session for guildID, joining channelID and publishing it if none exists.
// A new session is owned by userID.
func (m *Manager) Connect(ctx context.Context, guildID, channelID, userID, textChannelID string) (*Player, error) {
	m.mu.Lock()
	b := m.backend
	existing := m.players[guildID]
	m.mu.Unlock()

	if b == nil {
		return nil, ErrNoBackend
	}
	if existing != nil {
		if existing.ChannelID() != channelID {
			return nil, ErrOtherChannel
		}
		return existing, nil
	}

	vol := DefaultVolume
	var idleWait time.Duration
	announce := false
	if set, err := m.settings.Settings(ctx, guildID); err == nil && set != nil {
		vol = set.DefaultVolume
		idleWait = time.Duration(set.SecondsWaitAfterEmpty) * time.Second
		announce = set.AutoAnnounceNext
	} else if err != nil {
		m.log.Warn().Err(err).Str("guildID", guildID).Msg("failed to load settings, using defaults")
	}

	if err := m.voice.Join(guildID, channelID); err != nil {
		return nil, fmt.Errorf("join voice: %w", err)
	}

	sessionID := uuid.NewString()
	p := newPlayer(playerOpts{
		guildID:       guildID,
		identity:      m.identity,
		sessionID:     sessionID,
		channelID:     channelID,
		textChannelID: textChannelID,
		owner:         userID,
		volume:        vol,
		announceNext:  announce,
		idleWait:      idleWait,
		backend:       b,
		log:           m.log,
		onIdle:        func() { m.idleTimeout(guildID, sessionID) },
	})

	if err := m.reg.Publish(ctx, p.entry()); err != nil {
		_ = m.voice.Leave(guildID)
		return nil, fmt.Errorf("publish session: %w", err)
	}

	m.mu.Lock()
	m.players[guildID] = p
	m.mu.Unlock()

	m.log.Info().Str("guildID", guildID).Str("channelID", channelID).Str("session", sessionID).
		Str("userID", userID).Msg("session started")
	return p, nil
}

func (m *Manager) take(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.players[guildID]
	delete(m.players, guildID)
	return p
}

func (m *Manager) release(ctx context.Context, p *Player, leaveVoice bool) error {
	p.shutdown()
	var errs []error
	if b := m.Backend(); b != nil {
		if err := b.Destroy(ctx, p.guildID); err != nil {
			errs = append(errs, fmt.Errorf("destroy player: %w", err))
		}
	}
	if leaveVoice {
		m.mu.Lock()
		m.leaving[p.guildID] = true
		m.mu.Unlock()
		if err := m.voice.Leave(p.guildID); err != nil {
			errs = append(errs, fmt.Errorf("leave voice: %w", err))
		}
	}
	if err := m.reg.Remove(ctx, m.identity, p.guildID); err != nil {
		errs = append(errs, fmt.Errorf("remove session: %w", err))
	}
	m.log.Info().Str("guildID", p.guildID).Str("session", p.SessionID()).Msg("session ended")
	return errors.Join(errs...)
}

// Disconnect ends the session in guildID and leaves voice. No session is not an error.
func (m *Manager) Disconnect(ctx context.Context, guildID string) error {
	p := m.take(guildID)
	if p == nil {
		return nil
	}
	return m.release(ctx, p, true)
}

// HandleVoiceLost drops the session after the identity was removed from voice by someone else.
// The echo of a leave this identity asked for is ignored when a new session
// has already been started in its place.
func (m *Manager) HandleVoiceLost(ctx context.Context, guildID string) error {
	m.mu.Lock()
	requested := m.leaving[guildID]
	delete(m.leaving, guildID)
	p := m.players[guildID]
	if p == nil || requested {
		m.mu.Unlock()
		if p != nil {
			m.log.Debug().Str("guildID", guildID).Str("session", p.SessionID()).Msg("ignoring voice leave of an earlier session")
		}
		return nil
	}
	delete(m.players, guildID)
	m.mu.Unlock()
	return m.release(ctx, p, false)
}

// HandleVoiceMoved follows the identity into the channel it was dragged to.
func (m *Manager) HandleVoiceMoved(ctx context.Context, guildID, channelID string) error {
	// any leave we asked for was already echoed, updates arrive in order
	m.mu.Lock()
	delete(m.leaving, guildID)
	m.mu.Unlock()

	p := m.Peek(guildID)
	if p == nil || p.ChannelID() == channelID {
		return nil
	}
	p.setChannel(channelID)
	return m.reg.Publish(ctx, p.entry())
}

// HandleTrackEnd advances the session of guildID. It returns the player and the
// track it moved on to, if any.
func (m *Manager) HandleTrackEnd(ctx context.Context, guildID string, mayStartNext bool) (*Player, *Track, error) {
	p := m.Peek(guildID)
	if p == nil {
		return nil, nil, nil
	}
	next, err := p.trackEnded(ctx, mayStartNext)
	return p, next, err
}

func (m *Manager) idleTimeout(guildID, sessionID string) {
	m.mu.Lock()
	p := m.players[guildID]
	if p == nil || p.SessionID() != sessionID {
		m.mu.Unlock()
		return
	}
	delete(m.players, guildID)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.release(ctx, p, true); err != nil {
		m.log.Warn().Err(err).Str("guildID", guildID).Msg("idle disconnect")
	}
}

// Entries is the registry view of every live session, for keepalive.
func (m *Manager) Entries() []registry.Entry {
	players := m.Players()
	out := make([]registry.Entry, 0, len(players))
	for _, p := range players {
		out = append(out, p.entry())
	}
	return out
}

// Close ends every session, used on shutdown.
func (m *Manager) Close(ctx context.Context) {
	for _, p := range m.Players() {
		if err := m.Disconnect(ctx, p.guildID); err != nil {
			m.log.Warn().Err(err).Str("guildID", p.guildID).Msg("disconnect on shutdown")
		}
	}
}
