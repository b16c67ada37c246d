package handlers

import (
	"context"
	"errors"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/kumaswarm/internal/config"
)

// guildState is the gateway cache. Its lock guards the guild records it returns.
type guildState interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	RLock()
	RUnlock()
}

// stateMembers answers presence and privilege questions from the gateway cache.
// It serves as both routing.Membership and routing.Privileges.
type stateMembers struct {
	state guildState
	cfg   *config.Config
}

func (m *stateMembers) guild(guildID string) (*discordgo.Guild, error) {
	g, err := m.state.Guild(guildID)
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func (m *stateMembers) IsUserInChannel(_ context.Context, guildID, channelID, userID string) (bool, error) {
	if channelID == "" || userID == "" {
		return false, nil
	}
	return m.voiceChannel(guildID, userID) == channelID, nil
}

func (m *stateMembers) IsPrivileged(_ context.Context, guildID, userID string) (bool, error) {
	if m.cfg.IsDeveloper(userID) {
		return true, nil
	}
	g, err := m.guild(guildID)
	if err != nil || g == nil {
		return false, err
	}
	return g.OwnerID == userID, nil
}

// voiceStates copies the guild's voice states, which the gateway keeps rewriting.
func (m *stateMembers) voiceStates(guildID string) []discordgo.VoiceState {
	g, _ := m.guild(guildID)
	if g == nil {
		return nil
	}
	m.state.RLock()
	defer m.state.RUnlock()
	out := make([]discordgo.VoiceState, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		out = append(out, *vs)
	}
	return out
}

// voiceChannel is the channel userID is connected to, "" when not in voice.
func (m *stateMembers) voiceChannel(guildID, userID string) string {
	for _, vs := range m.voiceStates(guildID) {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// listeners counts the humans in channelID. Users whose member record is unknown
// count as listeners unless they are one of the pool's bots.
func (m *stateMembers) listeners(guildID, channelID string, bots []string) int {
	n := 0
	for _, vs := range m.voiceStates(guildID) {
		if vs.ChannelID != channelID || slices.Contains(bots, vs.UserID) {
			continue
		}
		mem := vs.Member
		if mem == nil {
			mem, _ = m.state.Member(guildID, vs.UserID)
		}
		if mem != nil && mem.User != nil && mem.User.Bot {
			continue
		}
		n++
	}
	return n
}
