package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
)

func TestPlay_OneIdentityAnswers(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.searchEverywhere("ytsearch:song a", "song a")

	assert.Equal(t, []int{1, 0}, h.send("u1", "!play song a"))
	assert.Equal(t, "song a", h.backends[0].nowPlaying("g1"))
	require.NotNil(t, h.outs[0].last().embed)

	p := h.bot.instances[0].manager.Peek("g1")
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.Owner())
	assert.Equal(t, "c1", p.ChannelID())

	s, err := h.bot.reg.ActiveSession(context.Background(), 0, "g1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "c1", s.VoiceChannelID)
}

func TestPlay_SecondChannelGetsNextIdentity(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.setVoice("u3", "c2")
	h.searchEverywhere("ytsearch:a", "a")
	h.searchEverywhere("ytsearch:b", "b")

	h.send("u1", "!play a")
	assert.Equal(t, []int{0, 1}, h.send("u3", "!play b"))
	assert.Equal(t, "b", h.backends[1].nowPlaying("g1"))

	// same channel sticks to the identity already there
	h.searchEverywhere("ytsearch:c", "c")
	assert.Equal(t, []int{0, 1}, h.send("u3", "!p c"))
	assert.Equal(t, 1, h.bot.instances[1].manager.Peek("g1").QueueSize())
}

func TestPlay_AllBusyOnlySentinelReplies(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.setVoice("u3", "c2")
	h.setVoice("u4", "c3")
	h.searchEverywhere("ytsearch:a", "a")

	h.send("u1", "!play a")
	h.send("u3", "!play a")

	assert.Equal(t, []int{1, 0}, h.send("u4", "!play a"))
	assert.Contains(t, h.outs[0].last().content, "all 2 of us are busy")
}

func TestOwnership_Flow(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.setVoice("u2", "c1")
	h.searchEverywhere("ytsearch:a", "a", "b")
	h.searchEverywhere("https://example.com/list", "x", "y", "z")

	h.send("u1", "!play https://example.com/list")

	assert.Equal(t, []int{1, 0}, h.send("u2", "!skip"))
	assert.Contains(t, h.outs[0].last().content, "only the session owner can do that")
	assert.Contains(t, h.outs[0].last().content, "!claim")
	assert.Equal(t, "x", h.backends[0].nowPlaying("g1"))

	h.send("u2", "!claim")
	assert.Contains(t, h.outs[0].last().content, "still in the channel")

	h.setVoice("u1", "")
	h.send("u2", "!claim")
	assert.Contains(t, h.outs[0].last().content, "you're in control now")

	h.send("u2", "!skip")
	assert.Equal(t, "y", h.backends[0].nowPlaying("g1"))

	h.send("u2", "!owner")
	assert.Contains(t, h.outs[0].last().content, "<@u2>")
}

func TestOwnership_PrivilegedBypass(t *testing.T) {
	h := newHarness(t, 1)
	h.setVoice("u1", "c1")
	h.setVoice("admin", "c1")
	h.searchEverywhere("ytsearch:a", "a")

	h.send("u1", "!play a")
	h.send("admin", "!pause")
	assert.Equal(t, "the stop-and-go light is now red", h.outs[0].last().content)
	assert.Equal(t, player.StatusPaused, h.bot.instances[0].manager.Peek("g1").Status())
}

func TestTransfer(t *testing.T) {
	h := newHarness(t, 1)
	h.setVoice("111", "c1")
	h.setVoice("222", "c1")
	h.searchEverywhere("ytsearch:a", "a")
	h.send("111", "!play a")

	h.send("111", "!transfer <@999>")
	assert.Contains(t, h.outs[0].last().content, "isn't in the voice channel")

	h.send("111", "!transfer <@!222>")
	assert.Contains(t, h.outs[0].last().content, "<@222> is in control now")
	assert.Equal(t, "222", h.bot.instances[0].manager.Peek("g1").Owner())

	h.send("222", "!transfer nobody")
	assert.Contains(t, h.outs[0].last().content, "usage: `!transfer <@user>`")
}

func TestPlay_AllBusyButCallerNotInVoice(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.setVoice("u3", "c2")
	h.searchEverywhere("ytsearch:a", "a")
	h.send("u1", "!play a")
	h.send("u3", "!play a")

	assert.Equal(t, []int{1, 0}, h.send("u4", "!play a"))
	assert.Equal(t, "gotta be in a voice channel", h.outs[0].last().content)
}

func TestSelfVoice_StaleLeaveKeepsNewSession(t *testing.T) {
	h := newHarness(t, 2)
	h.setVoice("u1", "c1")
	h.searchEverywhere("ytsearch:a", "a", "b")
	inst := h.bot.instances[0]

	h.send("u1", "!play a")
	h.send("u1", "!leave")
	require.Nil(t, inst.manager.Peek("g1"))
	h.send("u1", "!play a")
	p := inst.manager.Peek("g1")
	require.NotNil(t, p)

	// the gateway echoes the leave only after the new join went out
	inst.selfVoiceChanged("g1", "")
	inst.selfVoiceChanged("g1", "c1")
	assert.Same(t, p, inst.manager.Peek("g1"))

	s, err := h.bot.reg.ActiveSession(context.Background(), 0, "g1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, p.SessionID(), s.SessionID)

	assert.Equal(t, []int{1, 0}, h.send("u1", "!skip"))
	assert.Nil(t, h.outs[0].last().embed)
	assert.Contains(t, h.outs[0].last().content, "skipped")

	// a real disconnect afterwards still ends the session
	inst.selfVoiceChanged("g1", "")
	assert.Nil(t, inst.manager.Peek("g1"))
	s, err = h.bot.reg.ActiveSession(context.Background(), 0, "g1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestFavorites(t *testing.T) {
	h := newHarness(t, 2)
	h.searchEverywhere("ytsearch:lofi beats", "lofi")

	// managing favorites works without being in voice
	got := h.send("u1", "!fav add chill lofi beats")
	require.Equal(t, 1, total(got))
	assert.Contains(t, h.lastReply(got).content, "saved")

	got = h.send("u2", "!fav add chill something else")
	require.Equal(t, 1, total(got))
	assert.Equal(t, repository.ErrFavoriteExists.Error(), h.lastReply(got).content)

	got = h.send("u2", "!favorites list")
	require.Equal(t, 1, total(got))
	require.NotNil(t, h.lastReply(got).embed)
	assert.Contains(t, h.lastReply(got).embed.Description, "chill")
	assert.Contains(t, h.lastReply(got).embed.Description, "<@u1>")

	assert.Equal(t, []int{1, 0}, h.send("u1", "!fav use chill"))
	assert.Equal(t, "gotta be in a voice channel", h.outs[0].last().content)

	h.setVoice("u1", "c1")
	assert.Equal(t, []int{1, 0}, h.send("u1", "!fav use chill"))
	assert.Equal(t, "lofi", h.backends[0].nowPlaying("g1"))
	p := h.bot.instances[0].manager.Peek("g1")
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.Owner())

	got = h.send("u1", "!fav use nope")
	assert.Equal(t, repository.ErrFavoriteNotFound.Error(), h.lastReply(got).content)

	got = h.send("u2", "!fav remove chill")
	require.Equal(t, 1, total(got))
	assert.Equal(t, "you can only remove your own favorites", h.lastReply(got).content)

	got = h.send("u1", "!fav rm chill")
	require.Equal(t, 1, total(got))
	assert.Contains(t, h.lastReply(got).content, "removed")

	got = h.send("u1", "!fav list")
	assert.Equal(t, "there aren't any favorites yet", h.lastReply(got).content)
}

func TestVoiceCommands_RequireVoice(t *testing.T) {
	h := newHarness(t, 2)
	assert.Equal(t, []int{1, 0}, h.send("u1", "!play a"))
	assert.Equal(t, "gotta be in a voice channel", h.outs[0].last().content)

	h.setVoice("u1", "c1")
	h.send("u1", "!queue")
	assert.Equal(t, player.ErrNotConnected.Error(), h.outs[0].last().content)
}

func TestTextCommands_HashRouted(t *testing.T) {
	h := newHarness(t, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, total(h.send("u1", "!ping")), "exactly one identity answers ping")
	}
}

func TestUnknownAndNonCommands(t *testing.T) {
	h := newHarness(t, 2)
	assert.Equal(t, []int{0, 0}, h.send("u1", "hello there"))
	assert.Equal(t, []int{0, 0}, h.send("u1", "!nope"))
}

func TestPrefixAndConfig(t *testing.T) {
	h := newHarness(t, 1)

	h.send("u1", "!prefix ?")
	assert.Contains(t, h.outs[0].last().content, "only the server owner")

	h.send("admin", "!prefix ?")
	assert.Contains(t, h.outs[0].last().content, "prefix is now `?`")
	assert.Equal(t, []int{0}, h.send("u1", "!ping"))
	assert.Equal(t, []int{1}, h.send("u1", "?ping"))

	h.send("dev", "?config default-volume 70")
	assert.Contains(t, h.outs[0].last().content, "default-volume updated")
	set, err := h.settings.Settings(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 70, set.DefaultVolume)

	h.send("admin", "?config default-volume 900")
	assert.Contains(t, h.outs[0].last().content, "from 0 to 200")

	h.send("admin", "?config bogus 1")
	assert.Contains(t, h.outs[0].last().content, "unknown setting")

	h.send("u1", "?config")
	require.NotNil(t, h.outs[0].last().embed)
	assert.Contains(t, h.outs[0].last().embed.Description, "default-volume: `70`")
}

func TestQueueCommands(t *testing.T) {
	h := newHarness(t, 1)
	h.setVoice("u1", "c1")
	h.searchEverywhere("https://example.com/list", "a", "b", "c", "d")
	h.searchEverywhere("ytsearch:z", "z")
	h.send("u1", "!play https://example.com/list")

	h.send("u1", "!playnext z")
	p := h.bot.instances[0].manager.Peek("g1")
	assert.Equal(t, "z", p.Queue()[0].Title)

	h.send("u1", "!move 1 3")
	assert.Contains(t, h.outs[0].last().content, "moved z to position 3")

	h.send("u1", "!remove 1 2")
	assert.Contains(t, h.outs[0].last().content, "removed 2")
	assert.Equal(t, 2, p.QueueSize())

	h.send("u1", "!queue")
	require.NotNil(t, h.outs[0].last().embed)
	assert.Equal(t, "Queue", h.outs[0].last().embed.Title)

	h.send("u1", "!queue 9")
	assert.Contains(t, h.outs[0].last().content, "only has 1 page")

	h.send("u1", "!seek nonsense")
	assert.Contains(t, h.outs[0].last().content, "invalid time")

	h.send("u1", "!volume 50")
	assert.Equal(t, "volume set to 50", h.outs[0].last().content)
	assert.Equal(t, 50, p.Volume())

	h.send("u1", "!loop")
	assert.Equal(t, "looped :)", h.outs[0].last().content)

	h.send("u1", "!stop")
	assert.Equal(t, "u betcha, stopped", h.outs[0].last().content)
	assert.Empty(t, h.backends[0].nowPlaying("g1"))

	h.send("u1", "!leave")
	assert.Nil(t, h.bot.instances[0].manager.Peek("g1"))
	s, err := h.bot.reg.ActiveSession(context.Background(), 0, "g1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestPlay_NoMatches(t *testing.T) {
	h := newHarness(t, 1)
	h.setVoice("u1", "c1")
	h.send("u1", "!play nothing here")
	assert.Equal(t, player.ErrNoMatches.Error(), h.outs[0].last().content)
	assert.Nil(t, h.bot.instances[0].manager.Peek("g1"), "no session for an empty result")
}

func TestCooldownReply(t *testing.T) {
	h := newHarness(t, 1)
	h.bot.cooldown = newCooldown(0.0001, 1)
	h.send("u1", "!ping")
	h.send("u1", "!ping")
	assert.Equal(t, "slow down there, partner", h.outs[0].last().content)
}

func TestCheckListeners_LeavesEmptyChannel(t *testing.T) {
	h := newHarness(t, 1)
	h.setVoice("u1", "c1")
	h.setVoice("bot0", "c1")
	h.searchEverywhere("ytsearch:a", "a")
	h.send("u1", "!play a")

	inst := h.bot.instances[0]
	inst.checkListeners("g1")
	require.NotNil(t, inst.manager.Peek("g1"))

	h.setVoice("u1", "")
	inst.checkListeners("g1")
	assert.Nil(t, inst.manager.Peek("g1"))
}

func TestLookupCommand(t *testing.T) {
	for alias, name := range map[string]string{"p": "play", "q": "queue", "DC": "leave", "lq": "loopqueue", "pn": "playnext"} {
		c, ok := lookupCommand(alias)
		require.True(t, ok, alias)
		assert.Equal(t, name, c.name)
	}
	_, ok := lookupCommand("bogus")
	assert.False(t, ok)

	for _, c := range commandList {
		if c.ownerOnly || c.needsSession {
			assert.True(t, c.requiresVoice, "%s acts on a session so it must route by voice", c.name)
		}
	}
	for _, name := range []string{"bots", "prefix", "config", "help", "ping", "fav"} {
		c, _ := lookupCommand(name)
		assert.False(t, c.requiresVoice, name)
	}

	fav, _ := lookupCommand("favorites")
	assert.True(t, fav.routesByVoice([]string{"USE", "chill"}))
	assert.False(t, fav.routesByVoice([]string{"list"}))
	assert.False(t, fav.routesByVoice(nil))
}
