package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/kumaswarm/internal/config"
	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/registry"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
)

type sent struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
}

type fakeOut struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeOut) add(s sent) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, s)
	return &discordgo.Message{ChannelID: s.channelID, Content: s.content}, nil
}

func (f *fakeOut) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.add(sent{channelID: channelID, content: content})
}

func (f *fakeOut) ChannelMessageSendEmbed(channelID string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.add(sent{channelID: channelID, embed: e})
}

func (f *fakeOut) ChannelMessageSendReply(channelID, content string, _ *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.add(sent{channelID: channelID, content: content})
}

func (f *fakeOut) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

func (f *fakeOut) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return sent{}
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeBackend struct {
	mu      sync.Mutex
	results map[string]player.LoadResult
	playing map[string]string
	paused  map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results: map[string]player.LoadResult{},
		playing: map[string]string{},
		paused:  map[string]bool{},
	}
}

func (f *fakeBackend) addSearch(query string, titles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res player.LoadResult
	for _, t := range titles {
		res.Tracks = append(res.Tracks, player.Track{Title: t, URI: "https://example.com/" + t, Length: 3 * time.Minute})
	}
	f.results[query] = res
}

func (f *fakeBackend) Load(_ context.Context, id string) (player.LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[id]
	if !ok {
		return player.LoadResult{}, player.ErrNoMatches
	}
	return r, nil
}

func (f *fakeBackend) Play(_ context.Context, g string, t player.Track, _ int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing[g] = t.Title
	f.paused[g] = false
	return nil
}

func (f *fakeBackend) SetPaused(_ context.Context, g string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[g] = paused
	return nil
}

func (f *fakeBackend) Seek(context.Context, string, time.Duration) error { return nil }
func (f *fakeBackend) SetVolume(context.Context, string, int) error      { return nil }

func (f *fakeBackend) Stop(_ context.Context, g string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playing, g)
	return nil
}

func (f *fakeBackend) Position(string) time.Duration { return 0 }

func (f *fakeBackend) Destroy(_ context.Context, g string) error {
	return f.Stop(context.Background(), g)
}

func (f *fakeBackend) nowPlaying(g string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing[g]
}

type fakeVoice struct {
	mu     sync.Mutex
	joined map[string]string
}

func (v *fakeVoice) Join(g, c string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.joined[g] = c
	return nil
}

func (v *fakeVoice) Leave(g string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.joined, g)
	return nil
}

type memSettings struct {
	mu   sync.Mutex
	set  map[string]repository.Settings
	favs map[string]repository.Favorite
}

func (m *memSettings) Settings(_ context.Context, g string) (*repository.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.set[g]
	if !ok {
		s = repository.Settings{
			GuildID:               g,
			PlaylistLimit:         50,
			SecondsWaitAfterEmpty: 30,
			LeaveIfNoListeners:    true,
			DefaultVolume:         player.DefaultVolume,
			DefaultQueuePageSize:  10,
		}
	}
	return &s, nil
}

func (m *memSettings) UpdateSettings(_ context.Context, s *repository.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[s.GuildID] = *s
	return nil
}

func favKey(g, name string) string { return g + "/" + name }

func (m *memSettings) AddFavorite(_ context.Context, f *repository.Favorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.favs[favKey(f.GuildID, f.Name)]; ok {
		return repository.ErrFavoriteExists
	}
	m.favs[favKey(f.GuildID, f.Name)] = *f
	return nil
}

func (m *memSettings) RemoveFavorite(_ context.Context, g, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.favs[favKey(g, name)]; !ok {
		return 0, nil
	}
	delete(m.favs, favKey(g, name))
	return 1, nil
}

func (m *memSettings) FindFavorite(_ context.Context, g, name string) (*repository.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.favs[favKey(g, name)]
	if !ok {
		return nil, repository.ErrFavoriteNotFound
	}
	return &f, nil
}

func (m *memSettings) ListFavorites(_ context.Context, g string) ([]repository.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Favorite
	for _, f := range m.favs {
		if f.GuildID == g {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// harness wires n identities to one shared gateway cache and registry, the way
// they would see the same guild from separate connections.
type harness struct {
	t        *testing.T
	bot      *Bot
	state    *discordgo.State
	outs     []*fakeOut
	backends []*fakeBackend
	settings *memSettings
	nextMsg  int
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i)
	}
	cfg := &config.Config{
		BotTokens:     tokens,
		DefaultPrefix: "!",
		CommandBurst:  1,
		SearchTimeout: time.Second,
		DeveloperIDs:  []string{"dev"},
	}
	settings := &memSettings{set: map[string]repository.Settings{}, favs: map[string]repository.Favorite{}}
	b, err := newBot(cfg, settings, registry.NewMemory(), zerolog.Nop())
	require.NoError(t, err)

	st := discordgo.NewState()
	require.NoError(t, st.GuildAdd(&discordgo.Guild{ID: "g1", OwnerID: "admin"}))

	h := &harness{t: t, bot: b, state: st, settings: settings}
	for i := 0; i < n; i++ {
		out := &fakeOut{}
		be := newFakeBackend()
		id := b.pool.Identity(i)
		id.SetReady(fmt.Sprintf("bot%d", i))
		inst := newInstance(b, id, st, out, &fakeVoice{joined: map[string]string{}})
		inst.manager.Attach(be)
		b.instances = append(b.instances, inst)
		h.outs = append(h.outs, out)
		h.backends = append(h.backends, be)
	}
	return h
}

// setVoice moves user into channelID, or out of voice when channelID is empty.
func (h *harness) setVoice(user, channelID string) {
	h.t.Helper()
	g, err := h.state.Guild("g1")
	require.NoError(h.t, err)
	h.state.Lock()
	defer h.state.Unlock()
	var kept []*discordgo.VoiceState
	for _, vs := range g.VoiceStates {
		if vs.UserID != user {
			kept = append(kept, vs)
		}
	}
	if channelID != "" {
		kept = append(kept, &discordgo.VoiceState{GuildID: "g1", UserID: user, ChannelID: channelID})
	}
	g.VoiceStates = kept
}

func (h *harness) searchEverywhere(query string, titles ...string) {
	for _, be := range h.backends {
		be.addSearch(query, titles...)
	}
}

// total is how many replies the whole pool sent.
func total(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// lastReply is the newest message any identity sent.
func (h *harness) lastReply(counts []int) sent {
	for i, c := range counts {
		if c > 0 {
			return h.outs[i].last()
		}
	}
	return sent{}
}

// send delivers one message to every identity in order and returns the number of
// messages each one sent in response.
func (h *harness) send(user, content string) []int {
	h.t.Helper()
	h.nextMsg++
	m := &discordgo.Message{
		ID:        fmt.Sprintf("m%d", h.nextMsg),
		GuildID:   "g1",
		ChannelID: "text",
		Content:   content,
		Author:    &discordgo.User{ID: user},
	}
	before := make([]int, len(h.outs))
	for i, o := range h.outs {
		before[i] = len(o.all())
	}
	for _, inst := range h.bot.instances {
		require.NoError(h.t, inst.handleMessage(context.Background(), m))
	}
	out := make([]int, len(h.outs))
	for i, o := range h.outs {
		out[i] = len(o.all()) - before[i]
	}
	return out
}
