package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/registry"
	"github.com/sonroyaalmerol/kumaswarm/internal/utils"
)

const (
	DefaultVolume = 100
	MaxVolume     = 200
)

// Player is one identity's audio session in one guild.
// The queue keeps already played tracks so back can return to them; qpos is the current one.
type Player struct {
	guildID  string
	identity int
	backend  Backend
	log      zerolog.Logger
	onIdle   func()

	mu              sync.Mutex
	sessionID       string
	channelID       string
	textChannelID   string
	owner           string
	status          Status
	queue           []Track
	qpos            int
	volume          int
	loopSong        bool
	loopQueue       bool
	announceNext    bool
	idleWait        time.Duration
	disconnectTimer *time.Timer
}

type playerOpts struct {
	guildID       string
	identity      int
	sessionID     string
	channelID     string
	textChannelID string
	owner         string
	volume        int
	announceNext  bool
	idleWait      time.Duration
	backend       Backend
	log           zerolog.Logger
	onIdle        func()
}

func newPlayer(o playerOpts) *Player {
	vol := o.volume
	if vol < 0 || vol > MaxVolume {
		vol = DefaultVolume
	}
	return &Player{
		guildID:       o.guildID,
		identity:      o.identity,
		backend:       o.backend,
		log:           o.log,
		onIdle:        o.onIdle,
		sessionID:     o.sessionID,
		channelID:     o.channelID,
		textChannelID: o.textChannelID,
		owner:         o.owner,
		status:        StatusIdle,
		volume:        vol,
		announceNext:  o.announceNext,
		idleWait:      o.idleWait,
	}
}

func (p *Player) GuildID() string { return p.guildID }
func (p *Player) Identity() int   { return p.identity }

func (p *Player) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

func (p *Player) setChannel(channelID string) {
	p.mu.Lock()
	p.channelID = channelID
	p.mu.Unlock()
}

func (p *Player) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

func (p *Player) SetOwner(userID string) {
	p.mu.Lock()
	p.owner = userID
	p.mu.Unlock()
}

// TextChannelID is where announcements for this session go.
func (p *Player) TextChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

func (p *Player) SetTextChannel(channelID string) {
	p.mu.Lock()
	p.textChannelID = channelID
	p.mu.Unlock()
}

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) LoopSong() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loopSong
}

func (p *Player) LoopQueue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loopQueue
}

func (p *Player) AnnounceNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.announceNext
}

func (p *Player) entry() registry.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return registry.Entry{
		Identity:  p.identity,
		GuildID:   p.guildID,
		ChannelID: p.channelID,
		SessionID: p.sessionID,
		UpdatedAt: time.Now(),
	}
}

// Add queues a track. Immediate tracks go right after the current one.
func (p *Player) Add(t Track, immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.Playlist != nil || !immediate || p.qpos+1 >= len(p.queue) {
		p.queue = append(p.queue, t)
		return
	}

	insertAt := p.qpos + 1
	p.queue = append(p.queue, Track{})
	copy(p.queue[insertAt+1:], p.queue[insertAt:])
	p.queue[insertAt] = t
}

// Clear drops everything but the current track.
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var newq []Track
	if cur := p.currentLocked(); cur != nil {
		newq = append(newq, *cur)
	}
	p.queue = newq
	p.qpos = 0
}

func (p *Player) currentLocked() *Track {
	if p.qpos >= 0 && p.qpos < len(p.queue) {
		return &p.queue[p.qpos]
	}
	return nil
}

func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.currentLocked()
	if cur == nil {
		return nil
	}
	cp := *cur
	return &cp
}

// Queue returns the tracks after the current one.
func (p *Player) Queue() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.qpos+1 >= len(p.queue) {
		return nil
	}
	cp := make([]Track, len(p.queue)-p.qpos-1)
	copy(cp, p.queue[p.qpos+1:])
	return cp
}

func (p *Player) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.queue) - p.qpos - 1; n > 0 {
		return n
	}
	return 0
}

func (p *Player) QueuePage(page, pageSize int) ([]Track, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	visible := p.Queue()
	total := len(visible)
	start := (page - 1) * pageSize
	if start >= total {
		return []Track{}, total
	}
	end := min(start+pageSize, total)
	return visible[start:end], total
}

// Move takes 1-based positions in the upcoming queue.
func (p *Player) Move(from, to int) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.qpos + 1
	if start >= len(p.queue) {
		return Track{}, ErrQueueEmpty
	}
	src := start + from - 1
	dst := start + to - 1
	if from < 1 || to < 1 || src >= len(p.queue) || dst >= len(p.queue) {
		return Track{}, ErrPosition
	}
	item := p.queue[src]
	p.queue = append(p.queue[:src], p.queue[src+1:]...)
	p.queue = append(p.queue[:dst], append([]Track{item}, p.queue[dst:]...)...)
	return item, nil
}

// Remove drops count tracks starting at the 1-based upcoming position pos.
func (p *Player) Remove(pos, count int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.qpos + 1
	if start >= len(p.queue) {
		return 0, ErrQueueEmpty
	}
	if pos < 1 || count < 1 {
		return 0, ErrPosition
	}
	begin := start + pos - 1
	if begin >= len(p.queue) {
		return 0, ErrPosition
	}
	end := min(begin+count, len(p.queue))
	p.queue = append(p.queue[:begin], p.queue[end:]...)
	return end - begin, nil
}

// Shuffle reorders the upcoming tracks.
func (p *Player) Shuffle() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.qpos+2 >= len(p.queue) {
		return ErrNotEnoughToLoop
	}
	utils.ShuffleSlice(p.queue[p.qpos+1:])
	return nil
}

func (p *Player) ToggleLoopSong() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusIdle {
		return p.loopSong, ErrNothingToLoop
	}
	p.loopQueue = false
	p.loopSong = !p.loopSong
	return p.loopSong, nil
}

func (p *Player) ToggleLoopQueue() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusIdle {
		return p.loopQueue, ErrNothingToLoop
	}
	if len(p.queue)-p.qpos < 2 {
		return p.loopQueue, ErrNotEnoughToLoop
	}
	p.loopSong = false
	p.loopQueue = !p.loopQueue
	return p.loopQueue, nil
}

// Start plays the current track if nothing is playing. It is a no-op otherwise.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusIdle || p.currentLocked() == nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.play(ctx, 0)
}

func (p *Player) play(ctx context.Context, from time.Duration) error {
	p.mu.Lock()
	cur := p.currentLocked()
	if cur == nil {
		p.mu.Unlock()
		return ErrQueueEmpty
	}
	t := *cur
	if from == 0 {
		from = t.StartAt
	}
	vol := p.volume
	p.cancelIdleLocked()
	p.mu.Unlock()

	if err := p.backend.Play(ctx, p.guildID, t, vol, from); err != nil {
		p.mu.Lock()
		p.status = StatusIdle
		p.scheduleIdleLocked()
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.status = StatusPlaying
	p.mu.Unlock()
	p.log.Debug().Str("guildID", p.guildID).Str("track", t.Title).Msg("playing")
	return nil
}

// Skip advances n tracks. Skipping past the end stops playback but keeps the history.
func (p *Player) Skip(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	if p.currentLocked() == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	p.loopSong = false
	if p.qpos+n >= len(p.queue) {
		p.qpos = len(p.queue)
		p.status = StatusIdle
		p.scheduleIdleLocked()
		p.mu.Unlock()
		return p.backend.Stop(ctx, p.guildID)
	}
	p.qpos += n
	p.mu.Unlock()
	return p.play(ctx, 0)
}

func (p *Player) Back(ctx context.Context) error {
	p.mu.Lock()
	if p.qpos-1 < 0 {
		p.mu.Unlock()
		return ErrNoPrevious
	}
	p.qpos--
	p.mu.Unlock()
	return p.play(ctx, 0)
}

func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusPlaying {
		p.mu.Unlock()
		return ErrNotPlaying
	}
	p.mu.Unlock()
	if err := p.backend.SetPaused(ctx, p.guildID, true); err != nil {
		return err
	}
	p.mu.Lock()
	p.status = StatusPaused
	p.mu.Unlock()
	return nil
}

func (p *Player) Resume(ctx context.Context) error {
	p.mu.Lock()
	status := p.status
	hasCur := p.currentLocked() != nil
	p.mu.Unlock()

	switch {
	case status == StatusPlaying:
		return ErrAlreadyPlaying
	case !hasCur:
		return ErrNothingPlaying
	case status == StatusIdle:
		return p.play(ctx, 0)
	}
	if err := p.backend.SetPaused(ctx, p.guildID, false); err != nil {
		return err
	}
	p.mu.Lock()
	p.status = StatusPlaying
	p.mu.Unlock()
	return nil
}

func (p *Player) Seek(ctx context.Context, pos time.Duration) error {
	p.mu.Lock()
	cur := p.currentLocked()
	status := p.status
	p.mu.Unlock()
	if cur == nil || status == StatusIdle {
		return ErrNothingPlaying
	}
	if cur.IsStream {
		return ErrLiveSeek
	}
	if pos < 0 || (cur.Length > 0 && pos > cur.Length) {
		return ErrSeekPastEnd
	}
	return p.backend.Seek(ctx, p.guildID, pos)
}

func (p *Player) Replay(ctx context.Context) error {
	return p.Seek(ctx, 0)
}

func (p *Player) SetVolume(ctx context.Context, vol int) error {
	if vol < 0 || vol > MaxVolume {
		return ErrVolumeRange
	}
	if err := p.backend.SetVolume(ctx, p.guildID, vol); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = vol
	p.mu.Unlock()
	return nil
}

// Stop clears the queue and stays connected until the idle timeout.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.queue = nil
	p.qpos = 0
	p.status = StatusIdle
	p.loopSong = false
	p.loopQueue = false
	p.scheduleIdleLocked()
	p.mu.Unlock()
	return p.backend.Stop(ctx, p.guildID)
}

func (p *Player) Position() time.Duration {
	if p.Status() == StatusIdle {
		return 0
	}
	return p.backend.Position(p.guildID)
}

// trackEnded advances the queue after the node finished a track and starts the next one.
// It returns the track now playing, nil when the queue ran out.
func (p *Player) trackEnded(ctx context.Context, mayStartNext bool) (*Track, error) {
	p.mu.Lock()
	if !mayStartNext || p.status == StatusIdle {
		p.mu.Unlock()
		return nil, nil
	}

	switch {
	case p.loopSong:
	case p.loopQueue && p.currentLocked() != nil:
		item := p.queue[p.qpos]
		p.queue = append(p.queue[:p.qpos], p.queue[p.qpos+1:]...)
		p.queue = append(p.queue, item)
	default:
		p.qpos++
	}

	if p.currentLocked() == nil {
		p.status = StatusIdle
		p.scheduleIdleLocked()
		p.mu.Unlock()
		return nil, nil
	}
	p.mu.Unlock()

	if err := p.play(ctx, 0); err != nil {
		return nil, err
	}
	return p.Current(), nil
}

func (p *Player) scheduleIdleLocked() {
	p.cancelIdleLocked()
	if p.idleWait <= 0 || p.onIdle == nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(p.idleWait, func() {
		p.mu.Lock()
		fire := p.disconnectTimer == t && p.status == StatusIdle
		if fire {
			p.disconnectTimer = nil
		}
		p.mu.Unlock()
		if fire {
			p.onIdle()
		}
	})
	p.disconnectTimer = t
}

func (p *Player) cancelIdleLocked() {
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
}

func (p *Player) shutdown() {
	p.mu.Lock()
	p.cancelIdleLocked()
	p.status = StatusIdle
	p.mu.Unlock()
}
