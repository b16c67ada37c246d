package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
	"github.com/sonroyaalmerol/kumaswarm/internal/ui"
)

const workQueueSize = 256

type sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Instance is one logged-in identity. Every gateway event it handles runs on a
// single worker goroutine, so commands for one identity never overlap.
type Instance struct {
	bot     *Bot
	id      *routing.Identity
	session *discordgo.Session
	out     sender
	members *stateMembers
	tracker *routing.Tracker
	manager *player.Manager
	log     zerolog.Logger

	lavalink *player.Lavalink
	work     chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func newInstance(b *Bot, id *routing.Identity, state guildState, out sender, voice player.Voice) *Instance {
	log := b.log.With().Int("identity", id.Index()).Logger()
	members := &stateMembers{state: state, cfg: b.cfg}
	return &Instance{
		bot:     b,
		id:      id,
		out:     out,
		members: members,
		tracker: routing.NewTracker(members, members),
		manager: player.NewManager(id.Index(), b.reg, voice, b.settings, log),
		log:     log,
		work:    make(chan func(), workQueueSize),
		ctx:     context.Background(),
	}
}

func (i *Instance) Identity() *routing.Identity { return i.id }
func (i *Instance) Manager() *player.Manager    { return i.manager }

func (i *Instance) open(ctx context.Context) error {
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})
	go i.loop()

	s := i.session
	s.AddHandler(i.onReady)
	s.AddHandler(i.onDisconnect)
	s.AddHandler(i.onMessageCreate)
	s.AddHandler(i.onVoiceStateUpdate)
	s.AddHandler(i.onVoiceServerUpdate)
	if err := s.Open(); err != nil {
		i.cancel()
		<-i.done
		return err
	}
	return nil
}

func (i *Instance) close() {
	if i.cancel != nil {
		i.cancel()
		<-i.done
	}
	if i.lavalink != nil {
		i.lavalink.Close()
	}
	if i.session != nil {
		if err := i.session.Close(); err != nil {
			i.log.Warn().Err(err).Msg("close discord session")
		}
	}
	i.id.SetNotReady()
}

func (i *Instance) loop() {
	defer close(i.done)
	for {
		select {
		case <-i.ctx.Done():
			return
		case f := <-i.work:
			f()
		}
	}
}

func (i *Instance) enqueue(f func()) {
	select {
	case i.work <- f:
	default:
		i.log.Warn().Msg("event queue full, dropping event")
	}
}

func (i *Instance) onReady(s *discordgo.Session, r *discordgo.Ready) {
	i.id.SetReady(r.User.ID)
	i.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected")

	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: i.bot.cfg.BotStatus,
		Activities: []*discordgo.Activity{
			{Name: i.bot.cfg.BotActivity, Type: discordgo.ActivityTypeListening},
		},
	}); err != nil {
		i.log.Warn().Err(err).Msg("update presence")
	}

	userID := r.User.ID
	i.enqueue(func() { i.attachLavalink(userID) })
}

func (i *Instance) attachLavalink(userID string) {
	if i.manager.Backend() != nil {
		return
	}
	cfg := i.bot.cfg
	ctx, cancel := context.WithTimeout(i.ctx, 15*time.Second)
	defer cancel()
	ll, err := player.NewLavalink(ctx, userID, player.NodeConfig{
		Name:     cfg.LavalinkNodeName,
		Address:  cfg.LavalinkAddress,
		Password: cfg.LavalinkPassword,
		Secure:   cfg.LavalinkSecure,
	}, func(guildID string, mayStartNext bool) {
		i.enqueue(func() { i.onTrackEnd(guildID, mayStartNext) })
	}, i.log)
	if err != nil {
		i.log.Error().Err(err).Msg("connect to lavalink")
		return
	}
	i.lavalink = ll
	i.manager.Attach(ll)
	i.log.Info().Str("node", cfg.LavalinkAddress).Msg("lavalink node attached")
}

func (i *Instance) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	i.log.Warn().Msg("gateway disconnected")
	i.id.SetNotReady()
}

func (i *Instance) onTrackEnd(guildID string, mayStartNext bool) {
	p, next, err := i.manager.HandleTrackEnd(i.ctx, guildID, mayStartNext)
	if err != nil {
		i.log.Warn().Err(err).Str("guildID", guildID).Msg("advance queue")
		return
	}
	if p == nil || next == nil || !p.AnnounceNext() || p.TextChannelID() == "" {
		return
	}
	if _, err := i.out.ChannelMessageSendEmbed(p.TextChannelID(), ui.BuildPlayingEmbed(p)); err != nil {
		i.log.Warn().Err(err).Str("guildID", guildID).Msg("announce next song")
	}
}

func (i *Instance) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	msg := m.Message
	i.enqueue(func() {
		if err := i.handleMessage(i.ctx, msg); err != nil {
			i.log.Debug().Err(err).Str("guildID", msg.GuildID).Str("messageID", msg.ID).Msg("message not handled")
		}
	})
}

func (i *Instance) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil {
		return
	}
	state := *vs.VoiceState
	if state.UserID == i.id.UserID() {
		if i.lavalink != nil {
			i.lavalink.OnVoiceStateUpdate(i.ctx, state.GuildID, state.ChannelID, state.SessionID)
		}
		i.enqueue(func() { i.selfVoiceChanged(state.GuildID, state.ChannelID) })
		return
	}
	i.enqueue(func() { i.checkListeners(state.GuildID) })
}

func (i *Instance) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if i.lavalink != nil {
		i.lavalink.OnVoiceServerUpdate(i.ctx, e.GuildID, e.Token, e.Endpoint)
	}
}

func (i *Instance) selfVoiceChanged(guildID, channelID string) {
	var err error
	if channelID == "" {
		err = i.manager.HandleVoiceLost(i.ctx, guildID)
	} else {
		err = i.manager.HandleVoiceMoved(i.ctx, guildID, channelID)
	}
	if err != nil {
		i.log.Warn().Err(err).Str("guildID", guildID).Str("channelID", channelID).Msg("voice state sync")
	}
}

// checkListeners leaves when nobody but bots is left in the session's channel.
func (i *Instance) checkListeners(guildID string) {
	p := i.manager.Peek(guildID)
	if p == nil {
		return
	}
	set := i.bot.guildSettings(i.ctx, guildID)
	if !set.LeaveIfNoListeners {
		return
	}
	if i.members.listeners(guildID, p.ChannelID(), i.bot.botUserIDs()) > 0 {
		return
	}
	i.log.Info().Str("guildID", guildID).Msg("no listeners left, leaving")
	if err := i.manager.Disconnect(i.ctx, guildID); err != nil {
		i.log.Warn().Err(err).Str("guildID", guildID).Msg("leave empty channel")
	}
}

// handleMessage parses, gates and runs one message. Only the identity the gate picks replies.
func (i *Instance) handleMessage(ctx context.Context, m *discordgo.Message) error {
	set := i.bot.guildSettings(ctx, m.GuildID)
	name, args, ok := parseCommand(m.Content, i.bot.prefix(set))
	if !ok {
		return nil
	}
	cmd, ok := lookupCommand(name)
	if !ok {
		return nil
	}

	voice := cmd.routesByVoice(args)
	voiceID := i.members.voiceChannel(m.GuildID, m.Author.ID)
	verdict, decision, err := i.bot.gate.Decide(ctx, i.id, routing.Inbound{
		GuildID:        m.GuildID,
		VoiceChannelID: voiceID,
		MessageID:      m.ID,
		RequiresVoice:  voice,
	})
	if err != nil {
		return fmt.Errorf("route %s: %w", cmd.name, err)
	}

	switch verdict {
	case routing.VerdictDiscard:
		return nil
	case routing.VerdictNotifyBusy:
		if voiceID == "" {
			i.reply(m, errNotInVoice.Error())
			return nil
		}
		i.log.Debug().Str("guildID", m.GuildID).Str("command", cmd.name).Msg("all identities busy")
		i.reply(m, fmt.Sprintf("all %d of us are busy in other channels right now, try again later", i.bot.pool.Size()))
		return nil
	}

	i.log.Debug().Str("guildID", m.GuildID).Str("userID", m.Author.ID).Str("command", cmd.name).
		Str("reason", string(decision.Reason)).Msg("executing")

	if !i.bot.cooldown.Allow(m.Author.ID) {
		i.reply(m, "slow down there, partner")
		return nil
	}

	c := &cmdContext{
		ctx:      ctx,
		inst:     i,
		msg:      m,
		args:     args,
		voiceID:  voiceID,
		voice:    voice,
		settings: set,
	}
	if err := i.run(c, cmd); err != nil {
		i.reply(m, i.userMessage(c, cmd, err))
	}
	return nil
}

func (i *Instance) run(c *cmdContext, cmd *command) error {
	if c.voice && c.voiceID == "" {
		return errNotInVoice
	}
	if cmd.needsSession || cmd.ownerOnly {
		p := i.manager.Peek(c.msg.GuildID)
		if p == nil {
			return player.ErrNotConnected
		}
		if cmd.ownerOnly {
			if err := i.tracker.Authorize(c.ctx, p, c.msg.Author.ID); err != nil {
				return err
			}
		}
		c.p = p
	}
	return cmd.run(c)
}

var errNotInVoice = errors.New("gotta be in a voice channel")

func (i *Instance) userMessage(c *cmdContext, cmd *command, err error) string {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return fmt.Sprintf("usage: `%s%s`", i.bot.prefix(c.settings), cmd.usage)
	case errors.Is(err, routing.ErrNotOwner):
		return fmt.Sprintf("%s, use `%sclaim` if they've left", err, i.bot.prefix(c.settings))
	case isUserFacing(err):
		return err.Error()
	}
	i.log.Error().Err(err).Str("guildID", c.msg.GuildID).Str("command", cmd.name).Msg("command failed")
	return "something went wrong, try again"
}

func isUserFacing(err error) bool {
	for _, target := range []error{
		errNotInVoice,
		routing.ErrAlreadyOwner,
		routing.ErrOwnerStillPresent,
		routing.ErrTargetNotInChannel,
		routing.ErrTargetAlreadyOwner,
		routing.ErrNotAuthorizedToTransfer,
		player.ErrNoBackend,
		player.ErrOtherChannel,
		player.ErrNotConnected,
		player.ErrNoMatches,
		player.ErrNothingPlaying,
		player.ErrNotPlaying,
		player.ErrAlreadyPlaying,
		player.ErrNoPrevious,
		player.ErrQueueEmpty,
		player.ErrLiveSeek,
		player.ErrSeekPastEnd,
		player.ErrVolumeRange,
		player.ErrPosition,
		player.ErrNotEnoughToLoop,
		player.ErrNothingToLoop,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var fe friendlyError
	return errors.As(err, &fe)
}

func (i *Instance) reply(m *discordgo.Message, content string) {
	if _, err := i.out.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		i.log.Warn().Err(err).Str("guildID", m.GuildID).Msg("reply failed")
	}
}

func (i *Instance) replyEmbed(m *discordgo.Message, e *discordgo.MessageEmbed) {
	if _, err := i.out.ChannelMessageSendEmbed(m.ChannelID, e); err != nil {
		i.log.Warn().Err(err).Str("guildID", m.GuildID).Msg("embed reply failed")
	}
}
