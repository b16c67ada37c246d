package handlers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
	"github.com/sonroyaalmerol/kumaswarm/internal/ui"
	"github.com/sonroyaalmerol/kumaswarm/internal/utils"
)

type command struct {
	name        string
	aliases     []string
	usage       string
	description string
	// routed by voice affinity instead of by message hash
	requiresVoice bool
	// subcommands routed by voice affinity when the command itself is not
	voiceSubcommands []string
	// fails with "not connected" when this identity has no session in the guild
	needsSession bool
	// needs the session owner, a privileged user, or an unowned session; implies needsSession
	ownerOnly bool
	run       func(c *cmdContext) error
}

// routesByVoice reports whether this invocation needs the caller's voice channel.
func (c *command) routesByVoice(args []string) bool {
	if c.requiresVoice {
		return true
	}
	return len(args) > 0 && slices.Contains(c.voiceSubcommands, strings.ToLower(args[0]))
}

type cmdContext struct {
	ctx      context.Context
	inst     *Instance
	msg      *discordgo.Message
	args     []string
	voiceID  string
	voice    bool
	settings *repository.Settings
	p        *player.Player
}

func (c *cmdContext) userID() string { return c.msg.Author.ID }

func (c *cmdContext) reply(content string) { c.inst.reply(c.msg, content) }

func (c *cmdContext) embed(e *discordgo.MessageEmbed) { c.inst.replyEmbed(c.msg, e) }

func (c *cmdContext) intArg(idx, def int) (int, error) {
	if idx >= len(c.args) {
		return def, nil
	}
	n, err := strconv.Atoi(c.args[idx])
	if err != nil {
		return 0, usageError{}
	}
	return n, nil
}

func (c *cmdContext) requirePrivileged() error {
	ok, err := c.inst.members.IsPrivileged(c.ctx, c.msg.GuildID, c.userID())
	if err != nil {
		return err
	}
	if !ok {
		return friendlyError("only the server owner can change that")
	}
	return nil
}

type usageError struct{}

func (usageError) Error() string { return "bad arguments" }

// friendlyError is shown to the user verbatim.
type friendlyError string

func (e friendlyError) Error() string { return string(e) }

var (
	commandList  []*command
	commandIndex map[string]*command
)

func init() {
	commandList = []*command{
		{name: "play", aliases: []string{"p"}, usage: "play <query|url>", description: "queue a song, playlist or Spotify link",
			requiresVoice: true, run: playCmd(false)},
		{name: "playnext", aliases: []string{"pn"}, usage: "playnext <query|url>", description: "queue a song right after the current one",
			requiresVoice: true, run: playCmd(true)},
		{name: "skip", aliases: []string{"s", "next"}, usage: "skip [count]", description: "skip songs",
			requiresVoice: true, ownerOnly: true, run: cmdSkip},
		{name: "back", aliases: []string{"unskip"}, usage: "back", description: "go back to the previous song",
			requiresVoice: true, ownerOnly: true, run: cmdBack},
		{name: "pause", usage: "pause", description: "pause playback",
			requiresVoice: true, ownerOnly: true, run: cmdPause},
		{name: "resume", usage: "resume", description: "resume playback",
			requiresVoice: true, ownerOnly: true, run: cmdResume},
		{name: "stop", usage: "stop", description: "stop playback and clear the queue",
			requiresVoice: true, ownerOnly: true, run: cmdStop},
		{name: "leave", aliases: []string{"disconnect", "dc"}, usage: "leave", description: "leave the voice channel",
			requiresVoice: true, ownerOnly: true, run: cmdLeave},
		{name: "clear", usage: "clear", description: "clear the queue except the current song",
			requiresVoice: true, ownerOnly: true, run: cmdClear},
		{name: "queue", aliases: []string{"q"}, usage: "queue [page]", description: "show the queue",
			requiresVoice: true, needsSession: true, run: cmdQueue},
		{name: "np", aliases: []string{"nowplaying", "now-playing"}, usage: "np", description: "show the current song",
			requiresVoice: true, needsSession: true, run: cmdNowPlaying},
		{name: "volume", aliases: []string{"vol"}, usage: "volume [0-200]", description: "show or set the volume",
			requiresVoice: true, needsSession: true, run: cmdVolume},
		{name: "loop", usage: "loop", description: "toggle looping the current song",
			requiresVoice: true, ownerOnly: true, run: cmdLoop},
		{name: "loopqueue", aliases: []string{"lq", "loop-queue"}, usage: "loopqueue", description: "toggle looping the whole queue",
			requiresVoice: true, ownerOnly: true, run: cmdLoopQueue},
		{name: "move", aliases: []string{"mv"}, usage: "move <from> <to>", description: "move a song within the queue",
			requiresVoice: true, ownerOnly: true, run: cmdMove},
		{name: "remove", aliases: []string{"rm"}, usage: "remove <position> [count]", description: "remove songs from the queue",
			requiresVoice: true, ownerOnly: true, run: cmdRemove},
		{name: "seek", usage: "seek <time>", description: "jump to a time in the current song (90, 1:30, 1m30s)",
			requiresVoice: true, ownerOnly: true, run: cmdSeek},
		{name: "replay", usage: "replay", description: "restart the current song",
			requiresVoice: true, ownerOnly: true, run: cmdReplay},
		{name: "shuffle", usage: "shuffle", description: "shuffle the upcoming songs",
			requiresVoice: true, ownerOnly: true, run: cmdShuffle},
		{name: "claim", usage: "claim", description: "take control of the session",
			requiresVoice: true, needsSession: true, run: cmdClaim},
		{name: "transfer", usage: "transfer <@user>", description: "hand control of the session to someone in the channel",
			requiresVoice: true, needsSession: true, run: cmdTransfer},
		{name: "owner", usage: "owner", description: "show who controls the session",
			requiresVoice: true, needsSession: true, run: cmdOwner},
		{name: "fav", aliases: []string{"favorite", "favorites"}, usage: "fav <add name query|use name|list|remove name>",
			description: "save, play and manage favorite queries", voiceSubcommands: []string{"use"}, run: cmdFav},
		{name: "bots", usage: "bots", description: "show what every bot in the pool is doing", run: cmdBots},
		{name: "prefix", usage: "prefix [new]", description: "show or change the command prefix", run: cmdPrefix},
		{name: "config", usage: "config [key value]", description: "show or change server settings", run: cmdConfig},
		{name: "help", aliases: []string{"h"}, usage: "help", description: "list commands", run: cmdHelp},
		{name: "ping", usage: "ping", description: "check that the bot is alive", run: cmdPing},
	}

	commandIndex = make(map[string]*command)
	for _, c := range commandList {
		commandIndex[c.name] = c
		for _, a := range c.aliases {
			commandIndex[a] = c
		}
	}
}

func lookupCommand(name string) (*command, bool) {
	c, ok := commandIndex[strings.ToLower(name)]
	return c, ok
}

func playCmd(immediate bool) func(c *cmdContext) error {
	return func(c *cmdContext) error {
		if len(c.args) == 0 {
			return usageError{}
		}
		query := strings.Join(c.args, " ")
		backend := c.inst.manager.Backend()
		if backend == nil {
			return player.ErrNoBackend
		}

		tracks, playlist, err := c.inst.resolve(c.ctx, backend, query, c.settings.PlaylistLimit)
		if err != nil {
			return err
		}

		p, err := c.inst.manager.Connect(c.ctx, c.msg.GuildID, c.voiceID, c.userID(), c.msg.ChannelID)
		if err != nil {
			return err
		}
		p.SetTextChannel(c.msg.ChannelID)

		position := p.QueueSize() + 1
		if p.Current() == nil {
			position = 0
		} else if immediate {
			position = 1
		}
		for _, t := range tracks {
			t.RequestedBy = c.userID()
			t.AddedInChan = c.msg.ChannelID
			p.Add(t, immediate)
		}
		if err := p.Start(c.ctx); err != nil {
			return err
		}

		c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Str("query", query).
			Int("tracks", len(tracks)).Msg("cmd play")
		c.embed(ui.BuildAddedEmbed(tracks, playlist, position))
		return nil
	}
}

func cmdSkip(c *cmdContext) error {
	n, err := c.intArg(0, 1)
	if err != nil || n < 1 {
		return usageError{}
	}
	if err := c.p.Skip(c.ctx, n); err != nil {
		return err
	}
	if cur := c.p.Current(); cur != nil {
		c.reply("skipped, now playing " + utils.EscapeMd(cur.Title))
	} else {
		c.reply("skipped, that was the last one")
	}
	return nil
}

func cmdBack(c *cmdContext) error {
	if err := c.p.Back(c.ctx); err != nil {
		return err
	}
	c.reply("back 'er up, now playing " + utils.EscapeMd(c.p.Current().Title))
	return nil
}

func cmdPause(c *cmdContext) error {
	if err := c.p.Pause(c.ctx); err != nil {
		return err
	}
	c.reply("the stop-and-go light is now red")
	return nil
}

func cmdResume(c *cmdContext) error {
	if err := c.p.Resume(c.ctx); err != nil {
		return err
	}
	c.reply("the stop-and-go light is now green")
	return nil
}

func cmdStop(c *cmdContext) error {
	if err := c.p.Stop(c.ctx); err != nil {
		return err
	}
	c.reply("u betcha, stopped")
	return nil
}

func cmdLeave(c *cmdContext) error {
	if err := c.inst.manager.Disconnect(c.ctx, c.msg.GuildID); err != nil {
		return err
	}
	c.reply("u betcha, disconnected")
	return nil
}

func cmdClear(c *cmdContext) error {
	c.p.Clear()
	c.reply("clearer than a field after a fresh harvest")
	return nil
}

func cmdQueue(c *cmdContext) error {
	page, err := c.intArg(0, 1)
	if err != nil {
		return err
	}
	e, err := ui.BuildQueueEmbed(c.p, page, c.settings.DefaultQueuePageSize)
	if err != nil {
		if errors.Is(err, player.ErrQueueEmpty) {
			return err
		}
		return friendlyError(err.Error())
	}
	c.embed(e)
	return nil
}

func cmdNowPlaying(c *cmdContext) error {
	if c.p.Current() == nil {
		return player.ErrNothingPlaying
	}
	c.embed(ui.BuildPlayingEmbed(c.p))
	return nil
}

func cmdVolume(c *cmdContext) error {
	if len(c.args) == 0 {
		c.reply(fmt.Sprintf("volume is %d", c.p.Volume()))
		return nil
	}
	vol, err := c.intArg(0, 0)
	if err != nil {
		return err
	}
	if err := c.inst.tracker.Authorize(c.ctx, c.p, c.userID()); err != nil {
		return err
	}
	if err := c.p.SetVolume(c.ctx, vol); err != nil {
		return err
	}
	c.reply(fmt.Sprintf("volume set to %d", vol))
	return nil
}

func cmdLoop(c *cmdContext) error {
	on, err := c.p.ToggleLoopSong()
	if err != nil {
		return err
	}
	if on {
		c.reply("looped :)")
	} else {
		c.reply("stopped looping :(")
	}
	return nil
}

func cmdLoopQueue(c *cmdContext) error {
	on, err := c.p.ToggleLoopQueue()
	if err != nil {
		return err
	}
	if on {
		c.reply("looped queue :)")
	} else {
		c.reply("stopped looping queue :(")
	}
	return nil
}

func cmdMove(c *cmdContext) error {
	if len(c.args) < 2 {
		return usageError{}
	}
	from, err := c.intArg(0, 0)
	if err != nil {
		return err
	}
	to, err := c.intArg(1, 0)
	if err != nil {
		return err
	}
	item, err := c.p.Move(from, to)
	if err != nil {
		return err
	}
	c.reply(fmt.Sprintf("moved %s to position %d", utils.EscapeMd(item.Title), to))
	return nil
}

func cmdRemove(c *cmdContext) error {
	if len(c.args) == 0 {
		return usageError{}
	}
	pos, err := c.intArg(0, 1)
	if err != nil {
		return err
	}
	count, err := c.intArg(1, 1)
	if err != nil {
		return err
	}
	n, err := c.p.Remove(pos, count)
	if err != nil {
		return err
	}
	c.reply(fmt.Sprintf(":wastebasket: removed %d", n))
	return nil
}

func cmdSeek(c *cmdContext) error {
	if len(c.args) == 0 {
		return usageError{}
	}
	pos, err := utils.ParseTimestamp(c.args[0])
	if err != nil {
		return friendlyError(err.Error())
	}
	if err := c.p.Seek(c.ctx, pos); err != nil {
		return err
	}
	c.reply("👍 seeked to " + utils.PrettyDuration(pos))
	return nil
}

func cmdReplay(c *cmdContext) error {
	if err := c.p.Replay(c.ctx); err != nil {
		return err
	}
	c.reply("👍 replayed the current song")
	return nil
}

func cmdShuffle(c *cmdContext) error {
	if err := c.p.Shuffle(); err != nil {
		return err
	}
	c.reply("shuffled the queue")
	return nil
}

func cmdClaim(c *cmdContext) error {
	if err := c.inst.tracker.Claim(c.ctx, c.p, c.userID()); err != nil {
		return err
	}
	c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Msg("session claimed")
	c.reply("👑 you're in control now")
	return nil
}

func cmdTransfer(c *cmdContext) error {
	if len(c.args) == 0 {
		return usageError{}
	}
	target := mentionedUser(c.args[0])
	if target == "" {
		return usageError{}
	}
	if err := c.inst.tracker.Transfer(c.ctx, c.p, c.userID(), target); err != nil {
		return err
	}
	c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Str("target", target).Msg("session transferred")
	c.reply(fmt.Sprintf("👑 <@%s> is in control now", target))
	return nil
}

func cmdOwner(c *cmdContext) error {
	owner := c.inst.tracker.Owner(c.p)
	if owner == "" {
		c.reply(fmt.Sprintf("nobody controls this session, use `%sclaim`", c.inst.bot.prefix(c.settings)))
		return nil
	}
	c.reply(fmt.Sprintf("<@%s> controls this session", owner))
	return nil
}

func cmdFav(c *cmdContext) error {
	if len(c.args) == 0 {
		return usageError{}
	}
	favs := c.inst.bot.favorites
	sub, rest := strings.ToLower(c.args[0]), c.args[1:]
	switch sub {
	case "add", "create":
		if len(rest) < 2 {
			return usageError{}
		}
		name, query := rest[0], strings.Join(rest[1:], " ")
		err := favs.AddFavorite(c.ctx, &repository.Favorite{GuildID: c.msg.GuildID, Author: c.userID(), Name: name, Query: query})
		if errors.Is(err, repository.ErrFavoriteExists) {
			return friendlyError(err.Error())
		}
		if err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}
		c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Str("name", name).Msg("favorite created")
		c.reply(fmt.Sprintf("👍 saved `%s`", utils.EscapeMd(name)))
		return nil

	case "use":
		if len(rest) != 1 {
			return usageError{}
		}
		f, err := favs.FindFavorite(c.ctx, c.msg.GuildID, rest[0])
		if errors.Is(err, repository.ErrFavoriteNotFound) {
			return friendlyError(err.Error())
		}
		if err != nil {
			return fmt.Errorf("find favorite: %w", err)
		}
		c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Str("name", f.Name).Msg("favorite used")
		c.args = strings.Fields(f.Query)
		return playCmd(false)(c)

	case "list", "ls":
		items, err := favs.ListFavorites(c.ctx, c.msg.GuildID)
		if err != nil {
			return fmt.Errorf("list favorites: %w", err)
		}
		if len(items) == 0 {
			c.reply("there aren't any favorites yet")
			return nil
		}
		var b strings.Builder
		for _, f := range items {
			fmt.Fprintf(&b, "• **%s**: %s (<@%s>)\n", utils.EscapeMd(f.Name), utils.EscapeMd(f.Query), f.Author)
		}
		c.embed(&discordgo.MessageEmbed{Title: "Favorites", Description: b.String(), Color: 0x006400})
		return nil

	case "remove", "rm":
		if len(rest) != 1 {
			return usageError{}
		}
		f, err := favs.FindFavorite(c.ctx, c.msg.GuildID, rest[0])
		if errors.Is(err, repository.ErrFavoriteNotFound) {
			return friendlyError(err.Error())
		}
		if err != nil {
			return fmt.Errorf("find favorite: %w", err)
		}
		if f.Author != c.userID() {
			ok, err := c.inst.members.IsPrivileged(c.ctx, c.msg.GuildID, c.userID())
			if err != nil {
				return err
			}
			if !ok {
				return friendlyError("you can only remove your own favorites")
			}
		}
		if _, err := favs.RemoveFavorite(c.ctx, c.msg.GuildID, f.Name); err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("userID", c.userID()).Str("name", f.Name).Msg("favorite removed")
		c.reply(fmt.Sprintf("👍 removed `%s`", utils.EscapeMd(f.Name)))
		return nil
	}
	return usageError{}
}

func cmdBots(c *cmdContext) error {
	var b strings.Builder
	for _, id := range c.inst.bot.pool.Identities() {
		name := fmt.Sprintf("#%d", id.Index())
		if uid := id.UserID(); uid != "" {
			name += fmt.Sprintf(" <@%s>", uid)
		}
		s, err := c.inst.bot.reg.ActiveSession(c.ctx, id.Index(), c.msg.GuildID)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "%s: unknown\n", name)
		case s == nil:
			fmt.Fprintf(&b, "%s: free\n", name)
		default:
			fmt.Fprintf(&b, "%s: playing in <#%s>\n", name, s.VoiceChannelID)
		}
	}
	c.embed(&discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Bot pool (%d)", c.inst.bot.pool.Size()),
		Description: b.String(),
		Color:       0x006400,
	})
	return nil
}

func cmdPrefix(c *cmdContext) error {
	if len(c.args) == 0 {
		c.reply(fmt.Sprintf("prefix is `%s`", c.inst.bot.prefix(c.settings)))
		return nil
	}
	if err := c.requirePrivileged(); err != nil {
		return err
	}
	np := c.args[0]
	if len(np) > 5 {
		return friendlyError("prefix can be at most 5 characters")
	}
	set := *c.settings
	set.Prefix = np
	if err := c.inst.bot.settings.UpdateSettings(c.ctx, &set); err != nil {
		return fmt.Errorf("update prefix: %w", err)
	}
	c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("prefix", np).Msg("prefix updated")
	c.reply(fmt.Sprintf("👍 prefix is now `%s`", np))
	return nil
}

type settingKey struct {
	name  string
	show  func(s *repository.Settings) string
	apply func(s *repository.Settings, v string) error
}

func intSetting(lo, hi int, field func(s *repository.Settings) *int) (func(*repository.Settings) string, func(*repository.Settings, string) error) {
	return func(s *repository.Settings) string { return strconv.Itoa(*field(s)) },
		func(s *repository.Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < lo || n > hi {
				return friendlyError(fmt.Sprintf("value must be a number from %d to %d", lo, hi))
			}
			*field(s) = n
			return nil
		}
}

func boolSetting(field func(s *repository.Settings) *bool) (func(*repository.Settings) string, func(*repository.Settings, string) error) {
	return func(s *repository.Settings) string { return strconv.FormatBool(*field(s)) },
		func(s *repository.Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return friendlyError("value must be true or false")
			}
			*field(s) = b
			return nil
		}
}

var settingKeys = func() map[string]settingKey {
	keys := map[string]settingKey{}
	add := func(name string, show func(*repository.Settings) string, apply func(*repository.Settings, string) error) {
		keys[name] = settingKey{name: name, show: show, apply: apply}
	}
	show, apply := intSetting(1, 500, func(s *repository.Settings) *int { return &s.PlaylistLimit })
	add("playlist-limit", show, apply)
	show, apply = intSetting(0, 3600, func(s *repository.Settings) *int { return &s.SecondsWaitAfterEmpty })
	add("wait-after-empty", show, apply)
	show, apply = intSetting(0, player.MaxVolume, func(s *repository.Settings) *int { return &s.DefaultVolume })
	add("default-volume", show, apply)
	show, apply = intSetting(1, 30, func(s *repository.Settings) *int { return &s.DefaultQueuePageSize })
	add("queue-page-size", show, apply)
	bshow, bapply := boolSetting(func(s *repository.Settings) *bool { return &s.LeaveIfNoListeners })
	add("leave-if-no-listeners", bshow, bapply)
	bshow, bapply = boolSetting(func(s *repository.Settings) *bool { return &s.AutoAnnounceNext })
	add("announce-next", bshow, bapply)
	return keys
}()

func cmdConfig(c *cmdContext) error {
	if len(c.args) == 0 {
		names := make([]string, 0, len(settingKeys))
		for n := range settingKeys {
			names = append(names, n)
		}
		sort.Strings(names)
		var b strings.Builder
		fmt.Fprintf(&b, "prefix: `%s`\n", c.inst.bot.prefix(c.settings))
		for _, n := range names {
			fmt.Fprintf(&b, "%s: `%s`\n", n, settingKeys[n].show(c.settings))
		}
		c.embed(&discordgo.MessageEmbed{Title: "Settings", Description: b.String(), Color: 0x006400})
		return nil
	}
	if len(c.args) != 2 {
		return usageError{}
	}
	key, ok := settingKeys[strings.ToLower(c.args[0])]
	if !ok {
		return friendlyError("unknown setting " + utils.EscapeMd(c.args[0]))
	}
	if err := c.requirePrivileged(); err != nil {
		return err
	}
	set := *c.settings
	if err := key.apply(&set, c.args[1]); err != nil {
		return err
	}
	if err := c.inst.bot.settings.UpdateSettings(c.ctx, &set); err != nil {
		return fmt.Errorf("update %s: %w", key.name, err)
	}
	c.inst.log.Info().Str("guildID", c.msg.GuildID).Str("key", key.name).Str("value", c.args[1]).Msg("config updated")
	c.reply(fmt.Sprintf("👍 %s updated", key.name))
	return nil
}

func cmdHelp(c *cmdContext) error {
	prefix := c.inst.bot.prefix(c.settings)
	var b strings.Builder
	for _, cmd := range commandList {
		fmt.Fprintf(&b, "`%s%s` %s\n", prefix, cmd.usage, cmd.description)
	}
	c.embed(&discordgo.MessageEmbed{Title: "Commands", Description: b.String(), Color: 0x006400})
	return nil
}

func cmdPing(c *cmdContext) error {
	msg := fmt.Sprintf("pong from bot #%d", c.inst.id.Index())
	if s := c.inst.session; s != nil {
		msg += fmt.Sprintf(" (%dms)", s.HeartbeatLatency().Milliseconds())
	}
	c.reply(msg)
	return nil
}
