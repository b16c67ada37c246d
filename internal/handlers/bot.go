package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/kumaswarm/internal/config"
	"github.com/sonroyaalmerol/kumaswarm/internal/player"
	"github.com/sonroyaalmerol/kumaswarm/internal/registry"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
	"github.com/sonroyaalmerol/kumaswarm/internal/sponsorblock"
	"github.com/sonroyaalmerol/kumaswarm/internal/spotify"
)

type SettingsStore interface {
	Settings(ctx context.Context, guildID string) (*repository.Settings, error)
	UpdateSettings(ctx context.Context, s *repository.Settings) error
}

type FavoritesStore interface {
	AddFavorite(ctx context.Context, f *repository.Favorite) error
	RemoveFavorite(ctx context.Context, guildID, name string) (int64, error)
	FindFavorite(ctx context.Context, guildID, name string) (*repository.Favorite, error)
	ListFavorites(ctx context.Context, guildID string) ([]repository.Favorite, error)
}

// Store is the guild data every identity of the pool shares.
type Store interface {
	SettingsStore
	FavoritesStore
}

// Bot runs this process's share of the identity pool.
type Bot struct {
	cfg       *config.Config
	settings  SettingsStore
	favorites FavoritesStore
	reg       registry.Registry
	pool      *routing.Pool
	gate      *routing.Gate
	spotify   *spotify.Client
	trimmer   *sponsorblock.Trimmer
	cooldown  *cooldown
	log       zerolog.Logger

	instances []*Instance
}

func NewBot(ctx context.Context, cfg *config.Config, store Store, reg registry.Registry, log zerolog.Logger) (*Bot, error) {
	b, err := newBot(cfg, store, reg, log)
	if err != nil {
		return nil, err
	}

	if cfg.SpotifyClientID != "" {
		sp, err := spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			return nil, fmt.Errorf("spotify client: %w", err)
		}
		b.spotify = sp
	}

	for _, idx := range cfg.Local() {
		dg, err := discordgo.New("Bot " + cfg.BotTokens[idx])
		if err != nil {
			return nil, fmt.Errorf("discord session for identity %d: %w", idx, err)
		}
		dg.Identify.Intents = discordgo.IntentGuilds |
			discordgo.IntentGuildMessages |
			discordgo.IntentMessageContent |
			discordgo.IntentGuildVoiceStates
		inst := newInstance(b, b.pool.Identity(idx), dg.State, dg, player.NewDiscordVoice(dg))
		inst.session = dg
		b.instances = append(b.instances, inst)
	}
	return b, nil
}

func newBot(cfg *config.Config, store Store, reg registry.Registry, log zerolog.Logger) (*Bot, error) {
	pool, err := routing.NewPool(len(cfg.BotTokens), reg)
	if err != nil {
		return nil, err
	}
	var trimmer *sponsorblock.Trimmer
	if cfg.EnableSponsorBlock {
		trimmer = sponsorblock.NewTrimmer(cfg.SponsorBlockBackoff)
	}
	return &Bot{
		cfg:       cfg,
		trimmer:   trimmer,
		settings:  store,
		favorites: store,
		reg:       reg,
		pool:      pool,
		gate:      routing.NewGate(pool),
		cooldown:  newCooldown(cfg.CommandRate, cfg.CommandBurst),
		log:       log,
	}, nil
}

func (b *Bot) Pool() *routing.Pool { return b.pool }

func (b *Bot) Instances() []*Instance { return b.instances }

// Run logs in every local identity and blocks until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	var opened []*Instance
	for _, inst := range b.instances {
		if err := inst.open(ctx); err != nil {
			for _, o := range opened {
				o.close()
			}
			return fmt.Errorf("open identity %d: %w", inst.id.Index(), err)
		}
		opened = append(opened, inst)
	}
	b.log.Info().Int("local", len(b.instances)).Int("pool", b.pool.Size()).Msg("identities connected")

	if b.cfg.RedisURL != "" {
		go registry.RunKeepalive(ctx, b.reg, b.cfg.SessionTTL/3, b.entries, b.log)
	}
	go b.sweepCooldowns(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, inst := range b.instances {
		inst.manager.Close(shutdownCtx)
		inst.close()
	}
	return nil
}

func (b *Bot) entries() []registry.Entry {
	var out []registry.Entry
	for _, inst := range b.instances {
		out = append(out, inst.manager.Entries()...)
	}
	return out
}

func (b *Bot) sweepCooldowns(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := b.cooldown.sweep(); n > 0 {
				b.log.Debug().Int("users", n).Msg("cooldowns expired")
			}
		}
	}
}

// botUserIDs lists the user IDs of the identities known in this process.
func (b *Bot) botUserIDs() []string {
	var out []string
	for _, id := range b.pool.Identities() {
		if uid := id.UserID(); uid != "" {
			out = append(out, uid)
		}
	}
	return out
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) *repository.Settings {
	set, err := b.settings.Settings(ctx, guildID)
	if err != nil || set == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Warn().Err(err).Str("guildID", guildID).Msg("get settings failed")
		}
		return &repository.Settings{
			GuildID:               guildID,
			PlaylistLimit:         50,
			SecondsWaitAfterEmpty: 30,
			LeaveIfNoListeners:    true,
			DefaultVolume:         player.DefaultVolume,
			DefaultQueuePageSize:  10,
		}
	}
	return set
}

func (b *Bot) prefix(set *repository.Settings) string {
	if set.Prefix != "" {
		return set.Prefix
	}
	return b.cfg.DefaultPrefix
}
