package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
)

// newPoolCmd prints which identity holds which channel in a guild, read from the
// shared registry. It is mostly useful when identities run in several processes.
func newPoolCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "pool <guildID>",
		Short: "Show each identity's voice session in a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return errors.New("pool reads the shared registry, set REDIS_URL")
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return printPool(ctx, cmd, len(cfg.BotTokens), reg, args[0])
		},
	}
}

func printPool(ctx context.Context, cmd *cobra.Command, size int, sessions routing.SessionSource, guildID string) error {
	pool, err := routing.NewPool(size, sessions)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range pool.Identities() {
		s, err := sessions.ActiveSession(ctx, id.Index(), guildID)
		if err != nil {
			return err
		}
		switch {
		case s == nil:
			fmt.Fprintf(out, "#%d\tidle\n", id.Index())
		default:
			fmt.Fprintf(out, "#%d\t%s\t%s\n", id.Index(), s.VoiceChannelID, s.SessionID)
		}
	}
	d, err := pool.Assign(ctx, guildID, routing.Request{RequiresVoice: true})
	if err != nil {
		return err
	}
	if d.AllBusy() {
		fmt.Fprintln(out, "next voice session: none free")
	} else {
		fmt.Fprintf(out, "next voice session: #%d\n", d.Identity.Index())
	}
	return nil
}
